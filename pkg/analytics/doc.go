// Package analytics aggregates delivery outcomes into operational summaries:
// delivery and failure rates, per-channel and per-type breakdowns, daily
// volumes, and mean submission-to-delivery latency. The aggregator reads
// from the notification store in pages, so ranges spanning large volumes do
// not load everything at once.
package analytics
