// Package logger builds configured log/slog loggers for services embedding
// the notification pipeline.
//
// It provides environment presets, static attributes, and context-driven
// attribute extraction so request-scoped values such as correlation IDs show
// up on every record without threading them through call sites.
//
// # Usage
//
//	log := logger.New(
//	    logger.WithProduction("notify"),
//	    logger.WithContextValue("correlation_id", ctxkey.CorrelationID),
//	)
//	logger.SetAsDefault(log)
//
//	log.Info("worker started", logger.Component("queue"))
//
// Pipeline components take a *slog.Logger through their constructor options;
// nothing in this module reads the global default.
package logger
