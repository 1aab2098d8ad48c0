// Package dispatch wires the notification pipeline together. The Dispatcher
// accepts submissions, applies recipient preferences and quiet hours, renders
// templates, persists a PENDING record, and enqueues a delivery job. The
// Processor is the queue handler on the other side: it performs one delivery
// attempt per job through the channel adapters and settles the record as
// DELIVERED or FAILED.
//
// Two retry budgets exist on purpose. The queue retries transport failures
// automatically with backoff, up to the job's attempt budget, while the
// record stays PENDING. Once that budget is spent the record becomes FAILED,
// and only an explicit Retry call moves it back to PENDING, bounded by the
// record's own retry count.
//
// # Usage
//
//	dispatcher, err := dispatch.NewDispatcher(store, dlog, filter, enqueuer,
//		dispatch.WithRenderer(renderer),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	rec, err := dispatcher.Submit(ctx, dispatch.Input{
//		Type:    notification.TypeLeaveApproved,
//		Channel: notification.ChannelEmail,
//		UserID:  "emp-1042",
//		Email:   "jordan@example.com",
//		Subject: "Leave approved",
//		Message: "Your leave from 3-7 March was approved.",
//	})
//	if err != nil {
//		return err
//	}
//	if rec == nil {
//		// The recipient opted out; nothing was sent and that is fine.
//	}
//
//	processor, err := dispatch.NewProcessor(store, dlog, registry)
//	if err != nil {
//		log.Fatal(err)
//	}
//	worker, err := queue.NewWorker(storage, processor)
package dispatch
