// Package events turns HR platform events into notification submissions.
// A Registry maps event types to handlers, the Consumer fans each incoming
// event out to its handlers concurrently, and HRHandlers holds the built-in
// translations: who gets told what, over which channel, at which priority,
// when an employee joins, leave is approved, a review comes due, and so on.
//
// Handlers of one event are isolated: a sibling handler failing does not
// stop the others, and the combined error is reported to the caller. All
// notifications from one event share its correlation ID.
//
// # Usage
//
//	registry := events.NewRegistry()
//	handlers, err := events.NewHRHandlers(dispatcher, directory)
//	if err != nil {
//		log.Fatal(err)
//	}
//	handlers.Register(registry)
//
//	consumer, err := events.NewConsumer(registry)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	err = consumer.Handle(ctx, events.Event{
//		Type: events.EventEmployeeCreated,
//		Data: map[string]any{
//			"employee_id":   "emp-1042",
//			"employee_name": "Jordan Reyes",
//			"manager_id":    "emp-7",
//		},
//	})
package events
