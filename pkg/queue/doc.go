// Package queue provides the dispatch queue that decouples notification
// submission from delivery. Producers enqueue jobs with a priority and an
// optional delay; a pool of workers claims ready jobs, highest priority
// first, and hands them to a Handler. Failed handlers are retried with
// exponential backoff up to the job's attempt budget, after which the job is
// parked as failed for operator inspection.
//
// Storage is pluggable: MemoryStorage suits tests and single-process
// deployments, RedisStorage shares one queue between processes. Both
// recover jobs abandoned by crashed workers once their lock expires.
//
// # Usage
//
//	storage := queue.NewMemoryStorage()
//	defer storage.Close()
//
//	enq, err := queue.NewEnqueuer(storage)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	job, err := enq.Enqueue(ctx, notificationID,
//		queue.WithPriority(queue.PriorityHigh),
//		queue.WithDelay(5*time.Minute),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	worker, err := queue.NewWorker(storage, handler,
//		queue.WithConcurrency(20),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := worker.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer worker.Stop()
//
// The worker also exposes Run(ctx) for errgroup-managed lifecycles.
package queue
