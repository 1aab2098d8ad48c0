// Package redis provides Redis connection management for the notification
// pipeline's queue storage.
//
// # Usage
//
//	var cfg redis.Config
//	if err := config.Load(&cfg); err != nil {
//	    log.Fatal(err)
//	}
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	storage, err := queue.NewRedisStorage(client)
//
// Healthcheck returns a probe suitable for readiness endpoints:
//
//	probe := redis.Healthcheck(client)
//	if err := probe(ctx); err != nil { ... }
package redis
