// Package pg provides PostgreSQL connection management for the notification
// store.
//
// # Usage
//
//	var cfg pg.Config
//	if err := config.Load(&cfg); err != nil {
//	    log.Fatal(err)
//	}
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pool.Close()
//
//	store := notification.NewPGStore(pool)
//
// IsNotFoundError and IsDuplicateKeyError classify pgx errors so callers can
// map them to domain sentinels.
package pg
