// Package config loads typed configuration structs from environment
// variables, with optional .env file support.
//
// It wraps github.com/caarlos0/env/v11 for struct parsing and
// github.com/joho/godotenv for .env loading. Each configuration type is
// parsed once per process and cached, so components can load their own
// config independently without repeated environment scans.
//
// # Usage
//
//	type WorkerConfig struct {
//	    Concurrency  int           `env:"QUEUE_CONCURRENCY" envDefault:"10"`
//	    PollInterval time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"1s"`
//	}
//
//	var cfg WorkerConfig
//	if err := config.Load(&cfg); err != nil {
//	    log.Fatal(err)
//	}
//
// Use ResetCache in tests that change the environment between loads.
package config
