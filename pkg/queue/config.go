package queue

import "time"

// Config holds worker pool settings loadable from the environment.
type Config struct {
	Concurrency  int           `env:"QUEUE_CONCURRENCY" envDefault:"10"`
	PollInterval time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"1s"`
	LockTimeout  time.Duration `env:"QUEUE_LOCK_TIMEOUT" envDefault:"5m"`
}

// WorkerOptions converts the config into worker options.
func (c Config) WorkerOptions() []WorkerOption {
	return []WorkerOption{
		WithConcurrency(c.Concurrency),
		WithPollInterval(c.PollInterval),
		WithLockTimeout(c.LockTimeout),
	}
}
