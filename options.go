package corestream

import "time"

// Config holds scheduler-wide tunables, assembled from [Option]s.
// Grounded on eventloop/options.go's LoopOption pattern.
type Config struct {
	// CothreadCapacity bounds how many cothreads a scheduler's context may
	// hold at once (spec §3: "typical cap 16").
	CothreadCapacity int

	// AsyncPollInterval bounds how long the scheduler's asyncqueue.Queue
	// Iterate waits for async operations when its run list is empty (spec
	// §4.3, default 5ms). Scheduler.Iterate itself never waits on it.
	AsyncPollInterval time.Duration

	// MetricsEnabled turns on the counters in metrics.go.
	MetricsEnabled bool

	// Logger overrides the package-level logger for one scheduler
	// instance.
	Logger Logger
}

// Option configures a scheduler at construction time.
type Option interface {
	apply(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) apply(c *Config) { f(c) }

// WithCothreadCapacity overrides the default cothread context capacity.
func WithCothreadCapacity(n int) Option {
	return optionFunc(func(c *Config) { c.CothreadCapacity = n })
}

// WithAsyncPollInterval overrides the default 5ms async-op poll bound.
func WithAsyncPollInterval(d time.Duration) Option {
	return optionFunc(func(c *Config) { c.AsyncPollInterval = d })
}

// WithMetrics enables metrics collection.
func WithMetrics(enabled bool) Option {
	return optionFunc(func(c *Config) { c.MetricsEnabled = enabled })
}

// WithLogger overrides the package-level logger for one scheduler
// instance.
func WithLogger(l Logger) Option {
	return optionFunc(func(c *Config) { c.Logger = l })
}

// ResolveConfig applies opts over the documented defaults.
func ResolveConfig(opts ...Option) *Config {
	cfg := &Config{
		CothreadCapacity:  16,
		AsyncPollInterval: 5 * time.Millisecond,
	}
	for _, o := range opts {
		if o == nil {
			continue
		}
		o.apply(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = GetLogger()
	}
	return cfg
}
