package piano

import (
	"log/slog"
	"time"
)

// Option configures channels and banks.
type Option func(*options)

type options struct {
	logger *slog.Logger
	refill time.Duration
}

func newOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRefillInterval overrides how often a playing channel re-writes its
// waveform. By default it is the waveform duration.
func WithRefillInterval(d time.Duration) Option {
	return func(o *options) { o.refill = d }
}
