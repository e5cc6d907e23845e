package watchclient

import (
	"io"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
)

const DefaultSettleWindow = time.Second

type options struct {
	logger       *slog.Logger
	clock        clock.Clock
	settleWindow time.Duration
}

type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithClock(clk clock.Clock) Option {
	return func(o *options) { o.clock = clk }
}

// WithSettleWindow sets how long local player events are ignored after a remote command.
func WithSettleWindow(d time.Duration) Option {
	return func(o *options) { o.settleWindow = d }
}

func newOptions(opts []Option) options {
	o := options{
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		clock:        clock.New(),
		settleWindow: DefaultSettleWindow,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return o
}
