package omnitab

import (
	"time"

	"github.com/omni402/omnitab/logger"
	"github.com/omni402/omnitab/metrics"
)

type Option func(*Facilitator)

func WithLogger(l logger.Logger) Option {
	return func(f *Facilitator) {
		f.logger = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(f *Facilitator) {
		f.metrics = r
	}
}

func WithTimeout(t time.Duration) Option {
	return func(f *Facilitator) {
		f.timeout = t
	}
}

// WithHubNetwork overrides the hub network name advertised by Supported.
func WithHubNetwork(network string) Option {
	return func(f *Facilitator) {
		f.hubNetwork = network
	}
}
