// Package metrics defines the instrumentation contract for the
// facilitator. The Prometheus recorder backs production; the no-op backs
// tests and library embedding.
package metrics

import "time"

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
