// Package codecmetrics defines the Prometheus-backed instrumentation
// surface for codec and serdata operations: counters for write/read/
// normalize failures broken out by error kind, and gauges for serdata-pool
// and loan-pool occupancy. This package defines the interface and an
// enabled/disabled switch, keeping the concrete Prometheus wiring out of
// the codec/serdata call path; the concrete implementation lives in
// pkg/codecmetrics/prometheus and registers itself via RegisterConstructor
// from its init().
package codecmetrics

import "time"

// ErrorKind classifies a codec failure along the lines a counter label
// needs to stay meaningful across write/read/normalize call sites.
type ErrorKind string

const (
	ErrorKindEncoding   ErrorKind = "encoding"
	ErrorKindValidation ErrorKind = "validation"
	ErrorKindResource   ErrorKind = "resource"
	ErrorKindContract   ErrorKind = "contract"
	ErrorKindLoan       ErrorKind = "loan"
)

// Recorder is the instrumentation surface codec and serdata code call into.
// New returns a nil Recorder when metrics are disabled; calling a method on
// a nil Recorder panics, so callers check for nil first, which keeps the
// cost of disabled instrumentation to one comparison.
type Recorder interface {
	// ObserveWrite records one WriteSample/WriteKey call's outcome and
	// duration.
	ObserveWrite(d time.Duration, ok bool, kind ErrorKind)
	// ObserveRead records one ReadSample call's outcome and duration.
	ObserveRead(d time.Duration, ok bool, kind ErrorKind)
	// ObserveNormalize records one Normalize/NormalizeData call's outcome.
	ObserveNormalize(d time.Duration, ok bool, kind ErrorKind)
	// RecordSerdataPool updates the occupancy gauge for a type's small-
	// serdata free list.
	RecordSerdataPool(typeName string, occupancy int)
	// RecordLoanPool updates the occupancy gauge for a loan pool.
	RecordLoanPool(origin string, occupancy int)
}

var (
	enabled          bool
	newPrometheusRec func() Recorder
)

// Enable turns on metrics collection; subsequent New calls return the
// registered Prometheus-backed Recorder instead of nil.
func Enable() { enabled = true }

// IsEnabled reports whether Enable has been called.
func IsEnabled() bool { return enabled }

// New returns a Recorder, or nil when metrics are disabled or no
// implementation has registered itself; callers check the result for nil
// before calling any of its methods.
func New() Recorder {
	if !enabled || newPrometheusRec == nil {
		return nil
	}
	return newPrometheusRec()
}

// RegisterConstructor is called by pkg/codecmetrics/prometheus's init() to
// install the concrete implementation without this package importing
// prometheus directly, avoiding an import cycle back from the prometheus
// subpackage.
func RegisterConstructor(constructor func() Recorder) {
	newPrometheusRec = constructor
}
