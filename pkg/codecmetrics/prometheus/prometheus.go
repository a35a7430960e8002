// Package prometheus is the Prometheus-backed implementation of
// codecmetrics.Recorder, registered once via promauto and installed into
// codecmetrics from init.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ddscore/cdrx/pkg/codecmetrics"
)

func init() {
	codecmetrics.RegisterConstructor(func() codecmetrics.Recorder {
		return newRecorder()
	})
}

type recorder struct {
	writeOps       *prometheus.CounterVec
	writeDuration  *prometheus.HistogramVec
	readOps        *prometheus.CounterVec
	readDuration   *prometheus.HistogramVec
	normalizeOps   *prometheus.CounterVec
	normalizeDur   *prometheus.HistogramVec
	serdataPoolLen *prometheus.GaugeVec
	loanPoolLen    *prometheus.GaugeVec
}

var instance *recorder

func newRecorder() *recorder {
	if instance != nil {
		return instance
	}

	durationBuckets := []float64{
		0.00001, // 10us
		0.00005, // 50us
		0.0001,  // 100us
		0.0005,  // 500us
		0.001,   // 1ms
		0.005,   // 5ms
		0.01,    // 10ms
		0.05,    // 50ms
	}

	instance = &recorder{
		writeOps: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cdrx_codec_write_operations_total",
			Help: "Total WriteSample/WriteKey calls by outcome and error kind",
		}, []string{"status", "error_kind"}),
		writeDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cdrx_codec_write_duration_seconds",
			Help:    "Duration of WriteSample/WriteKey calls",
			Buckets: durationBuckets,
		}, []string{"status"}),
		readOps: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cdrx_codec_read_operations_total",
			Help: "Total ReadSample calls by outcome and error kind",
		}, []string{"status", "error_kind"}),
		readDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cdrx_codec_read_duration_seconds",
			Help:    "Duration of ReadSample calls",
			Buckets: durationBuckets,
		}, []string{"status"}),
		normalizeOps: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cdrx_codec_normalize_operations_total",
			Help: "Total Normalize/NormalizeData calls by outcome and error kind",
		}, []string{"status", "error_kind"}),
		normalizeDur: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cdrx_codec_normalize_duration_seconds",
			Help:    "Duration of Normalize/NormalizeData calls",
			Buckets: durationBuckets,
		}, []string{"status"}),
		serdataPoolLen: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cdrx_serdata_pool_occupancy",
			Help: "Current number of pooled small serdata entries, by type",
		}, []string{"type"}),
		loanPoolLen: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cdrx_loan_pool_occupancy",
			Help: "Current number of free loans held by a loan pool, by origin",
		}, []string{"origin"}),
	}
	return instance
}

func status(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

func (r *recorder) ObserveWrite(d time.Duration, ok bool, kind codecmetrics.ErrorKind) {
	r.writeOps.WithLabelValues(status(ok), string(kind)).Inc()
	r.writeDuration.WithLabelValues(status(ok)).Observe(d.Seconds())
}

func (r *recorder) ObserveRead(d time.Duration, ok bool, kind codecmetrics.ErrorKind) {
	r.readOps.WithLabelValues(status(ok), string(kind)).Inc()
	r.readDuration.WithLabelValues(status(ok)).Observe(d.Seconds())
}

func (r *recorder) ObserveNormalize(d time.Duration, ok bool, kind codecmetrics.ErrorKind) {
	r.normalizeOps.WithLabelValues(status(ok), string(kind)).Inc()
	r.normalizeDur.WithLabelValues(status(ok)).Observe(d.Seconds())
}

func (r *recorder) RecordSerdataPool(typeName string, occupancy int) {
	r.serdataPoolLen.WithLabelValues(typeName).Set(float64(occupancy))
}

func (r *recorder) RecordLoanPool(origin string, occupancy int) {
	r.loanPoolLen.WithLabelValues(origin).Set(float64(occupancy))
}
