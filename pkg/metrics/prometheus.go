package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"FxSignal/internal/domain/models"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	generated     *prometheus.CounterVec
	rejected      *prometheus.CounterVec
	resolutions   *prometheus.CounterVec
	fetchLatency  *prometheus.HistogramVec
	fetchErrors   *prometheus.CounterVec
	passDuration  prometheus.Histogram
	passChecked   prometheus.Gauge
	keysExhausted prometheus.Counter
}

// New registers the recorder's collectors on reg. A nil reg uses the default registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		generated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fxsignal_signals_generated_total",
			Help: "Signals accepted and persisted",
		}, []string{"pair", "direction"}),
		rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fxsignal_signals_rejected_total",
			Help: "Scored results that did not become signals",
		}, []string{"reason"}),
		resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fxsignal_signal_resolutions_total",
			Help: "Signals resolved by terminal status",
		}, []string{"status"}),
		fetchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fxsignal_market_data_fetch_seconds",
			Help:    "Market data request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		fetchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fxsignal_market_data_errors_total",
			Help: "Failed market data requests",
		}, []string{"op"}),
		passDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fxsignal_monitor_pass_seconds",
			Help:    "Duration of a monitor pass",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		passChecked: f.NewGauge(prometheus.GaugeOpts{
			Name: "fxsignal_monitor_active_signals",
			Help: "Active signals checked by the last monitor pass",
		}),
		keysExhausted: f.NewCounter(prometheus.CounterOpts{
			Name: "fxsignal_api_keys_exhausted_total",
			Help: "Requests refused because every API key was out of quota",
		}),
	}
}

func (r *Recorder) RecordSignalGenerated(pair string, direction models.Direction) {
	r.generated.WithLabelValues(pair, string(direction)).Inc()
}

func (r *Recorder) RecordSignalRejected(reason string) {
	r.rejected.WithLabelValues(reason).Inc()
}

func (r *Recorder) RecordResolution(status models.Status) {
	r.resolutions.WithLabelValues(string(status)).Inc()
}

// RecordFetch observes latency and counts the call as failed when err is non-nil.
func (r *Recorder) RecordFetch(op string, seconds float64, err error) {
	r.fetchLatency.WithLabelValues(op).Observe(seconds)
	if err != nil {
		r.fetchErrors.WithLabelValues(op).Inc()
	}
}

func (r *Recorder) RecordMonitorPass(seconds float64, checked int) {
	r.passDuration.Observe(seconds)
	r.passChecked.Set(float64(checked))
}

func (r *Recorder) RecordKeysExhausted() {
	r.keysExhausted.Inc()
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordSignalGenerated(string, models.Direction) {}
func (Nop) RecordSignalRejected(string)                    {}
func (Nop) RecordResolution(models.Status)                 {}
func (Nop) RecordFetch(string, float64, error)             {}
func (Nop) RecordMonitorPass(float64, int)                 {}
func (Nop) RecordKeysExhausted()                           {}
