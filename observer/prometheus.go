package observer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/paywatch/paywatch"
)

// Metrics holds the engine's Prometheus instrumentation.
type Metrics struct {
	confirmations  prometheus.Counter
	expiries       prometheus.Counter
	gatewayErrors  *prometheus.CounterVec
	sweptRecords   prometheus.Counter
	verifyDuration prometheus.Histogram
}

// NewMetrics registers the engine metrics on reg and returns the holder.
// Pass prometheus.DefaultRegisterer for the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		confirmations: factory.NewCounter(prometheus.CounterOpts{
			Name: "paywatch_confirmations_total",
			Help: "Payment requests confirmed against the ledger",
		}),
		expiries: factory.NewCounter(prometheus.CounterOpts{
			Name: "paywatch_expiries_total",
			Help: "Payment requests that expired unpaid",
		}),
		gatewayErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "paywatch_gateway_errors_total",
			Help: "Ledger gateway failures during verification",
		}, []string{"op"}),
		sweptRecords: factory.NewCounter(prometheus.CounterOpts{
			Name: "paywatch_swept_records_total",
			Help: "Terminal records reclaimed by sweep passes",
		}),
		verifyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "paywatch_verify_duration_seconds",
			Help:    "Duration of verification passes",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}
}

// Options returns the engine options wiring these metrics to the hook set.
func (m *Metrics) Options() []paywatch.Option {
	return []paywatch.Option{
		paywatch.WithOnConfirmedHook(func(paywatch.ConfirmContext) {
			m.confirmations.Inc()
		}),
		paywatch.WithOnExpiredHook(func(paywatch.ExpireContext) {
			m.expiries.Inc()
		}),
		paywatch.WithOnGatewayErrorHook(func(ctx paywatch.GatewayErrorContext) {
			m.gatewayErrors.WithLabelValues(ctx.Err.Op).Inc()
		}),
		paywatch.WithOnSweptHook(func(ctx paywatch.SweepContext) {
			m.sweptRecords.Add(float64(len(ctx.Removed)))
		}),
		paywatch.WithAfterVerifyHook(func(ctx paywatch.VerifyContext) {
			m.verifyDuration.Observe(ctx.Duration.Seconds())
		}),
	}
}
