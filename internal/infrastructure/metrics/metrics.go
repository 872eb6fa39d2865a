package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. It implements usecase.Metrics.
type Metrics struct {
	// Ledger metrics
	WalletsCreated       prometheus.Counter
	CoinsMinted          prometheus.Counter
	TransfersCompleted   prometheus.Counter
	TransferDuration     prometheus.Histogram
	TransferAmount       prometheus.Histogram
	TransferErrors       *prometheus.CounterVec
	TransfersCompensated prometheus.Counter
	AuditWriteFailures   prometheus.Counter

	// API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	HTTPInFlight prometheus.Gauge

	// Rate limiting metrics
	RateLimitHits prometheus.Counter
}

// New creates all metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		WalletsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "coinledger_wallets_created_total",
			Help: "Total number of wallets created",
		}),
		CoinsMinted: factory.NewCounter(prometheus.CounterOpts{
			Name: "coinledger_coins_minted_total",
			Help: "Total coins added by increments",
		}),
		TransfersCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "coinledger_transfers_completed_total",
			Help: "Total number of completed transfers",
		}),
		TransferDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "coinledger_transfer_duration_seconds",
			Help:    "Duration of transfer operations",
			Buckets: prometheus.DefBuckets,
		}),
		TransferAmount: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "coinledger_transfer_amount",
			Help:    "Transfer amounts in coins",
			Buckets: []float64{1, 5, 10, 50, 100, 1000, 10000},
		}),
		TransferErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinledger_transfer_errors_total",
				Help: "Total number of failed transfers by reason",
			},
			[]string{"reason"},
		),
		TransfersCompensated: factory.NewCounter(prometheus.CounterOpts{
			Name: "coinledger_transfers_compensated_total",
			Help: "Total number of debits reversed after a failed credit",
		}),
		AuditWriteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "coinledger_audit_write_failures_total",
			Help: "Total number of committed transfers missing from the transaction log",
		}),

		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinledger_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coinledger_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "coinledger_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		}),

		RateLimitHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "coinledger_rate_limit_hits_total",
			Help: "Total requests rejected by the rate limiter",
		}),
	}
}

func (m *Metrics) WalletCreated() {
	m.WalletsCreated.Inc()
}

func (m *Metrics) Incremented(amount int64) {
	m.CoinsMinted.Add(float64(amount))
}

func (m *Metrics) TransferCompleted(amount int64, duration time.Duration) {
	m.TransfersCompleted.Inc()
	m.TransferAmount.Observe(float64(amount))
	m.TransferDuration.Observe(duration.Seconds())
}

func (m *Metrics) TransferFailed(reason string) {
	m.TransferErrors.WithLabelValues(reason).Inc()
}

func (m *Metrics) TransferCompensated() {
	m.TransfersCompensated.Inc()
}

func (m *Metrics) AuditWriteFailed() {
	m.AuditWriteFailures.Inc()
}
