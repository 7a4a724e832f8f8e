package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	ApplicationsSubmitted prometheus.Counter
	ApplicationsApproved  prometheus.Counter
	ApplicationsRejected  prometheus.Counter
	ApplicationsWithdrawn prometheus.Counter
	ReconciliationGaps    prometheus.Counter

	YieldDeposits  prometheus.Counter
	YieldClaims    prometheus.Counter
	ProjectsClosed prometheus.Counter

	LedgerTxSubmitted *prometheus.CounterVec
	LedgerTxOutcome   *prometheus.CounterVec

	AssetListDuration   prometheus.Histogram
	RequestDuration     *prometheus.HistogramVec
	ContentResolveFails prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		ApplicationsSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "brickvault_applications_submitted_total",
			Help: "Total publisher applications submitted",
		}),
		ApplicationsApproved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "brickvault_applications_approved_total",
			Help: "Total publisher applications approved",
		}),
		ApplicationsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "brickvault_applications_rejected_total",
			Help: "Total publisher applications rejected",
		}),
		ApplicationsWithdrawn: promauto.NewCounter(prometheus.CounterOpts{
			Name: "brickvault_applications_withdrawn_total",
			Help: "Total publisher applications withdrawn by the applicant",
		}),
		ReconciliationGaps: promauto.NewCounter(prometheus.CounterOpts{
			Name: "brickvault_reconciliation_gaps_total",
			Help: "Detected disagreements between the ledger and the document store",
		}),
		YieldDeposits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "brickvault_yield_deposits_total",
			Help: "Total yield deposits confirmed on the ledger",
		}),
		YieldClaims: promauto.NewCounter(prometheus.CounterOpts{
			Name: "brickvault_yield_claims_total",
			Help: "Total yield claims confirmed on the ledger",
		}),
		ProjectsClosed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "brickvault_projects_closed_total",
			Help: "Total issuances irreversibly closed",
		}),
		LedgerTxSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "brickvault_ledger_tx_submitted_total",
			Help: "Ledger transactions submitted, by operation",
		}, []string{"operation"}),
		LedgerTxOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "brickvault_ledger_tx_outcome_total",
			Help: "Ledger transaction outcomes (confirmed, reverted, timed_out)",
		}, []string{"outcome"}),
		AssetListDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "brickvault_asset_list_duration_seconds",
			Help:    "Latency of building the active asset list",
			Buckets: prometheus.DefBuckets,
		}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "brickvault_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
		ContentResolveFails: promauto.NewCounter(prometheus.CounterOpts{
			Name: "brickvault_content_resolve_failures_total",
			Help: "Content store resolutions that fell back to ledger-only data",
		}),
	}
}
