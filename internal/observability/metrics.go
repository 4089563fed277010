// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Settlement metrics
	BidsProcessed      *prometheus.CounterVec
	ValidationFailures *prometheus.CounterVec
	SettlementLatency  prometheus.Histogram
	SettledVolume      prometheus.Counter
	DepositsReclaimed  prometheus.Counter

	// Ledger metrics
	LedgerTxDuration *prometheus.HistogramVec
	LedgerSlot       prometheus.Gauge

	// Chain sync metrics
	AccountsImported *prometheus.CounterVec
	RPCCallLatency   *prometheus.HistogramVec
	HighestSlotSeen  prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulSettlement prometheus.Gauge
	LastSuccessfulSync       prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "nft_market"
	}

	return &Metrics{
		// Settlement metrics
		BidsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "bids_processed_total",
			Help:      "Total number of bids processed by status",
		}, []string{"status"}),
		ValidationFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "validation_failures_total",
			Help:      "Total number of rejected bids by failed check and error kind",
		}, []string{"check", "kind"}),
		SettlementLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "latency_seconds",
			Help:      "Bid processing latency in seconds, commit included",
			Buckets:   prometheus.DefBuckets,
		}),
		SettledVolume: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "volume_lamports_total",
			Help:      "Total lamports paid to makers by settled bids",
		}),
		DepositsReclaimed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "deposits_reclaimed_lamports_total",
			Help:      "Total storage deposits returned to makers",
		}),

		// Ledger metrics
		LedgerTxDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "tx_duration_seconds",
			Help:      "Ledger transaction duration in seconds by outcome",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		LedgerSlot: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "slot",
			Help:      "Last committed ledger slot",
		}),

		// Chain sync metrics
		AccountsImported: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "accounts_imported_total",
			Help:      "Total number of chain accounts applied to the ledger by source",
		}, []string{"source"}),
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		HighestSlotSeen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "highest_slot_seen",
			Help:      "Highest Solana slot number seen",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulSettlement: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_settlement_timestamp",
			Help:      "Unix timestamp of last settled bid",
		}),
		LastSuccessfulSync: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_sync_timestamp",
			Help:      "Unix timestamp of last completed chain import",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordBid records the outcome of one bid.
func RecordBid(status string, seconds float64) {
	DefaultMetrics.BidsProcessed.WithLabelValues(status).Inc()
	DefaultMetrics.SettlementLatency.Observe(seconds)
}

// RecordValidationFailure records a bid rejected by check.
func RecordValidationFailure(check, kind string) {
	if check == "" {
		check = "settlement"
	}
	DefaultMetrics.ValidationFailures.WithLabelValues(check, kind).Inc()
}

// RecordSettlement records the value moved by a settled bid.
func RecordSettlement(price, reclaimed uint64, unixTimestamp int64) {
	DefaultMetrics.SettledVolume.Add(float64(price))
	DefaultMetrics.DepositsReclaimed.Add(float64(reclaimed))
	DefaultMetrics.LastSuccessfulSettlement.Set(float64(unixTimestamp))
}

// RecordLedgerTx records a ledger transaction by outcome (commit, rollback).
func RecordLedgerTx(outcome string, seconds float64) {
	DefaultMetrics.LedgerTxDuration.WithLabelValues(outcome).Observe(seconds)
}

// UpdateLedgerSlot updates the committed slot gauge.
func UpdateLedgerSlot(slot uint64) {
	DefaultMetrics.LedgerSlot.Set(float64(slot))
}

// RecordAccountsImported records accounts applied from source (rpc, ws).
func RecordAccountsImported(source string, n int) {
	DefaultMetrics.AccountsImported.WithLabelValues(source).Add(float64(n))
}

// RecordSyncCompleted marks a finished chain import.
func RecordSyncCompleted(unixTimestamp int64) {
	DefaultMetrics.LastSuccessfulSync.Set(float64(unixTimestamp))
}

// UpdateHighestSlot updates the highest slot seen gauge.
func UpdateHighestSlot(slot int64) {
	DefaultMetrics.HighestSlotSeen.Set(float64(slot))
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
