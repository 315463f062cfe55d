package metrics

import (
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AmountFloat converts an atomic-unit amount for gauge export. Amounts
// beyond float64 precision lose low digits but keep their magnitude;
// they must not be squeezed through int64 on the way.
func AmountFloat(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}

var (
	// OperationsTotal counts bridge operations by kind and status
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_operations_total",
			Help: "Total number of bridge operations",
		},
		[]string{"operation", "status"},
	)

	// RefundsTotal counts refunded deposits by reason
	RefundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_refunds_total",
			Help: "Total number of refunded deposits",
		},
		[]string{"reason"},
	)

	// JobsTotal counts queue jobs by topic and outcome
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_queue_jobs_total",
			Help: "Total number of queue jobs processed",
		},
		[]string{"topic", "outcome"},
	)

	// QueueDepth tracks waiting plus delayed jobs per topic
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bridge_queue_depth",
			Help: "Number of waiting and delayed jobs by topic",
		},
		[]string{"topic"},
	)

	// PendingWithdrawalAmount tracks the summed amount of pending withdrawals in atomic units
	PendingWithdrawalAmount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bridge_pending_withdrawal_amount",
			Help: "Total amount reserved by pending withdrawals (atomic units)",
		},
	)

	// LockRetries counts ledger lock acquisition retries
	LockRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_lock_retries_total",
			Help: "Total number of ledger lock acquisition retries",
		},
	)

	// LastScannedBlock tracks the EVM scan cursor
	LastScannedBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bridge_last_scanned_block",
			Help: "Last EVM block processed by the burn scanner",
		},
	)

	// EventsDetected counts chain events by chain and type
	EventsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_events_detected_total",
			Help: "Total number of chain events detected",
		},
		[]string{"chain", "event_type"},
	)

	// HotWalletBalance tracks the hot wallet balance in atomic units
	HotWalletBalance = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bridge_hot_wallet_balance",
			Help: "Current hot wallet balance (atomic units)",
		},
	)

	// ColdTransfersTotal counts hot to cold rebalancing transfers
	ColdTransfersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_cold_transfers_total",
			Help: "Total number of hot to cold rebalancing transfers",
		},
	)

	// ErrorsTotal counts errors by component and type
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	// BlacklistCacheAge tracks seconds since the blacklist snapshot was fetched
	BlacklistCacheAge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bridge_blacklist_cache_age_seconds",
			Help: "Age of the cached blacklist snapshot in seconds",
		},
	)
)
