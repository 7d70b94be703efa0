package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for monitoring
var (
	TasksExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_tasks_executed_total",
		Help: "The total number of scheduler task executions by outcome",
	}, []string{"kind", "status"})

	TaskExecutionTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bridge_task_execution_seconds",
		Help:    "Time taken by a single task execution",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"kind"})

	TaskQueueSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_task_queue_size",
		Help: "Number of tasks waiting in the scheduler",
	})

	CorruptRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_corrupt_records_total",
		Help: "Persisted records that could not be decoded",
	}, []string{"table"})

	Deposits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_deposits_total",
		Help: "Deposits by asset kind and result",
	}, []string{"kind", "status"})

	Withdrawals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_withdrawals_total",
		Help: "Withdrawals by asset kind and result",
	}, []string{"kind", "status"})

	ReservedUtxos = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_reserved_utxos",
		Help: "UTXOs currently reserved by an in-flight spend",
	})

	EventCursor = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_evm_event_cursor",
		Help: "Next EVM block to scan for bridge events",
	})

	EventsCollected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_evm_events_collected_total",
		Help: "Bridge contract logs turned into tasks, by event",
	}, []string{"event"})
)
