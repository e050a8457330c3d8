package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheLookups records bounded-cache lookups by cache name and outcome (hit|miss).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mealvault_cache_lookups_total",
			Help: "Total number of bounded cache lookups",
		},
		[]string{"cache", "outcome"},
	)

	// CacheEvictions counts LRU evictions by cache name.
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mealvault_cache_evictions_total",
			Help: "Total number of LRU cache evictions",
		},
		[]string{"cache"},
	)

	// RepositoryOps counts repository operations and their outcome (success|failure).
	RepositoryOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mealvault_repository_operations_total",
			Help: "Total number of repository operations",
		},
		[]string{"operation", "result"},
	)

	// RetryAttempts counts executor attempts by final outcome.
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mealvault_retry_attempts_total",
			Help: "Total number of retry executor attempts",
		},
		[]string{"result"},
	)

	// BackupOps counts backup coordinator operations and outcomes.
	BackupOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mealvault_backup_operations_total",
			Help: "Total number of backup operations",
		},
		[]string{"operation", "result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mealvault_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
