package diagnostics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsTotal tracks stored request records by backend
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nyt_diagnostics_records_total",
			Help: "Total number of request records stored",
		},
		[]string{"backend"}, // "memory", "redis"
	)

	// RecordErrors tracks recorder failures
	RecordErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nyt_diagnostics_record_errors_total",
			Help: "Total number of diagnostics recorder errors",
		},
		[]string{"backend", "operation"}, // "record", "last", "clear"
	)
)
