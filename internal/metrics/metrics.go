// Package metrics defines the prometheus collectors exported by the poll loop.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// PollCyclesTotal counts poll cycles by status.
	PollCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arisa_poll_cycles_total",
			Help: "Total number of poll cycles (count)",
		},
		[]string{"status"},
	)

	// PollDuration observes how long a poll cycle took.
	PollDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "arisa_poll_duration_ms",
			Help:    "Duration of a poll cycle in milliseconds",
			Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		},
	)

	// TicketsProcessedTotal counts dispatched tickets by what happened to them.
	TicketsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arisa_tickets_processed_total",
			Help: "Total number of tickets dispatched (count)",
		},
		[]string{"status"},
	)

	// ModuleOutcomesTotal counts rule module outcomes.
	ModuleOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arisa_module_outcomes_total",
			Help: "Total number of rule module outcomes (count)",
		},
		[]string{"module", "outcome"},
	)

	// DedupCacheSize is the number of tickets currently skipped.
	DedupCacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "arisa_dedup_cache_size",
			Help: "Number of tickets currently skipped by the dedup cache (count)",
		},
	)

	// TrackerRequestsTotal counts tracker API calls by operation and status.
	TrackerRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arisa_tracker_requests_total",
			Help: "Total number of tracker API calls (count)",
		},
		[]string{"operation", "status"},
	)
)

var registerOnce sync.Once

// Register adds every collector to the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(PollCyclesTotal)
		prometheus.MustRegister(PollDuration)
		prometheus.MustRegister(TicketsProcessedTotal)
		prometheus.MustRegister(ModuleOutcomesTotal)
		prometheus.MustRegister(DedupCacheSize)
		prometheus.MustRegister(TrackerRequestsTotal)
	})
}

// ObservePollDuration records one finished poll cycle.
func ObservePollDuration(duration time.Duration, status string) {
	PollCyclesTotal.WithLabelValues(status).Inc()
	PollDuration.Observe(float64(duration.Milliseconds()))
}

// IncTicketProcessed counts one dispatched ticket.
func IncTicketProcessed(status string) {
	TicketsProcessedTotal.WithLabelValues(status).Inc()
}

// IncModuleOutcome counts one module outcome.
func IncModuleOutcome(module, outcome string) {
	ModuleOutcomesTotal.WithLabelValues(module, outcome).Inc()
}

// SetDedupCacheSize reports the dedup cache size.
func SetDedupCacheSize(size int) {
	DedupCacheSize.Set(float64(size))
}

// ObserveTrackerRequest records a tracker call, labelled by whether err is nil.
func ObserveTrackerRequest(operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	TrackerRequestsTotal.WithLabelValues(operation, status).Inc()
}
