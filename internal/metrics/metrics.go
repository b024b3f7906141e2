package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts scheduling runs by outcome ("success" or "conflict").
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "takt_scheduling_runs_total",
		Help: "Completed scheduling runs by outcome",
	}, []string{"outcome"})

	// InstancesScheduledTotal counts instances that received an entry.
	InstancesScheduledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "takt_instances_scheduled_total",
		Help: "Process instances successfully placed on a machine",
	})

	// ConflictsTotal counts conflicts by code.
	ConflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "takt_conflicts_total",
		Help: "Scheduling conflicts by conflict code",
	}, []string{"code"})

	// RunDuration observes wall-clock scheduling run time.
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "takt_run_duration_seconds",
		Help:    "Wall-clock duration of scheduling runs",
		Buckets: prometheus.DefBuckets,
	})

	// MachineUtilization reports the latest utilization snapshot per machine,
	// as a 0-1 fraction of working minutes booked over the metrics window.
	MachineUtilization = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "takt_machine_utilization_ratio",
		Help: "Booked fraction of each machine's working minutes",
	}, []string{"machine_id"})

	// EmergencyRequestsTotal counts emergency lifecycle transitions.
	EmergencyRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "takt_emergency_requests_total",
		Help: "Emergency request transitions by resulting state",
	}, []string{"state"})
)
