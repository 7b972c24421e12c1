// Package metrics holds the Prometheus collectors for report dispatch.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all Prometheus metrics for the report backend
type Registry struct {
	DispatchOutcomes *prometheus.CounterVec
	JobRuns          *prometheus.CounterVec
	JobDuration      *prometheus.HistogramVec
	SettingsRefresh  *prometheus.CounterVec
	SendDuration     *prometheus.HistogramVec
}

// NewRegistry creates the collectors and registers them with reg.
// Passing nil skips registration, which keeps tests independent of the global registry.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		DispatchOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "report_dispatch_outcomes_total",
				Help: "Per-channel dispatch outcomes by status",
			},
			[]string{"channel", "status"},
		),
		JobRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "report_job_runs_total",
				Help: "Job executions by trigger result",
			},
			[]string{"job", "result"},
		),
		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "report_job_duration_seconds",
				Help:    "Wall time of one job execution",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"job"},
		),
		SettingsRefresh: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_settings_refresh_total",
				Help: "Settings cache refreshes by result",
			},
			[]string{"result"},
		),
		SendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "report_channel_send_seconds",
				Help:    "Duration of a single channel send",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"channel"},
		),
	}

	if reg != nil {
		reg.MustRegister(r.DispatchOutcomes, r.JobRuns, r.JobDuration, r.SettingsRefresh, r.SendDuration)
	}
	return r
}

// ObserveOutcome counts one dispatch outcome
func (r *Registry) ObserveOutcome(channel, status string) {
	if r == nil {
		return
	}
	r.DispatchOutcomes.WithLabelValues(channel, status).Inc()
}

// ObserveJob records a job run and its duration
func (r *Registry) ObserveJob(job, result string, d time.Duration) {
	if r == nil {
		return
	}
	r.JobRuns.WithLabelValues(job, result).Inc()
	r.JobDuration.WithLabelValues(job).Observe(d.Seconds())
}

// ObserveRefresh counts a settings cache refresh attempt
func (r *Registry) ObserveRefresh(ok bool) {
	if r == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	r.SettingsRefresh.WithLabelValues(result).Inc()
}

// ObserveSend records the latency of one channel send
func (r *Registry) ObserveSend(channel string, d time.Duration) {
	if r == nil {
		return
	}
	r.SendDuration.WithLabelValues(channel).Observe(d.Seconds())
}
