package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the process collectors on a private registry so tests and
// embedders never collide on the default one.
type Metrics struct {
	Registry *prometheus.Registry

	ConnectionsAccepted prometheus.Counter
	ConnectionsRejected prometheus.Counter
	AcceptErrors        prometheus.Counter
	Requests            *prometheus.CounterVec
	HandlerFailures     prometheus.Counter
	ServerRunning       prometheus.Gauge

	QueueDepth            prometheus.Gauge
	JobsPerformed         prometheus.Counter
	JobFailures           prometheus.Counter
	NotificationsSent     prometheus.Counter
	NotificationsReceived prometheus.Counter
}

// New builds and registers every collector. Go runtime and process
// collectors are included when withRuntime is set.
func New(withRuntime bool) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		ConnectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "probe_connections_accepted_total",
			Help: "Connections accepted by the probe server.",
		}),
		ConnectionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "probe_connections_rejected_total",
			Help: "Connections closed because the peer is outside the allowed networks.",
		}),
		AcceptErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "probe_accept_errors_total",
			Help: "Transient accept errors that were retried.",
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "probe_requests_total",
			Help: "Responses written, by status code.",
		}, []string{"code"}),
		HandlerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "probe_handler_failures_total",
			Help: "Requests answered with 500 after a parse or handler fault.",
		}),
		ServerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "probe_server_running",
			Help: "1 while the probe server accept loop is running.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scheduler_queue_depth",
			Help: "Jobs waiting in the scheduler queue.",
		}),
		JobsPerformed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_jobs_performed_total",
			Help: "Jobs that completed successfully.",
		}),
		JobFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_job_failures_total",
			Help: "Job executions that returned an error.",
		}),
		NotificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifier_messages_published_total",
			Help: "Messages published to the notifier.",
		}),
		NotificationsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifier_messages_delivered_total",
			Help: "Messages fanned out to subscribers.",
		}),
	}

	reg.MustRegister(
		m.ConnectionsAccepted,
		m.ConnectionsRejected,
		m.AcceptErrors,
		m.Requests,
		m.HandlerFailures,
		m.ServerRunning,
		m.QueueDepth,
		m.JobsPerformed,
		m.JobFailures,
		m.NotificationsSent,
		m.NotificationsReceived,
	)
	if withRuntime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// ObserveResponse counts one written response.
func (m *Metrics) ObserveResponse(status int) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(strconv.Itoa(status)).Inc()
}

// SetRunning records the accept loop state.
func (m *Metrics) SetRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.ServerRunning.Set(1)
		return
	}
	m.ServerRunning.Set(0)
}

// SetQueueDepth records the current queue depth.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}
