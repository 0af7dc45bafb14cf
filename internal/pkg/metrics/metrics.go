package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds every rcbridge collector and backs the /metrics endpoint.
var Registry = prometheus.NewRegistry()

var (
	// LinkStatus reports the hardware link state.
	// 1 = dispatch loop running, 0 = connecting, failed or stopped.
	LinkStatus = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rcbridge_link_status",
			Help: "Hardware link status (1=running, 0=not running).",
		},
	)

	// CommandsEnqueued counts control surface calls.
	CommandsEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rcbridge_commands_enqueued_total",
			Help: "Total number of commands handed to the delivery channel.",
		},
		[]string{"kind", "status"}, // status: success/unavailable
	)

	// CommandsDispatched counts commands consumed by the dispatch loop.
	CommandsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rcbridge_commands_dispatched_total",
			Help: "Total number of commands consumed by the dispatch loop.",
		},
		[]string{"kind", "result"}, // result: success/failed/malformed
	)

	// ActuatorRequestDuration measures how long issuing a request took.
	ActuatorRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rcbridge_actuator_request_duration_seconds",
			Help:    "Time spent issuing actuator requests over the hardware link.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"actuator", "op"},
	)

	// QueueDepth is the number of commands waiting in the delivery channel.
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rcbridge_queue_depth",
			Help: "Commands waiting in the delivery channel.",
		},
	)

	// InputEvents counts input edges seen by the mapper.
	InputEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rcbridge_input_events_total",
			Help: "Input edges received, by control and whether they were forwarded.",
		},
		[]string{"control", "edge", "forwarded"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		LinkStatus,
		CommandsEnqueued,
		CommandsDispatched,
		ActuatorRequestDuration,
		QueueDepth,
		InputEvents,
	)
}
