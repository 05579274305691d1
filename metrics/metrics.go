// Package metrics exposes Prometheus collectors for the session orchestrator.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ada"

// Collector groups the orchestrator's metrics.
type Collector struct {
	FramesSent        *prometheus.CounterVec
	InboundEvents     *prometheus.CounterVec
	ToolCalls         *prometheus.CounterVec
	Confirmations     *prometheus.CounterVec
	BackgroundTasks   prometheus.Gauge
	ActiveSessions    prometheus.Gauge
	OutboundQueueSize prometheus.Gauge
	InboundAudioQueue prometheus.Gauge
}

// NewCollector creates the collectors and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Outbound frames forwarded to the live channel, by kind.",
		}, []string{"kind"}),
		InboundEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_events_total",
			Help:      "Events received from the live channel, by type.",
		}, []string{"type"}),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls by tool and immediate outcome.",
		}, []string{"tool", "outcome"}),
		Confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "confirmations_total",
			Help:      "Confirmation requests by outcome (approved, denied, timeout).",
		}, []string{"outcome"}),
		BackgroundTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "background_tasks_inflight",
			Help:      "Background tasks currently running.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions in the running state.",
		}),
		OutboundQueueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbound_queue_depth",
			Help:      "Frames waiting in the outbound queue.",
		}),
		InboundAudioQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inbound_audio_queue_depth",
			Help:      "Audio chunks waiting for playback.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			c.FramesSent,
			c.InboundEvents,
			c.ToolCalls,
			c.Confirmations,
			c.BackgroundTasks,
			c.ActiveSessions,
			c.OutboundQueueSize,
			c.InboundAudioQueue,
		)
	}
	return c
}

func (c *Collector) FrameSent(kind string) {
	if c == nil {
		return
	}
	c.FramesSent.WithLabelValues(kind).Inc()
}

func (c *Collector) InboundEvent(typ string) {
	if c == nil {
		return
	}
	c.InboundEvents.WithLabelValues(typ).Inc()
}

func (c *Collector) ToolCall(tool, outcome string) {
	if c == nil {
		return
	}
	c.ToolCalls.WithLabelValues(tool, outcome).Inc()
}

func (c *Collector) Confirmation(outcome string) {
	if c == nil {
		return
	}
	c.Confirmations.WithLabelValues(outcome).Inc()
}

func (c *Collector) BackgroundStarted() {
	if c == nil {
		return
	}
	c.BackgroundTasks.Inc()
}

func (c *Collector) BackgroundFinished() {
	if c == nil {
		return
	}
	c.BackgroundTasks.Dec()
}

func (c *Collector) SessionStarted() {
	if c == nil {
		return
	}
	c.ActiveSessions.Inc()
}

func (c *Collector) SessionStopped() {
	if c == nil {
		return
	}
	c.ActiveSessions.Dec()
}

func (c *Collector) QueueDepths(outbound, inboundAudio int) {
	if c == nil {
		return
	}
	c.OutboundQueueSize.Set(float64(outbound))
	c.InboundAudioQueue.Set(float64(inboundAudio))
}
