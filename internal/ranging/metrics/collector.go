// Package rangingmetrics exposes the ranging core's Prometheus metrics:
// active sessions/peers, OOB message traffic, and fusion sample
// suppression (spec section 10's ambient metrics stack).
package rangingmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "rangingd"
	subsystem = "ranging"
)

// Label names used across ranging metrics.
const (
	labelTechnology  = "technology"
	labelMessageType = "message_type"
	labelDirection   = "direction"
)

// Collector holds every Prometheus metric the ranging core emits.
//
//   - Sessions/Peers gauges track live kernel state.
//   - OOB counters track handshake traffic volume and drop causes.
//   - FusionSuppressed counts samples the data-notification gate withheld.
//   - OOBRoundTrip histograms the capability request-to-response
//     round-trip latency (spec section 4.9's 4s timeout budget).
type Collector struct {
	// Sessions tracks the number of currently running session kernels.
	Sessions prometheus.Gauge

	// Peers tracks the number of peers with at least one active adapter,
	// labeled by technology.
	Peers *prometheus.GaugeVec

	// OOBMessages counts OOB messages sent/received, labeled by message
	// type and direction ("sent"/"received").
	OOBMessages *prometheus.CounterVec

	// OOBDropped counts peers dropped during the OOB handshake (timeout,
	// parse failure, or send failure; spec section 4.9 step 3).
	OOBDropped prometheus.Counter

	// FusionSuppressed counts ranging samples withheld by a peer's
	// data-notification gate (spec section 4.4).
	FusionSuppressed *prometheus.CounterVec

	// OOBRoundTrip histograms the capability-request-to-response latency
	// per peer, in seconds.
	OOBRoundTrip prometheus.Histogram
}

// NewCollector creates a Collector with every metric registered against
// reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Sessions,
		c.Peers,
		c.OOBMessages,
		c.OOBDropped,
		c.FusionSuppressed,
		c.OOBRoundTrip,
	)

	return c
}

func newMetrics() *Collector {
	return &Collector{
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions",
			Help:      "Number of currently running ranging session kernels.",
		}),

		Peers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "peers",
			Help:      "Number of peers with at least one active adapter, by technology.",
		}, []string{labelTechnology}),

		OOBMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "oob_messages_total",
			Help:      "Total OOB handshake messages, by message type and direction.",
		}, []string{labelMessageType, labelDirection}),

		OOBDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "oob_peers_dropped_total",
			Help:      "Total peers dropped during the OOB handshake (timeout, parse, or send failure).",
		}),

		FusionSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fusion_samples_suppressed_total",
			Help:      "Total ranging samples withheld by a peer's data-notification gate.",
		}, []string{labelTechnology}),

		OOBRoundTrip: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "oob_round_trip_seconds",
			Help:      "Capability-request-to-response round-trip latency, in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// -------------------------------------------------------------------------
// Session/peer gauges
// -------------------------------------------------------------------------

// SessionStarted increments the active sessions gauge.
func (c *Collector) SessionStarted() { c.Sessions.Inc() }

// SessionStopped decrements the active sessions gauge.
func (c *Collector) SessionStopped() { c.Sessions.Dec() }

// PeerActive increments the active peers gauge for technology.
func (c *Collector) PeerActive(technology string) {
	c.Peers.WithLabelValues(technology).Inc()
}

// PeerInactive decrements the active peers gauge for technology.
func (c *Collector) PeerInactive(technology string) {
	c.Peers.WithLabelValues(technology).Dec()
}

// -------------------------------------------------------------------------
// OOB handshake
// -------------------------------------------------------------------------

// IncOOBSent increments the sent-message counter for messageType.
func (c *Collector) IncOOBSent(messageType string) {
	c.OOBMessages.WithLabelValues(messageType, "sent").Inc()
}

// IncOOBReceived increments the received-message counter for messageType.
func (c *Collector) IncOOBReceived(messageType string) {
	c.OOBMessages.WithLabelValues(messageType, "received").Inc()
}

// IncOOBDropped increments the dropped-peer counter.
func (c *Collector) IncOOBDropped() { c.OOBDropped.Inc() }

// ObserveOOBRoundTrip records one capability-exchange round-trip latency.
func (c *Collector) ObserveOOBRoundTrip(d time.Duration) {
	c.OOBRoundTrip.Observe(d.Seconds())
}

// -------------------------------------------------------------------------
// Fusion
// -------------------------------------------------------------------------

// IncFusionSuppressed increments the suppressed-sample counter for
// technology.
func (c *Collector) IncFusionSuppressed(technology string) {
	c.FusionSuppressed.WithLabelValues(technology).Inc()
}
