// Package metrics exposes routing counters to Prometheus.
//
// A nil *Collector is valid and records nothing.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "heimdall"

// Collector holds the router's counters.
type Collector struct {
	dispatched *prometheus.CounterVec
	received   *prometheus.CounterVec
	routed     *prometheus.CounterVec
	failures   prometheus.Counter
}

// NewCollector creates the counters and registers them with reg when reg is not nil.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatched_total",
			Help:      "Outbound packages handed to a transport.",
		}, []string{"protocol"}),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "received_total",
			Help:      "Inbound messages decoded into packages.",
		}, []string{"protocol"}),
		routed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routed_total",
			Help:      "Inbound messages by routing outcome.",
		}, []string{"kind"}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_failures_total",
			Help:      "Failures reported to the connection failure callback.",
		}),
	}
	if reg != nil {
		reg.MustRegister(c.dispatched, c.received, c.routed, c.failures)
	}
	return c
}

// Dispatched counts one outbound package.
func (c *Collector) Dispatched(protocol string) {
	if c == nil {
		return
	}
	c.dispatched.WithLabelValues(protocol).Inc()
}

// Received counts one inbound message.
func (c *Collector) Received(protocol string) {
	if c == nil {
		return
	}
	c.received.WithLabelValues(protocol).Inc()
}

// Routed counts one routing outcome.
func (c *Collector) Routed(kind string) {
	if c == nil {
		return
	}
	c.routed.WithLabelValues(kind).Inc()
}

// Failure counts one transport failure.
func (c *Collector) Failure() {
	if c == nil {
		return
	}
	c.failures.Inc()
}

// ReceivedCounter returns the received counter of protocol.
func (c *Collector) ReceivedCounter(protocol string) prometheus.Counter {
	return c.received.WithLabelValues(protocol)
}

// RoutedCounter returns the routed counter of kind.
func (c *Collector) RoutedCounter(kind string) prometheus.Counter {
	return c.routed.WithLabelValues(kind)
}

// DispatchedCounter returns the dispatched counter of protocol.
func (c *Collector) DispatchedCounter(protocol string) prometheus.Counter {
	return c.dispatched.WithLabelValues(protocol)
}

// FailureCounter returns the transport failure counter.
func (c *Collector) FailureCounter() prometheus.Counter {
	return c.failures
}
