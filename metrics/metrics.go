// Package metrics holds the prometheus collectors shared by the Electrum
// client and the payment engine. A nil collector set is valid and records
// nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "electrumpay"

// Electrum collects request level metrics of an Electrum client.
type Electrum struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	pending  prometheus.Gauge
	connects *prometheus.CounterVec
	dropped  prometheus.Counter
}

// NewElectrum creates and registers the Electrum collectors on reg.
func NewElectrum(reg prometheus.Registerer) *Electrum {
	e := &Electrum{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "electrum",
			Name:      "requests_total",
			Help:      "Number of electrum requests by method and outcome",
		}, []string{"method", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "electrum",
			Name:      "request_duration_seconds",
			Help:      "Round trip time of electrum requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "electrum",
			Name:      "pending_requests",
			Help:      "Requests waiting for a correlated response",
		}),
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "electrum",
			Name:      "connects_total",
			Help:      "Connection attempts by outcome",
		}, []string{"outcome"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "electrum",
			Name:      "dropped_messages_total",
			Help:      "Inbound messages that could not be parsed",
		}),
	}
	if reg != nil {
		reg.MustRegister(e.requests, e.latency, e.pending, e.connects, e.dropped)
	}
	return e
}

func (e *Electrum) ObserveRequest(method, outcome string, took time.Duration) {
	if e == nil {
		return
	}
	e.requests.WithLabelValues(method, outcome).Inc()
	e.latency.WithLabelValues(method).Observe(took.Seconds())
}

func (e *Electrum) SetPending(n int) {
	if e == nil {
		return
	}
	e.pending.Set(float64(n))
}

func (e *Electrum) ObserveConnect(outcome string) {
	if e == nil {
		return
	}
	e.connects.WithLabelValues(outcome).Inc()
}

func (e *Electrum) IncDropped() {
	if e == nil {
		return
	}
	e.dropped.Inc()
}

// Payments collects outcomes of payment attempts.
type Payments struct {
	sends *prometheus.CounterVec
	fees  prometheus.Histogram
}

// NewPayments creates and registers the payment collectors on reg.
func NewPayments(reg prometheus.Registerer) *Payments {
	p := &Payments{
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "sends_total",
			Help:      "Payment attempts by outcome",
		}, []string{"outcome"}),
		fees: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "fee_sats",
			Help:      "Absolute fee of broadcast transactions in sats",
			Buckets:   prometheus.ExponentialBuckets(141, 2, 12),
		}),
	}
	if reg != nil {
		reg.MustRegister(p.sends, p.fees)
	}
	return p
}

func (p *Payments) ObserveSend(outcome string) {
	if p == nil {
		return
	}
	p.sends.WithLabelValues(outcome).Inc()
}

func (p *Payments) ObserveFee(fee uint64) {
	if p == nil {
		return
	}
	p.fees.Observe(float64(fee))
}

// Sends exposes the send counter for inspection.
func (p *Payments) Sends() *prometheus.CounterVec {
	return p.sends
}
