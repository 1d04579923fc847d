package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "appointease"

// Recorder is what services report to. Nop satisfies it when metrics are off.
type Recorder interface {
	RecordBooking(outcome string)
	RecordCancel(alreadyCancelled bool)
	RecordIdempotencyReplay()
	RecordLockOperation(op string, duration time.Duration)
	RecordLockRejected()
	RecordOTP(op, outcome string)
	RecordEventPublished(eventType string, err error)
	RecordEventConsumed(eventType string, err error)
}

type Collector struct {
	bookings       *prometheus.CounterVec
	cancellations  *prometheus.CounterVec
	replays        prometheus.Counter
	lockDuration   *prometheus.HistogramVec
	lockRejections prometheus.Counter
	otp            *prometheus.CounterVec
	eventsOut      *prometheus.CounterVec
	eventsIn       *prometheus.CounterVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Booking attempts by final state.",
		}, []string{"outcome"}),
		cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancellations_total",
			Help:      "Cancellations, split by whether the appointment was already cancelled.",
		}, []string{"already_cancelled"}),
		replays: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "idempotency_replays_total",
			Help:      "Requests answered from a stored idempotency record.",
		}),
		lockDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "slot_lock_duration_seconds",
			Help:      "Latency of slot lock operations.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5},
		}, []string{"op"}),
		lockRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_lock_rejected_total",
			Help:      "Lock acquisitions refused because another holder owns the slot.",
		}),
		otp: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "otp_operations_total",
			Help:      "OTP issue and verify operations by outcome.",
		}, []string{"op", "outcome"}),
		eventsOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Domain events handed to the broker.",
		}, []string{"event_type", "result"}),
		eventsIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_consumed_total",
			Help:      "Domain events processed by the notifier.",
		}, []string{"event_type", "result"}),
	}

	reg.MustRegister(
		c.bookings,
		c.cancellations,
		c.replays,
		c.lockDuration,
		c.lockRejections,
		c.otp,
		c.eventsOut,
		c.eventsIn,
	)

	return c
}

func (c *Collector) RecordBooking(outcome string) {
	c.bookings.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordCancel(alreadyCancelled bool) {
	label := "false"
	if alreadyCancelled {
		label = "true"
	}
	c.cancellations.WithLabelValues(label).Inc()
}

func (c *Collector) RecordIdempotencyReplay() {
	c.replays.Inc()
}

func (c *Collector) RecordLockOperation(op string, duration time.Duration) {
	c.lockDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func (c *Collector) RecordLockRejected() {
	c.lockRejections.Inc()
}

func (c *Collector) RecordOTP(op, outcome string) {
	c.otp.WithLabelValues(op, outcome).Inc()
}

func (c *Collector) RecordEventPublished(eventType string, err error) {
	c.eventsOut.WithLabelValues(eventType, result(err)).Inc()
}

func (c *Collector) RecordEventConsumed(eventType string, err error) {
	c.eventsIn.WithLabelValues(eventType, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Handler serves the Prometheus exposition format for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

type Nop struct{}

func (Nop) RecordBooking(string)                      {}
func (Nop) RecordCancel(bool)                         {}
func (Nop) RecordIdempotencyReplay()                  {}
func (Nop) RecordLockOperation(string, time.Duration) {}
func (Nop) RecordLockRejected()                       {}
func (Nop) RecordOTP(string, string)                  {}
func (Nop) RecordEventPublished(string, error)        {}
func (Nop) RecordEventConsumed(string, error)         {}
