// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	// HTTP requests by method, route template, status code and caller role
	// (anonymous, user, admin).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP latency by method and route.
	HTTPRequestDuration *prometheus.HistogramVec

	// Booking attempts (status: booked, occupied, invalid, error).
	TicketBookingsTotal *prometheus.CounterVec

	// Payment workflow events (status: dispatched, confirmed, duplicate, missing, rejected).
	PaymentsTotal *prometheus.CounterVec

	// Unpaid tickets released by the expiry sweep.
	SweptTicketsTotal prometheus.Counter

	// Showing schedule checks (status: accepted, conflict).
	ScheduleChecksTotal *prometheus.CounterVec
}

// New registers the collectors on the default registerer.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cinema_http_requests_total",
				Help: "HTTP requests by route and caller role",
			},
			[]string{"method", "route", "status_code", "role"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cinema_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),
		TicketBookingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cinema_ticket_bookings_total",
				Help: "Ticket booking attempts by outcome",
			},
			[]string{"status"},
		),
		PaymentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cinema_payments_total",
				Help: "Payment workflow events by outcome",
			},
			[]string{"status"},
		),
		SweptTicketsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cinema_swept_tickets_total",
				Help: "Unpaid tickets released before showtime",
			},
		),
		ScheduleChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cinema_schedule_checks_total",
				Help: "Showing placement checks by outcome",
			},
			[]string{"status"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.TicketBookingsTotal,
		m.PaymentsTotal,
		m.SweptTicketsTotal,
		m.ScheduleChecksTotal,
	)
	return m
}

// The helpers below accept a nil receiver so callers can run without metrics.

func (m *Metrics) Request(method, route, status, role string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, status, role).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) Booking(status string) {
	if m == nil {
		return
	}
	m.TicketBookingsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) Payment(status string) {
	if m == nil {
		return
	}
	m.PaymentsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) Swept(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.SweptTicketsTotal.Add(float64(n))
}

func (m *Metrics) Schedule(status string) {
	if m == nil {
		return
	}
	m.ScheduleChecksTotal.WithLabelValues(status).Inc()
}
