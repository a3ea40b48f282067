package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "monositi"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status code.",
		},
		[]string{"endpoint", "status"},
	)

	otpEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "otp_events_total",
			Help:      "One-time code lifecycle events (issued, delivered, delivery_failed, verified, rejected).",
		},
		[]string{"event"},
	)

	bookingTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_transitions_total",
			Help:      "Booking state machine transitions by action.",
		},
		[]string{"action"},
	)

	capacityRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "room_capacity_rejections_total",
			Help:      "Bed adjustments refused because they would leave the room out of bounds.",
		},
	)

	indexTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_tasks_total",
			Help:      "Geo index sync tasks by result.",
		},
		[]string{"result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, otpEvents, bookingTransitions, capacityRejections, indexTasks)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string, status int) {
	httpRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

func IncOTP(event string) {
	otpEvents.WithLabelValues(event).Inc()
}

func IncBookingTransition(action string) {
	bookingTransitions.WithLabelValues(action).Inc()
}

func IncCapacityRejection() {
	capacityRejections.Inc()
}

func IncIndexTask(result string) {
	indexTasks.WithLabelValues(result).Inc()
}
