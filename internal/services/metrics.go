package services

import "github.com/prometheus/client_golang/prometheus"

var (
	paymentTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_transitions_total",
			Help: "Payment status transitions by target status.",
		},
		[]string{"to"},
	)
	bookingConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "booking_conflicts_total",
		Help: "Confirmations rejected because the slot was taken.",
	})
	bookingsConfirmed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bookings_confirmed_total",
		Help: "Bookings that reached confirmed.",
	})
	draftsSwept = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drafts_swept_total",
			Help: "Stale drafts deleted by rule.",
		},
		[]string{"rule"},
	)
	verifyRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verify_rejections_total",
			Help: "Receipt verifications rejected by stage.",
		},
		[]string{"reason"},
	)
	duplicatePayments = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payment_duplicates_total",
		Help: "Successful deposits for a draft that was already paid.",
	})
)

func init() {
	prometheus.MustRegister(paymentTransitions, bookingConflicts, bookingsConfirmed,
		draftsSwept, verifyRejections, duplicatePayments)
}
