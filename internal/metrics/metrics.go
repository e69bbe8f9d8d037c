package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fitbook",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	trainingsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fitbook",
			Name:      "trainings_created_total",
			Help:      "Trainings created.",
		},
	)

	trainingsCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fitbook",
			Name:      "trainings_cancelled_total",
			Help:      "Trainings cancelled.",
		},
	)

	conflictsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fitbook",
			Name:      "booking_conflicts_total",
			Help:      "Window placements rejected by conflict class.",
		},
		[]string{"class"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fitbook",
			Name:      "recommendation_cache_lookups_total",
			Help:      "Recommendation cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	geocodeRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fitbook",
			Name:      "geocode_requests_total",
			Help:      "Geocoder calls by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			trainingsCreated,
			trainingsCancelled,
			conflictsRejected,
			cacheLookups,
			geocodeRequests,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncTrainingCreated() {
	trainingsCreated.Inc()
}

func IncTrainingCancelled() {
	trainingsCancelled.Inc()
}

// IncConflict records a rejected placement; class is trainer, room or client.
func IncConflict(class string) {
	conflictsRejected.WithLabelValues(class).Inc()
}

func IncCacheHit()  { cacheLookups.WithLabelValues("hit").Inc() }
func IncCacheMiss() { cacheLookups.WithLabelValues("miss").Inc() }

func IncGeocode(outcome string) {
	geocodeRequests.WithLabelValues(outcome).Inc()
}
