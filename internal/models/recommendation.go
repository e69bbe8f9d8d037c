package models

import "time"

// Recommendation is one ranked catalog entry for a client.
type Recommendation struct {
	TrainingID int64   `json:"training_id"`
	Type       string  `json:"type"`
	Price      float64 `json:"price"`
	TrainerID  int64   `json:"trainer_id"`
	GymID      int64   `json:"gym_id"`
	DistanceKm float64 `json:"distance_km"`
}

// RecommendationList is the cached, ordered result of one computation.
type RecommendationList struct {
	ClientID   int64            `json:"client_id"`
	ComputedAt time.Time        `json:"computed_at"`
	Results    []Recommendation `json:"results"`
}

// FreshAt reports whether the entry is still inside its TTL at the given moment.
func (l *RecommendationList) FreshAt(now time.Time, ttl time.Duration) bool {
	if l == nil {
		return false
	}
	return now.Sub(l.ComputedAt) < ttl
}
