package models

import "time"

type Training struct {
	ID        int64     `json:"id"`
	TrainerID int64     `json:"trainer_id"`
	RoomID    int64     `json:"room_id"`
	Price     float64   `json:"price"`
	Type      string    `json:"type"`
	Status    string    `json:"status"` // planned, cancelled, completed
	ClientIDs []int64   `json:"client_ids"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasClient reports whether the client is enrolled in the training.
func (t *Training) HasClient(clientID int64) bool {
	for _, id := range t.ClientIDs {
		if id == clientID {
			return true
		}
	}
	return false
}

// CatalogEntry is a training joined with its calendar placement and venue,
// as loaded for the recommendation engine.
type CatalogEntry struct {
	Training Training `json:"training"`
	Window   *Window  `json:"window,omitempty"`
	Gym      *Gym     `json:"gym,omitempty"`
}
