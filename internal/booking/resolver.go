package booking

import (
	"context"
	"fmt"

	"fitbook/internal/database"
	"fitbook/internal/metrics"
	"fitbook/internal/timeslot"

	"github.com/rs/zerolog"
)

// Candidate is a window placement under validation.
type Candidate struct {
	DayOfWeek int
	StartMin  int
	EndMin    int
	// ExcludeWindowID skips the window being moved so it does not
	// conflict with itself. Zero means nothing is excluded.
	ExcludeWindowID int64
}

// ConflictResolver validates candidate placements against every touched
// schedule. Reads go through the caller's transaction so the decision and
// the write see the same state.
type ConflictResolver struct {
	db     *database.DB
	logger *zerolog.Logger
}

func NewConflictResolver(db *database.DB, logger *zerolog.Logger) *ConflictResolver {
	return &ConflictResolver{db: db, logger: logger}
}

// Check returns the first conflict found, scanning schedules in the order
// given. Free-capacity windows are not booked slots and never conflict.
func (r *ConflictResolver) Check(ctx context.Context, q database.DBTX, refs []database.ScheduleRef, cand Candidate) error {
	for _, ref := range refs {
		booked, err := r.db.BookedWindows(ctx, q, ref.ID, cand.DayOfWeek, cand.ExcludeWindowID)
		if err != nil {
			return fmt.Errorf("load booked windows for schedule %d: %w", ref.ID, err)
		}

		for _, w := range booked {
			startMin, endMin, err := timeslot.ValidRange(w.StartTime, w.EndTime)
			if err != nil {
				return fmt.Errorf("stored window %d has bad times: %w", w.ID, err)
			}

			if timeslot.Overlaps(cand.StartMin, cand.EndMin, startMin, endMin) {
				metrics.IncConflict(ref.OwnerType)
				r.logger.Debug().
					Str("owner_type", ref.OwnerType).
					Int64("owner_id", ref.OwnerID).
					Int64("schedule_id", ref.ID).
					Int64("window_id", w.ID).
					Msg("placement rejected")
				return &ConflictError{Class: ref.OwnerType, ScheduleID: ref.ID, OwnerID: ref.OwnerID}
			}
		}
	}

	return nil
}
