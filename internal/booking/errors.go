package booking

import (
	"errors"
	"fmt"

	"fitbook/internal/models"
)

var (
	ErrInvalidTime      = errors.New("invalid time range")
	ErrInvalidType      = errors.New("unknown training type")
	ErrDuplicateClient  = errors.New("client listed twice")
	ErrAlreadyCancelled = errors.New("training already cancelled")
	ErrFinalized        = errors.New("training already finalized")
	ErrNoWindowAssigned = errors.New("training has no assigned window")
	ErrLateCancellation = errors.New("cancellation notice period has passed")
	ErrNotParticipant   = errors.New("client is not signed up for this training")
)

// ConflictError reports a window placement rejected because one of the
// touched schedules already holds an overlapping booked slot.
type ConflictError struct {
	Class      string
	ScheduleID int64
	OwnerID    int64
}

func (e *ConflictError) Error() string {
	switch e.Class {
	case models.OwnerTrainer:
		return "trainer has a conflict"
	case models.OwnerGym:
		return "room is occupied"
	default:
		return fmt.Sprintf("client %d has a conflict", e.OwnerID)
	}
}

// IsConflict reports whether err wraps a ConflictError.
func IsConflict(err error) bool {
	var conflict *ConflictError
	return errors.As(err, &conflict)
}
