package api

import (
	"errors"
	"net/http"

	"fitbook/internal/booking"
	"fitbook/internal/database"
	"fitbook/internal/geo"
)

// statusFromError maps domain errors onto HTTP statuses: unknown entities
// are 404, malformed input 400, scheduling conflicts 409, lifecycle and
// policy violations 422, a dead geocoder 503.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, booking.ErrInvalidTime),
		errors.Is(err, booking.ErrInvalidType),
		errors.Is(err, booking.ErrDuplicateClient):
		return http.StatusBadRequest
	case booking.IsConflict(err):
		return http.StatusConflict
	case errors.Is(err, booking.ErrAlreadyCancelled),
		errors.Is(err, booking.ErrFinalized),
		errors.Is(err, booking.ErrNoWindowAssigned),
		errors.Is(err, booking.ErrLateCancellation),
		errors.Is(err, booking.ErrNotParticipant):
		return http.StatusUnprocessableEntity
	case errors.Is(err, geo.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
