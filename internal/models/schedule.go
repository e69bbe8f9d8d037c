package models

// Schedule is an owner's container of time windows. Exactly one owner
// (trainer, gym or client) holds each schedule; schedules are never shared.
type Schedule struct {
	ID        int64  `json:"id"`
	OwnerType string `json:"owner_type"` // trainer, gym, client
	OwnerID   int64  `json:"owner_id"`
}

// Window is a day-of-week time slot. A window with TrainingID set is booked;
// one without represents declared free capacity. A booked window belongs to
// the schedules of every participant of its training, which is why membership
// is a set of schedule ids rather than a single owner.
type Window struct {
	ID          int64   `json:"id"`
	DayOfWeek   int     `json:"day_of_week"` // time.Weekday numbering, 0 = Sunday
	StartTime   string  `json:"start_time"`  // "HH:mm"
	EndTime     string  `json:"end_time"`    // "HH:mm", same day, start < end
	TrainingID  *int64  `json:"training_id,omitempty"`
	ScheduleIDs []int64 `json:"schedule_ids,omitempty"`
}

// Booked reports whether the window is bound to a training.
func (w *Window) Booked() bool {
	return w.TrainingID != nil
}
