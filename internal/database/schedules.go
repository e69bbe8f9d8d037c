package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"fitbook/internal/models"
)

// ScheduleRef is a touched schedule tagged with the participant class that
// owns it, so a conflict can name the trainer, the room or the client.
type ScheduleRef struct {
	ID        int64
	OwnerType string // trainer, gym, client
	OwnerID   int64
}

// ResolveTouchedSchedules returns the union of schedules a booking touches:
// the trainer's, the room's gym's and each client's own. Participants without
// a schedule are skipped rather than treated as an error; in particular a gym
// may legitimately have none, which simply excludes room-level checking.
func (db *DB) ResolveTouchedSchedules(ctx context.Context, q DBTX, trainerID, roomID int64, clientIDs []int64) ([]ScheduleRef, error) {
	if q == nil {
		q = db.db
	}

	var refs []ScheduleRef

	var trainerScheduleID int64
	err := q.QueryRowContext(ctx,
		`SELECT schedule_id FROM trainers WHERE id = ?`, trainerID).Scan(&trainerScheduleID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// trainer without a schedule row: skip
	case err != nil:
		return nil, fmt.Errorf("failed to resolve trainer schedule: %w", err)
	default:
		refs = append(refs, ScheduleRef{ID: trainerScheduleID, OwnerType: models.OwnerTrainer, OwnerID: trainerID})
	}

	var gymID int64
	var gymScheduleID sql.NullInt64
	err = q.QueryRowContext(ctx,
		`SELECT g.id, g.schedule_id FROM rooms r JOIN gyms g ON g.id = r.gym_id WHERE r.id = ?`,
		roomID).Scan(&gymID, &gymScheduleID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// room or gym missing: skip
	case err != nil:
		return nil, fmt.Errorf("failed to resolve gym schedule: %w", err)
	case gymScheduleID.Valid:
		refs = append(refs, ScheduleRef{ID: gymScheduleID.Int64, OwnerType: models.OwnerGym, OwnerID: gymID})
	}

	for _, clientID := range clientIDs {
		var clientScheduleID int64
		err := q.QueryRowContext(ctx,
			`SELECT schedule_id FROM clients WHERE id = ?`, clientID).Scan(&clientScheduleID)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve client schedule: %w", err)
		}
		refs = append(refs, ScheduleRef{ID: clientScheduleID, OwnerType: models.OwnerClient, OwnerID: clientID})
	}

	return refs, nil
}

// schedulesExist verifies every id references an existing schedule.
func (db *DB) schedulesExist(ctx context.Context, q DBTX, scheduleIDs []int64) error {
	if len(scheduleIDs) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(scheduleIDs)), ",")
	args := make([]any, len(scheduleIDs))
	for i, id := range scheduleIDs {
		args[i] = id
	}

	var count int
	query := fmt.Sprintf(`SELECT COUNT(DISTINCT id) FROM schedules WHERE id IN (%s)`, placeholders)
	if err := q.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return fmt.Errorf("failed to count schedules: %w", err)
	}

	distinct := make(map[int64]struct{}, len(scheduleIDs))
	for _, id := range scheduleIDs {
		distinct[id] = struct{}{}
	}
	if count != len(distinct) {
		return fmt.Errorf("schedule reference: %w", ErrNotFound)
	}
	return nil
}

// GetSchedule returns a schedule by id.
func (db *DB) GetSchedule(ctx context.Context, id int64) (*models.Schedule, error) {
	var s models.Schedule
	err := db.db.QueryRowContext(ctx,
		`SELECT id, owner_type, owner_id FROM schedules WHERE id = ?`, id).
		Scan(&s.ID, &s.OwnerType, &s.OwnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("schedule %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return &s, nil
}

// DeleteSchedule removes a schedule; window memberships cascade, and windows
// left without any membership are garbage-collected.
func (db *DB) DeleteSchedule(ctx context.Context, id int64) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("schedule %d: %w", id, ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM windows WHERE id NOT IN (SELECT window_id FROM window_schedules)`); err != nil {
		return fmt.Errorf("failed to prune orphaned windows: %w", err)
	}

	return tx.Commit()
}
