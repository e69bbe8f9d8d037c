package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fitbook/internal/models"
)

// BookedWindows returns the windows on a schedule, on a day, that are bound
// to a training that still occupies its slot (cancelled trainings free
// theirs). excludeWindowID skips one window, used when re-validating an
// update of that same window in place.
func (db *DB) BookedWindows(ctx context.Context, q DBTX, scheduleID int64, dayOfWeek int, excludeWindowID int64) ([]models.Window, error) {
	if q == nil {
		q = db.db
	}

	query := `
        SELECT w.id, w.day_of_week, w.start_time, w.end_time, w.training_id
        FROM windows w
        JOIN window_schedules ws ON ws.window_id = w.id
        JOIN trainings t ON t.id = w.training_id
        WHERE ws.schedule_id = ?
          AND w.day_of_week = ?
          AND w.id <> ?
          AND t.status <> ?
        ORDER BY w.start_time
    `
	rows, err := q.QueryContext(ctx, query, scheduleID, dayOfWeek, excludeWindowID, models.StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to get booked windows: %w", err)
	}
	defer rows.Close()

	var windows []models.Window
	for rows.Next() {
		var w models.Window
		var trainingID sql.NullInt64
		if err := rows.Scan(&w.ID, &w.DayOfWeek, &w.StartTime, &w.EndTime, &trainingID); err != nil {
			return nil, fmt.Errorf("failed to scan window: %w", err)
		}
		if trainingID.Valid {
			w.TrainingID = &trainingID.Int64
		}
		windows = append(windows, w)
	}
	return windows, rows.Err()
}

// AssignWindow upserts a window and replaces its schedule memberships. A zero
// window id inserts; otherwise the existing window is updated in place.
// Fails with ErrNotFound when any referenced schedule does not exist. Callers
// that guard the write with a conflict check must pass the same transaction.
func (db *DB) AssignWindow(ctx context.Context, q DBTX, window *models.Window, scheduleIDs []int64, trainingID *int64) error {
	if q == nil {
		q = db.db
	}

	if err := db.schedulesExist(ctx, q, scheduleIDs); err != nil {
		return err
	}

	if window.ID == 0 {
		result, err := q.ExecContext(ctx,
			`INSERT INTO windows (day_of_week, start_time, end_time, training_id) VALUES (?, ?, ?, ?)`,
			window.DayOfWeek, window.StartTime, window.EndTime, nullableID(trainingID))
		if err != nil {
			return fmt.Errorf("failed to insert window: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return err
		}
		window.ID = id
	} else {
		result, err := q.ExecContext(ctx,
			`UPDATE windows SET day_of_week = ?, start_time = ?, end_time = ?, training_id = ?, updated_at = ? WHERE id = ?`,
			window.DayOfWeek, window.StartTime, window.EndTime, nullableID(trainingID), time.Now(), window.ID)
		if err != nil {
			return fmt.Errorf("failed to update window: %w", err)
		}
		affected, _ := result.RowsAffected()
		if affected == 0 {
			return fmt.Errorf("window %d: %w", window.ID, ErrNotFound)
		}
		if _, err := q.ExecContext(ctx,
			`DELETE FROM window_schedules WHERE window_id = ?`, window.ID); err != nil {
			return fmt.Errorf("failed to clear window memberships: %w", err)
		}
	}

	for _, scheduleID := range scheduleIDs {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO window_schedules (window_id, schedule_id) VALUES (?, ?)`,
			window.ID, scheduleID); err != nil {
			return fmt.Errorf("failed to store window membership: %w", err)
		}
	}

	window.TrainingID = trainingID
	window.ScheduleIDs = append([]int64(nil), scheduleIDs...)
	return nil
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

// GetWindow loads a window with its schedule memberships.
func (db *DB) GetWindow(ctx context.Context, id int64) (*models.Window, error) {
	var w models.Window
	var trainingID sql.NullInt64
	err := db.db.QueryRowContext(ctx,
		`SELECT id, day_of_week, start_time, end_time, training_id FROM windows WHERE id = ?`, id).
		Scan(&w.ID, &w.DayOfWeek, &w.StartTime, &w.EndTime, &trainingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("window %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get window: %w", err)
	}
	if trainingID.Valid {
		w.TrainingID = &trainingID.Int64
	}

	if err := db.loadWindowSchedules(ctx, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// WindowForTraining returns the window a training is placed in, or nil when
// the training has no calendar placement.
func (db *DB) WindowForTraining(ctx context.Context, trainingID int64) (*models.Window, error) {
	var w models.Window
	var boundID sql.NullInt64
	err := db.db.QueryRowContext(ctx,
		`SELECT id, day_of_week, start_time, end_time, training_id FROM windows WHERE training_id = ?`,
		trainingID).
		Scan(&w.ID, &w.DayOfWeek, &w.StartTime, &w.EndTime, &boundID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get training window: %w", err)
	}
	if boundID.Valid {
		w.TrainingID = &boundID.Int64
	}

	if err := db.loadWindowSchedules(ctx, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (db *DB) loadWindowSchedules(ctx context.Context, w *models.Window) error {
	rows, err := db.db.QueryContext(ctx,
		`SELECT schedule_id FROM window_schedules WHERE window_id = ? ORDER BY schedule_id`, w.ID)
	if err != nil {
		return fmt.Errorf("failed to get window memberships: %w", err)
	}
	defer rows.Close()

	w.ScheduleIDs = nil
	for rows.Next() {
		var scheduleID int64
		if err := rows.Scan(&scheduleID); err != nil {
			return fmt.Errorf("failed to scan window membership: %w", err)
		}
		w.ScheduleIDs = append(w.ScheduleIDs, scheduleID)
	}
	return rows.Err()
}

// ScheduleWindows returns every window belonging to a schedule. Free-capacity
// windows have a nil training id, and so do windows of cancelled trainings:
// the slot is free again, matching what BookedWindows reports for conflicts.
func (db *DB) ScheduleWindows(ctx context.Context, scheduleID int64) ([]models.Window, error) {
	query := `
        SELECT w.id, w.day_of_week, w.start_time, w.end_time,
               CASE WHEN t.status = ? THEN NULL ELSE w.training_id END
        FROM windows w
        JOIN window_schedules ws ON ws.window_id = w.id
        LEFT JOIN trainings t ON t.id = w.training_id
        WHERE ws.schedule_id = ?
        ORDER BY w.day_of_week, w.start_time
    `
	rows, err := db.db.QueryContext(ctx, query, models.StatusCancelled, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule windows: %w", err)
	}
	defer rows.Close()

	var windows []models.Window
	for rows.Next() {
		var w models.Window
		var trainingID sql.NullInt64
		if err := rows.Scan(&w.ID, &w.DayOfWeek, &w.StartTime, &w.EndTime, &trainingID); err != nil {
			return nil, fmt.Errorf("failed to scan window: %w", err)
		}
		if trainingID.Valid {
			w.TrainingID = &trainingID.Int64
		}
		windows = append(windows, w)
	}
	return windows, rows.Err()
}

// DeleteWindow removes a window; memberships cascade.
func (db *DB) DeleteWindow(ctx context.Context, q DBTX, id int64) error {
	if q == nil {
		q = db.db
	}
	result, err := q.ExecContext(ctx, `DELETE FROM windows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete window: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("window %d: %w", id, ErrNotFound)
	}
	return nil
}
