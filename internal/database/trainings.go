package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fitbook/internal/models"
)

// CreateTraining inserts the training and its client set in one transaction.
func (db *DB) CreateTraining(ctx context.Context, training *models.Training) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	result, err := tx.ExecContext(ctx,
		`INSERT INTO trainings (trainer_id, room_id, price, training_type, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		training.TrainerID, training.RoomID, training.Price, training.Type, training.Status, now, now)
	if err != nil {
		return fmt.Errorf("failed to create training: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}

	for _, clientID := range training.ClientIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO training_clients (training_id, client_id) VALUES (?, ?)`,
			id, clientID); err != nil {
			return fmt.Errorf("failed to enroll client %d: %w", clientID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	training.ID = id
	training.CreatedAt = now
	training.UpdatedAt = now
	return nil
}

func (db *DB) GetTraining(ctx context.Context, id int64) (*models.Training, error) {
	var t models.Training
	err := db.db.QueryRowContext(ctx,
		`SELECT id, trainer_id, room_id, price, training_type, status, created_at, updated_at
         FROM trainings WHERE id = ?`, id).
		Scan(&t.ID, &t.TrainerID, &t.RoomID, &t.Price, &t.Type, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("training %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get training: %w", err)
	}

	clientIDs, err := db.trainingClients(ctx, db.db, id)
	if err != nil {
		return nil, err
	}
	t.ClientIDs = clientIDs
	return &t, nil
}

func (db *DB) trainingClients(ctx context.Context, q DBTX, trainingID int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT client_id FROM training_clients WHERE training_id = ? ORDER BY client_id`, trainingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get training clients: %w", err)
	}
	defer rows.Close()

	var clientIDs []int64
	for rows.Next() {
		var clientID int64
		if err := rows.Scan(&clientID); err != nil {
			return nil, fmt.Errorf("failed to scan client id: %w", err)
		}
		clientIDs = append(clientIDs, clientID)
	}
	return clientIDs, rows.Err()
}

// UpdateTrainingTx applies field changes and replaces the client set inside
// the caller's transaction, so a failed conflict re-check rolls everything back.
func (db *DB) UpdateTrainingTx(ctx context.Context, q DBTX, training *models.Training) error {
	if q == nil {
		q = db.db
	}
	result, err := q.ExecContext(ctx,
		`UPDATE trainings SET trainer_id = ?, room_id = ?, price = ?, training_type = ?, status = ?, updated_at = ?
         WHERE id = ?`,
		training.TrainerID, training.RoomID, training.Price, training.Type, training.Status,
		time.Now(), training.ID)
	if err != nil {
		return fmt.Errorf("failed to update training: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("training %d: %w", training.ID, ErrNotFound)
	}

	if _, err := q.ExecContext(ctx,
		`DELETE FROM training_clients WHERE training_id = ?`, training.ID); err != nil {
		return fmt.Errorf("failed to clear training clients: %w", err)
	}
	for _, clientID := range training.ClientIDs {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO training_clients (training_id, client_id) VALUES (?, ?)`,
			training.ID, clientID); err != nil {
			return fmt.Errorf("failed to enroll client %d: %w", clientID, err)
		}
	}
	return nil
}

// UpdateTrainingStatusTx flips the status inside the caller's transaction.
func (db *DB) UpdateTrainingStatusTx(ctx context.Context, q DBTX, id int64, status string) error {
	if q == nil {
		q = db.db
	}
	result, err := q.ExecContext(ctx,
		`UPDATE trainings SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update training status: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("training %d: %w", id, ErrNotFound)
	}
	return nil
}

// GetTrainingCatalog loads every planned training with its window, venue and
// client set, the shape the recommendation engine filters over.
func (db *DB) GetTrainingCatalog(ctx context.Context) ([]models.CatalogEntry, error) {
	query := `
        SELECT t.id, t.trainer_id, t.room_id, t.price, t.training_type, t.status, t.created_at, t.updated_at,
               g.id, g.name, g.schedule_id, g.street, g.building_number, g.zip_code, g.city
        FROM trainings t
        JOIN rooms r ON r.id = t.room_id
        JOIN gyms g ON g.id = r.gym_id
        WHERE t.status = ?
        ORDER BY t.id
    `
	rows, err := db.db.QueryContext(ctx, query, models.StatusPlanned)
	if err != nil {
		return nil, fmt.Errorf("failed to load training catalog: %w", err)
	}
	defer rows.Close()

	var entries []models.CatalogEntry
	for rows.Next() {
		var entry models.CatalogEntry
		var gym models.Gym
		var gymScheduleID sql.NullInt64
		t := &entry.Training
		if err := rows.Scan(
			&t.ID, &t.TrainerID, &t.RoomID, &t.Price, &t.Type, &t.Status, &t.CreatedAt, &t.UpdatedAt,
			&gym.ID, &gym.Name, &gymScheduleID,
			&gym.Address.Street, &gym.Address.BuildingNumber, &gym.Address.ZipCode, &gym.Address.City,
		); err != nil {
			return nil, fmt.Errorf("failed to scan catalog entry: %w", err)
		}
		if gymScheduleID.Valid {
			gym.ScheduleID = &gymScheduleID.Int64
		}
		entry.Gym = &gym
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range entries {
		t := &entries[i].Training
		clientIDs, err := db.trainingClients(ctx, db.db, t.ID)
		if err != nil {
			return nil, err
		}
		t.ClientIDs = clientIDs

		window, err := db.WindowForTraining(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		entries[i].Window = window
	}

	return entries, nil
}
