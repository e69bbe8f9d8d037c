package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fitbook/internal/models"
)

func createSchedule(ctx context.Context, q DBTX, ownerType string, ownerID int64) (int64, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO schedules (owner_type, owner_id) VALUES (?, ?)`, ownerType, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to create schedule: %w", err)
	}
	return result.LastInsertId()
}

// bindScheduleOwner backfills the owner id on a schedule created before its
// owner row existed. Schedules carry no foreign key back to the owner, so the
// schedule can be inserted first while owners reference it NOT NULL.
func bindScheduleOwner(ctx context.Context, q DBTX, scheduleID, ownerID int64) error {
	if _, err := q.ExecContext(ctx,
		`UPDATE schedules SET owner_id = ? WHERE id = ?`, ownerID, scheduleID); err != nil {
		return fmt.Errorf("failed to bind schedule owner: %w", err)
	}
	return nil
}

// CreateTrainer inserts the trainer and its own schedule in one transaction.
func (db *DB) CreateTrainer(ctx context.Context, trainer *models.Trainer) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	scheduleID, err := createSchedule(ctx, tx, models.OwnerTrainer, 0)
	if err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO trainers (name, specialization, schedule_id) VALUES (?, ?, ?)`,
		trainer.Name, trainer.Specialization, scheduleID)
	if err != nil {
		return fmt.Errorf("failed to create trainer: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	if err := bindScheduleOwner(ctx, tx, scheduleID, id); err != nil {
		return err
	}

	trainer.ID = id
	trainer.ScheduleID = scheduleID
	return tx.Commit()
}

func (db *DB) GetTrainer(ctx context.Context, id int64) (*models.Trainer, error) {
	var t models.Trainer
	err := db.db.QueryRowContext(ctx,
		`SELECT id, name, specialization, schedule_id FROM trainers WHERE id = ?`, id).
		Scan(&t.ID, &t.Name, &t.Specialization, &t.ScheduleID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("trainer %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trainer: %w", err)
	}
	return &t, nil
}

func (db *DB) ListTrainers(ctx context.Context) ([]models.Trainer, error) {
	rows, err := db.db.QueryContext(ctx,
		`SELECT id, name, specialization, schedule_id FROM trainers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list trainers: %w", err)
	}
	defer rows.Close()

	var trainers []models.Trainer
	for rows.Next() {
		var t models.Trainer
		if err := rows.Scan(&t.ID, &t.Name, &t.Specialization, &t.ScheduleID); err != nil {
			return nil, fmt.Errorf("failed to scan trainer: %w", err)
		}
		trainers = append(trainers, t)
	}
	return trainers, rows.Err()
}

// CreateClient inserts the client, its schedule and its interested-type set
// in one transaction.
func (db *DB) CreateClient(ctx context.Context, client *models.Client) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var activityLevel, goal string
	if client.Preferences != nil {
		activityLevel = client.Preferences.ActivityLevel
		goal = client.Preferences.Goal
	}

	scheduleID, err := createSchedule(ctx, tx, models.OwnerClient, 0)
	if err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO clients (name, schedule_id, street, building_number, zip_code, city, activity_level, goal)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		client.Name, scheduleID,
		client.Address.Street, client.Address.BuildingNumber,
		client.Address.ZipCode, client.Address.City,
		activityLevel, goal)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	if err := bindScheduleOwner(ctx, tx, scheduleID, id); err != nil {
		return err
	}

	if client.Preferences != nil {
		for _, trainingType := range client.Preferences.TrainingTypes {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO client_training_types (client_id, training_type) VALUES (?, ?)`,
				id, trainingType); err != nil {
				return fmt.Errorf("failed to store client training type: %w", err)
			}
		}
	}

	client.ID = id
	client.ScheduleID = scheduleID
	return tx.Commit()
}

func (db *DB) GetClient(ctx context.Context, id int64) (*models.Client, error) {
	var c models.Client
	var prefs models.Preferences
	err := db.db.QueryRowContext(ctx,
		`SELECT id, name, schedule_id, street, building_number, zip_code, city, activity_level, goal
         FROM clients WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.ScheduleID,
			&c.Address.Street, &c.Address.BuildingNumber, &c.Address.ZipCode, &c.Address.City,
			&prefs.ActivityLevel, &prefs.Goal)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("client %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	rows, err := db.db.QueryContext(ctx,
		`SELECT training_type FROM client_training_types WHERE client_id = ? ORDER BY training_type`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get client training types: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var trainingType string
		if err := rows.Scan(&trainingType); err != nil {
			return nil, fmt.Errorf("failed to scan training type: %w", err)
		}
		prefs.TrainingTypes = append(prefs.TrainingTypes, trainingType)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if prefs.ActivityLevel != "" || prefs.Goal != "" || len(prefs.TrainingTypes) > 0 {
		c.Preferences = &prefs
	}
	return &c, nil
}

// UpdateClientLocation replaces the client's address.
func (db *DB) UpdateClientLocation(ctx context.Context, id int64, addr models.Address) error {
	result, err := db.db.ExecContext(ctx,
		`UPDATE clients SET street = ?, building_number = ?, zip_code = ?, city = ? WHERE id = ?`,
		addr.Street, addr.BuildingNumber, addr.ZipCode, addr.City, id)
	if err != nil {
		return fmt.Errorf("failed to update client location: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("client %d: %w", id, ErrNotFound)
	}
	return nil
}

// UpdateClientPreferences replaces the client's preference form atomically.
func (db *DB) UpdateClientPreferences(ctx context.Context, id int64, prefs models.Preferences) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx,
		`UPDATE clients SET activity_level = ?, goal = ? WHERE id = ?`,
		prefs.ActivityLevel, prefs.Goal, id)
	if err != nil {
		return fmt.Errorf("failed to update client preferences: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("client %d: %w", id, ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM client_training_types WHERE client_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear client training types: %w", err)
	}
	for _, trainingType := range prefs.TrainingTypes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO client_training_types (client_id, training_type) VALUES (?, ?)`,
			id, trainingType); err != nil {
			return fmt.Errorf("failed to store client training type: %w", err)
		}
	}

	return tx.Commit()
}

// CreateGym inserts the gym and, unless withoutSchedule is set, its schedule.
// A gym without a schedule is a valid state that excludes its rooms from
// conflict checking.
func (db *DB) CreateGym(ctx context.Context, gym *models.Gym, withoutSchedule bool) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO gyms (name, street, building_number, zip_code, city) VALUES (?, ?, ?, ?, ?)`,
		gym.Name,
		gym.Address.Street, gym.Address.BuildingNumber, gym.Address.ZipCode, gym.Address.City)
	if err != nil {
		return fmt.Errorf("failed to create gym: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	gym.ID = id

	if !withoutSchedule {
		scheduleID, err := createSchedule(ctx, tx, models.OwnerGym, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE gyms SET schedule_id = ? WHERE id = ?`, scheduleID, id); err != nil {
			return fmt.Errorf("failed to link gym schedule: %w", err)
		}
		gym.ScheduleID = &scheduleID
	}

	return tx.Commit()
}

func (db *DB) GetGym(ctx context.Context, id int64) (*models.Gym, error) {
	var g models.Gym
	var scheduleID sql.NullInt64
	err := db.db.QueryRowContext(ctx,
		`SELECT id, name, schedule_id, street, building_number, zip_code, city FROM gyms WHERE id = ?`, id).
		Scan(&g.ID, &g.Name, &scheduleID,
			&g.Address.Street, &g.Address.BuildingNumber, &g.Address.ZipCode, &g.Address.City)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("gym %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get gym: %w", err)
	}
	if scheduleID.Valid {
		g.ScheduleID = &scheduleID.Int64
	}
	return &g, nil
}

func (db *DB) CreateRoom(ctx context.Context, room *models.Room) error {
	if _, err := db.GetGym(ctx, room.GymID); err != nil {
		return err
	}
	result, err := db.db.ExecContext(ctx,
		`INSERT INTO rooms (gym_id, capacity) VALUES (?, ?)`, room.GymID, room.Capacity)
	if err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	room.ID = id
	return nil
}

func (db *DB) GetRoom(ctx context.Context, id int64) (*models.Room, error) {
	var r models.Room
	var capacity sql.NullInt64
	err := db.db.QueryRowContext(ctx,
		`SELECT id, gym_id, capacity FROM rooms WHERE id = ?`, id).
		Scan(&r.ID, &r.GymID, &capacity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("room %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	r.Capacity = capacity.Int64
	return &r, nil
}

func (db *DB) ListRooms(ctx context.Context) ([]models.Room, error) {
	rows, err := db.db.QueryContext(ctx, `SELECT id, gym_id, capacity FROM rooms ORDER BY gym_id, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []models.Room
	for rows.Next() {
		var r models.Room
		var capacity sql.NullInt64
		if err := rows.Scan(&r.ID, &r.GymID, &capacity); err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		r.Capacity = capacity.Int64
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

func (db *DB) ListGyms(ctx context.Context) ([]models.Gym, error) {
	rows, err := db.db.QueryContext(ctx,
		`SELECT id, name, schedule_id, street, building_number, zip_code, city FROM gyms ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list gyms: %w", err)
	}
	defer rows.Close()

	var gyms []models.Gym
	for rows.Next() {
		var g models.Gym
		var scheduleID sql.NullInt64
		if err := rows.Scan(&g.ID, &g.Name, &scheduleID,
			&g.Address.Street, &g.Address.BuildingNumber, &g.Address.ZipCode, &g.Address.City); err != nil {
			return nil, fmt.Errorf("failed to scan gym: %w", err)
		}
		if scheduleID.Valid {
			g.ScheduleID = &scheduleID.Int64
		}
		gyms = append(gyms, g)
	}
	return gyms, rows.Err()
}
