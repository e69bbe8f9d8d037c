package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	_ "github.com/mattn/go-sqlite3"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so that availability reads
// can run inside the same transaction as the write they guard.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type DB struct {
	db     *sql.DB
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return &DB{db: db, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS schedules (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            owner_type TEXT NOT NULL,
            owner_id INTEGER NOT NULL,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS trainers (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            specialization TEXT,
            schedule_id INTEGER NOT NULL REFERENCES schedules(id),
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS clients (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            schedule_id INTEGER NOT NULL REFERENCES schedules(id),
            street TEXT,
            building_number TEXT,
            zip_code TEXT,
            city TEXT,
            activity_level TEXT,
            goal TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS client_training_types (
            client_id INTEGER NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
            training_type TEXT NOT NULL,
            PRIMARY KEY (client_id, training_type)
        )`,
		`CREATE TABLE IF NOT EXISTS gyms (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            schedule_id INTEGER REFERENCES schedules(id),
            street TEXT,
            building_number TEXT,
            zip_code TEXT,
            city TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS rooms (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            gym_id INTEGER NOT NULL REFERENCES gyms(id),
            capacity INTEGER,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS trainings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            trainer_id INTEGER NOT NULL REFERENCES trainers(id),
            room_id INTEGER NOT NULL REFERENCES rooms(id),
            price REAL NOT NULL DEFAULT 0,
            training_type TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'planned',
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS training_clients (
            training_id INTEGER NOT NULL REFERENCES trainings(id) ON DELETE CASCADE,
            client_id INTEGER NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
            PRIMARY KEY (training_id, client_id)
        )`,
		`CREATE TABLE IF NOT EXISTS windows (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            day_of_week INTEGER NOT NULL,
            start_time TEXT NOT NULL,
            end_time TEXT NOT NULL,
            training_id INTEGER REFERENCES trainings(id) ON DELETE SET NULL,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS window_schedules (
            window_id INTEGER NOT NULL REFERENCES windows(id) ON DELETE CASCADE,
            schedule_id INTEGER NOT NULL REFERENCES schedules(id) ON DELETE CASCADE,
            PRIMARY KEY (window_id, schedule_id)
        )`,

		`CREATE INDEX IF NOT EXISTS idx_windows_day ON windows(day_of_week)`,
		`CREATE INDEX IF NOT EXISTS idx_windows_training ON windows(training_id)`,
		`CREATE INDEX IF NOT EXISTS idx_window_schedules_schedule ON window_schedules(schedule_id)`,
		`CREATE INDEX IF NOT EXISTS idx_trainings_status ON trainings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_training_clients_client ON training_clients(client_id)`,
		`CREATE INDEX IF NOT EXISTS idx_rooms_gym ON rooms(gym_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// BeginTx starts a transaction. Every conflict-check-then-write sequence must
// run inside one: a check in one transaction and a write in another would let
// a concurrent writer introduce an undetected double-booking.
func (db *DB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return db.db.BeginTx(ctx, nil)
}

func (db *DB) PingContext(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.db.Close()
}
