package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/overcast-cloud/backendctl/pkg/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements engine.RegistrationStore using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance. Zero pool
// settings take the defaults.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	return &SQLiteStore{
		cfg: cfg,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Ensure foreign keys are enabled (connection-level setting)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// ListRegistrations implements engine.RegistrationStore. An empty
// principal lists every record.
func (s *SQLiteStore) ListRegistrations(ctx context.Context, principal string) ([]engine.Record, error) {
	query := `
		SELECT name, type, principal, model_uuid, config
		FROM storage_backends
		ORDER BY name
	`
	args := []any{}
	if principal != "" {
		query = `
			SELECT name, type, principal, model_uuid, config
			FROM storage_backends
			WHERE principal = ?
			ORDER BY name
		`
		args = append(args, principal)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	defer rows.Close()

	records := []engine.Record{}
	for rows.Next() {
		var rec engine.Record
		if err := rows.Scan(&rec.Name, &rec.Type, &rec.Principal, &rec.ModelUUID, &rec.Config); err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating registrations: %w", err)
	}

	return records, nil
}

// GetRegistration implements engine.RegistrationStore.
func (s *SQLiteStore) GetRegistration(ctx context.Context, name string) (*engine.Record, error) {
	query := `
		SELECT name, type, principal, model_uuid, config
		FROM storage_backends
		WHERE name = ?
	`

	rec := &engine.Record{}
	err := s.db.QueryRowContext(ctx, query, name).Scan(
		&rec.Name,
		&rec.Type,
		&rec.Principal,
		&rec.ModelUUID,
		&rec.Config,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.NewNotFoundError(fmt.Sprintf("storage backend %s is not registered", name), nil).WithBackend(name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}

	return rec, nil
}

// CreateRegistration implements engine.RegistrationStore.
func (s *SQLiteStore) CreateRegistration(ctx context.Context, rec engine.Record) error {
	query := `
		INSERT INTO storage_backends (name, type, principal, model_uuid, config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, query,
		rec.Name,
		rec.Type,
		rec.Principal,
		rec.ModelUUID,
		rec.Config,
		now,
		now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return engine.NewConflictError(fmt.Sprintf("storage backend %s is already registered", rec.Name), err).WithBackend(rec.Name)
		}
		return fmt.Errorf("failed to create registration: %w", err)
	}

	return nil
}

// UpdateRegistration implements engine.RegistrationStore.
func (s *SQLiteStore) UpdateRegistration(ctx context.Context, rec engine.Record) error {
	query := `
		UPDATE storage_backends
		SET type = ?, principal = ?, model_uuid = ?, config = ?, updated_at = ?
		WHERE name = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		rec.Type,
		rec.Principal,
		rec.ModelUUID,
		rec.Config,
		time.Now().UTC(),
		rec.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to update registration: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return engine.NewNotFoundError(fmt.Sprintf("storage backend %s is not registered", rec.Name), nil).WithBackend(rec.Name)
	}

	return nil
}

// DeleteRegistration implements engine.RegistrationStore.
func (s *SQLiteStore) DeleteRegistration(ctx context.Context, name string) error {
	query := `DELETE FROM storage_backends WHERE name = ?`

	result, err := s.db.ExecContext(ctx, query, name)
	if err != nil {
		return fmt.Errorf("failed to delete registration: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return engine.NewNotFoundError(fmt.Sprintf("storage backend %s is not registered", name), nil).WithBackend(name)
	}

	return nil
}

// CountRegistrations returns the total number of registered backends,
// used to feed the registrations gauge.
func (s *SQLiteStore) CountRegistrations(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM storage_backends").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count registrations: %w", err)
	}
	return count, nil
}
