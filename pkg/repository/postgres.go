package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PostgresConfig holds PostgreSQL connection configuration.
type PostgresConfig struct {
	DSN             string        `json:"dsn" yaml:"dsn"`
	Table           string        `json:"table" yaml:"table"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// DefaultPostgresConfig returns default PostgreSQL configuration.
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Table:           "integration_context",
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	}
}

// PostgresStore keeps namespace documents in a JSONB column.
type PostgresStore struct {
	db    *sqlx.DB
	table string
}

// NewPostgresStore connects and ensures the table exists.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	s := NewPostgresStoreFromDB(db, cfg.Table)
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreFromDB wraps an existing connection.
func NewPostgresStoreFromDB(db *sqlx.DB, table string) *PostgresStore {
	if table == "" {
		table = "integration_context"
	}
	return &PostgresStore{db: db, table: table}
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			namespace  TEXT PRIMARY KEY,
			document   JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`, s.table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.table, err)
	}
	return nil
}

// Load reads the namespace row.
func (s *PostgresStore) Load(ctx context.Context, namespace string) (map[string]interface{}, error) {
	query := fmt.Sprintf(`SELECT document FROM %s WHERE namespace = $1`, s.table)

	var data []byte
	err := s.db.GetContext(ctx, &data, query, namespace)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return map[string]interface{}{}, nil
		}
		return nil, fmt.Errorf("failed to load %s: %w", namespace, err)
	}
	return decode(data)
}

// Save upserts the namespace row.
func (s *PostgresStore) Save(ctx context.Context, namespace string, doc map[string]interface{}) error {
	data, err := encode(doc)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (namespace, document, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (namespace)
		DO UPDATE SET document = EXCLUDED.document, updated_at = CURRENT_TIMESTAMP
	`, s.table)

	if _, err := s.db.ExecContext(ctx, query, namespace, data); err != nil {
		return fmt.Errorf("failed to save %s: %w", namespace, err)
	}
	return nil
}

// Close closes the database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
