package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

func ParseDriver(s string) (Driver, error) {
	switch Driver(strings.ToLower(strings.TrimSpace(s))) {
	case "", DriverSQLite:
		return DriverSQLite, nil
	case DriverPostgres, "pgx":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("unsupported db driver %q", s)
	}
}

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    25,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// Open connects with the pgx or modernc sqlite driver and creates the results
// tables if they are missing.
func Open(ctx context.Context, driver Driver, dsn string, cfg PoolConfig) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite"
		if dsn == "" {
			dsn = "file:certprep.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx"
		if dsn == "" {
			return nil, fmt.Errorf("open db: DB_DSN is required for postgres")
		}
	default:
		return nil, fmt.Errorf("open db: unsupported driver %q", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = cfg.MaxOpenConns
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = 30 * time.Minute
	}
	if driver == DriverSQLite {
		// one writer keeps sqlite from returning SQLITE_BUSY under the results tx
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := ensureSchema(ctx, db, driver); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db, nil
}

func ensureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	schema := schemaPostgres
	if driver == DriverSQLite {
		schema = schemaSQLite
	}
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS session_results (
  session_id TEXT PRIMARY KEY,
  certification_id TEXT NOT NULL,
  certification_name TEXT NOT NULL DEFAULT '',
  user_id TEXT NOT NULL,
  seed TEXT NOT NULL,
  correct_count INTEGER NOT NULL,
  total_questions INTEGER NOT NULL,
  total_points INTEGER NOT NULL,
  max_points INTEGER NOT NULL,
  percentage INTEGER NOT NULL,
  pass_threshold INTEGER NOT NULL,
  passed INTEGER NOT NULL,
  started_at INTEGER NOT NULL,
  completed_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_session_results_user ON session_results(user_id, completed_at);

CREATE TABLE IF NOT EXISTS session_submissions (
  session_id TEXT NOT NULL REFERENCES session_results(session_id) ON DELETE CASCADE,
  position INTEGER NOT NULL,
  question_id TEXT NOT NULL,
  choices_json TEXT NOT NULL,
  attempt_count INTEGER NOT NULL,
  correct INTEGER NOT NULL,
  points_awarded INTEGER NOT NULL,
  PRIMARY KEY (session_id, question_id)
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS session_results (
  session_id TEXT PRIMARY KEY,
  certification_id TEXT NOT NULL,
  certification_name TEXT NOT NULL DEFAULT '',
  user_id TEXT NOT NULL,
  seed TEXT NOT NULL,
  correct_count INTEGER NOT NULL,
  total_questions INTEGER NOT NULL,
  total_points INTEGER NOT NULL,
  max_points INTEGER NOT NULL,
  percentage INTEGER NOT NULL,
  pass_threshold INTEGER NOT NULL,
  passed INTEGER NOT NULL,
  started_at BIGINT NOT NULL,
  completed_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_session_results_user ON session_results(user_id, completed_at);

CREATE TABLE IF NOT EXISTS session_submissions (
  session_id TEXT NOT NULL REFERENCES session_results(session_id) ON DELETE CASCADE,
  position INTEGER NOT NULL,
  question_id TEXT NOT NULL,
  choices_json TEXT NOT NULL,
  attempt_count INTEGER NOT NULL,
  correct INTEGER NOT NULL,
  points_awarded INTEGER NOT NULL,
  PRIMARY KEY (session_id, question_id)
);
`
