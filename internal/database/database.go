package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"media-forensics/internal/logging"
	"media-forensics/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Dialect identifies the SQL backend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

// Database manages fingerprint and session storage.
type Database struct {
	db      *sql.DB
	dialect Dialect
	target  string
}

// Config selects the backend. URL takes precedence when it is a
// postgres:// or postgresql:// DSN; otherwise Path names the SQLite file.
type Config struct {
	Path string
	URL  string
}

// DialectFor returns the dialect a Config resolves to.
func DialectFor(cfg Config) Dialect {
	if strings.HasPrefix(cfg.URL, "postgres://") || strings.HasPrefix(cfg.URL, "postgresql://") {
		return DialectPostgres
	}
	return DialectSQLite
}

// New opens the database and applies the schema.
// For SQLite the parent directory of Path must already exist and be writable.
func New(ctx context.Context, cfg Config) (*Database, error) {
	dialect := DialectFor(cfg)

	var dsn, target string
	switch dialect {
	case DialectPostgres:
		dsn = cfg.URL
		target = "postgres"
	default:
		if cfg.Path == "" {
			return nil, errors.New("database path is empty")
		}
		logging.Info("Database path: %s", cfg.Path)
		if err := diagnoseDatabasePermissions(cfg.Path); err != nil {
			logging.Warn("Database permission diagnostics: %v", err)
		}
		dsn = fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on", cfg.Path)
		target = cfg.Path
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:      db,
		dialect: dialect,
		target:  target,
	}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Database initialized successfully (%s)", target)
	return d, nil
}

// Ping checks that the database is reachable.
func (d *Database) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return d.db.PingContext(ctx)
}

// Dialect returns the backend in use.
func (d *Database) Dialect() Dialect {
	return d.dialect
}

func (d *Database) initialize(ctx context.Context) error {
	start := time.Now()

	idColumn := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if d.dialect == DialectPostgres {
		idColumn = "BIGSERIAL PRIMARY KEY"
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS fingerprints (
			id ` + idColumn + `,
			user_id BIGINT NOT NULL,
			media_id BIGINT NOT NULL,
			fingerprint_identity TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			last_seen_at BIGINT NOT NULL,
			last_ip TEXT NOT NULL DEFAULT '',
			UNIQUE(user_id, media_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fingerprints_media ON fingerprints(media_id)`,
		`CREATE TABLE IF NOT EXISTS playback_sessions (
			id ` + idColumn + `,
			user_id BIGINT NOT NULL,
			media_id BIGINT NOT NULL,
			fingerprint_identity TEXT NOT NULL,
			ip TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			started_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_playback_sessions_media ON playback_sessions(media_id, started_at)`,
	}

	var err error
	for _, stmt := range statements {
		if _, err = d.db.ExecContext(ctx, stmt); err != nil {
			break
		}
	}
	recordQuery("initialize_schema", start, err)
	return err
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func rebind(dialect Dialect, query string) string {
	if dialect != DialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inString := false
	for _, r := range query {
		switch {
		case r == '\'':
			inString = !inString
			b.WriteRune(r)
		case r == '?' && !inString:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (d *Database) q(query string) string {
	return rebind(d.dialect, query)
}

// recordQuery records metrics for a database query
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// UpdateDBMetrics updates database connection metrics
func (d *Database) UpdateDBMetrics() {
	stats := d.db.Stats()
	metrics.DBConnectionsOpen.Set(float64(stats.OpenConnections))
}

// diagnoseDatabasePermissions checks database directory and file permissions
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}
	logging.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	if dbInfo, err := os.Stat(dbPath); err == nil {
		logging.Debug("Database file exists: %s (mode: %v, size: %d bytes)", dbPath, dbInfo.Mode(), dbInfo.Size())
		if dbInfo.Mode().Perm()&0o200 == 0 {
			logging.Warn("Database file is read-only! Mode: %v", dbInfo.Mode())
		}
	}

	return nil
}
