package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates or opens a SQLite database at the given path.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &DB{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// stampLayout is fixed-width so stored timestamps compare lexically.
// Nanosecond precision keeps back-to-back writes strictly ordered.
const stampLayout = "2006-01-02 15:04:05.000000000"

// nowStamp returns the current UTC time in the stored timestamp format.
func nowStamp() string {
	return time.Now().UTC().Format(stampLayout)
}

// cutoffStamp returns the timestamp `days` days before now.
func cutoffStamp(days int) string {
	return time.Now().UTC().AddDate(0, 0, -days).Format(stampLayout)
}

// Today returns today's date as YYYY-MM-DD (UTC).
func Today() string {
	return time.Now().UTC().Format("2006-01-02")
}
