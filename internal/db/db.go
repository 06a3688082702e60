// Package db owns the SQLite handle, schema migrations, and every query the
// server issues. Handlers and services call these helpers rather than writing
// SQL inline.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const dbFileName = "relabel.db"

// Open creates <dataDir>/db/relabel.db if needed and returns a handle tuned
// for a single-writer workload.
func Open(dataDir string) (*sql.DB, error) {
	dir := filepath.Join(dataDir, "db")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	dsn := filepath.Join(dir, dbFileName) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	database, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA cache_size=-20000",
	} {
		if _, err := database.Exec(pragma); err != nil {
			database.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	// One connection only. SQLite has a single writer anyway, and the print
	// report path depends on transactions applying aggregate updates in order.
	database.SetMaxOpenConns(1)

	return database, nil
}

// SQLiteTime scans timestamp columns. The schema stores TEXT in UTC, but
// depending on how a value was written the driver may hand back a string,
// []byte, time.Time, or a unix integer; Scan accepts them all.
type SQLiteTime struct {
	Time time.Time
}

var timeLayouts = [...]string{
	"2006-01-02T15:04:05.000Z", // what strftime('%Y-%m-%dT%H:%M:%fZ') emits
	time.RFC3339,
	"2006-01-02 15:04:05",
}

func (st *SQLiteTime) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		st.Time = time.Time{}
		return nil
	case string:
		return st.parse(v)
	case []byte:
		return st.parse(string(v))
	case time.Time:
		st.Time = v
		return nil
	case int64:
		st.Time = time.Unix(v, 0).UTC()
		return nil
	}
	return fmt.Errorf("SQLiteTime: unsupported type %T", src)
}

func (st *SQLiteTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			st.Time = t
			return nil
		}
	}
	return fmt.Errorf("SQLiteTime: cannot parse %q", s)
}

// Ptr returns the scanned value as *time.Time, mapping zero to nil.
// Handy for nullable timestamp columns.
func (st SQLiteTime) Ptr() *time.Time {
	if st.Time.IsZero() {
		return nil
	}
	t := st.Time
	return &t
}
