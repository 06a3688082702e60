package db_test

import (
	"database/sql"
	"testing"
	"time"

	relabel "github.com/relabel/relabel"
	"github.com/relabel/relabel/internal/db"
)

func openMigrated(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.Migrate(database, relabel.MigrationFS); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return database
}

func TestMigrateFreshAndIdempotent(t *testing.T) {
	database := openMigrated(t)

	// The schema is usable straight away.
	if _, err := database.Exec(
		`INSERT INTO access_codes (code_hash, code_plain, description, active) VALUES ('h', '123456', 'd', 1)`,
	); err != nil {
		t.Fatalf("insert into migrated schema: %v", err)
	}

	var applied int
	if err := database.QueryRow(`SELECT COUNT(*) FROM _migrations`).Scan(&applied); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if applied == 0 {
		t.Fatal("no migration rows recorded")
	}

	// A second run sees everything applied and changes nothing.
	if err := db.Migrate(database, relabel.MigrationFS); err != nil {
		t.Fatalf("re-migrate: %v", err)
	}
	var again int
	if err := database.QueryRow(`SELECT COUNT(*) FROM _migrations`).Scan(&again); err != nil {
		t.Fatalf("recount migrations: %v", err)
	}
	if again != applied {
		t.Errorf("migration rows after rerun = %d, want %d", again, applied)
	}
}

func TestApplyPrintSuccessAdvancesAggregate(t *testing.T) {
	database := openMigrated(t)

	t1 := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	t2 := t1.Add(90 * time.Minute)

	apply := func(host string, now time.Time) {
		t.Helper()
		tx, err := database.Begin()
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		if err := db.EnsureTrackingFile(tx, "TN-CT", now); err != nil {
			t.Fatalf("ensure: %v", err)
		}
		if _, err := db.ApplyPrintSuccess(tx, "TN-CT", host, now); err != nil {
			t.Fatalf("apply: %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	apply("PC-01", t1)
	tf, err := db.GetTrackingFile(database, "TN-CT")
	if err != nil || tf == nil {
		t.Fatalf("get after first: %v %v", tf, err)
	}
	if tf.PrintCount != 1 || tf.PrintStatus != "printed" {
		t.Errorf("after first success: count %d status %q", tf.PrintCount, tf.PrintStatus)
	}
	if tf.FirstPrintTime == nil || !tf.FirstPrintTime.Equal(t1) {
		t.Errorf("first_print_time = %v, want %v", tf.FirstPrintTime, t1)
	}

	apply("PC-02", t2)
	tf, err = db.GetTrackingFile(database, "TN-CT")
	if err != nil || tf == nil {
		t.Fatalf("get after second: %v %v", tf, err)
	}
	if tf.PrintCount != 2 || tf.PrintStatus != "reprinted" {
		t.Errorf("after second success: count %d status %q", tf.PrintCount, tf.PrintStatus)
	}
	if tf.FirstPrintTime == nil || !tf.FirstPrintTime.Equal(t1) {
		t.Errorf("first_print_time moved to %v", tf.FirstPrintTime)
	}
	if tf.LastPrintTime == nil || !tf.LastPrintTime.Equal(t2) {
		t.Errorf("last_print_time = %v, want %v", tf.LastPrintTime, t2)
	}
	if tf.LastPrintClientName != "PC-02" {
		t.Errorf("last_print_client_name = %q", tf.LastPrintClientName)
	}
}

func TestApplyPrintSuccessMissingRow(t *testing.T) {
	database := openMigrated(t)

	tx, err := database.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	if _, err := db.ApplyPrintSuccess(tx, "TN-ABSENT", "PC-01", time.Now()); err != sql.ErrNoRows {
		t.Errorf("apply on missing row: err = %v, want sql.ErrNoRows", err)
	}
}

func TestSQLiteTimeScan(t *testing.T) {
	cases := []struct {
		name string
		src  interface{}
		want time.Time
	}{
		{"strftime default", "2026-05-01T08:30:00.000Z", time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC)},
		{"rfc3339", "2026-05-01T08:30:00Z", time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC)},
		{"space separated", "2026-05-01 08:30:00", time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC)},
		{"bytes", []byte("2026-05-01T08:30:00Z"), time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC)},
		{"nil", nil, time.Time{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var st db.SQLiteTime
			if err := st.Scan(tc.src); err != nil {
				t.Fatalf("scan: %v", err)
			}
			if !st.Time.Equal(tc.want) {
				t.Errorf("got %v, want %v", st.Time, tc.want)
			}
		})
	}

	var st db.SQLiteTime
	if err := st.Scan("yesterday-ish"); err == nil {
		t.Error("garbage timestamp scanned without error")
	}
}
