package db

import (
	"database/sql"
	"time"

	"github.com/relabel/relabel/internal/model"
)

func CreateAccessCode(database *sql.DB, c *model.AccessCode) (int64, error) {
	res, err := database.Exec(
		`INSERT INTO access_codes (code_hash, code_plain, description, active) VALUES (?, ?, ?, ?)`,
		c.CodeHash, c.CodePlain, c.Description, boolToInt(c.Active),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func GetAccessCode(database *sql.DB, id int64) (*model.AccessCode, error) {
	row := database.QueryRow(
		`SELECT id, code_hash, code_plain, description, active, failure_count,
		        locked_until, last_used, created_at
		 FROM access_codes WHERE id = ?`, id,
	)
	c, err := scanAccessCode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func ListAccessCodes(database *sql.DB) ([]model.AccessCode, error) {
	rows, err := database.Query(
		`SELECT id, code_hash, code_plain, description, active, failure_count,
		        locked_until, last_used, created_at
		 FROM access_codes ORDER BY id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []model.AccessCode
	for rows.Next() {
		c, err := scanAccessCode(rows)
		if err != nil {
			return nil, err
		}
		codes = append(codes, *c)
	}
	return codes, rows.Err()
}

// ListVerifiableCodes returns active codes that are not under lockout at the
// given instant. Locked codes are excluded here so the authenticator never
// spends a hash verification on them.
func ListVerifiableCodes(database *sql.DB, now time.Time) ([]model.AccessCode, error) {
	rows, err := database.Query(
		`SELECT id, code_hash, code_plain, description, active, failure_count,
		        locked_until, last_used, created_at
		 FROM access_codes
		 WHERE active = 1 AND (locked_until IS NULL OR locked_until < ?)`,
		now.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []model.AccessCode
	for rows.Next() {
		c, err := scanAccessCode(rows)
		if err != nil {
			return nil, err
		}
		codes = append(codes, *c)
	}
	return codes, rows.Err()
}

// MarkCodeVerified records a successful verification: failure counter back to
// zero, lockout cleared, last_used stamped.
func MarkCodeVerified(database *sql.DB, id int64) error {
	_, err := database.Exec(
		`UPDATE access_codes
		 SET failure_count = 0, locked_until = NULL,
		     last_used = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		 WHERE id = ?`, id,
	)
	return err
}

// RecordFailedAttempt bumps the failure counter of every candidate examined
// in one server-side UPDATE, locking any candidate that crosses the
// threshold. Doing the increment in SQL keeps concurrent failures from
// losing a lockout trigger.
func RecordFailedAttempt(database *sql.DB, ids []int64, threshold int, lockUntil time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	query := `UPDATE access_codes
		 SET failure_count = failure_count + 1,
		     locked_until = CASE WHEN failure_count + 1 >= ? THEN ? ELSE locked_until END
		 WHERE id IN (`
	args := make([]interface{}, 0, len(ids)+2)
	args = append(args, threshold, lockUntil.UTC().Format(time.RFC3339))
	for i, id := range ids {
		if i > 0 {
			query += ","
		}
		query += "?"
		args = append(args, id)
	}
	query += ")"

	_, err := database.Exec(query, args...)
	return err
}

// UpdateCodeHash rewrites the stored hash, used when a legacy hash verifies
// and gets upgraded to the current scheme.
func UpdateCodeHash(database *sql.DB, id int64, hash string) error {
	_, err := database.Exec(`UPDATE access_codes SET code_hash = ? WHERE id = ?`, hash, id)
	return err
}

// ToggleAccessCode flips the active flag and reports the new value.
func ToggleAccessCode(database *sql.DB, id int64) (active bool, err error) {
	var n int
	err = database.QueryRow(
		`UPDATE access_codes SET active = 1 - active WHERE id = ? RETURNING active`, id,
	).Scan(&n)
	if err == sql.ErrNoRows {
		return false, sql.ErrNoRows
	}
	return n == 1, err
}

func DeleteAccessCode(database *sql.DB, id int64) error {
	_, err := database.Exec(`DELETE FROM access_codes WHERE id = ?`, id)
	return err
}

func CountAccessCodes(database *sql.DB, now time.Time) (active, locked int, err error) {
	err = database.QueryRow(
		`SELECT
		   COALESCE(SUM(CASE WHEN active = 1 THEN 1 ELSE 0 END), 0),
		   COALESCE(SUM(CASE WHEN locked_until IS NOT NULL AND locked_until >= ? THEN 1 ELSE 0 END), 0)
		 FROM access_codes`,
		now.UTC().Format(time.RFC3339),
	).Scan(&active, &locked)
	return
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccessCode(row rowScanner) (*model.AccessCode, error) {
	c := &model.AccessCode{}
	var active int
	var lockedUntil, lastUsed sql.NullString
	var createdAt SQLiteTime
	err := row.Scan(
		&c.ID, &c.CodeHash, &c.CodePlain, &c.Description, &active,
		&c.FailureCount, &lockedUntil, &lastUsed, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	c.Active = active == 1
	if lockedUntil.Valid {
		var t SQLiteTime
		if err := t.Scan(lockedUntil.String); err == nil {
			c.LockedUntil = t.Ptr()
		}
	}
	if lastUsed.Valid {
		var t SQLiteTime
		if err := t.Scan(lastUsed.String); err == nil {
			c.LastUsed = t.Ptr()
		}
	}
	c.CreatedAt = createdAt.Time
	return c, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
