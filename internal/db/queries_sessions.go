package db

import (
	"database/sql"
	"time"

	"github.com/relabel/relabel/internal/model"
)

func CreateSession(database *sql.DB, s *model.Session) error {
	_, err := database.Exec(
		`INSERT INTO sessions (id, admin_id, expires_at) VALUES (?, ?, ?)`,
		s.ID, s.AdminID, s.ExpiresAt.UTC().Format(time.RFC3339),
	)
	return err
}

// GetSession returns nil without error when no row matches; expiry is the
// caller's concern so that a stale session can still be deleted by ID.
func GetSession(database *sql.DB, id string) (*model.Session, error) {
	s := &model.Session{}
	var createdAt, expiresAt SQLiteTime
	err := database.QueryRow(
		`SELECT id, admin_id, created_at, expires_at FROM sessions WHERE id = ?`, id,
	).Scan(&s.ID, &s.AdminID, &createdAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	s.CreatedAt = createdAt.Time
	s.ExpiresAt = expiresAt.Time
	return s, err
}

func DeleteSession(database *sql.DB, id string) error {
	_, err := database.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	return err
}

// CleanExpiredSessions deletes sessions past their expiry and reports how
// many went.
func CleanExpiredSessions(database *sql.DB) (int64, error) {
	res, err := database.Exec(
		`DELETE FROM sessions WHERE expires_at < ?`,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
