package db

import (
	"database/sql"

	"github.com/relabel/relabel/internal/model"
)

func CreateAdminUser(database *sql.DB, a *model.AdminUser) error {
	_, err := database.Exec(
		`INSERT INTO admin_users (id, username, password_hash) VALUES (?, ?, ?)`,
		a.ID, a.Username, a.PasswordHash,
	)
	return err
}

func GetAdminByUsername(database *sql.DB, username string) (*model.AdminUser, error) {
	a := &model.AdminUser{}
	var createdAt SQLiteTime
	err := database.QueryRow(
		`SELECT id, username, password_hash, created_at FROM admin_users WHERE username = ?`, username,
	).Scan(&a.ID, &a.Username, &a.PasswordHash, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	a.CreatedAt = createdAt.Time
	return a, err
}

func GetAdminByID(database *sql.DB, id string) (*model.AdminUser, error) {
	a := &model.AdminUser{}
	var createdAt SQLiteTime
	err := database.QueryRow(
		`SELECT id, username, password_hash, created_at FROM admin_users WHERE id = ?`, id,
	).Scan(&a.ID, &a.Username, &a.PasswordHash, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	a.CreatedAt = createdAt.Time
	return a, err
}

func AdminExists(database *sql.DB) (bool, error) {
	var count int
	err := database.QueryRow(`SELECT COUNT(*) FROM admin_users`).Scan(&count)
	return count > 0, err
}

func UpdateAdminPassword(database *sql.DB, id, passwordHash string) error {
	_, err := database.Exec(
		`UPDATE admin_users SET password_hash = ? WHERE id = ?`, passwordHash, id,
	)
	return err
}
