package db

import (
	"database/sql"
	"strconv"
)

// GetMeta reads a runtime setting, falling back when the key is absent or
// empty.
func GetMeta(database *sql.DB, key, fallback string) string {
	var v string
	err := database.QueryRow(`SELECT v FROM meta WHERE k = ?`, key).Scan(&v)
	if err != nil || v == "" {
		return fallback
	}
	return v
}

func GetMetaInt(database *sql.DB, key string, fallback int) int {
	v := GetMeta(database, key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func SetMeta(database *sql.DB, key, value string) error {
	_, err := database.Exec(
		`INSERT INTO meta (k, v) VALUES (?, ?)
		 ON CONFLICT(k) DO UPDATE SET v = excluded.v`,
		key, value,
	)
	return err
}
