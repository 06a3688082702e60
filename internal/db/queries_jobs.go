package db

import (
	"database/sql"
	"time"

	"github.com/relabel/relabel/internal/model"
)

func EnqueueJob(database *sql.DB, j *model.Job) error {
	_, err := database.Exec(
		`INSERT INTO jobs (id, kind, payload, state) VALUES (?, ?, ?, 'PENDING')`,
		j.ID, j.Kind, j.Payload,
	)
	return err
}

// GetActiveJobByPayload finds a PENDING or RUNNING job of the given kind and
// payload, making enqueue idempotent for repeated build requests.
func GetActiveJobByPayload(database *sql.DB, kind, payload string) (*model.Job, error) {
	row := database.QueryRow(
		`SELECT id, kind, payload, state, phase, progress_done, progress_total,
		        result, error_message, created_at, started_at, finished_at
		 FROM jobs
		 WHERE kind = ? AND payload = ? AND state IN ('PENDING', 'RUNNING')
		 ORDER BY created_at DESC LIMIT 1`, kind, payload,
	)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

func ClaimNextJob(database *sql.DB, kinds []string) (*model.Job, error) {
	if len(kinds) == 0 {
		return nil, nil
	}

	// Build placeholder string for IN clause
	query := `
		UPDATE jobs
		SET state = 'RUNNING', started_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		WHERE id = (
			SELECT id FROM jobs
			WHERE state = 'PENDING' AND kind IN (`

	args := make([]interface{}, len(kinds))
	for i, k := range kinds {
		if i > 0 {
			query += ","
		}
		query += "?"
		args[i] = k
	}
	query += `) ORDER BY created_at ASC LIMIT 1
		)
		RETURNING id, kind, payload, state, phase, progress_done, progress_total,
		          result, error_message, created_at, started_at, finished_at`

	j, err := scanJob(database.QueryRow(query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

func UpdateJobProgress(database *sql.DB, id, phase string, done, total int) error {
	_, err := database.Exec(
		`UPDATE jobs SET phase = ?, progress_done = ?, progress_total = ? WHERE id = ?`,
		phase, done, total, id,
	)
	return err
}

func CompleteJob(database *sql.DB, id, resultJSON string) error {
	_, err := database.Exec(
		`UPDATE jobs SET state = 'COMPLETED', result = ?, finished_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		 WHERE id = ?`, resultJSON, id,
	)
	return err
}

func FailJob(database *sql.DB, id, errorMsg string) error {
	_, err := database.Exec(
		`UPDATE jobs SET state = 'FAILED', error_message = ?, finished_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		 WHERE id = ?`, errorMsg, id,
	)
	return err
}

func GetJob(database *sql.DB, id string) (*model.Job, error) {
	row := database.QueryRow(
		`SELECT id, kind, payload, state, phase, progress_done, progress_total,
		        result, error_message, created_at, started_at, finished_at
		 FROM jobs WHERE id = ?`, id,
	)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

func PurgeFinishedJobsBefore(database *sql.DB, cutoff time.Time) (int64, error) {
	res, err := database.Exec(
		`DELETE FROM jobs
		 WHERE state IN ('COMPLETED', 'FAILED') AND finished_at < ?`,
		cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanJob(row rowScanner) (*model.Job, error) {
	j := &model.Job{}
	var createdAt SQLiteTime
	var startedAt, finishedAt sql.NullString
	err := row.Scan(
		&j.ID, &j.Kind, &j.Payload, &j.State, &j.Phase,
		&j.ProgressDone, &j.ProgressTotal, &j.Result, &j.ErrorMessage,
		&createdAt, &startedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}
	j.CreatedAt = createdAt.Time
	j.StartedAt = parseTimePtr(startedAt)
	j.FinishedAt = parseTimePtr(finishedAt)
	return j, nil
}
