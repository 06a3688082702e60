package db

import (
	"database/sql"
	"time"

	"github.com/relabel/relabel/internal/model"
)

func GetTrackingFile(database *sql.DB, trackingNo string) (*model.TrackingFile, error) {
	row := database.QueryRow(
		`SELECT tracking_no, file_path, uploaded_at, print_status, print_count,
		        first_print_time, last_print_time, last_print_client_name
		 FROM tracking_files WHERE tracking_no = ?`, trackingNo,
	)
	tf, err := scanTrackingFile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return tf, err
}

// EnsureTrackingFile creates the aggregate row with not_printed defaults if
// it does not exist yet, so print reporting works for tracking numbers that
// were never imported. Runs inside the report transaction.
func EnsureTrackingFile(tx *sql.Tx, trackingNo string, now time.Time) error {
	_, err := tx.Exec(
		`INSERT OR IGNORE INTO tracking_files (tracking_no, file_path, uploaded_at)
		 VALUES (?, '', ?)`,
		trackingNo, now.UTC().Format(time.RFC3339),
	)
	return err
}

// ApplyPrintSuccess advances the aggregate for one successful print: the
// counter increments server-side, the status follows the count, and
// first_print_time is written at most once via COALESCE. Runs inside the
// report transaction so the ledger row and the aggregate move together.
func ApplyPrintSuccess(tx *sql.Tx, trackingNo, host string, now time.Time) (*model.TrackingFile, error) {
	ts := now.UTC().Format(time.RFC3339)
	row := tx.QueryRow(
		`UPDATE tracking_files
		 SET print_count = print_count + 1,
		     print_status = CASE WHEN print_count + 1 <= 1 THEN 'printed' ELSE 'reprinted' END,
		     first_print_time = COALESCE(first_print_time, ?),
		     last_print_time = ?,
		     last_print_client_name = ?
		 WHERE tracking_no = ?
		 RETURNING tracking_no, file_path, uploaded_at, print_status, print_count,
		           first_print_time, last_print_time, last_print_client_name`,
		ts, ts, host, trackingNo,
	)
	tf, err := scanTrackingFile(row)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	return tf, err
}

// RegisterTrackingFile upserts the file bookkeeping columns only. The print
// aggregate columns belong to ApplyPrintSuccess and are never touched here.
func RegisterTrackingFile(database *sql.DB, trackingNo, filePath string, uploadedAt time.Time) error {
	_, err := database.Exec(
		`INSERT INTO tracking_files (tracking_no, file_path, uploaded_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(tracking_no) DO UPDATE SET
		   file_path = excluded.file_path,
		   uploaded_at = excluded.uploaded_at`,
		trackingNo, filePath, uploadedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func ListTrackingFiles(database *sql.DB, query, status string) ([]model.TrackingFile, error) {
	sqlQuery := `SELECT tracking_no, file_path, uploaded_at, print_status, print_count,
	                    first_print_time, last_print_time, last_print_client_name
	             FROM tracking_files WHERE 1=1`
	var args []interface{}
	if query != "" {
		sqlQuery += ` AND tracking_no LIKE ?`
		args = append(args, "%"+query+"%")
	}
	if status != "" {
		sqlQuery += ` AND print_status = ?`
		args = append(args, status)
	}
	sqlQuery += ` ORDER BY COALESCE(uploaded_at, '') DESC, tracking_no ASC`

	rows, err := database.Query(sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []model.TrackingFile
	for rows.Next() {
		tf, err := scanTrackingFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, *tf)
	}
	return files, rows.Err()
}

// ListTrackingFilesUploadedBetween returns rows with a real file whose upload
// time falls in [start, end). Feeds the daily archive builder.
func ListTrackingFilesUploadedBetween(database *sql.DB, start, end time.Time) ([]model.TrackingFile, error) {
	rows, err := database.Query(
		`SELECT tracking_no, file_path, uploaded_at, print_status, print_count,
		        first_print_time, last_print_time, last_print_client_name
		 FROM tracking_files
		 WHERE file_path != '' AND uploaded_at >= ? AND uploaded_at < ?
		 ORDER BY tracking_no ASC`,
		start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []model.TrackingFile
	for rows.Next() {
		tf, err := scanTrackingFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, *tf)
	}
	return files, rows.Err()
}

func CountTrackingByStatus(database *sql.DB) (total, printed, reprinted, notPrinted int, err error) {
	err = database.QueryRow(`
		SELECT
		  COUNT(*),
		  COALESCE(SUM(CASE WHEN print_status = 'printed' THEN 1 ELSE 0 END), 0),
		  COALESCE(SUM(CASE WHEN print_status = 'reprinted' THEN 1 ELSE 0 END), 0),
		  COALESCE(SUM(CASE WHEN print_status = 'not_printed' THEN 1 ELSE 0 END), 0)
		FROM tracking_files`,
	).Scan(&total, &printed, &reprinted, &notPrinted)
	return
}

// PurgeTrackingFilesBefore removes aggregate rows whose upload time predates
// the cutoff and returns them so the caller can delete the files on disk.
func PurgeTrackingFilesBefore(database *sql.DB, cutoff time.Time) ([]model.TrackingFile, error) {
	rows, err := database.Query(
		`DELETE FROM tracking_files
		 WHERE uploaded_at IS NOT NULL AND uploaded_at < ?
		 RETURNING tracking_no, file_path, uploaded_at, print_status, print_count,
		           first_print_time, last_print_time, last_print_client_name`,
		cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []model.TrackingFile
	for rows.Next() {
		tf, err := scanTrackingFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, *tf)
	}
	return files, rows.Err()
}

func scanTrackingFile(row rowScanner) (*model.TrackingFile, error) {
	tf := &model.TrackingFile{}
	var uploadedAt, firstPrint, lastPrint sql.NullString
	err := row.Scan(
		&tf.TrackingNo, &tf.FilePath, &uploadedAt, &tf.PrintStatus, &tf.PrintCount,
		&firstPrint, &lastPrint, &tf.LastPrintClientName,
	)
	if err != nil {
		return nil, err
	}
	tf.UploadedAt = parseTimePtr(uploadedAt)
	tf.FirstPrintTime = parseTimePtr(firstPrint)
	tf.LastPrintTime = parseTimePtr(lastPrint)
	return tf, nil
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	var t SQLiteTime
	if err := t.Scan(s.String); err != nil {
		return nil
	}
	return t.Ptr()
}
