package db

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/relabel/relabel/internal/model"
)

// InsertPrintEvent appends one ledger row inside the caller's transaction and
// returns the assigned id. Events are immutable once written; nothing in the
// codebase updates or deletes them except the retention purge.
func InsertPrintEvent(tx *sql.Tx, e *model.PrintEvent) (int64, error) {
	macs, _ := json.Marshal(e.MACList)
	ips, _ := json.Marshal(e.IPList)
	res, err := tx.Exec(
		`INSERT INTO print_events
		   (access_code_id, input_kind, code_value, order_id, tracking_no, result,
		    reprint_reason, host, user, client_version, printer_name,
		    mac_list, ip_list, pdf_sha256, client_ip)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.AccessCodeID, e.InputKind, e.CodeValue, nullIfEmpty(e.OrderID), e.TrackingNo,
		e.Result, e.ReprintReason, e.Host, e.User, e.ClientVersion, e.PrinterName,
		string(macs), string(ips), e.PDFSHA256, e.ClientIP,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// HasOrderSuccess reports whether any successful print event exists for the
// order id. Checked against raw events, not the aggregate, so the answer
// survives aggregate rebuilds.
func HasOrderSuccess(database *sql.DB, orderID string) (bool, error) {
	var n int
	err := database.QueryRow(
		`SELECT EXISTS(
		   SELECT 1 FROM print_events
		   WHERE order_id = ? AND result IN ('success', 'success_reprint')
		 )`, orderID,
	).Scan(&n)
	return n == 1, err
}

func HasTrackingSuccess(database *sql.DB, trackingNo string) (bool, error) {
	var n int
	err := database.QueryRow(
		`SELECT EXISTS(
		   SELECT 1 FROM print_events
		   WHERE tracking_no = ? AND result IN ('success', 'success_reprint')
		 )`, trackingNo,
	).Scan(&n)
	return n == 1, err
}

// ListEventsByAccessCode returns events reported under one access code,
// newest first. Used to derive the per-code device list.
func ListEventsByAccessCode(database *sql.DB, codeID int64) ([]model.PrintEvent, error) {
	rows, err := database.Query(
		`SELECT id, host, mac_list, ip_list, client_version, created_at
		 FROM print_events
		 WHERE access_code_id = ?
		 ORDER BY created_at DESC, id DESC`, codeID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.PrintEvent
	for rows.Next() {
		var e model.PrintEvent
		var macs, ips string
		var createdAt SQLiteTime
		if err := rows.Scan(&e.ID, &e.Host, &macs, &ips, &e.ClientVersion, &createdAt); err != nil {
			return nil, err
		}
		e.MACList = decodeStringList(macs)
		e.IPList = decodeStringList(ips)
		e.CreatedAt = createdAt.Time
		events = append(events, e)
	}
	return events, rows.Err()
}

// ListEventsByTracking returns the full ledger for one tracking number in
// creation order, the order an aggregate rebuild would replay them in.
func ListEventsByTracking(database *sql.DB, trackingNo string) ([]model.PrintEvent, error) {
	rows, err := database.Query(
		`SELECT id, access_code_id, input_kind, code_value, COALESCE(order_id, ''),
		        tracking_no, result, reprint_reason, host, user, client_version,
		        printer_name, mac_list, ip_list, pdf_sha256, client_ip, created_at
		 FROM print_events
		 WHERE tracking_no = ?
		 ORDER BY id ASC`, trackingNo,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.PrintEvent
	for rows.Next() {
		var e model.PrintEvent
		var macs, ips string
		var createdAt SQLiteTime
		if err := rows.Scan(
			&e.ID, &e.AccessCodeID, &e.InputKind, &e.CodeValue, &e.OrderID,
			&e.TrackingNo, &e.Result, &e.ReprintReason, &e.Host, &e.User,
			&e.ClientVersion, &e.PrinterName, &macs, &ips, &e.PDFSHA256,
			&e.ClientIP, &createdAt,
		); err != nil {
			return nil, err
		}
		e.MACList = decodeStringList(macs)
		e.IPList = decodeStringList(ips)
		e.CreatedAt = createdAt.Time
		events = append(events, e)
	}
	return events, rows.Err()
}

func CountPrintEvents(database *sql.DB) (int, error) {
	var n int
	err := database.QueryRow(`SELECT COUNT(*) FROM print_events`).Scan(&n)
	return n, err
}

func CountSuccessEventsSince(database *sql.DB, since time.Time) (int, error) {
	var n int
	err := database.QueryRow(
		`SELECT COUNT(*) FROM print_events
		 WHERE result IN ('success', 'success_reprint') AND created_at >= ?`,
		since.UTC().Format(time.RFC3339),
	).Scan(&n)
	return n, err
}

func PurgePrintEventsBefore(database *sql.DB, cutoff time.Time) (int64, error) {
	res, err := database.Exec(
		`DELETE FROM print_events WHERE created_at < ?`,
		cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func decodeStringList(s string) []string {
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}
