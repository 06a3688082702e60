package db

import (
	"database/sql"
	"time"

	"github.com/relabel/relabel/internal/model"
)

func UpsertOrderMapping(database *sql.DB, m *model.OrderMapping) error {
	_, err := database.Exec(
		`INSERT INTO order_mappings (order_id, customer_order, tracking_no, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(order_id) DO UPDATE SET
		   customer_order = excluded.customer_order,
		   tracking_no = excluded.tracking_no,
		   updated_at = excluded.updated_at`,
		m.OrderID, m.CustomerOrder, m.TrackingNo, m.UpdatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func GetOrderMapping(database *sql.DB, orderID string) (*model.OrderMapping, error) {
	m := &model.OrderMapping{}
	var updatedAt SQLiteTime
	err := database.QueryRow(
		`SELECT order_id, customer_order, tracking_no, updated_at
		 FROM order_mappings WHERE order_id = ?`, orderID,
	).Scan(&m.OrderID, &m.CustomerOrder, &m.TrackingNo, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	m.UpdatedAt = updatedAt.Time
	return m, err
}

// ResolveTrackingNo maps an order id to its bound tracking number, returning
// "" when no binding exists.
func ResolveTrackingNo(database *sql.DB, orderID string) (string, error) {
	var trackingNo string
	err := database.QueryRow(
		`SELECT tracking_no FROM order_mappings WHERE order_id = ?`, orderID,
	).Scan(&trackingNo)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return trackingNo, err
}

func ListOrderMappings(database *sql.DB) ([]model.OrderMapping, error) {
	rows, err := database.Query(
		`SELECT order_id, customer_order, tracking_no, updated_at
		 FROM order_mappings ORDER BY order_id ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mappings []model.OrderMapping
	for rows.Next() {
		var m model.OrderMapping
		var updatedAt SQLiteTime
		if err := rows.Scan(&m.OrderID, &m.CustomerOrder, &m.TrackingNo, &updatedAt); err != nil {
			return nil, err
		}
		m.UpdatedAt = updatedAt.Time
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

func DeleteOrderMapping(database *sql.DB, orderID string) (bool, error) {
	res, err := database.Exec(`DELETE FROM order_mappings WHERE order_id = ?`, orderID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func DeleteAllOrderMappings(database *sql.DB) (int64, error) {
	res, err := database.Exec(`DELETE FROM order_mappings`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func CountOrderMappings(database *sql.DB) (int, error) {
	var n int
	err := database.QueryRow(`SELECT COUNT(*) FROM order_mappings`).Scan(&n)
	return n, err
}

func PurgeOrderMappingsBefore(database *sql.DB, cutoff time.Time) (int64, error) {
	res, err := database.Exec(
		`DELETE FROM order_mappings WHERE updated_at < ?`,
		cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
