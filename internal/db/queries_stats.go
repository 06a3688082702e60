package db

import (
	"database/sql"
	"time"
)

// DayCount is one day's successful print volume.
type DayCount struct {
	Day   string
	Count int
}

// DailySuccessCounts groups successful print events by calendar day (UTC)
// from the given day onward. Days with no prints produce no row.
func DailySuccessCounts(database *sql.DB, since time.Time) ([]DayCount, error) {
	rows, err := database.Query(
		`SELECT substr(created_at, 1, 10) AS day, COUNT(*)
		 FROM print_events
		 WHERE result IN ('success', 'success_reprint') AND created_at >= ?
		 GROUP BY day
		 ORDER BY day ASC`,
		since.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DayCount
	for rows.Next() {
		var dc DayCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			return nil, err
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}
