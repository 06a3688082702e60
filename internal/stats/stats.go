// Package stats derives print-volume statistics for the admin dashboard.
package stats

import (
	"database/sql"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/relabel/relabel/internal/db"
)

// VolumeSummary describes the distribution of successful prints per day
// over a trailing window.
type VolumeSummary struct {
	Days   int     `json:"days"`
	Total  int     `json:"total"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P95    float64 `json:"p95"`
}

// DailyVolume returns the per-day success counts for the trailing window
// of the given length, together with their summary.
func DailyVolume(database *sql.DB, days int) ([]db.DayCount, VolumeSummary, error) {
	since := time.Now().UTC().AddDate(0, 0, -days)
	counts, err := db.DailySuccessCounts(database, since)
	if err != nil {
		return nil, VolumeSummary{}, err
	}
	return counts, Summarize(counts), nil
}

// Summarize reduces a day series to mean/median/p95. Days without a single
// successful print are absent from the series, so the numbers describe
// active days only.
func Summarize(counts []db.DayCount) VolumeSummary {
	if len(counts) == 0 {
		return VolumeSummary{}
	}
	xs := make([]float64, len(counts))
	total := 0
	for i, c := range counts {
		xs[i] = float64(c.Count)
		total += c.Count
	}
	sort.Float64s(xs)
	return VolumeSummary{
		Days:   len(counts),
		Total:  total,
		Mean:   stat.Mean(xs, nil),
		Median: stat.Quantile(0.5, stat.Empirical, xs, nil),
		P95:    stat.Quantile(0.95, stat.Empirical, xs, nil),
	}
}
