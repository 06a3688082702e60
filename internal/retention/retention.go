// Package retention runs the background purge: old print events, expired
// label files and their PDFs, stale order mappings, dead sessions and
// finished jobs. Horizons are runtime settings read from the meta table on
// every pass, so an admin change takes effect without a restart.
package retention

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/relabel/relabel/internal/db"
	"github.com/relabel/relabel/internal/snapshot"
)

// Meta keys for the purge horizons, in days. Zero or negative disables the
// corresponding purge.
const (
	MetaOrdersDays = "retention_orders_days"
	MetaFilesDays  = "retention_files_days"

	DefaultRetentionDays = 90
)

// finishedJobMaxAge is how long COMPLETED/FAILED job rows stay queryable.
const finishedJobMaxAge = 7 * 24 * time.Hour

type Cleaner struct {
	DB        *sql.DB
	DataDir   string
	Interval  time.Duration
	Publisher *snapshot.Publisher
	cancel    context.CancelFunc
	done      chan struct{}
}

func (c *Cleaner) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.loop(ctx)
	slog.Info("retention scheduler started", "interval", c.Interval)
}

func (c *Cleaner) Stop() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	slog.Info("retention scheduler stopped")
}

func (c *Cleaner) loop(ctx context.Context) {
	defer close(c.done)

	c.RunOnce()

	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce()
		}
	}
}

// RunOnce executes a single purge pass. Each stage logs and moves on when it
// fails; one bad stage must not starve the others.
func (c *Cleaner) RunOnce() {
	now := time.Now().UTC()

	if days := db.GetMetaInt(c.DB, MetaOrdersDays, DefaultRetentionDays); days > 0 {
		cutoff := now.AddDate(0, 0, -days)
		if n, err := db.PurgePrintEventsBefore(c.DB, cutoff); err != nil {
			slog.Error("retention: purge print events", "error", err)
		} else if n > 0 {
			slog.Info("retention: purged print events", "count", n, "cutoff", cutoff.Format("2006-01-02"))
		}
	}

	if days := db.GetMetaInt(c.DB, MetaFilesDays, DefaultRetentionDays); days > 0 {
		cutoff := now.AddDate(0, 0, -days)
		c.purgeFiles(cutoff)
		c.purgeMappings(cutoff)
	}

	if n, err := db.CleanExpiredSessions(c.DB); err != nil {
		slog.Error("retention: clean sessions", "error", err)
	} else if n > 0 {
		slog.Info("retention: cleaned expired sessions", "count", n)
	}

	if n, err := db.PurgeFinishedJobsBefore(c.DB, now.Add(-finishedJobMaxAge)); err != nil {
		slog.Error("retention: purge finished jobs", "error", err)
	} else if n > 0 {
		slog.Info("retention: purged finished jobs", "count", n)
	}
}

func (c *Cleaner) purgeFiles(cutoff time.Time) {
	purged, err := db.PurgeTrackingFilesBefore(c.DB, cutoff)
	if err != nil {
		slog.Error("retention: purge tracking files", "error", err)
		return
	}
	if len(purged) == 0 {
		return
	}

	removed := 0
	for _, tf := range purged {
		if tf.FilePath == "" {
			continue
		}
		// file_path is stored relative to the data dir.
		path := filepath.Join(c.DataDir, tf.FilePath)
		if err := os.Remove(path); err != nil {
			if !os.IsNotExist(err) {
				slog.Warn("retention: remove label file", "path", path, "error", err)
			}
			continue
		}
		removed++
	}
	slog.Info("retention: purged tracking files", "rows", len(purged), "files_removed", removed)
}

func (c *Cleaner) purgeMappings(cutoff time.Time) {
	n, err := db.PurgeOrderMappingsBefore(c.DB, cutoff)
	if err != nil {
		slog.Error("retention: purge order mappings", "error", err)
		return
	}
	if n == 0 {
		return
	}
	slog.Info("retention: purged order mappings", "count", n)
	if err := c.Publisher.PublishMapping(); err != nil {
		slog.Error("retention: republish mapping", "error", err)
	}
}
