package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/relabel/relabel/internal/config"
	"github.com/relabel/relabel/internal/db"
	"github.com/relabel/relabel/internal/metrics"
	"github.com/relabel/relabel/internal/model"
	"github.com/relabel/relabel/internal/progress"
	"github.com/relabel/relabel/internal/snapshot"
)

// JobKindArchiveBuild bundles one day's label files into a zip. The payload
// is the date, YYYY-MM-DD.
const JobKindArchiveBuild = "archive_build"

type Pool struct {
	database  *sql.DB
	cfg       *config.Config
	publisher *snapshot.Publisher
	hub       *progress.Hub
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewPool(database *sql.DB, cfg *config.Config, publisher *snapshot.Publisher, hub *progress.Hub) *Pool {
	return &Pool{database: database, cfg: cfg, publisher: publisher, hub: hub}
}

func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.cfg.WorkerCount; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	slog.Info("worker pool started", "workers", p.cfg.WorkerCount)
}

func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	slog.Info("worker pool stopped")
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()

	kinds := []string{JobKindArchiveBuild}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := db.ClaimNextJob(p.database, kinds)
		if err != nil {
			slog.Error("claim job", "worker", id, "error", err)
			sleep(ctx, 2*time.Second)
			continue
		}
		if job == nil {
			sleep(ctx, 2*time.Second)
			continue
		}

		slog.Info("processing job", "worker", id, "job", job.ID, "kind", job.Kind)

		var processErr error
		switch job.Kind {
		case JobKindArchiveBuild:
			processErr = p.processArchiveBuild(ctx, job)
		default:
			processErr = fmt.Errorf("unknown job kind: %s", job.Kind)
		}

		if processErr != nil {
			slog.Error("job failed", "job", job.ID, "error", processErr)
			db.FailJob(p.database, job.ID, processErr.Error())
			p.hub.Publish(job.ID, progress.Update{Phase: "failed"})
		} else {
			slog.Info("job completed", "job", job.ID)
		}
	}
}

func (p *Pool) processArchiveBuild(ctx context.Context, job *model.Job) error {
	start := time.Now()

	report := func(phase string, done, total int) {
		// The job row is the authoritative progress record; write it at a
		// coarser cadence than the hub to keep the build from churning the
		// database on large days.
		if phase != "zip" || done%20 == 0 || done == total {
			if err := db.UpdateJobProgress(p.database, job.ID, phase, done, total); err != nil {
				slog.Warn("update job progress", "job", job.ID, "error", err)
			}
		}
		p.hub.Publish(job.ID, progress.Update{Phase: phase, Done: done, Total: total})
	}

	res, err := p.publisher.BuildDailyArchive(ctx, job.Payload, report)
	metrics.ArchiveBuildDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ArchiveBuildsTotal.WithLabelValues("failure").Inc()
		return err
	}
	metrics.ArchiveBuildsTotal.WithLabelValues("success").Inc()

	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal build result: %w", err)
	}
	if err := db.CompleteJob(p.database, job.ID, string(data)); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	p.hub.Publish(job.ID, progress.Update{Phase: "done", Done: res.Files, Total: res.Files})
	return nil
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
