package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	relabel "github.com/relabel/relabel"
	"github.com/relabel/relabel/internal/auth"
	"github.com/relabel/relabel/internal/config"
	"github.com/relabel/relabel/internal/db"
	"github.com/relabel/relabel/internal/diskstat"
	"github.com/relabel/relabel/internal/handler"
	"github.com/relabel/relabel/internal/ledger"
	"github.com/relabel/relabel/internal/metrics"
	"github.com/relabel/relabel/internal/model"
	"github.com/relabel/relabel/internal/progress"
	"github.com/relabel/relabel/internal/retention"
	"github.com/relabel/relabel/internal/snapshot"
	"github.com/relabel/relabel/internal/worker"
)

func Run(ctx context.Context, cfg *config.Config) error {
	if err := checkSecrets(cfg); err != nil {
		return err
	}

	// Ensure data directories exist
	for _, dir := range []string{cfg.DataDir, snapshot.PDFDir(cfg.DataDir), snapshot.ZipsDir(cfg.DataDir)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	// Open database
	database, err := db.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer database.Close()

	// Run migrations
	if err := db.Migrate(database, relabel.MigrationFS); err != nil {
		return err
	}
	slog.Info("database ready")

	metrics.Register()

	if err := seedAdmin(database, cfg); err != nil {
		return err
	}

	publisher := snapshot.NewPublisher(database, cfg.DataDir)
	hub := progress.NewHub()
	svc := ledger.NewService(database)
	codes := auth.NewCodeVerifier(database, cfg.Pepper)

	// Start retention scheduler
	cleaner := &retention.Cleaner{
		DB:        database,
		DataDir:   cfg.DataDir,
		Interval:  time.Duration(cfg.CleanupIntervalMins) * time.Minute,
		Publisher: publisher,
	}
	cleaner.Start(ctx)
	defer cleaner.Stop()

	// Start archive-build workers
	pool := worker.NewPool(database, cfg, publisher, hub)
	pool.Start(ctx)
	defer pool.Stop()

	// Disk usage sampler for the dashboard
	disk := diskstat.New(cfg.DataDir, 5*time.Minute)
	disk.Start(ctx)
	defer disk.Stop()

	// Rate limiters: admin login at 5 requests/minute burst 5, client API
	// at 2 req/sec sustained with burst 60.
	authRL := handler.NewRateLimiter(5.0/60.0, 5)
	defer authRL.Stop()
	apiRL := handler.NewRateLimiter(2.0, 60)
	defer apiRL.Stop()

	// Build handler and routes
	h := handler.New(database, cfg, svc, codes, publisher, hub, disk)
	router := h.Routes(authRL, apiRL)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("server starting", "addr", cfg.ListenAddr, "base_url", cfg.BaseURL)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// checkSecrets refuses to start a production server on the development
// fallbacks for the session secret or the hashing pepper.
func checkSecrets(cfg *config.Config) error {
	if !cfg.Production() {
		return nil
	}
	if cfg.SessionSecret == "change-me-in-production-32-bytes!" {
		return fmt.Errorf("SESSION_SECRET must be set in production")
	}
	if cfg.Pepper == "dev-pepper" {
		return fmt.Errorf("RELABEL_PEPPER or RELABEL_PEPPER_FILE must be set in production")
	}
	return nil
}

// seedAdmin creates the first admin account from the environment when the
// table is empty, so a fresh deployment is reachable without poking the
// database by hand.
func seedAdmin(database *sql.DB, cfg *config.Config) error {
	exists, err := db.AdminExists(database)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if cfg.AdminUser == "" || cfg.AdminPassword == "" {
		slog.Warn("no admin user yet; set RELABEL_ADMIN_USER and RELABEL_ADMIN_PASSWORD to seed one")
		return nil
	}

	hash, err := auth.HashSecret(cfg.AdminPassword, cfg.Pepper)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	admin := &model.AdminUser{
		ID:           uuid.New().String(),
		Username:     cfg.AdminUser,
		PasswordHash: hash,
	}
	if err := db.CreateAdminUser(database, admin); err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	slog.Info("admin user seeded", "username", cfg.AdminUser)
	return nil
}
