// Package handler exposes the HTTP surface: the access-code client API the
// print stations talk to, and the session-gated JSON admin API the external
// admin UI drives.
package handler

import (
	"database/sql"

	"github.com/relabel/relabel/internal/auth"
	"github.com/relabel/relabel/internal/config"
	"github.com/relabel/relabel/internal/diskstat"
	"github.com/relabel/relabel/internal/ledger"
	"github.com/relabel/relabel/internal/progress"
	"github.com/relabel/relabel/internal/snapshot"
)

type Handler struct {
	DB        *sql.DB
	Cfg       *config.Config
	Ledger    *ledger.Service
	Codes     *auth.CodeVerifier
	Publisher *snapshot.Publisher
	Progress  *progress.Hub
	Disk      *diskstat.Cache
}

func New(database *sql.DB, cfg *config.Config, svc *ledger.Service, codes *auth.CodeVerifier, publisher *snapshot.Publisher, hub *progress.Hub, disk *diskstat.Cache) *Handler {
	return &Handler{
		DB:        database,
		Cfg:       cfg,
		Ledger:    svc,
		Codes:     codes,
		Publisher: publisher,
		Progress:  hub,
		Disk:      disk,
	}
}
