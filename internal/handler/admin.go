package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/csrf"

	"github.com/relabel/relabel/internal/auth"
	"github.com/relabel/relabel/internal/db"
	"github.com/relabel/relabel/internal/diskstat"
	"github.com/relabel/relabel/internal/model"
	"github.com/relabel/relabel/internal/stats"
)

type adminLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AdminLogin — POST /admin/api/login
func (h *Handler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "malformed JSON body")
		return
	}

	admin, err := db.GetAdminByUsername(h.DB, req.Username)
	if err != nil {
		slog.Error("look up admin", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "login failed")
		return
	}
	if admin == nil {
		renderJSONError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid username or password")
		return
	}
	ok, scheme := auth.VerifySecret(admin.PasswordHash, req.Password, h.Cfg.Pepper)
	if !ok {
		renderJSONError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid username or password")
		return
	}
	if scheme == auth.SchemeLegacy {
		if newHash, err := auth.HashSecret(req.Password, h.Cfg.Pepper); err == nil {
			if err := db.UpdateAdminPassword(h.DB, admin.ID, newHash); err != nil {
				slog.Warn("store upgraded admin hash", "admin", admin.Username, "error", err)
			}
		}
	}

	sessionID, err := auth.GenerateToken(32)
	if err != nil {
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "login failed")
		return
	}
	session := &model.Session{
		ID:        sessionID,
		AdminID:   admin.ID,
		ExpiresAt: time.Now().Add(auth.SessionMaxAge),
	}
	if err := db.CreateSession(h.DB, session); err != nil {
		slog.Error("create session", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "login failed")
		return
	}

	auth.SetSessionCookie(w, sessionID, h.Cfg.SessionSecret)
	renderJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "username": admin.Username})
}

// AdminLogout — POST /admin/api/logout
func (h *Handler) AdminLogout(w http.ResponseWriter, r *http.Request) {
	if sessionID, ok := auth.GetSessionID(r, h.Cfg.SessionSecret); ok {
		db.DeleteSession(h.DB, sessionID)
	}
	auth.ClearSessionCookie(w)
	renderJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// AdminCSRF — GET /admin/api/csrf
//
// Hands the admin UI a token for subsequent mutating calls.
func (h *Handler) AdminCSRF(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]string{"csrf_token": csrf.Token(r)})
}

type adminStats struct {
	FilesTotal      int                 `json:"files_total"`
	FilesPrinted    int                 `json:"files_printed"`
	FilesReprinted  int                 `json:"files_reprinted"`
	FilesNotPrinted int                 `json:"files_not_printed"`
	PrintsToday     int                 `json:"prints_today"`
	EventsTotal     int                 `json:"events_total"`
	CodesActive     int                 `json:"codes_active"`
	CodesLocked     int                 `json:"codes_locked"`
	Orders          int                 `json:"orders"`
	DailyVolume     stats.VolumeSummary `json:"daily_volume"`
	Storage         adminStorage        `json:"storage"`
}

type adminStorage struct {
	diskstat.Stats
	PctFree float64 `json:"pct_free"`
}

// AdminStats — GET /admin/api/stats
func (h *Handler) AdminStats(w http.ResponseWriter, r *http.Request) {
	var s adminStats
	var err error

	s.FilesTotal, s.FilesPrinted, s.FilesReprinted, s.FilesNotPrinted, err = db.CountTrackingByStatus(h.DB)
	if err != nil {
		slog.Error("count tracking files", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "stats failed")
		return
	}
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if s.PrintsToday, err = db.CountSuccessEventsSince(h.DB, midnight); err != nil {
		slog.Error("count today's prints", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "stats failed")
		return
	}
	if s.EventsTotal, err = db.CountPrintEvents(h.DB); err != nil {
		slog.Error("count events", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "stats failed")
		return
	}
	if s.CodesActive, s.CodesLocked, err = db.CountAccessCodes(h.DB, now); err != nil {
		slog.Error("count codes", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "stats failed")
		return
	}
	if s.Orders, err = db.CountOrderMappings(h.DB); err != nil {
		slog.Error("count orders", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "stats failed")
		return
	}
	if _, s.DailyVolume, err = stats.DailyVolume(h.DB, 30); err != nil {
		slog.Error("daily volume", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "stats failed")
		return
	}
	if h.Disk != nil {
		ds := h.Disk.Get()
		s.Storage = adminStorage{Stats: ds, PctFree: ds.PctFree()}
	}

	renderJSON(w, http.StatusOK, s)
}
