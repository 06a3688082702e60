package handler

import (
	"crypto/rand"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/relabel/relabel/internal/auth"
	"github.com/relabel/relabel/internal/db"
	"github.com/relabel/relabel/internal/model"
)

type apiAccessCode struct {
	ID           int64   `json:"id"`
	Code         string  `json:"code,omitempty"`
	Description  string  `json:"description"`
	Active       bool    `json:"active"`
	FailureCount int     `json:"failure_count"`
	LockedUntil  *string `json:"locked_until"`
	LastUsed     *string `json:"last_used"`
	CreatedAt    string  `json:"created_at"`
}

func accessCodeToAPI(c *model.AccessCode) apiAccessCode {
	return apiAccessCode{
		ID:           c.ID,
		Code:         c.CodePlain,
		Description:  c.Description,
		Active:       c.Active,
		FailureCount: c.FailureCount,
		LockedUntil:  timeStringPtr(c.LockedUntil),
		LastUsed:     timeStringPtr(c.LastUsed),
		CreatedAt:    timeString(c.CreatedAt),
	}
}

// AdminCodeList — GET /admin/api/codes
func (h *Handler) AdminCodeList(w http.ResponseWriter, r *http.Request) {
	codes, err := db.ListAccessCodes(h.DB)
	if err != nil {
		slog.Error("list access codes", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "listing failed")
		return
	}
	out := make([]apiAccessCode, len(codes))
	for i := range codes {
		out[i] = accessCodeToAPI(&codes[i])
	}
	renderJSON(w, http.StatusOK, map[string][]apiAccessCode{"codes": out})
}

type adminCodeCreateRequest struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// AdminCodeCreate — POST /admin/api/codes
//
// The code may be supplied by the administrator or generated here; either
// way the plaintext is echoed in the response for handover to the station
// operator.
func (h *Handler) AdminCodeCreate(w http.ResponseWriter, r *http.Request) {
	var req adminCodeCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "malformed JSON body")
		return
	}

	code := req.Code
	if code == "" {
		var err error
		if code, err = generateNumericCode(); err != nil {
			slog.Error("generate access code", "error", err)
			renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "code generation failed")
			return
		}
	} else if !auth.ValidCodeFormat(code) {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "code must be exactly 6 digits")
		return
	}

	hash, err := auth.HashSecret(code, h.Cfg.Pepper)
	if err != nil {
		slog.Error("hash access code", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "code creation failed")
		return
	}
	c := &model.AccessCode{
		CodeHash:    hash,
		CodePlain:   code,
		Description: req.Description,
		Active:      true,
	}
	id, err := db.CreateAccessCode(h.DB, c)
	if err != nil {
		slog.Error("create access code", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "code creation failed")
		return
	}
	c.ID = id
	renderJSON(w, http.StatusCreated, accessCodeToAPI(c))
}

// AdminCodeToggle — POST /admin/api/codes/{id}/toggle
func (h *Handler) AdminCodeToggle(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "bad code id")
		return
	}
	active, err := db.ToggleAccessCode(h.DB, id)
	if errors.Is(err, sql.ErrNoRows) {
		renderJSONError(w, http.StatusNotFound, "NOT_FOUND", "no such code")
		return
	}
	if err != nil {
		slog.Error("toggle access code", "id", id, "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "toggle failed")
		return
	}
	renderJSON(w, http.StatusOK, map[string]interface{}{"id": id, "active": active})
}

// AdminCodeDelete — DELETE /admin/api/codes/{id}
func (h *Handler) AdminCodeDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "bad code id")
		return
	}
	if err := db.DeleteAccessCode(h.DB, id); err != nil {
		slog.Error("delete access code", "id", id, "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// generateNumericCode draws six random digits, leading zeros included.
// Bytes ≥ 250 are redrawn so every digit is equally likely.
func generateNumericCode() (string, error) {
	out := make([]byte, 6)
	for i := 0; i < len(out); {
		var b [1]byte
		if _, err := rand.Read(b[:]); err != nil {
			return "", err
		}
		if b[0] >= 250 {
			continue
		}
		out[i] = '0' + b[0]%10
		i++
	}
	return string(out), nil
}
