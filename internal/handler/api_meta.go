package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/relabel/relabel/internal/db"
	"github.com/relabel/relabel/internal/snapshot"
)

const (
	metaServerVersion   = "server_version"
	metaClientRecommend = "client_recommend"

	defaultServerVersion = "1.97"
)

// Version — GET /api/v1/version
func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	if h.clientCode(w, codeParam(r)) == nil {
		return
	}
	renderJSON(w, http.StatusOK, map[string]string{
		"version":          db.GetMeta(h.DB, metaServerVersion, defaultServerVersion),
		"client_recommend": db.GetMeta(h.DB, metaClientRecommend, defaultServerVersion),
	})
}

// Mapping — GET /api/v1/mapping
//
// Serves the current order mapping snapshot. A never-published mapping
// reads as an empty document, not an error.
func (h *Handler) Mapping(w http.ResponseWriter, r *http.Request) {
	if h.clientCode(w, codeParam(r)) == nil {
		return
	}
	doc, err := h.Publisher.ReadMapping()
	if err != nil {
		slog.Error("read mapping", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "mapping unavailable")
		return
	}
	renderJSON(w, http.StatusOK, doc)
}

// LabelFile — GET /api/v1/file/{tracking_no}
func (h *Handler) LabelFile(w http.ResponseWriter, r *http.Request) {
	if h.clientCode(w, codeParam(r)) == nil {
		return
	}
	trackingNo := chi.URLParam(r, "tracking_no")
	if !snapshot.ValidTrackingNo(trackingNo) {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid tracking number")
		return
	}
	path := snapshot.PDFPath(h.Cfg.DataDir, trackingNo)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		renderJSONError(w, http.StatusNotFound, "NOT_FOUND", "no label for tracking number")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.pdf"`, trackingNo))
	http.ServeFile(w, r, path)
}

// ZipDates — GET /api/v1/pdf-zips/dates
func (h *Handler) ZipDates(w http.ResponseWriter, r *http.Request) {
	if h.clientCode(w, codeParam(r)) == nil {
		return
	}
	dates, err := h.Publisher.Dates()
	if err != nil {
		slog.Error("list archive dates", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "archive listing failed")
		return
	}
	// Newest first for the client picker.
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	renderJSON(w, http.StatusOK, map[string][]string{"dates": dates})
}

// ZipDaily — GET /api/v1/pdf-zips/daily?date=YYYY-MM-DD
//
// Serves one day's archive with checksum headers. The ETag lets net/http
// answer If-None-Match with 304 without rereading the zip.
func (h *Handler) ZipDaily(w http.ResponseWriter, r *http.Request) {
	if h.clientCode(w, codeParam(r)) == nil {
		return
	}
	date := r.URL.Query().Get("date")
	info, path, err := h.Publisher.ArchiveForDate(date)
	if err != nil {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "date must be YYYY-MM-DD")
		return
	}
	if info == nil {
		renderJSONError(w, http.StatusNotFound, "NOT_FOUND", "no archive for date")
		return
	}
	w.Header().Set("ETag", `"`+info.SHA256+`"`)
	w.Header().Set("X-Checksum-SHA256", info.SHA256)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filepath.Base(path)))
	http.ServeFile(w, r, path)
}
