package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/relabel/relabel/internal/db"
	"github.com/relabel/relabel/internal/model"
)

type apiTrackingFile struct {
	TrackingNo          string  `json:"tracking_no"`
	HasFile             bool    `json:"has_file"`
	UploadedAt          *string `json:"uploaded_at"`
	PrintStatus         string  `json:"print_status"`
	PrintCount          int     `json:"print_count"`
	FirstPrintTime      *string `json:"first_print_time"`
	LastPrintTime       *string `json:"last_print_time"`
	LastPrintClientName string  `json:"last_print_client_name"`
}

func trackingFileToAPI(tf *model.TrackingFile) apiTrackingFile {
	return apiTrackingFile{
		TrackingNo:          tf.TrackingNo,
		HasFile:             tf.FilePath != "",
		UploadedAt:          timeStringPtr(tf.UploadedAt),
		PrintStatus:         tf.PrintStatus,
		PrintCount:          tf.PrintCount,
		FirstPrintTime:      timeStringPtr(tf.FirstPrintTime),
		LastPrintTime:       timeStringPtr(tf.LastPrintTime),
		LastPrintClientName: tf.LastPrintClientName,
	}
}

// AdminFileList — GET /admin/api/files?query&status&page&per_page
func (h *Handler) AdminFileList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := q.Get("status")
	switch status {
	case "", model.StatusNotPrinted, model.StatusPrinted, model.StatusReprinted:
	default:
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unknown status filter")
		return
	}

	files, err := db.ListTrackingFiles(h.DB, strings.TrimSpace(q.Get("query")), status)
	if err != nil {
		slog.Error("list tracking files", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "listing failed")
		return
	}

	page, perPage := paginate(r)
	start, end := pageSlice(len(files), page, perPage)
	out := make([]apiTrackingFile, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, trackingFileToAPI(&files[i]))
	}
	renderJSON(w, http.StatusOK, paginatedResult{
		Data:    out,
		Total:   len(files),
		Page:    page,
		PerPage: perPage,
	})
}

// AdminReconcile — POST /admin/api/reconcile
//
// Re-syncs the pdfs directory with the tracking rows after out-of-band
// file drops.
func (h *Handler) AdminReconcile(w http.ResponseWriter, r *http.Request) {
	res, err := h.Publisher.Reconcile()
	if err != nil {
		slog.Error("reconcile", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "reconcile failed")
		return
	}
	slog.Info("reconcile finished", "renamed", res.Renamed, "registered", res.Registered, "missing", res.Missing)
	renderJSON(w, http.StatusOK, res)
}
