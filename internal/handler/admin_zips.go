package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/relabel/relabel/internal/db"
	"github.com/relabel/relabel/internal/model"
	"github.com/relabel/relabel/internal/worker"
)

// AdminZipList — GET /admin/api/zips
func (h *Handler) AdminZipList(w http.ResponseWriter, r *http.Request) {
	archives, err := h.Publisher.ListArchives(r.Context())
	if err != nil {
		slog.Error("list archives", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "listing failed")
		return
	}
	renderJSON(w, http.StatusOK, map[string]interface{}{"zips": archives})
}

// AdminZipBuild — POST /admin/api/zips/build
//
// Queues an archive build for one day. If a build for that day is already
// pending or running, its job id comes back instead of a second job.
func (h *Handler) AdminZipBuild(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date string `json:"date"`
	}
	if err := decodeJSON(r, &req); err != nil {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}
	if _, err := time.ParseInLocation("2006-01-02", req.Date, time.UTC); err != nil {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "date must be YYYY-MM-DD")
		return
	}

	if active, err := db.GetActiveJobByPayload(h.DB, worker.JobKindArchiveBuild, req.Date); err != nil {
		slog.Error("look up active job", "date", req.Date, "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "queueing failed")
		return
	} else if active != nil {
		renderJSON(w, http.StatusOK, map[string]string{"job_id": active.ID, "state": active.State})
		return
	}

	job := &model.Job{
		ID:      uuid.New().String(),
		Kind:    worker.JobKindArchiveBuild,
		Payload: req.Date,
	}
	if err := db.EnqueueJob(h.DB, job); err != nil {
		slog.Error("enqueue archive build", "date", req.Date, "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "queueing failed")
		return
	}
	slog.Info("archive build queued", "job", job.ID, "date", req.Date)
	renderJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID, "state": model.JobStatePending})
}

type apiJob struct {
	ID            string          `json:"id"`
	Kind          string          `json:"kind"`
	Payload       string          `json:"payload"`
	State         string          `json:"state"`
	Phase         string          `json:"phase,omitempty"`
	ProgressDone  int             `json:"progress_done"`
	ProgressTotal int             `json:"progress_total"`
	Result        json.RawMessage `json:"result,omitempty"`
	Error         string          `json:"error,omitempty"`
	CreatedAt     string          `json:"created_at"`
	StartedAt     *string         `json:"started_at"`
	FinishedAt    *string         `json:"finished_at"`
}

func jobToAPI(j *model.Job) apiJob {
	out := apiJob{
		ID:            j.ID,
		Kind:          j.Kind,
		Payload:       j.Payload,
		State:         j.State,
		Phase:         j.Phase,
		ProgressDone:  j.ProgressDone,
		ProgressTotal: j.ProgressTotal,
		Error:         j.ErrorMessage,
		CreatedAt:     timeString(j.CreatedAt),
		StartedAt:     timeStringPtr(j.StartedAt),
		FinishedAt:    timeStringPtr(j.FinishedAt),
	}
	if json.Valid([]byte(j.Result)) && j.Result != "" {
		out.Result = json.RawMessage(j.Result)
	}
	return out
}

// AdminJobGet — GET /admin/api/jobs/{id}
func (h *Handler) AdminJobGet(w http.ResponseWriter, r *http.Request) {
	job, err := db.GetJob(h.DB, chi.URLParam(r, "id"))
	if err != nil {
		slog.Error("get job", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "lookup failed")
		return
	}
	if job == nil {
		renderJSONError(w, http.StatusNotFound, "NOT_FOUND", "no such job")
		return
	}
	renderJSON(w, http.StatusOK, jobToAPI(job))
}
