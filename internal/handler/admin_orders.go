package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/relabel/relabel/internal/auth"
	"github.com/relabel/relabel/internal/db"
	"github.com/relabel/relabel/internal/model"
	"github.com/relabel/relabel/internal/snapshot"
)

type apiOrderMapping struct {
	OrderID       string `json:"order_id"`
	CustomerOrder string `json:"customer_order,omitempty"`
	TrackingNo    string `json:"tracking_no"`
	UpdatedAt     string `json:"updated_at"`
}

// AdminOrderList — GET /admin/api/orders
func (h *Handler) AdminOrderList(w http.ResponseWriter, r *http.Request) {
	mappings, err := db.ListOrderMappings(h.DB)
	if err != nil {
		slog.Error("list order mappings", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "listing failed")
		return
	}

	page, perPage := paginate(r)
	start, end := pageSlice(len(mappings), page, perPage)
	out := make([]apiOrderMapping, 0, end-start)
	for i := start; i < end; i++ {
		m := mappings[i]
		out = append(out, apiOrderMapping{
			OrderID:       m.OrderID,
			CustomerOrder: m.CustomerOrder,
			TrackingNo:    m.TrackingNo,
			UpdatedAt:     timeString(m.UpdatedAt),
		})
	}
	renderJSON(w, http.StatusOK, paginatedResult{
		Data:    out,
		Total:   len(mappings),
		Page:    page,
		PerPage: perPage,
	})
}

// AdminOrderUpsert — POST /admin/api/orders
//
// Binds an order number to a tracking number and republishes mapping.json
// so clients pick the change up on their next poll.
func (h *Handler) AdminOrderUpsert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID       string `json:"order_id"`
		CustomerOrder string `json:"customer_order"`
		TrackingNo    string `json:"tracking_no"`
	}
	if err := decodeJSON(r, &req); err != nil {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}
	req.OrderID = strings.TrimSpace(req.OrderID)
	req.TrackingNo = snapshot.NormalizeTrackingNo(req.TrackingNo)
	if req.OrderID == "" || req.TrackingNo == "" {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "order_id and tracking_no are required")
		return
	}
	if !snapshot.ValidTrackingNo(req.TrackingNo) {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid tracking number")
		return
	}

	m := &model.OrderMapping{
		OrderID:       req.OrderID,
		CustomerOrder: strings.TrimSpace(req.CustomerOrder),
		TrackingNo:    req.TrackingNo,
		UpdatedAt:     time.Now().UTC(),
	}
	if err := db.UpsertOrderMapping(h.DB, m); err != nil {
		slog.Error("upsert order mapping", "order_id", req.OrderID, "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "mapping not saved")
		return
	}
	h.republishMapping()

	// Echo the stored row rather than the request so the caller sees
	// exactly what the mapping file will carry.
	stored, err := db.GetOrderMapping(h.DB, m.OrderID)
	if err != nil || stored == nil {
		stored = m
	}
	renderJSON(w, http.StatusOK, apiOrderMapping{
		OrderID:       stored.OrderID,
		CustomerOrder: stored.CustomerOrder,
		TrackingNo:    stored.TrackingNo,
		UpdatedAt:     timeString(stored.UpdatedAt),
	})
}

// AdminOrderUnbind — POST /admin/api/orders/unbind
func (h *Handler) AdminOrderUnbind(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID string `json:"order_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}
	req.OrderID = strings.TrimSpace(req.OrderID)
	if req.OrderID == "" {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "order_id is required")
		return
	}

	deleted, err := db.DeleteOrderMapping(h.DB, req.OrderID)
	if err != nil {
		slog.Error("unbind order mapping", "order_id", req.OrderID, "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "unbind failed")
		return
	}
	if !deleted {
		renderJSONError(w, http.StatusNotFound, "NOT_FOUND", "no mapping for that order")
		return
	}
	h.republishMapping()
	renderJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// AdminOrderBatchDelete — POST /admin/api/orders/batch-delete
//
// Wipes every mapping. The confirm field must spell DELETE so a stray
// click cannot do it.
func (h *Handler) AdminOrderBatchDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Confirm string `json:"confirm"`
	}
	if err := decodeJSON(r, &req); err != nil {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}
	if req.Confirm != "DELETE" {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", `confirm must be "DELETE"`)
		return
	}

	n, err := db.DeleteAllOrderMappings(h.DB)
	if err != nil {
		slog.Error("batch delete order mappings", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "delete failed")
		return
	}
	h.republishMapping()
	slog.Info("order mappings wiped", "deleted", n, "admin", auth.AdminNameFromContext(r.Context()))
	renderJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// republishMapping pushes a fresh mapping.json after a mutation. Failures
// are logged, not surfaced: the mutation itself already committed and the
// retention loop republishes periodically anyway.
func (h *Handler) republishMapping() {
	if err := h.Publisher.PublishMapping(); err != nil {
		slog.Error("republish mapping", "error", err)
	}
}
