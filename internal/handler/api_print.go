package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/relabel/relabel/internal/ledger"
	"github.com/relabel/relabel/internal/metrics"
	"github.com/relabel/relabel/internal/model"
)

type apiCheckResult struct {
	Allow         bool   `json:"allow"`
	Status        string `json:"status"`
	DuplicateKind string `json:"duplicate_kind"`
	PrintCount    int    `json:"print_count"`
	TrackingNo    string `json:"tracking_no,omitempty"`
}

// PrintCheck — GET /api/v1/print/check
//
// Answers the pre-print duplicate question. A duplicate never blocks: the
// client uses the answer to prompt the operator for a reprint reason.
func (h *Handler) PrintCheck(w http.ResponseWriter, r *http.Request) {
	if h.clientCode(w, codeParam(r)) == nil {
		return
	}

	q := r.URL.Query()
	res, err := h.Ledger.CheckDuplicate(q.Get("input_kind"), q.Get("order_id"), q.Get("tracking_no"))
	if err != nil {
		slog.Error("print check", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "check failed")
		return
	}
	metrics.PrintChecksTotal.Inc()

	kind := res.DuplicateKind
	if kind == "" {
		kind = "none"
	} else {
		metrics.DuplicateHitsTotal.WithLabelValues(kind).Inc()
	}
	renderJSON(w, http.StatusOK, apiCheckResult{
		Allow:         res.Allow,
		Status:        res.Status,
		DuplicateKind: kind,
		PrintCount:    res.PrintCount,
		TrackingNo:    res.TrackingNo,
	})
}

type apiReportRequest struct {
	AccessCode    string   `json:"access_code"`
	InputKind     string   `json:"input_kind"`
	CodeValue     string   `json:"code_value"`
	OrderID       string   `json:"order_id"`
	TrackingNo    string   `json:"tracking_no"`
	Result        string   `json:"result"`
	ReprintReason string   `json:"reprint_reason"`
	Host          string   `json:"host"`
	User          string   `json:"user"`
	ClientVersion string   `json:"client_version"`
	PrinterName   string   `json:"printer_name"`
	MACList       []string `json:"mac_list"`
	IPList        []string `json:"ip_list"`
	PDFSHA256     string   `json:"pdf_sha256"`
}

type apiReportResponse struct {
	OK                  bool    `json:"ok"`
	PrintStatus         string  `json:"print_status"`
	PrintCount          int     `json:"print_count"`
	LastPrintTime       *string `json:"last_print_time"`
	LastPrintClientName string  `json:"last_print_client_name"`
}

// PrintReport — POST /api/v1/print/report
//
// Appends the outcome to the ledger and echoes the aggregate back. The
// ledger row and the aggregate update commit in one transaction; a 500
// means neither happened.
func (h *Handler) PrintReport(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req apiReportRequest
	if err := decodeJSON(r, &req); err != nil {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "malformed JSON body")
		return
	}
	code := h.clientCode(w, req.AccessCode)
	if code == nil {
		return
	}

	ev := &model.PrintEvent{
		AccessCodeID:  code.ID,
		InputKind:     req.InputKind,
		CodeValue:     req.CodeValue,
		OrderID:       req.OrderID,
		TrackingNo:    req.TrackingNo,
		Result:        req.Result,
		ReprintReason: req.ReprintReason,
		Host:          req.Host,
		User:          req.User,
		ClientVersion: req.ClientVersion,
		PrinterName:   req.PrinterName,
		MACList:       req.MACList,
		IPList:        req.IPList,
		PDFSHA256:     req.PDFSHA256,
		ClientIP:      clientIP(r),
	}
	snap, err := h.Ledger.Report(ev)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidEvent) {
			renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
			return
		}
		slog.Error("print report", "tracking_no", req.TrackingNo, "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "report not recorded")
		return
	}
	metrics.PrintReportsTotal.WithLabelValues(ev.Result).Inc()
	metrics.PrintReportDuration.Observe(time.Since(start).Seconds())

	renderJSON(w, http.StatusOK, apiReportResponse{
		OK:                  true,
		PrintStatus:         snap.PrintStatus,
		PrintCount:          snap.PrintCount,
		LastPrintTime:       timeStringPtr(snap.LastPrintTime),
		LastPrintClientName: snap.LastPrintClientName,
	})
}
