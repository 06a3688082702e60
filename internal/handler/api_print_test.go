package handler_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/relabel/relabel/internal/db"
	"github.com/relabel/relabel/internal/model"
)

type checkResponse struct {
	Allow         bool   `json:"allow"`
	Status        string `json:"status"`
	DuplicateKind string `json:"duplicate_kind"`
	PrintCount    int    `json:"print_count"`
	TrackingNo    string `json:"tracking_no"`
}

type reportResponse struct {
	OK                  bool    `json:"ok"`
	PrintStatus         string  `json:"print_status"`
	PrintCount          int     `json:"print_count"`
	LastPrintTime       *string `json:"last_print_time"`
	LastPrintClientName string  `json:"last_print_client_name"`
}

func reportBody(code, trackingNo, result string) map[string]interface{} {
	return map[string]interface{}{
		"access_code":    code,
		"input_kind":     "tracking",
		"tracking_no":    trackingNo,
		"result":         result,
		"host":           "PC-01",
		"user":           "station",
		"client_version": "1.97",
		"printer_name":   "Zebra ZT230",
		"mac_list":       []string{"aa:bb:cc:dd:ee:ff"},
		"ip_list":        []string{"10.0.0.5"},
	}
}

func TestPrintFlow(t *testing.T) {
	e := newTestEnv(t)
	e.createCode(t, "123456")

	var check checkResponse
	status := e.getJSON(t, "/api/v1/print/check?access_code=123456&input_kind=tracking&tracking_no=TN-100", &check)
	if status != http.StatusOK {
		t.Fatalf("check status = %d", status)
	}
	if !check.Allow || check.Status != model.StatusNotPrinted || check.DuplicateKind != "none" {
		t.Errorf("fresh check = %+v", check)
	}

	var rep reportResponse
	status = e.request(t, http.MethodPost, "/api/v1/print/report", reportBody("123456", "TN-100", model.ResultSuccess), nil, &rep)
	if status != http.StatusOK {
		t.Fatalf("report status = %d", status)
	}
	if !rep.OK || rep.PrintStatus != model.StatusPrinted || rep.PrintCount != 1 {
		t.Errorf("report = %+v", rep)
	}
	if rep.LastPrintTime == nil || rep.LastPrintClientName != "PC-01" {
		t.Errorf("aggregate echo = %+v", rep)
	}

	status = e.getJSON(t, "/api/v1/print/check?access_code=123456&input_kind=tracking&tracking_no=TN-100", &check)
	if status != http.StatusOK {
		t.Fatalf("second check status = %d", status)
	}
	if !check.Allow {
		t.Error("duplicate check blocked the print; it must stay advisory")
	}
	if check.DuplicateKind != model.InputKindTracking || check.Status != model.StatusPrinted || check.PrintCount != 1 {
		t.Errorf("duplicate check = %+v", check)
	}

	body := reportBody("123456", "TN-100", model.ResultSuccessReprint)
	body["reprint_reason"] = "label torn"
	status = e.request(t, http.MethodPost, "/api/v1/print/report", body, nil, &rep)
	if status != http.StatusOK {
		t.Fatalf("reprint status = %d", status)
	}
	if rep.PrintStatus != model.StatusReprinted || rep.PrintCount != 2 {
		t.Errorf("after reprint = %+v", rep)
	}
}

func TestPrintCheckResolvesOrders(t *testing.T) {
	e := newTestEnv(t)
	e.createCode(t, "123456")

	m := &model.OrderMapping{OrderID: "SO-77", TrackingNo: "TN-777", UpdatedAt: time.Now()}
	if err := db.UpsertOrderMapping(e.db, m); err != nil {
		t.Fatalf("upsert mapping: %v", err)
	}

	// Order-only input resolves to the bound tracking number.
	var check checkResponse
	status := e.getJSON(t, "/api/v1/print/check?access_code=123456&input_kind=order&order_id=SO-77", &check)
	if status != http.StatusOK {
		t.Fatalf("check status = %d", status)
	}
	if check.TrackingNo != "TN-777" || check.DuplicateKind != "none" {
		t.Errorf("resolved check = %+v", check)
	}

	// A prior success under an order id, with no mapping to resolve, still
	// surfaces as an order-level duplicate.
	body := reportBody("123456", "TN-888", model.ResultSuccess)
	body["input_kind"] = "order"
	body["order_id"] = "SO-88"
	if status := e.request(t, http.MethodPost, "/api/v1/print/report", body, nil, nil); status != http.StatusOK {
		t.Fatalf("report status = %d", status)
	}
	status = e.getJSON(t, "/api/v1/print/check?access_code=123456&input_kind=order&order_id=SO-88", &check)
	if status != http.StatusOK {
		t.Fatalf("order check status = %d", status)
	}
	if check.DuplicateKind != model.InputKindOrder {
		t.Errorf("duplicate_kind = %q, want %q", check.DuplicateKind, model.InputKindOrder)
	}

	// With the tracking number in hand, the tracking match wins.
	status = e.getJSON(t, "/api/v1/print/check?access_code=123456&input_kind=order&order_id=SO-88&tracking_no=TN-888", &check)
	if status != http.StatusOK {
		t.Fatalf("combined check status = %d", status)
	}
	if check.DuplicateKind != model.InputKindTracking {
		t.Errorf("duplicate_kind = %q, want %q", check.DuplicateKind, model.InputKindTracking)
	}
}

func TestClientAuthRejectionsUniform(t *testing.T) {
	e := newTestEnv(t)
	id := e.createCode(t, "123456")

	// Disable the code and lock a second one; every failure mode must
	// produce the identical response.
	if _, err := db.ToggleAccessCode(e.db, id); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	e.createCode(t, "654321")
	_, err := e.db.Exec(`UPDATE access_codes SET locked_until = ? WHERE code_plain = '654321'`,
		time.Now().Add(time.Hour).UTC().Format(time.RFC3339))
	if err != nil {
		t.Fatalf("lock code: %v", err)
	}

	// Absent, unknown, disabled, locked.
	paths := []string{
		"/api/v1/print/check?tracking_no=TN-1",
		"/api/v1/print/check?access_code=999999&tracking_no=TN-1",
		"/api/v1/print/check?access_code=123456&tracking_no=TN-1",
		"/api/v1/print/check?access_code=654321&tracking_no=TN-1",
	}
	for _, path := range paths {
		var envl errEnvelope
		status := e.getJSON(t, path, &envl)
		if status != http.StatusForbidden {
			t.Errorf("%s: status = %d, want 403", path, status)
		}
		if envl.Error.Code != "FORBIDDEN" || envl.Error.Message != "invalid access code" {
			t.Errorf("%s: body = %+v, want uniform rejection", path, envl.Error)
		}
	}
}

func TestClientAuthStorageFailureIs500(t *testing.T) {
	e := newTestEnv(t)
	e.createCode(t, "123456")

	// With the store gone, verification cannot conclude anything about the
	// code; that is a server error, not a rejection.
	e.db.Close()

	var envl errEnvelope
	status := e.getJSON(t, "/api/v1/print/check?access_code=123456&tracking_no=TN-1", &envl)
	if status != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", status)
	}
	if envl.Error.Code != "INTERNAL_ERROR" {
		t.Errorf("error code = %q, want INTERNAL_ERROR", envl.Error.Code)
	}
}

func TestPrintReportValidation(t *testing.T) {
	e := newTestEnv(t)
	e.createCode(t, "123456")

	cases := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing tracking_no", reportBody("123456", "", model.ResultSuccess)},
		{"unknown result", reportBody("123456", "TN-1", "maybe")},
	}
	for _, tc := range cases {
		var envl errEnvelope
		status := e.request(t, http.MethodPost, "/api/v1/print/report", tc.body, nil, &envl)
		if status != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tc.name, status)
		}
		if envl.Error.Code != "BAD_REQUEST" {
			t.Errorf("%s: error code = %q", tc.name, envl.Error.Code)
		}
	}

	// Nothing may have reached the ledger.
	if n, _ := db.CountPrintEvents(e.db); n != 0 {
		t.Errorf("events recorded = %d, want 0", n)
	}
}

func TestClientsByCode(t *testing.T) {
	e := newTestEnv(t)
	e.createCode(t, "123456")
	e.createCode(t, "222222")

	for _, host := range []string{"PC-01", "PC-02"} {
		body := reportBody("123456", "TN-1", model.ResultSuccess)
		body["host"] = host
		if status := e.request(t, http.MethodPost, "/api/v1/print/report", body, nil, nil); status != http.StatusOK {
			t.Fatalf("report status = %d", status)
		}
	}
	other := reportBody("222222", "TN-2", model.ResultSuccess)
	if status := e.request(t, http.MethodPost, "/api/v1/print/report", other, nil, nil); status != http.StatusOK {
		t.Fatalf("report status = %d", status)
	}

	var out struct {
		Devices []struct {
			Host          string   `json:"host"`
			MACList       []string `json:"mac_list"`
			ClientVersion string   `json:"client_version"`
		} `json:"devices"`
	}
	status := e.getJSON(t, "/api/v1/clients/by-code?access_code=123456", &out)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if len(out.Devices) != 2 {
		t.Fatalf("devices = %d, want 2", len(out.Devices))
	}
	if out.Devices[0].Host != "PC-02" {
		t.Errorf("newest device = %q, want PC-02", out.Devices[0].Host)
	}
	if out.Devices[0].ClientVersion != "1.97" || len(out.Devices[0].MACList) != 1 {
		t.Errorf("device fields = %+v", out.Devices[0])
	}
}
