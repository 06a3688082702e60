package handler_test

import (
	"context"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/relabel/relabel/internal/db"
	"github.com/relabel/relabel/internal/model"
	"github.com/relabel/relabel/internal/snapshot"
)

func TestVersionEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.createCode(t, "123456")

	var out map[string]string
	if status := e.getJSON(t, "/api/v1/version?access_code=123456", &out); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if out["version"] != "1.97" || out["client_recommend"] != "1.97" {
		t.Errorf("defaults = %v", out)
	}

	if err := db.SetMeta(e.db, "server_version", "2.01"); err != nil {
		t.Fatalf("set meta: %v", err)
	}
	if err := db.SetMeta(e.db, "client_recommend", "1.98"); err != nil {
		t.Fatalf("set meta: %v", err)
	}
	if status := e.getJSON(t, "/api/v1/version?access_code=123456", &out); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if out["version"] != "2.01" || out["client_recommend"] != "1.98" {
		t.Errorf("after update = %v", out)
	}
}

func TestMappingEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.createCode(t, "123456")

	var doc snapshot.MappingDoc
	if status := e.getJSON(t, "/api/v1/mapping?access_code=123456", &doc); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if doc.Version != "1.0" || len(doc.Mappings) != 0 {
		t.Errorf("empty doc = %+v", doc)
	}

	m := &model.OrderMapping{OrderID: "SO-1", CustomerOrder: "CUST-1", TrackingNo: "TN-1", UpdatedAt: time.Now()}
	if err := db.UpsertOrderMapping(e.db, m); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := e.pub.PublishMapping(); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if status := e.getJSON(t, "/api/v1/mapping?access_code=123456", &doc); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if len(doc.Mappings) != 1 || doc.Mappings[0].TrackingNo != "TN-1" {
		t.Errorf("published doc = %+v", doc)
	}
}

func TestLabelFileDownload(t *testing.T) {
	e := newTestEnv(t)
	e.createCode(t, "123456")

	if err := os.MkdirAll(snapshot.PDFDir(e.dataDir), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(snapshot.PDFPath(e.dataDir, "TN-1"), []byte("%PDF-label"), 0644); err != nil {
		t.Fatalf("write pdf: %v", err)
	}

	res, err := e.client.Get(e.srv.URL + "/api/v1/file/TN-1?access_code=123456")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type = %q", ct)
	}
	if string(body) != "%PDF-label" {
		t.Errorf("body = %q", body)
	}

	var envl errEnvelope
	if status := e.getJSON(t, "/api/v1/file/TN-404?access_code=123456", &envl); status != http.StatusNotFound {
		t.Errorf("missing file status = %d", status)
	}
	// Characters outside the tracking alphabet are rejected before any
	// path is formed.
	if status := e.getJSON(t, "/api/v1/file/TN:1?access_code=123456", &envl); status != http.StatusBadRequest {
		t.Errorf("bad name status = %d", status)
	}
}

func TestZipEndpoints(t *testing.T) {
	e := newTestEnv(t)
	e.createCode(t, "123456")

	for tn, date := range map[string]string{"TN-A": "2026-03-01", "TN-B": "2026-03-02"} {
		if err := os.MkdirAll(snapshot.PDFDir(e.dataDir), 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(snapshot.PDFPath(e.dataDir, tn), []byte("label "+tn), 0644); err != nil {
			t.Fatalf("write pdf: %v", err)
		}
		day, _ := time.ParseInLocation("2006-01-02", date, time.UTC)
		if err := db.RegisterTrackingFile(e.db, tn, "pdfs/"+tn+".pdf", day.Add(8*time.Hour)); err != nil {
			t.Fatalf("register: %v", err)
		}
		if _, err := e.pub.BuildDailyArchive(context.Background(), date, nil); err != nil {
			t.Fatalf("build %s: %v", date, err)
		}
	}

	var dates struct {
		Dates []string `json:"dates"`
	}
	if status := e.getJSON(t, "/api/v1/pdf-zips/dates?access_code=123456", &dates); status != http.StatusOK {
		t.Fatalf("dates status = %d", status)
	}
	if len(dates.Dates) != 2 || dates.Dates[0] != "2026-03-02" {
		t.Errorf("dates = %v, want newest first", dates.Dates)
	}

	res, err := e.client.Get(e.srv.URL + "/api/v1/pdf-zips/daily?access_code=123456&date=2026-03-01")
	if err != nil {
		t.Fatalf("get zip: %v", err)
	}
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("zip status = %d", res.StatusCode)
	}
	sum := res.Header.Get("X-Checksum-SHA256")
	if len(sum) != 64 {
		t.Errorf("checksum header = %q", sum)
	}
	if etag := res.Header.Get("ETag"); etag != `"`+sum+`"` {
		t.Errorf("etag = %q, want quoted checksum", etag)
	}
	if len(body) < 4 || string(body[:2]) != "PK" {
		t.Errorf("body is not a zip (%d bytes)", len(body))
	}

	var envl errEnvelope
	if status := e.getJSON(t, "/api/v1/pdf-zips/daily?access_code=123456&date=2026-01-01", &envl); status != http.StatusNotFound {
		t.Errorf("absent archive status = %d", status)
	}
	if status := e.getJSON(t, "/api/v1/pdf-zips/daily?access_code=123456&date=bogus", &envl); status != http.StatusBadRequest {
		t.Errorf("bad date status = %d", status)
	}
}
