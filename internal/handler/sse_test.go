package handler_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/relabel/relabel/internal/db"
	"github.com/relabel/relabel/internal/model"
	"github.com/relabel/relabel/internal/progress"
)

// readEventStream consumes the SSE body to EOF with a deadline, so a stream
// that never terminates fails the test instead of hanging it.
func readEventStream(t *testing.T, e *env, jobID string) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		e.srv.URL+"/admin/api/jobs/"+jobID+"/events", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	res, err := e.client.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("stream status = %d", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("stream did not terminate: %v", err)
	}
	return string(body)
}

func enqueueRunningJob(t *testing.T, e *env, payload string) string {
	t.Helper()
	id := uuid.New().String()
	if err := db.EnqueueJob(e.db, &model.Job{ID: id, Kind: "archive_build", Payload: payload}); err != nil {
		t.Fatalf("enqueue job: %v", err)
	}
	claimed, err := db.ClaimNextJob(e.db, []string{"archive_build"})
	if err != nil || claimed == nil || claimed.ID != id {
		t.Fatalf("claim job: j=%v err=%v", claimed, err)
	}
	return id
}

func TestJobEventsAfterWorkerAlreadyFinished(t *testing.T) {
	e := newTestEnv(t)
	e.createAdmin(t, "admin", "secret-pw")
	e.login(t, "admin", "secret-pw")

	id := enqueueRunningJob(t, e, "2026-08-15")
	if err := db.CompleteJob(e.db, id, `{"zip":"pdfs-20260815.zip"}`); err != nil {
		t.Fatalf("complete job: %v", err)
	}
	// The worker's terminal publish went out before any listener attached.
	e.hub.Publish(id, progress.Update{Phase: "done", Done: 1, Total: 1})

	body := readEventStream(t, e, id)
	if !strings.Contains(body, "event: state") {
		t.Errorf("no state event in stream:\n%s", body)
	}
	if !strings.Contains(body, `"state":"COMPLETED"`) {
		t.Errorf("stream ended without the terminal state:\n%s", body)
	}
}

func TestJobEventsWorkerFinishesMidStream(t *testing.T) {
	e := newTestEnv(t)
	e.createAdmin(t, "admin", "secret-pw")
	e.login(t, "admin", "secret-pw")

	id := enqueueRunningJob(t, e, "2026-08-16")

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		db.CompleteJob(e.db, id, `{"zip":"pdfs-20260816.zip"}`)
		// Keep publishing the terminal phase until the reader is done, so
		// the test holds regardless of when the stream attaches.
		for {
			e.hub.Publish(id, progress.Update{Phase: "done", Done: 3, Total: 3})
			select {
			case <-stop:
				return
			case <-time.After(2 * time.Millisecond):
			}
		}
	}()

	body := readEventStream(t, e, id)
	close(stop)
	wg.Wait()

	if !strings.Contains(body, `"state":"COMPLETED"`) {
		t.Errorf("stream ended without the terminal state:\n%s", body)
	}
}

func TestJobEventsUnknownJob(t *testing.T) {
	e := newTestEnv(t)
	e.createAdmin(t, "admin", "secret-pw")
	e.login(t, "admin", "secret-pw")

	var envl errEnvelope
	status := e.getJSON(t, "/admin/api/jobs/"+uuid.New().String()+"/events", &envl)
	if status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
}
