package handler_test

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	relabel "github.com/relabel/relabel"
	"github.com/relabel/relabel/internal/auth"
	"github.com/relabel/relabel/internal/config"
	"github.com/relabel/relabel/internal/db"
	"github.com/relabel/relabel/internal/diskstat"
	"github.com/relabel/relabel/internal/handler"
	"github.com/relabel/relabel/internal/ledger"
	"github.com/relabel/relabel/internal/model"
	"github.com/relabel/relabel/internal/progress"
	"github.com/relabel/relabel/internal/snapshot"
)

type env struct {
	srv     *httptest.Server
	client  *http.Client
	db      *sql.DB
	cfg     *config.Config
	pub     *snapshot.Publisher
	hub     *progress.Hub
	dataDir string
}

func newTestEnv(t *testing.T) *env {
	t.Helper()
	dataDir := t.TempDir()
	database, err := db.Open(dataDir)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.Migrate(database, relabel.MigrationFS); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &config.Config{
		DataDir:       dataDir,
		BaseURL:       "http://relabel.test",
		SessionSecret: "handler-test-session-secret-32b!",
		Pepper:        "handler-test-pepper",
		WorkerCount:   1,
	}
	pub := snapshot.NewPublisher(database, dataDir)
	hub := progress.NewHub()
	h := handler.New(database, cfg,
		ledger.NewService(database),
		auth.NewCodeVerifier(database, cfg.Pepper),
		pub,
		hub,
		diskstat.New(dataDir, time.Hour), // never started; stats stay zero
	)

	// Limiters generous enough to never interfere here.
	authRL := handler.NewRateLimiter(1000, 1000)
	t.Cleanup(authRL.Stop)
	apiRL := handler.NewRateLimiter(1000, 1000)
	t.Cleanup(apiRL.Stop)

	srv := httptest.NewServer(h.Routes(authRL, apiRL))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &env{
		srv:     srv,
		client:  &http.Client{Jar: jar},
		db:      database,
		cfg:     cfg,
		pub:     pub,
		hub:     hub,
		dataDir: dataDir,
	}
}

func (e *env) createCode(t *testing.T, plain string) int64 {
	t.Helper()
	hash, err := auth.HashSecret(plain, e.cfg.Pepper)
	if err != nil {
		t.Fatalf("hash code: %v", err)
	}
	id, err := db.CreateAccessCode(e.db, &model.AccessCode{
		CodeHash:    hash,
		CodePlain:   plain,
		Description: "test station",
		Active:      true,
	})
	if err != nil {
		t.Fatalf("create code: %v", err)
	}
	return id
}

func (e *env) createAdmin(t *testing.T, username, password string) {
	t.Helper()
	hash, err := auth.HashSecret(password, e.cfg.Pepper)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	err = db.CreateAdminUser(e.db, &model.AdminUser{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: hash,
	})
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
}

// request runs one HTTP call against the test server and decodes the JSON
// response into out when out is non-nil.
func (e *env) request(t *testing.T, method, path string, body interface{}, headers map[string]string, out interface{}) int {
	t.Helper()
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, reqBody)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := e.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	} else {
		io.Copy(io.Discard, res.Body)
	}
	return res.StatusCode
}

func (e *env) getJSON(t *testing.T, path string, out interface{}) int {
	t.Helper()
	return e.request(t, http.MethodGet, path, nil, nil, out)
}

// login seeds nothing: the admin must exist. Returns a CSRF token usable for
// subsequent mutating calls on the same client.
func (e *env) login(t *testing.T, username, password string) string {
	t.Helper()
	var tok struct {
		Token string `json:"csrf_token"`
	}
	if status := e.getJSON(t, "/admin/api/csrf", &tok); status != http.StatusOK {
		t.Fatalf("csrf status = %d", status)
	}
	status := e.request(t, http.MethodPost, "/admin/api/login",
		map[string]string{"username": username, "password": password},
		map[string]string{"X-CSRF-Token": tok.Token}, nil)
	if status != http.StatusOK {
		t.Fatalf("login status = %d", status)
	}
	return tok.Token
}

type errEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
