package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/queryman/queryman/internal/config"
	"github.com/queryman/queryman/internal/database"
	"github.com/queryman/queryman/internal/health"
	"github.com/queryman/queryman/internal/metrics"
	"github.com/queryman/queryman/internal/query"
)

func testServer(t *testing.T, mutate func(*config.Config)) (*Server, *httptest.Server) {
	t.Helper()

	dbCfg := config.DatabaseConfig{Driver: config.DriverSQLite}
	dbCfg.SQLite.File = filepath.Join(t.TempDir(), "test.db")
	dbCfg.SQLite.MaxCachedStatements = 8
	sess, err := database.Open(dbCfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { sess.Close() })

	m := metrics.New()
	checker := health.NewChecker(sess, m, time.Minute, 3, time.Second)

	cfg := config.Config{}
	cfg.Admin.APIKey = "sesame"
	cfg.QueryManager.Password = "hunter2"
	if mutate != nil {
		mutate(&cfg)
	}

	srv := NewServer(checker, m, query.NewQueue(8), cfg)
	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)
	return srv, ts
}

func get(t *testing.T, ts *httptest.Server, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestProbesOpenWithoutAuth(t *testing.T) {
	_, ts := testServer(t, nil)
	for _, path := range []string{"/health", "/ready", "/metrics"} {
		if resp := get(t, ts, path, ""); resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestAuthRequired(t *testing.T) {
	_, ts := testServer(t, nil)

	if resp := get(t, ts, "/api/v1/status", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", resp.StatusCode)
	}
	if resp := get(t, ts, "/api/v1/status", "wrong"); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", resp.StatusCode)
	}

	resp := get(t, ts, "/api/v1/status", "sesame")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("good token = %d, want 200", resp.StatusCode)
	}
	var status map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if _, ok := status["goroutines"]; !ok {
		t.Errorf("status = %v, missing goroutines", status)
	}
	if depth, ok := status["queue_depth"].(float64); !ok || depth != 0 {
		t.Errorf("queue_depth = %v, want 0", status["queue_depth"])
	}
}

func TestNoAPIKeyDisablesAuth(t *testing.T) {
	_, ts := testServer(t, func(cfg *config.Config) {
		cfg.Admin.APIKey = ""
	})
	if resp := get(t, ts, "/api/v1/status", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestConfigRedaction(t *testing.T) {
	_, ts := testServer(t, nil)
	resp := get(t, ts, "/api/v1/config", "sesame")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var cfg struct {
		QueryManager struct {
			Password string
		}
		Admin struct {
			APIKey string
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.QueryManager.Password != "***REDACTED***" {
		t.Errorf("password = %q, not redacted", cfg.QueryManager.Password)
	}
	if cfg.Admin.APIKey != "***REDACTED***" {
		t.Errorf("api key = %q, not redacted", cfg.Admin.APIKey)
	}
}

func TestHealthUnhealthy(t *testing.T) {
	dbCfg := config.DatabaseConfig{Driver: config.DriverSQLite}
	dbCfg.SQLite.File = filepath.Join(t.TempDir(), "test.db")
	dbCfg.SQLite.MaxCachedStatements = 8
	sess, err := database.Open(dbCfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sess.Close()

	m := metrics.New()
	checker := health.NewChecker(sess, m, 10*time.Millisecond, 1, time.Second)
	checker.Start()
	defer checker.Stop()
	deadline := time.Now().Add(5 * time.Second)
	for checker.IsHealthy() {
		if time.Now().After(deadline) {
			t.Fatal("checker never went unhealthy")
		}
		time.Sleep(5 * time.Millisecond)
	}

	srv := NewServer(checker, m, query.NewQueue(8), config.Config{})
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	if resp := get(t, ts, "/health", ""); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("/health = %d, want 503", resp.StatusCode)
	}
	if resp := get(t, ts, "/ready", ""); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("/ready = %d, want 503", resp.StatusCode)
	}
}

func TestSetConfigSwapsKey(t *testing.T) {
	srv, ts := testServer(t, nil)

	cfg := config.Config{}
	cfg.Admin.APIKey = "rotated"
	srv.SetConfig(cfg)

	if resp := get(t, ts, "/api/v1/status", "sesame"); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("old key = %d, want 401", resp.StatusCode)
	}
	if resp := get(t, ts, "/api/v1/status", "rotated"); resp.StatusCode != http.StatusOK {
		t.Errorf("new key = %d, want 200", resp.StatusCode)
	}
}
