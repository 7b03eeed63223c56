package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
host_cache:
  max_cached_host_names: 50
  expire_time: 10m

database:
  driver: sqlite
  sqlite:
    file: /var/lib/queryman/game.db
    max_cached_statements: 200

query_manager:
  port: 7200
  password: sekrit
  worker_threads: 4
  buffer_size: 65536
  max_attempts: 5
  max_connections: 10
  max_connection_idle_time: 30s
`
	path := writeTemp(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.HostCache.MaxCachedHostNames != 50 {
		t.Errorf("expected 50 cached host names, got %d", cfg.HostCache.MaxCachedHostNames)
	}
	if cfg.HostCache.ExpireTime != 10*time.Minute {
		t.Errorf("expected expire time 10m, got %v", cfg.HostCache.ExpireTime)
	}
	if cfg.Database.Driver != DriverSQLite {
		t.Errorf("expected driver sqlite, got %s", cfg.Database.Driver)
	}
	if cfg.Database.SQLite.File != "/var/lib/queryman/game.db" {
		t.Errorf("unexpected sqlite file %s", cfg.Database.SQLite.File)
	}
	if cfg.QueryManager.Port != 7200 {
		t.Errorf("expected port 7200, got %d", cfg.QueryManager.Port)
	}
	if cfg.QueryManager.Password != "sekrit" {
		t.Errorf("unexpected password %q", cfg.QueryManager.Password)
	}
	if cfg.QueryManager.WorkerThreads != 4 {
		t.Errorf("expected 4 workers, got %d", cfg.QueryManager.WorkerThreads)
	}
	if cfg.QueryManager.BufferSize != 65536 {
		t.Errorf("expected buffer size 65536, got %d", cfg.QueryManager.BufferSize)
	}
	if cfg.QueryManager.MaxConnectionIdleTime != 30*time.Second {
		t.Errorf("expected idle time 30s, got %v", cfg.QueryManager.MaxConnectionIdleTime)
	}
}

func TestLoadEnvSubstitution(t *testing.T) {
	os.Setenv("TEST_QM_PASSWORD", "secret123")
	defer os.Unsetenv("TEST_QM_PASSWORD")

	yaml := `
query_manager:
  password: ${TEST_QM_PASSWORD}
`
	path := writeTemp(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.QueryManager.Password != "secret123" {
		t.Errorf("expected password secret123, got %s", cfg.QueryManager.Password)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "unknown driver",
			yaml: `
database:
  driver: oracle
`,
		},
		{
			name: "negative buffer size",
			yaml: `
query_manager:
  buffer_size: -1
`,
		},
		{
			name: "negative worker threads",
			yaml: `
query_manager:
  worker_threads: -2
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTemp(t, tt.yaml)
			_, err := Load(path)
			if err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	path := writeTemp(t, "{}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.QueryManager.Port != 7174 {
		t.Errorf("expected default port 7174, got %d", cfg.QueryManager.Port)
	}
	if cfg.QueryManager.WorkerThreads != 1 {
		t.Errorf("expected default worker threads 1, got %d", cfg.QueryManager.WorkerThreads)
	}
	if cfg.QueryManager.BufferSize != 1<<20 {
		t.Errorf("expected default buffer size 1MiB, got %d", cfg.QueryManager.BufferSize)
	}
	if cfg.QueryManager.MaxAttempts != 3 {
		t.Errorf("expected default max attempts 3, got %d", cfg.QueryManager.MaxAttempts)
	}
	if cfg.QueryManager.MaxConnections != 25 {
		t.Errorf("expected default max connections 25, got %d", cfg.QueryManager.MaxConnections)
	}
	if cfg.QueryManager.MaxConnectionIdleTime != 60*time.Second {
		t.Errorf("expected default idle time 60s, got %v", cfg.QueryManager.MaxConnectionIdleTime)
	}
	if cfg.Database.Driver != DriverSQLite {
		t.Errorf("expected default driver sqlite, got %s", cfg.Database.Driver)
	}
	if cfg.Database.SQLite.File != "tibia.db" {
		t.Errorf("expected default sqlite file tibia.db, got %s", cfg.Database.SQLite.File)
	}
	if cfg.Database.PostgreSQL.Port != 5432 {
		t.Errorf("expected default postgres port 5432, got %d", cfg.Database.PostgreSQL.Port)
	}
	if cfg.Database.MySQL.Port != 3306 {
		t.Errorf("expected default mysql port 3306, got %d", cfg.Database.MySQL.Port)
	}
	if cfg.HostCache.MaxCachedHostNames != 100 {
		t.Errorf("expected default 100 cached host names, got %d", cfg.HostCache.MaxCachedHostNames)
	}
	if cfg.HostCache.ExpireTime != 30*time.Minute {
		t.Errorf("expected default expire time 30m, got %v", cfg.HostCache.ExpireTime)
	}
	if cfg.Admin.Bind != "127.0.0.1" {
		t.Errorf("expected default admin bind 127.0.0.1, got %s", cfg.Admin.Bind)
	}
}

func TestMaxCachedStatementsClamped(t *testing.T) {
	d := DatabaseConfig{Driver: DriverSQLite}
	d.SQLite.MaxCachedStatements = 50000
	if got := d.MaxCachedStatements(); got != MaxCachedStatementsCeiling {
		t.Errorf("expected clamp to %d, got %d", MaxCachedStatementsCeiling, got)
	}

	d.SQLite.MaxCachedStatements = -5
	if got := d.MaxCachedStatements(); got != 1 {
		t.Errorf("expected clamp to 1, got %d", got)
	}
}

func TestRedacted(t *testing.T) {
	cfg := Config{}
	cfg.QueryManager.Password = "topsecret"
	cfg.Database.PostgreSQL.Password = "pgpass"
	cfg.Admin.APIKey = "key"

	r := cfg.Redacted()
	if r.QueryManager.Password == "topsecret" {
		t.Error("query manager password not redacted")
	}
	if r.Database.PostgreSQL.Password == "pgpass" {
		t.Error("postgres password not redacted")
	}
	if r.Admin.APIKey == "key" {
		t.Error("api key not redacted")
	}
	if cfg.QueryManager.Password != "topsecret" {
		t.Error("Redacted mutated the original")
	}
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}
