// Package config loads and watches the query manager configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Supported database drivers.
const (
	DriverSQLite     = "sqlite"
	DriverPostgreSQL = "postgres"
	DriverMySQL      = "mysql"
)

// MaxCachedStatementsCeiling caps the statement cache size per session.
const MaxCachedStatementsCeiling = 9999

// Config is the top-level configuration.
type Config struct {
	HostCache    HostCacheConfig `yaml:"host_cache"`
	Database     DatabaseConfig  `yaml:"database"`
	QueryManager ManagerConfig   `yaml:"query_manager"`
	Admin        AdminConfig     `yaml:"admin"`
}

// HostCacheConfig bounds the host name cache.
type HostCacheConfig struct {
	MaxCachedHostNames int           `yaml:"max_cached_host_names"`
	ExpireTime         time.Duration `yaml:"expire_time"`
}

// DatabaseConfig selects the driver and holds per-driver settings.
type DatabaseConfig struct {
	Driver     string       `yaml:"driver"`
	SQLite     SQLiteConfig `yaml:"sqlite"`
	PostgreSQL ServerDB     `yaml:"postgresql"`
	MySQL      ServerDB     `yaml:"mysql"`
}

// SQLiteConfig configures the embedded database.
type SQLiteConfig struct {
	File                string `yaml:"file"`
	SchemaDir           string `yaml:"schema_dir"`
	MaxCachedStatements int    `yaml:"max_cached_statements"`
}

// ServerDB configures a client/server database (PostgreSQL or MySQL).
type ServerDB struct {
	UnixSocket          string `yaml:"unix_socket"`
	Host                string `yaml:"host"`
	Port                int    `yaml:"port"`
	User                string `yaml:"user"`
	Password            string `yaml:"password"`
	DBName              string `yaml:"dbname"`
	TLS                 bool   `yaml:"tls"`
	MaxCachedStatements int    `yaml:"max_cached_statements"`
}

// ManagerConfig configures the query manager front-end and worker pool.
type ManagerConfig struct {
	Port                  int           `yaml:"port"`
	Password              string        `yaml:"password"`
	WorkerThreads         int           `yaml:"worker_threads"`
	BufferSize            int           `yaml:"buffer_size"`
	MaxAttempts           int           `yaml:"max_attempts"`
	MaxConnections        int           `yaml:"max_connections"`
	MaxConnectionIdleTime time.Duration `yaml:"max_connection_idle_time"`
}

// AdminConfig configures the admin HTTP server.
type AdminConfig struct {
	Port   int    `yaml:"port"`
	Bind   string `yaml:"bind"`
	APIKey string `yaml:"api_key"`
}

// MaxCachedStatements returns the statement cache size for the selected
// driver, clamped to [1, MaxCachedStatementsCeiling].
func (d DatabaseConfig) MaxCachedStatements() int {
	n := 0
	switch d.Driver {
	case DriverSQLite:
		n = d.SQLite.MaxCachedStatements
	case DriverPostgreSQL:
		n = d.PostgreSQL.MaxCachedStatements
	case DriverMySQL:
		n = d.MySQL.MaxCachedStatements
	}
	if n < 1 {
		n = 1
	}
	if n > MaxCachedStatementsCeiling {
		n = MaxCachedStatementsCeiling
	}
	return n
}

// Redacted returns a copy with passwords and the API key masked.
func (c Config) Redacted() Config {
	r := c
	mask := func(s string) string {
		if s != "" {
			return "***REDACTED***"
		}
		return s
	}
	r.Database.PostgreSQL.Password = mask(r.Database.PostgreSQL.Password)
	r.Database.MySQL.Password = mask(r.Database.MySQL.Password)
	r.QueryManager.Password = mask(r.QueryManager.Password)
	r.Admin.APIKey = mask(r.Admin.APIKey)
	return r
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		if val, ok := os.LookupEnv(string(varName)); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML config file with env var substitution.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = substituteEnvVars(data)

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.HostCache.MaxCachedHostNames == 0 {
		cfg.HostCache.MaxCachedHostNames = 100
	}
	if cfg.HostCache.ExpireTime == 0 {
		cfg.HostCache.ExpireTime = 30 * time.Minute
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverSQLite
	}
	if cfg.Database.SQLite.File == "" {
		cfg.Database.SQLite.File = "tibia.db"
	}
	if cfg.Database.SQLite.SchemaDir == "" {
		cfg.Database.SQLite.SchemaDir = "sqlite"
	}
	if cfg.Database.SQLite.MaxCachedStatements == 0 {
		cfg.Database.SQLite.MaxCachedStatements = 100
	}

	pg := &cfg.Database.PostgreSQL
	if pg.Host == "" {
		pg.Host = "localhost"
	}
	if pg.Port == 0 {
		pg.Port = 5432
	}
	if pg.User == "" {
		pg.User = "postgres"
	}
	if pg.DBName == "" {
		pg.DBName = "tibia"
	}
	if pg.MaxCachedStatements == 0 {
		pg.MaxCachedStatements = 100
	}

	my := &cfg.Database.MySQL
	if my.Host == "" {
		my.Host = "localhost"
	}
	if my.Port == 0 {
		my.Port = 3306
	}
	if my.User == "" {
		my.User = "root"
	}
	if my.DBName == "" {
		my.DBName = "tibia"
	}
	if my.MaxCachedStatements == 0 {
		my.MaxCachedStatements = 100
	}

	qm := &cfg.QueryManager
	if qm.Port == 0 {
		qm.Port = 7174
	}
	if qm.WorkerThreads == 0 {
		qm.WorkerThreads = 1
	}
	if qm.BufferSize == 0 {
		qm.BufferSize = 1 << 20
	}
	if qm.MaxAttempts == 0 {
		qm.MaxAttempts = 3
	}
	if qm.MaxConnections == 0 {
		qm.MaxConnections = 25
	}
	if qm.MaxConnectionIdleTime == 0 {
		qm.MaxConnectionIdleTime = 60 * time.Second
	}

	if cfg.Admin.Port == 0 {
		cfg.Admin.Port = 8080
	}
	if cfg.Admin.Bind == "" {
		cfg.Admin.Bind = "127.0.0.1"
	}
}

func validate(cfg *Config) error {
	switch cfg.Database.Driver {
	case DriverSQLite, DriverPostgreSQL, DriverMySQL:
	default:
		return fmt.Errorf("unsupported database driver %q (must be sqlite, postgres or mysql)", cfg.Database.Driver)
	}
	if cfg.QueryManager.BufferSize < 1 {
		return fmt.Errorf("query_manager.buffer_size must be positive")
	}
	if cfg.QueryManager.WorkerThreads < 1 {
		return fmt.Errorf("query_manager.worker_threads must be positive")
	}
	if cfg.QueryManager.MaxAttempts < 1 {
		return fmt.Errorf("query_manager.max_attempts must be positive")
	}
	if cfg.QueryManager.MaxConnections < 1 {
		return fmt.Errorf("query_manager.max_connections must be positive")
	}
	if cfg.HostCache.MaxCachedHostNames < 1 {
		return fmt.Errorf("host_cache.max_cached_host_names must be positive")
	}
	return nil
}

// Watcher watches a config file for changes and calls the callback with the new config.
type Watcher struct {
	path     string
	callback func(*Config)
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	stopCh   chan struct{}
}

// NewWatcher creates a new config file watcher.
func NewWatcher(path string, callback func(*Config)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching config file: %w", err)
	}

	cw := &Watcher{
		path:     path,
		callback: callback,
		watcher:  w,
		stopCh:   make(chan struct{}),
	}

	go cw.run()
	return cw, nil
}

func (cw *Watcher) run() {
	// Debounce timer to avoid rapid reloads
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, func() {
					cw.reload()
				})
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", "err", err)
		case <-cw.stopCh:
			return
		}
	}
}

func (cw *Watcher) reload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cfg, err := Load(cw.path)
	if err != nil {
		slog.Error("config hot-reload failed", "err", err)
		return
	}

	slog.Info("configuration reloaded", "path", cw.path)
	cw.callback(cfg)
}

// Stop stops the config watcher.
func (cw *Watcher) Stop() error {
	close(cw.stopCh)
	return cw.watcher.Close()
}
