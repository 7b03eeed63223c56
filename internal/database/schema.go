package database

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/queryman/queryman/internal/config"
)

// applicationID tags SQLite files created by this service. A database file
// carrying a different nonzero id belongs to some other application and is
// never touched.
const applicationID = 0x54694442

// schemaVersion is the schema this build supports.
const schemaVersion = 1

// CheckSchema verifies the database schema, initializing or upgrading a
// SQLite database when needed. For client/server databases the schema is
// managed externally and only the version is verified.
func (s *Session) CheckSchema(ctx context.Context, schemaDir string) error {
	if s.driver != config.DriverSQLite {
		return s.checkServerSchema(ctx)
	}

	var appID, version int64
	if err := s.db.GetContext(ctx, &appID, "PRAGMA application_id"); err != nil {
		return fmt.Errorf("reading application_id: %w", err)
	}
	if err := s.db.GetContext(ctx, &version, "PRAGMA user_version"); err != nil {
		return fmt.Errorf("reading user_version: %w", err)
	}

	if appID != applicationID {
		if appID != 0 {
			return fmt.Errorf("database belongs to another application (application_id %#x)", appID)
		}
		if version != 0 {
			return fmt.Errorf("database has no application_id but user_version %d", version)
		}
		if err := s.initSchema(ctx, schemaDir); err != nil {
			return err
		}
		version = schemaVersion
	}

	return s.upgradeSchema(ctx, schemaDir, version)
}

func (s *Session) initSchema(ctx context.Context, schemaDir string) error {
	path := filepath.Join(schemaDir, "schema.sql")
	script, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading schema script: %w", err)
	}

	slog.Info("initializing database schema", "script", path)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning schema transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(script)); err != nil {
		return fmt.Errorf("executing schema script: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA application_id = %d", applicationID)); err != nil {
		return fmt.Errorf("setting application_id: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("setting user_version: %w", err)
	}
	return tx.Commit()
}

// upgradeSchema applies sequential upgrade-<n>.sql scripts starting just
// past the current version. All pending upgrades run in one transaction.
func (s *Session) upgradeSchema(ctx context.Context, schemaDir string, version int64) error {
	var scripts []string
	for next := version + 1; ; next++ {
		path := filepath.Join(schemaDir, fmt.Sprintf("upgrade-%d.sql", next))
		if _, err := os.Stat(path); err != nil {
			break
		}
		scripts = append(scripts, path)
	}
	if len(scripts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning upgrade transaction: %w", err)
	}
	defer tx.Rollback()

	for _, path := range scripts {
		script, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading upgrade script: %w", err)
		}
		slog.Info("applying schema upgrade", "script", path)
		if _, err := tx.ExecContext(ctx, string(script)); err != nil {
			return fmt.Errorf("executing %s: %w", path, err)
		}
	}

	final := version + int64(len(scripts))
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", final)); err != nil {
		return fmt.Errorf("setting user_version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("database schema upgraded", "from", version, "to", final)
	return nil
}

// checkServerSchema verifies the VERSION row in SchemaInfo for databases
// whose schema is provisioned out of band.
func (s *Session) checkServerSchema(ctx context.Context) error {
	var query string
	switch s.driver {
	case config.DriverPostgreSQL:
		query = `SELECT "Value" FROM "SchemaInfo" WHERE "Key" = 'VERSION'`
	case config.DriverMySQL:
		query = "SELECT `Value` FROM `SchemaInfo` WHERE `Key` = 'VERSION'"
	default:
		return fmt.Errorf("unsupported database driver %q", s.driver)
	}

	var version int
	if err := s.db.GetContext(ctx, &version, query); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("unsupported schema version %d (expected %d)", version, schemaVersion)
	}
	return nil
}
