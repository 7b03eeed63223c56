package database

import (
	"strings"

	"github.com/queryman/queryman/internal/config"
)

// Store queries are written in SQLite's dialect. translate rewrites the
// constructs the other drivers spell differently before a statement is
// prepared. Only whole constructs are rewritten; bind placeholders are
// handled separately by rebind.
func translate(query, driver string) string {
	switch driver {
	case config.DriverPostgreSQL:
		query = strings.ReplaceAll(query, "UNIXEPOCH()",
			"CAST(EXTRACT(EPOCH FROM NOW()) AS BIGINT)")
		if strings.Contains(query, "INSERT OR IGNORE ") {
			query = strings.Replace(query, "INSERT OR IGNORE ", "INSERT ", 1) +
				" ON CONFLICT DO NOTHING"
		}
	case config.DriverMySQL:
		query = strings.ReplaceAll(query, "UNIXEPOCH()", "UNIX_TIMESTAMP()")
		query = strings.Replace(query, "INSERT OR IGNORE ", "INSERT IGNORE ", 1)
	}
	return query
}
