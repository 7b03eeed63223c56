package database

import (
	"testing"

	"github.com/queryman/queryman/internal/config"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		driver string
		want   string
	}{
		{
			name:   "sqlite untouched",
			query:  "SELECT UNIXEPOCH() - Timestamp FROM LoginAttempts",
			driver: config.DriverSQLite,
			want:   "SELECT UNIXEPOCH() - Timestamp FROM LoginAttempts",
		},
		{
			name:   "postgres epoch",
			query:  "SELECT 1 WHERE Until > UNIXEPOCH()",
			driver: config.DriverPostgreSQL,
			want:   "SELECT 1 WHERE Until > CAST(EXTRACT(EPOCH FROM NOW()) AS BIGINT)",
		},
		{
			name:   "postgres epoch repeated",
			query:  "VALUES (UNIXEPOCH(), UNIXEPOCH() + ?)",
			driver: config.DriverPostgreSQL,
			want: "VALUES (CAST(EXTRACT(EPOCH FROM NOW()) AS BIGINT), " +
				"CAST(EXTRACT(EPOCH FROM NOW()) AS BIGINT) + ?)",
		},
		{
			name:   "mysql epoch",
			query:  "SELECT 1 WHERE Until > UNIXEPOCH()",
			driver: config.DriverMySQL,
			want:   "SELECT 1 WHERE Until > UNIX_TIMESTAMP()",
		},
		{
			name:   "postgres insert or ignore",
			query:  "\nINSERT OR IGNORE INTO Buddies (A, B) SELECT ?, ? FROM Characters",
			driver: config.DriverPostgreSQL,
			want:   "\nINSERT INTO Buddies (A, B) SELECT ?, ? FROM Characters ON CONFLICT DO NOTHING",
		},
		{
			name:   "mysql insert or ignore",
			query:  "\nINSERT OR IGNORE INTO Buddies (A, B) VALUES (?, ?)",
			driver: config.DriverMySQL,
			want:   "\nINSERT IGNORE INTO Buddies (A, B) VALUES (?, ?)",
		},
		{
			name:   "plain insert untouched",
			query:  "INSERT INTO Accounts (AccountID) VALUES (?)",
			driver: config.DriverPostgreSQL,
			want:   "INSERT INTO Accounts (AccountID) VALUES (?)",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := translate(tc.query, tc.driver); got != tc.want {
				t.Errorf("translate(%q, %s) =\n%q\nwant\n%q",
					tc.query, tc.driver, got, tc.want)
			}
		})
	}
}
