package store

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/queryman/queryman/internal/config"
)

// GetNamelockStatus reports whether a character is namelocked and whether
// the namelock was approved.
func (s *Store) GetNamelockStatus(ctx context.Context, characterID uint32) (NamelockStatus, error) {
	var approved bool
	err := s.q.GetContext(ctx, &approved,
		"SELECT Approved FROM Namelocks WHERE CharacterID = ?", characterID)
	if errors.Is(err, sql.ErrNoRows) {
		return NamelockStatus{}, nil
	}
	if err != nil {
		return NamelockStatus{}, err
	}
	return NamelockStatus{Namelocked: true, Approved: approved}, nil
}

// IsCharacterNamelocked reports whether a character has an unapproved
// namelock blocking its login.
func (s *Store) IsCharacterNamelocked(ctx context.Context, characterID uint32) (bool, error) {
	status, err := s.GetNamelockStatus(ctx, characterID)
	if err != nil {
		return false, err
	}
	return status.Namelocked && !status.Approved, nil
}

// InsertNamelock namelocks a character.
func (s *Store) InsertNamelock(ctx context.Context, characterID, ipAddress uint32, gamemasterID uint32, reason, comment string) error {
	_, err := s.q.ExecContext(ctx, `
INSERT INTO Namelocks (CharacterID, IPAddress, GamemasterID, Reason, Comment)
VALUES (?, ?, ?, ?, ?)`,
		characterID, ipAddress, gamemasterID, reason, comment)
	return err
}

// IsAccountBanished reports whether an account has an active or permanent
// banishment. A banishment with Until equal to Issued never expires.
func (s *Store) IsAccountBanished(ctx context.Context, accountID uint32) (bool, error) {
	var one int
	err := s.q.GetContext(ctx, &one, `
SELECT 1 FROM Banishments
WHERE AccountID = ? AND (Until = Issued OR Until > UNIXEPOCH())`, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// GetBanishmentStatus aggregates the banishment history of the account
// behind a character.
func (s *Store) GetBanishmentStatus(ctx context.Context, characterID uint32) (BanishmentStatus, error) {
	var rows []struct {
		FinalWarning bool `db:"FinalWarning"`
		Active       bool `db:"Active"`
	}
	err := s.q.SelectContext(ctx, &rows, `
SELECT B.FinalWarning, (B.Until = B.Issued OR B.Until > UNIXEPOCH()) AS Active
FROM Banishments AS B
LEFT JOIN Characters AS C ON C.AccountID = B.AccountID
WHERE C.CharacterID = ?`, characterID)
	if err != nil {
		return BanishmentStatus{}, err
	}
	var status BanishmentStatus
	for _, row := range rows {
		status.TimesBanished++
		status.FinalWarning = status.FinalWarning || row.FinalWarning
		status.Banished = status.Banished || row.Active
	}
	return status, nil
}

// InsertBanishment banishes the account behind a character for a duration
// in seconds (zero means permanent) and returns the banishment id.
func (s *Store) InsertBanishment(ctx context.Context, characterID, ipAddress, gamemasterID uint32, reason, comment string, finalWarning bool, durationSeconds int64) (int, error) {
	const insert = `
INSERT INTO Banishments (AccountID, IPAddress, GamemasterID, Reason, Comment,
	FinalWarning, Issued, Until)
SELECT AccountID, ?, ?, ?, ?, ?, UNIXEPOCH(), UNIXEPOCH() + ?
FROM Characters WHERE CharacterID = ?`

	if s.sess.Driver() == config.DriverMySQL {
		affected, err := s.q.ExecContext(ctx, insert,
			ipAddress, gamemasterID, reason, comment, finalWarning,
			durationSeconds, characterID)
		if err != nil || affected == 0 {
			return 0, err
		}
		// LAST_INSERT_ID is per connection. Callers hold a transaction,
		// so this reads the insert's connection.
		var banishmentID int
		err = s.q.GetContext(ctx, &banishmentID, "SELECT LAST_INSERT_ID()")
		return banishmentID, err
	}

	var banishmentID int
	err := s.q.GetContext(ctx, &banishmentID, insert+`
RETURNING BanishmentID`,
		ipAddress, gamemasterID, reason, comment, finalWarning,
		durationSeconds, characterID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return banishmentID, err
}

// GetNotationCount counts the notations against a character.
func (s *Store) GetNotationCount(ctx context.Context, characterID uint32) (int, error) {
	var count int
	err := s.q.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM Notations WHERE CharacterID = ?", characterID)
	return count, err
}

// InsertNotation records a notation against a character.
func (s *Store) InsertNotation(ctx context.Context, characterID, ipAddress, gamemasterID uint32, reason, comment string) error {
	_, err := s.q.ExecContext(ctx, `
INSERT INTO Notations (CharacterID, IPAddress, GamemasterID, Reason, Comment)
VALUES (?, ?, ?, ?, ?)`,
		characterID, ipAddress, gamemasterID, reason, comment)
	return err
}

// IsIPBanished reports whether an address has an active or permanent
// banishment.
func (s *Store) IsIPBanished(ctx context.Context, ipAddress uint32) (bool, error) {
	var one int
	err := s.q.GetContext(ctx, &one, `
SELECT 1 FROM IPBanishments
WHERE IPAddress = ? AND (Until = Issued OR Until > UNIXEPOCH())`, ipAddress)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// InsertIPBanishment banishes an address for a duration in seconds. The
// character whose report triggered the banishment is recorded with it.
func (s *Store) InsertIPBanishment(ctx context.Context, characterID, ipAddress, gamemasterID uint32, reason, comment string, durationSeconds int64) error {
	_, err := s.q.ExecContext(ctx, `
INSERT INTO IPBanishments (CharacterID, IPAddress, GamemasterID, Reason, Comment, Issued, Until)
VALUES (?, ?, ?, ?, ?, UNIXEPOCH(), UNIXEPOCH() + ?)`,
		characterID, ipAddress, gamemasterID, reason, comment, durationSeconds)
	return err
}

// IsStatementReported reports whether a statement was already reported.
func (s *Store) IsStatementReported(ctx context.Context, worldID int, timestamp int64, statementID uint32) (bool, error) {
	var one int
	err := s.q.GetContext(ctx, &one, `
SELECT 1 FROM Statements
WHERE WorldID = ? AND Timestamp = ? AND StatementID = ?`,
		worldID, timestamp, statementID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// InsertStatements logs statement context, ignoring duplicates. Statements
// with a zero id are skipped.
func (s *Store) InsertStatements(ctx context.Context, worldID int, statements []Statement) error {
	for _, st := range statements {
		if st.StatementID == 0 {
			slog.Warn("skipping statement with zero id", "world", worldID)
			continue
		}
		_, err := s.q.ExecContext(ctx, `
INSERT OR IGNORE INTO Statements (WorldID, Timestamp, StatementID, CharacterID, Channel, Text)
VALUES (?, ?, ?, ?, ?, ?)`,
			worldID, st.Timestamp, st.StatementID, st.CharacterID, st.Channel, st.Text)
		if err != nil {
			return err
		}
	}
	return nil
}

// InsertReportedStatement marks one logged statement as reported.
func (s *Store) InsertReportedStatement(ctx context.Context, worldID int, st Statement, banishmentID int, reporterID uint32, reason, comment string) error {
	_, err := s.q.ExecContext(ctx, `
INSERT INTO ReportedStatements (WorldID, Timestamp, StatementID, CharacterID,
	BanishmentID, ReporterID, Reason, Comment)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		worldID, st.Timestamp, st.StatementID, st.CharacterID,
		banishmentID, reporterID, reason, comment)
	return err
}
