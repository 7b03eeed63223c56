package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// CharacterNameExists reports whether a character name is taken.
func (s *Store) CharacterNameExists(ctx context.Context, name string) (bool, error) {
	var one int
	err := s.q.GetContext(ctx, &one,
		"SELECT 1 FROM Characters WHERE Name = ?", name)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// CreateCharacter inserts a new character. A key collision returns false
// without error.
func (s *Store) CreateCharacter(ctx context.Context, worldID int, accountID uint32, name string, sex int) (bool, error) {
	_, err := s.q.ExecContext(ctx,
		"INSERT INTO Characters (WorldID, AccountID, Name, Sex) VALUES (?, ?, ?, ?)",
		worldID, accountID, name, sex)
	if isConstraintViolation(err) {
		return false, nil
	}
	return err == nil, err
}

// GetCharacterID resolves a character name within a world, zero when
// unknown.
func (s *Store) GetCharacterID(ctx context.Context, worldID int, name string) (uint32, error) {
	var characterID uint32
	err := s.q.GetContext(ctx, &characterID,
		"SELECT CharacterID FROM Characters WHERE WorldID = ? AND Name = ?",
		worldID, name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return characterID, err
}

// GetCharacterLoginData loads the state needed to admit a game login. The
// zero value (CharacterID 0) means the character does not exist.
func (s *Store) GetCharacterLoginData(ctx context.Context, name string) (CharacterLoginData, error) {
	var data CharacterLoginData
	err := s.q.GetContext(ctx, &data, `
SELECT WorldID, CharacterID, AccountID, Name, Sex, Guild, "Rank", Title, Deleted
FROM Characters WHERE Name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return CharacterLoginData{}, nil
	}
	return data, err
}

// GetCharacterProfile loads the public profile of a character. Characters
// holding the NO_STATISTICS right are invisible here.
func (s *Store) GetCharacterProfile(ctx context.Context, name string) (CharacterProfile, bool, error) {
	var profile CharacterProfile
	err := s.q.GetContext(ctx, &profile, `
SELECT C.Name, W.Name AS World, C.Sex, C.Guild, C.Rank, C.Title, C.Level,
	C.Profession, C.Residence, C.LastLoginTime AS LastLogin,
	CASE WHEN A.PremiumEnd > UNIXEPOCH() THEN A.PremiumEnd - UNIXEPOCH() ELSE 0 END AS PremiumSeconds,
	C.IsOnline AS Online, C.Deleted
FROM Characters AS C
INNER JOIN Worlds AS W ON W.WorldID = C.WorldID
INNER JOIN Accounts AS A ON A.AccountID = C.AccountID
LEFT JOIN CharacterRights AS R
	ON R.CharacterID = C.CharacterID AND R."Right" = 'NO_STATISTICS'
WHERE C.Name = ? AND R."Right" IS NULL`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return CharacterProfile{}, false, nil
	}
	if err != nil {
		return CharacterProfile{}, false, err
	}
	profile.PremiumDays = roundSecondsToDays(profile.PremiumSeconds)
	return profile, true, nil
}

// GetCharacterEndpoints lists an account's characters with the worlds they
// play on.
func (s *Store) GetCharacterEndpoints(ctx context.Context, accountID uint32) ([]CharacterEndpoint, error) {
	var endpoints []CharacterEndpoint
	err := s.q.SelectContext(ctx, &endpoints, `
SELECT C.Name, W.Name AS WorldName, W.Host AS WorldHost, W.Port AS WorldPort
FROM Characters AS C
INNER JOIN Worlds AS W ON W.WorldID = C.WorldID
WHERE C.AccountID = ?`, accountID)
	return endpoints, err
}

// GetCharacterSummaries lists an account's characters for the account
// summary.
func (s *Store) GetCharacterSummaries(ctx context.Context, accountID uint32) ([]CharacterSummary, error) {
	var summaries []CharacterSummary
	err := s.q.SelectContext(ctx, &summaries, `
SELECT C.Name, COALESCE(W.Name, '') AS World, C.Level, C.Profession,
	C.IsOnline AS Online, C.Deleted
FROM Characters AS C
LEFT JOIN Worlds AS W ON W.WorldID = C.WorldID
WHERE C.AccountID = ?`, accountID)
	return summaries, err
}

// GetCharacterRight reports whether a character holds one right.
func (s *Store) GetCharacterRight(ctx context.Context, characterID uint32, right string) (bool, error) {
	var one int
	err := s.q.GetContext(ctx, &one,
		`SELECT 1 FROM CharacterRights WHERE CharacterID = ? AND "Right" = ?`,
		characterID, right)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// GetCharacterRights lists a character's rights.
func (s *Store) GetCharacterRights(ctx context.Context, characterID uint32) ([]string, error) {
	var rights []string
	err := s.q.SelectContext(ctx, &rights,
		`SELECT "Right" FROM CharacterRights WHERE CharacterID = ?`, characterID)
	return rights, err
}

// GetGuildLeaderStatus reports whether a character currently leads a
// guild. Missing characters simply read as non-leaders.
func (s *Store) GetGuildLeaderStatus(ctx context.Context, worldID int, characterID uint32) (bool, error) {
	var row struct {
		Guild string `db:"Guild"`
		Rank  string `db:"Rank"`
	}
	err := s.q.GetContext(ctx, &row,
		`SELECT Guild, "Rank" FROM Characters WHERE WorldID = ? AND CharacterID = ?`,
		worldID, characterID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return row.Guild != "" && strings.EqualFold(row.Rank, "Leader"), nil
}

// IncrementIsOnline bumps a character's online counter.
func (s *Store) IncrementIsOnline(ctx context.Context, worldID int, characterID uint32) error {
	_, err := s.q.ExecContext(ctx,
		"UPDATE Characters SET IsOnline = IsOnline + 1 WHERE WorldID = ? AND CharacterID = ?",
		worldID, characterID)
	return err
}

// DecrementIsOnline drops a character's online counter.
func (s *Store) DecrementIsOnline(ctx context.Context, worldID int, characterID uint32) error {
	_, err := s.q.ExecContext(ctx,
		"UPDATE Characters SET IsOnline = IsOnline - 1 WHERE WorldID = ? AND CharacterID = ?",
		worldID, characterID)
	return err
}

// ClearIsOnline marks every character of a world offline and returns how
// many were affected.
func (s *Store) ClearIsOnline(ctx context.Context, worldID int) (int64, error) {
	return s.q.ExecContext(ctx,
		"UPDATE Characters SET IsOnline = 0 WHERE WorldID = ? AND IsOnline != 0",
		worldID)
}

// LogoutCharacter saves the character's session results and drops the
// online counter.
func (s *Store) LogoutCharacter(ctx context.Context, worldID int, characterID uint32, level int, profession, residence string, lastLogin int64, tutorActivities int) error {
	_, err := s.q.ExecContext(ctx, `
UPDATE Characters
SET Level = ?, Profession = ?, Residence = ?, LastLoginTime = ?,
	TutorActivities = ?, IsOnline = IsOnline - 1
WHERE WorldID = ? AND CharacterID = ?`,
		level, profession, residence, lastLogin, tutorActivities,
		worldID, characterID)
	return err
}

// GetCharacterIndexEntries pages through a world's characters by id.
func (s *Store) GetCharacterIndexEntries(ctx context.Context, worldID int, minimumCharacterID uint32, limit int) ([]CharacterIndexEntry, error) {
	var entries []CharacterIndexEntry
	err := s.q.SelectContext(ctx, &entries, `
SELECT CharacterID, Name FROM Characters
WHERE WorldID = ? AND CharacterID >= ?
ORDER BY CharacterID ASC LIMIT ?`, worldID, minimumCharacterID, limit)
	return entries, err
}

// InsertCharacterDeath logs a character death. The insert-through-select
// guard keeps rows scoped to existing characters of the world.
func (s *Store) InsertCharacterDeath(ctx context.Context, worldID int, characterID uint32, level int, offenderID uint32, remark string, unjustified bool, timestamp int64) error {
	_, err := s.q.ExecContext(ctx, `
INSERT INTO CharacterDeaths (CharacterID, Level, OffenderID, Remark, Unjustified, Timestamp)
SELECT ?, ?, ?, ?, ?, ? FROM Characters WHERE WorldID = ? AND CharacterID = ?`,
		characterID, level, offenderID, remark, unjustified, timestamp,
		worldID, characterID)
	return err
}

// InsertBuddy adds a buddy list entry, ignoring duplicates.
func (s *Store) InsertBuddy(ctx context.Context, worldID int, accountID, buddyID uint32) error {
	_, err := s.q.ExecContext(ctx, `
INSERT OR IGNORE INTO Buddies (WorldID, AccountID, BuddyID)
SELECT ?, ?, ? FROM Characters WHERE WorldID = ? AND CharacterID = ?`,
		worldID, accountID, buddyID, worldID, buddyID)
	return err
}

// DeleteBuddy removes a buddy list entry.
func (s *Store) DeleteBuddy(ctx context.Context, worldID int, accountID, buddyID uint32) error {
	_, err := s.q.ExecContext(ctx,
		"DELETE FROM Buddies WHERE WorldID = ? AND AccountID = ? AND BuddyID = ?",
		worldID, accountID, buddyID)
	return err
}

// GetBuddies lists an account's buddies on one world.
func (s *Store) GetBuddies(ctx context.Context, worldID int, accountID uint32) ([]AccountBuddy, error) {
	var buddies []AccountBuddy
	err := s.q.SelectContext(ctx, &buddies, `
SELECT B.BuddyID, C.Name
FROM Buddies AS B
INNER JOIN Characters AS C
	ON C.WorldID = B.WorldID AND C.CharacterID = B.BuddyID
WHERE B.WorldID = ? AND B.AccountID = ?`, worldID, accountID)
	return buddies, err
}
