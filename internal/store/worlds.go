package store

import (
	"context"
	"database/sql"
	"errors"
)

// GetWorldID resolves a world name to its id, zero when unknown.
func (s *Store) GetWorldID(ctx context.Context, name string) (int, error) {
	var worldID int
	err := s.q.GetContext(ctx, &worldID,
		"SELECT WorldID FROM Worlds WHERE Name = ?", name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return worldID, err
}

// GetWorlds lists all worlds with their current online player counts.
func (s *Store) GetWorlds(ctx context.Context) ([]World, error) {
	var worlds []World
	err := s.q.SelectContext(ctx, &worlds, `
WITH N (WorldID, NumPlayers) AS (
	SELECT WorldID, COUNT(*) FROM OnlineCharacters GROUP BY WorldID
)
SELECT W.Name, W.Type, COALESCE(N.NumPlayers, 0) AS NumPlayers,
	W.MaxPlayers, W.OnlineRecord, W.OnlineRecordTimestamp
FROM Worlds AS W
LEFT JOIN N ON W.WorldID = N.WorldID`)
	return worlds, err
}

// GetWorldConfig loads the game server configuration of a world. The zero
// value (WorldID 0) means the world does not exist.
func (s *Store) GetWorldConfig(ctx context.Context, worldID int) (WorldConfig, error) {
	var cfg WorldConfig
	err := s.q.GetContext(ctx, &cfg, `
SELECT WorldID, Type, RebootTime, Host, Port, MaxPlayers,
	PremiumPlayerBuffer, MaxNewbies, PremiumNewbieBuffer
FROM Worlds WHERE WorldID = ?`, worldID)
	if errors.Is(err, sql.ErrNoRows) {
		return WorldConfig{}, nil
	}
	return cfg, err
}

// GetWorldInvitation reports whether a character is invited to a private
// world.
func (s *Store) GetWorldInvitation(ctx context.Context, worldID int, characterID uint32) (bool, error) {
	var one int
	err := s.q.GetContext(ctx, &one,
		"SELECT 1 FROM WorldInvitations WHERE WorldID = ? AND CharacterID = ?",
		worldID, characterID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// CheckOnlineRecord bumps the world's online record when numPlayers beats
// it and reports whether a new record was set.
func (s *Store) CheckOnlineRecord(ctx context.Context, worldID, numPlayers int) (bool, error) {
	affected, err := s.q.ExecContext(ctx, `
UPDATE Worlds SET OnlineRecord = ?, OnlineRecordTimestamp = UNIXEPOCH()
WHERE WorldID = ? AND OnlineRecord < ?`, numPlayers, worldID, numPlayers)
	return affected > 0, err
}
