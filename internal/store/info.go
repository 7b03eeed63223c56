package store

import "context"

// GetKillStatistics lists the kill tallies of a world.
func (s *Store) GetKillStatistics(ctx context.Context, worldID int) ([]KillStatistics, error) {
	var stats []KillStatistics
	err := s.q.SelectContext(ctx, &stats,
		"SELECT RaceName, TimesKilled, PlayersKilled FROM KillStatistics WHERE WorldID = ?",
		worldID)
	return stats, err
}

// MergeKillStatistics adds a batch of kill tallies into the world's
// running totals. Callers hold a transaction, so the update-then-insert
// cannot race another merge of the same world.
func (s *Store) MergeKillStatistics(ctx context.Context, worldID int, stats []KillStatistics) error {
	for _, st := range stats {
		affected, err := s.q.ExecContext(ctx, `
UPDATE KillStatistics
SET TimesKilled = TimesKilled + ?, PlayersKilled = PlayersKilled + ?
WHERE WorldID = ? AND RaceName = ?`,
			st.TimesKilled, st.PlayersKilled, worldID, st.RaceName)
		if err != nil {
			return err
		}
		if affected > 0 {
			continue
		}
		_, err = s.q.ExecContext(ctx, `
INSERT INTO KillStatistics (WorldID, RaceName, TimesKilled, PlayersKilled)
VALUES (?, ?, ?, ?)`,
			worldID, st.RaceName, st.TimesKilled, st.PlayersKilled)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetOnlineCharacters lists a world's online player list.
func (s *Store) GetOnlineCharacters(ctx context.Context, worldID int) ([]OnlineCharacter, error) {
	var chars []OnlineCharacter
	err := s.q.SelectContext(ctx, &chars,
		"SELECT Name, Level, Profession FROM OnlineCharacters WHERE WorldID = ?",
		worldID)
	return chars, err
}

// DeleteOnlineCharacters clears a world's online player list.
func (s *Store) DeleteOnlineCharacters(ctx context.Context, worldID int) error {
	_, err := s.q.ExecContext(ctx,
		"DELETE FROM OnlineCharacters WHERE WorldID = ?", worldID)
	return err
}

// InsertOnlineCharacters writes a world's online player list.
func (s *Store) InsertOnlineCharacters(ctx context.Context, worldID int, chars []OnlineCharacter) error {
	for _, c := range chars {
		_, err := s.q.ExecContext(ctx,
			"INSERT INTO OnlineCharacters (WorldID, Name, Level, Profession) VALUES (?, ?, ?, ?)",
			worldID, c.Name, c.Level, c.Profession)
		if err != nil {
			return err
		}
	}
	return nil
}
