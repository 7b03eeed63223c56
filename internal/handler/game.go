package handler

import (
	"context"

	"github.com/queryman/queryman/internal/query"
	"github.com/queryman/queryman/internal/store"
)

// loadPlayersLimit bounds one page of the character index.
const loadPlayersLimit = 10000

func logoutGame(ctx context.Context, env *Env, q *query.Query) {
	characterID := q.Request.Read32()
	level := int(q.Request.Read16())
	profession := q.Request.ReadString()
	residence := q.Request.ReadString()
	lastLoginTime := int64(q.Request.Read32())
	tutorActivities := int(q.Request.Read16())

	err := env.Store.LogoutCharacter(ctx, q.WorldID, characterID, level,
		profession, residence, lastLoginTime, tutorActivities)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	q.Ok()
}

func logCharacterDeath(ctx context.Context, env *Env, q *query.Query) {
	characterID := q.Request.Read32()
	level := int(q.Request.Read16())
	offenderID := q.Request.Read32()
	remark := q.Request.ReadString()
	unjustified := q.Request.ReadFlag()
	timestamp := int64(q.Request.Read32())

	err := env.Store.InsertCharacterDeath(ctx, q.WorldID, characterID, level,
		offenderID, remark, unjustified, timestamp)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	q.Ok()
}

func addBuddy(ctx context.Context, env *Env, q *query.Query) {
	accountID := q.Request.Read32()
	buddyID := q.Request.Read32()
	if err := env.Store.InsertBuddy(ctx, q.WorldID, accountID, buddyID); err != nil {
		dbFailure(env, q, err)
		return
	}
	q.Ok()
}

func removeBuddy(ctx context.Context, env *Env, q *query.Query) {
	accountID := q.Request.Read32()
	buddyID := q.Request.Read32()
	if err := env.Store.DeleteBuddy(ctx, q.WorldID, accountID, buddyID); err != nil {
		dbFailure(env, q, err)
		return
	}
	q.Ok()
}

func decrementIsOnline(ctx context.Context, env *Env, q *query.Query) {
	characterID := q.Request.Read32()
	if err := env.Store.DecrementIsOnline(ctx, q.WorldID, characterID); err != nil {
		dbFailure(env, q, err)
		return
	}
	q.Ok()
}

func clearIsOnline(ctx context.Context, env *Env, q *query.Query) {
	affected, err := env.Store.ClearIsOnline(ctx, q.WorldID)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	q.Ok()
	q.Response.Write16(uint16(affected))
}

func createPlayerlist(ctx context.Context, env *Env, q *query.Query) {
	tx, st, err := env.Store.Begin(ctx)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	defer tx.Rollback()

	if err := st.DeleteOnlineCharacters(ctx, q.WorldID); err != nil {
		dbFailure(env, q, err)
		return
	}

	numCharacters := q.Request.Read16()
	var chars []store.OnlineCharacter
	if numCharacters != 0xFFFF && numCharacters > 0 {
		chars = make([]store.OnlineCharacter, 0, numCharacters)
		for i := 0; i < int(numCharacters); i++ {
			chars = append(chars, store.OnlineCharacter{
				Name:       q.Request.ReadString(),
				Level:      int(q.Request.Read16()),
				Profession: q.Request.ReadString(),
			})
		}
		if err := st.InsertOnlineCharacters(ctx, q.WorldID, chars); err != nil {
			dbFailure(env, q, err)
			return
		}
	}

	newRecord, err := st.CheckOnlineRecord(ctx, q.WorldID, len(chars))
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	if err := tx.Commit(); err != nil {
		dbFailure(env, q, err)
		return
	}
	q.Ok()
	q.Response.WriteFlag(newRecord)
}

func logKilledCreatures(ctx context.Context, env *Env, q *query.Query) {
	numRaces := int(q.Request.Read16())
	stats := make([]store.KillStatistics, 0, numRaces)
	for i := 0; i < numRaces; i++ {
		stats = append(stats, store.KillStatistics{
			RaceName:      q.Request.ReadString(),
			PlayersKilled: int(q.Request.Read32()),
			TimesKilled:   int(q.Request.Read32()),
		})
	}
	if len(stats) > 0 {
		tx, st, err := env.Store.Begin(ctx)
		if err != nil {
			dbFailure(env, q, err)
			return
		}
		defer tx.Rollback()
		if err := st.MergeKillStatistics(ctx, q.WorldID, stats); err != nil {
			dbFailure(env, q, err)
			return
		}
		if err := tx.Commit(); err != nil {
			dbFailure(env, q, err)
			return
		}
	}
	q.Ok()
}

func loadPlayers(ctx context.Context, env *Env, q *query.Query) {
	minimumCharacterID := q.Request.Read32()
	entries, err := env.Store.GetCharacterIndexEntries(ctx, q.WorldID,
		minimumCharacterID, loadPlayersLimit)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	q.Ok()
	r := q.Response
	r.Write32(uint32(len(entries)))
	for _, e := range entries {
		r.WriteString(e.Name)
		r.Write32(e.CharacterID)
	}
}

func loadWorldConfig(ctx context.Context, env *Env, q *query.Query) {
	cfg, err := env.Store.GetWorldConfig(ctx, q.WorldID)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	if cfg.WorldID == 0 {
		q.Fail()
		return
	}
	address, ok := env.Hosts.Resolve(cfg.Host)
	if !ok {
		q.Fail()
		return
	}
	q.Ok()
	r := q.Response
	r.Write8(uint8(cfg.Type))
	r.Write8(uint8(cfg.RebootTime))
	r.Write32BE(address)
	r.Write16(uint16(cfg.Port))
	r.Write16(uint16(cfg.MaxPlayers))
	r.Write16(uint16(cfg.PremiumPlayerBuffer))
	r.Write16(uint16(cfg.MaxNewbies))
	r.Write16(uint16(cfg.PremiumNewbieBuffer))
}
