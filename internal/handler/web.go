package handler

import (
	"context"
	"strings"

	"github.com/queryman/queryman/internal/auth"
	"github.com/queryman/queryman/internal/query"
)

func createAccount(ctx context.Context, env *Env, q *query.Query) {
	accountID := q.Request.Read32()
	email := q.Request.ReadString()
	password := q.Request.ReadString()

	if accountID == 0 || email == "" || password == "" {
		q.Fail()
		return
	}
	credential, err := auth.Generate(password)
	if err != nil {
		q.Fail()
		return
	}

	tx, st, err := env.Store.Begin(ctx)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	defer tx.Rollback()

	exists, err := st.AccountNumberExists(ctx, accountID)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	if exists {
		q.Error(1)
		return
	}
	exists, err = st.AccountEmailExists(ctx, email)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	if exists {
		q.Error(2)
		return
	}
	created, err := st.CreateAccount(ctx, accountID, email, credential)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	if !created {
		q.Error(1)
		return
	}
	if err := tx.Commit(); err != nil {
		dbFailure(env, q, err)
		return
	}
	q.Ok()
}

func createCharacter(ctx context.Context, env *Env, q *query.Query) {
	worldName := q.Request.ReadString()
	accountID := q.Request.Read32()
	characterName := q.Request.ReadString()
	sex := int(q.Request.Read8())

	if accountID == 0 || (sex != 1 && sex != 2) || worldName == "" || characterName == "" {
		q.Fail()
		return
	}

	tx, st, err := env.Store.Begin(ctx)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	defer tx.Rollback()

	worldID, err := st.GetWorldID(ctx, worldName)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	if worldID == 0 {
		q.Error(1)
		return
	}
	exists, err := st.AccountNumberExists(ctx, accountID)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	if !exists {
		q.Error(2)
		return
	}
	exists, err = st.CharacterNameExists(ctx, characterName)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	if exists {
		q.Error(3)
		return
	}
	created, err := st.CreateCharacter(ctx, worldID, accountID, characterName, sex)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	if !created {
		q.Error(3)
		return
	}
	if err := tx.Commit(); err != nil {
		dbFailure(env, q, err)
		return
	}
	q.Ok()
}

func getAccountSummary(ctx context.Context, env *Env, q *query.Query) {
	accountID := q.Request.Read32()
	if accountID == 0 {
		q.Fail()
		return
	}

	acct, err := env.Store.GetAccountData(ctx, accountID)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	if acct.AccountID != accountID {
		q.Fail()
		return
	}
	summaries, err := env.Store.GetCharacterSummaries(ctx, accountID)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	if len(summaries) > 255 {
		summaries = summaries[:255]
	}

	q.Ok()
	r := q.Response
	r.WriteString(acct.Email)
	r.Write16(uint16(acct.PremiumDays))
	r.Write16(uint16(acct.PendingPremiumDays))
	r.WriteFlag(acct.Deleted)
	r.Write8(uint8(len(summaries)))
	for _, c := range summaries {
		r.WriteString(c.Name)
		r.WriteString(c.World)
		r.Write16(uint16(c.Level))
		r.WriteString(c.Profession)
		r.WriteFlag(c.Online)
		r.WriteFlag(c.Deleted)
	}
}

func getCharacterProfile(ctx context.Context, env *Env, q *query.Query) {
	characterName := q.Request.ReadString()
	if characterName == "" {
		q.Fail()
		return
	}

	profile, found, err := env.Store.GetCharacterProfile(ctx, characterName)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	if !found || !strings.EqualFold(profile.Name, characterName) {
		q.Error(1)
		return
	}

	q.Ok()
	r := q.Response
	r.WriteString(profile.Name)
	r.WriteString(profile.World)
	r.Write8(uint8(profile.Sex))
	r.WriteString(profile.Guild)
	r.WriteString(profile.Rank)
	r.WriteString(profile.Title)
	r.Write16(uint16(profile.Level))
	r.WriteString(profile.Profession)
	r.WriteString(profile.Residence)
	r.Write32(uint32(profile.LastLogin))
	r.Write16(uint16(profile.PremiumDays))
	r.WriteFlag(profile.Online)
	r.WriteFlag(profile.Deleted)
}

func getWorlds(ctx context.Context, env *Env, q *query.Query) {
	worlds, err := env.Store.GetWorlds(ctx)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	if len(worlds) > 255 {
		worlds = worlds[:255]
	}
	q.Ok()
	r := q.Response
	r.Write8(uint8(len(worlds)))
	for _, w := range worlds {
		r.WriteString(w.Name)
		r.Write8(uint8(w.Type))
		r.Write16(uint16(w.NumPlayers))
		r.Write16(uint16(w.MaxPlayers))
		r.Write16(uint16(w.OnlineRecord))
		r.Write32(uint32(w.OnlineRecordTimestamp))
	}
}

func getOnlineCharacters(ctx context.Context, env *Env, q *query.Query) {
	worldName := q.Request.ReadString()
	worldID, err := env.Store.GetWorldID(ctx, worldName)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	if worldID == 0 {
		q.Fail()
		return
	}
	chars, err := env.Store.GetOnlineCharacters(ctx, worldID)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	q.Ok()
	r := q.Response
	r.Write16(uint16(len(chars)))
	for _, c := range chars {
		r.WriteString(c.Name)
		r.Write16(uint16(c.Level))
		r.WriteString(c.Profession)
	}
}

func getKillStatistics(ctx context.Context, env *Env, q *query.Query) {
	worldName := q.Request.ReadString()
	worldID, err := env.Store.GetWorldID(ctx, worldName)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	if worldID == 0 {
		q.Fail()
		return
	}
	stats, err := env.Store.GetKillStatistics(ctx, worldID)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	q.Ok()
	r := q.Response
	r.Write16(uint16(len(stats)))
	for _, st := range stats {
		r.WriteString(st.RaceName)
		r.Write32(uint32(st.PlayersKilled))
		r.Write32(uint32(st.TimesKilled))
	}
}
