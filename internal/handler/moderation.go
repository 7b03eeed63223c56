package handler

import (
	"context"

	"github.com/queryman/queryman/internal/query"
	"github.com/queryman/queryman/internal/store"
)

const (
	banishmentBaseDays   = 7
	ipBanishmentDuration = 3 * 86400
	notationLimit        = 5
)

func setNamelock(ctx context.Context, env *Env, q *query.Query) {
	gamemasterID := q.Request.Read32()
	characterName := q.Request.ReadString()
	ipString := q.Request.ReadString()
	reason := q.Request.ReadString()
	comment := q.Request.ReadString()

	address, ok := parseOptionalIPv4(ipString)
	if !ok {
		q.Fail()
		return
	}

	tx, st, err := env.Store.Begin(ctx)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	defer tx.Rollback()

	characterID, err := st.GetCharacterID(ctx, q.WorldID, characterName)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	if characterID == 0 {
		q.Error(1)
		return
	}
	// Characters holding the NAMELOCK right cannot be namelocked.
	immune, err := st.GetCharacterRight(ctx, characterID, "NAMELOCK")
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	if immune {
		q.Error(2)
		return
	}
	status, err := st.GetNamelockStatus(ctx, characterID)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	if status.Namelocked {
		if status.Approved {
			q.Error(4)
		} else {
			q.Error(3)
		}
		return
	}
	if err := st.InsertNamelock(ctx, characterID, address, gamemasterID, reason, comment); err != nil {
		dbFailure(env, q, err)
		return
	}
	if err := tx.Commit(); err != nil {
		dbFailure(env, q, err)
		return
	}
	q.Ok()
}

func banishAccount(ctx context.Context, env *Env, q *query.Query) {
	gamemasterID := q.Request.Read32()
	characterName := q.Request.ReadString()
	ipString := q.Request.ReadString()
	reason := q.Request.ReadString()
	comment := q.Request.ReadString()
	finalWarning := q.Request.ReadFlag()

	address, ok := parseOptionalIPv4(ipString)
	if !ok {
		q.Fail()
		return
	}

	tx, st, err := env.Store.Begin(ctx)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	defer tx.Rollback()

	characterID, err := st.GetCharacterID(ctx, q.WorldID, characterName)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	if characterID == 0 {
		q.Error(1)
		return
	}
	immune, err := st.GetCharacterRight(ctx, characterID, "BANISHMENT")
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	if immune {
		q.Error(2)
		return
	}
	status, err := st.GetBanishmentStatus(ctx, characterID)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	if status.Banished {
		q.Error(3)
		return
	}

	days := banishmentBaseDays
	compoundBanishment(status, &days, &finalWarning)
	banishmentID, err := st.InsertBanishment(ctx, characterID, address, gamemasterID,
		reason, comment, finalWarning, int64(days)*86400)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	if err := tx.Commit(); err != nil {
		dbFailure(env, q, err)
		return
	}

	q.Ok()
	r := q.Response
	r.Write32(uint32(banishmentID))
	if days > 0 {
		r.Write8(uint8(days))
	} else {
		r.Write8(0xFF) // permanent
	}
	r.WriteFlag(finalWarning)
}

func setNotation(ctx context.Context, env *Env, q *query.Query) {
	gamemasterID := q.Request.Read32()
	characterName := q.Request.ReadString()
	ipString := q.Request.ReadString()
	reason := q.Request.ReadString()
	comment := q.Request.ReadString()

	address, ok := parseOptionalIPv4(ipString)
	if !ok {
		q.Fail()
		return
	}

	tx, st, err := env.Store.Begin(ctx)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	defer tx.Rollback()

	characterID, err := st.GetCharacterID(ctx, q.WorldID, characterName)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	if characterID == 0 {
		q.Error(1)
		return
	}
	immune, err := st.GetCharacterRight(ctx, characterID, "NOTATION")
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	if immune {
		q.Error(2)
		return
	}

	count, err := st.GetNotationCount(ctx, characterID)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	banishmentID := 0
	if count >= notationLimit {
		status, err := st.GetBanishmentStatus(ctx, characterID)
		if err != nil {
			dbFailure(env, q, err)
			return
		}
		days := banishmentBaseDays
		finalWarning := false
		compoundBanishment(status, &days, &finalWarning)
		// Issued by the system, not the reporting gamemaster.
		banishmentID, err = st.InsertBanishment(ctx, characterID, address, 0,
			"Excessive Notations", "", finalWarning, int64(days)*86400)
		if err != nil {
			dbFailure(env, q, err)
			return
		}
	}
	if err := st.InsertNotation(ctx, characterID, address, gamemasterID, reason, comment); err != nil {
		dbFailure(env, q, err)
		return
	}
	if err := tx.Commit(); err != nil {
		dbFailure(env, q, err)
		return
	}

	q.Ok()
	q.Response.Write32(uint32(banishmentID))
}

func reportStatement(ctx context.Context, env *Env, q *query.Query) {
	reporterID := q.Request.Read32()
	characterName := q.Request.ReadString()
	reason := q.Request.ReadString()
	comment := q.Request.ReadString()
	banishmentID := q.Request.Read32()
	statementID := q.Request.Read32()
	numStatements := int(q.Request.Read16())

	if statementID == 0 || numStatements == 0 {
		q.Fail()
		return
	}

	statements := make([]store.Statement, 0, numStatements)
	var reported *store.Statement
	for i := 0; i < numStatements; i++ {
		st := store.Statement{
			StatementID: q.Request.Read32(),
			Timestamp:   int64(q.Request.Read32()),
			CharacterID: q.Request.Read32(),
			Channel:     q.Request.ReadString(),
			Text:        q.Request.ReadString(),
		}
		statements = append(statements, st)
		if st.StatementID == statementID {
			reported = &statements[len(statements)-1]
		}
	}
	if reported == nil {
		q.Fail()
		return
	}

	tx, st, err := env.Store.Begin(ctx)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	defer tx.Rollback()

	characterID, err := st.GetCharacterID(ctx, q.WorldID, characterName)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	if characterID == 0 {
		q.Error(1)
		return
	}
	if reported.CharacterID != characterID {
		q.Fail()
		return
	}
	alreadyReported, err := st.IsStatementReported(ctx, q.WorldID, reported.Timestamp, statementID)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	if alreadyReported {
		q.Error(2)
		return
	}
	if err := st.InsertStatements(ctx, q.WorldID, statements); err != nil {
		dbFailure(env, q, err)
		return
	}
	if err := st.InsertReportedStatement(ctx, q.WorldID, *reported,
		int(banishmentID), reporterID, reason, comment); err != nil {
		dbFailure(env, q, err)
		return
	}
	if err := tx.Commit(); err != nil {
		dbFailure(env, q, err)
		return
	}
	q.Ok()
}

func banishIPAddress(ctx context.Context, env *Env, q *query.Query) {
	// The gamemaster id rides in a 16 bit field on this query.
	gamemasterID := uint32(q.Request.Read16())
	characterName := q.Request.ReadString()
	ipString := q.Request.ReadString()
	reason := q.Request.ReadString()
	comment := q.Request.ReadString()

	address, ok := parseIPv4(ipString)
	if !ok {
		q.Fail()
		return
	}

	tx, st, err := env.Store.Begin(ctx)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	defer tx.Rollback()

	characterID, err := st.GetCharacterID(ctx, q.WorldID, characterName)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	if characterID == 0 {
		q.Error(1)
		return
	}
	immune, err := st.GetCharacterRight(ctx, characterID, "IP_BANISHMENT")
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	if immune {
		q.Error(2)
		return
	}
	if err := st.InsertIPBanishment(ctx, characterID, address, gamemasterID, reason, comment, ipBanishmentDuration); err != nil {
		dbFailure(env, q, err)
		return
	}
	if err := tx.Commit(); err != nil {
		dbFailure(env, q, err)
		return
	}
	q.Ok()
}
