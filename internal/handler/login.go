package handler

import (
	"context"

	"github.com/queryman/queryman/internal/auth"
	"github.com/queryman/queryman/internal/query"
	"github.com/queryman/queryman/internal/store"
)

// Failed login attempts are rate limited per account and per address.
const (
	accountAttemptWindow = 5 * 60
	accountAttemptLimit  = 10
	addressAttemptWindow = 30 * 60
	addressAttemptLimit  = 20
)

func resolveWorld(ctx context.Context, env *Env, q *query.Query) {
	worldName := q.Request.ReadString()
	worldID, err := env.Store.GetWorldID(ctx, worldName)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	if worldID <= 0 {
		q.Fail()
		return
	}
	q.WorldID = worldID
	q.Ok()
}

// checkAccountLogin runs the credential and rate limit checks shared by
// the account login queries. A zero code means the login is good.
func checkAccountLogin(ctx context.Context, st *store.Store, acct store.Account, password string, address uint32) (uint8, error) {
	if acct.AccountID == 0 {
		return 1, nil
	}
	if !auth.Test(password, acct.Auth) {
		return 2, nil
	}
	attempts, err := st.GetAccountFailedLoginAttempts(ctx, acct.AccountID, accountAttemptWindow)
	if err != nil {
		return 0, err
	}
	if attempts > accountAttemptLimit {
		return 3, nil
	}
	attempts, err = st.GetIPFailedLoginAttempts(ctx, address, addressAttemptWindow)
	if err != nil {
		return 0, err
	}
	if attempts > addressAttemptLimit {
		return 4, nil
	}
	return 0, nil
}

// recordLoginAttempt logs the attempt outside the transaction so the
// record survives a rolled-back login. Pending queries are retried whole,
// so nothing is recorded for them.
func recordLoginAttempt(ctx context.Context, env *Env, q *query.Query, accountID, address uint32) {
	if q.Status == query.StatusPending {
		return
	}
	failed := q.Status != query.StatusOK
	if err := env.Store.InsertLoginAttempt(ctx, accountID, address, failed); err != nil {
		env.Log.Warn("recording login attempt failed",
			"account", accountID, "err", err)
	}
}

func checkAccountPassword(ctx context.Context, env *Env, q *query.Query) {
	accountID := q.Request.Read32()
	password := q.Request.ReadString()
	address, ok := parseIPv4(q.Request.ReadString())
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

	acct, err := st.GetAccountData(ctx, accountID)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	code, err := checkAccountLogin(ctx, st, acct, password, address)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	if code != 0 {
		q.Error(code)
	} else if err := tx.Commit(); err != nil {
		dbFailure(env, q, err)
		return
	} else {
		q.Ok()
	}
	recordLoginAttempt(ctx, env, q, accountID, address)
}

func loginAccount(ctx context.Context, env *Env, q *query.Query) {
	accountID := q.Request.Read32()
	password := q.Request.ReadString()
	address, ok := parseIPv4(q.Request.ReadString())
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

	acct, err := st.GetAccountData(ctx, accountID)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	code, err := checkAccountLogin(ctx, st, acct, password, address)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	if code == 0 {
		banished, err := st.IsAccountBanished(ctx, accountID)
		if err != nil {
			dbFailure(env, q, err)
			return
		}
		if banished {
			code = 5
		}
	}
	if code == 0 {
		banished, err := st.IsIPBanished(ctx, address)
		if err != nil {
			dbFailure(env, q, err)
			return
		}
		if banished {
			code = 6
		}
	}
	if code != 0 {
		q.Error(code)
		recordLoginAttempt(ctx, env, q, accountID, address)
		return
	}

	endpoints, err := st.GetCharacterEndpoints(ctx, accountID)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	if err := tx.Commit(); err != nil {
		dbFailure(env, q, err)
		return
	}

	if len(endpoints) > 255 {
		endpoints = endpoints[:255]
	}
	q.Ok()
	r := q.Response
	r.Write8(uint8(len(endpoints)))
	for _, e := range endpoints {
		r.WriteString(e.Name)
		r.WriteString(e.WorldName)
		addr, ok := env.Hosts.Resolve(e.WorldHost)
		port := e.WorldPort
		if !ok {
			env.Log.Error("world host did not resolve", "host", e.WorldHost)
			addr, port = 0, 0
		}
		r.Write32BE(addr)
		r.Write16(uint16(port))
	}
	r.Write16(uint16(acct.PremiumDays + acct.PendingPremiumDays))
	recordLoginAttempt(ctx, env, q, accountID, address)
}

// gameLogin is the state gathered while admitting a game login.
type gameLogin struct {
	char             store.CharacterLoginData
	buddies          []store.AccountBuddy
	rights           []string
	premiumActivated bool
}

// admitGameLogin runs the game login checks and side effects inside the
// transaction. A zero code means the character was admitted.
func admitGameLogin(ctx context.Context, st *store.Store, worldID int, accountID uint32, characterName, password string, address uint32, privateWorld, gamemasterRequired bool) (gameLogin, uint8, error) {
	var login gameLogin

	char, err := st.GetCharacterLoginData(ctx, characterName)
	if err != nil {
		return login, 0, err
	}
	login.char = char
	if char.CharacterID == 0 {
		return login, 1, nil
	}
	if char.Deleted {
		return login, 2, nil
	}
	if char.WorldID != worldID {
		return login, 3, nil
	}
	if privateWorld {
		invited, err := st.GetWorldInvitation(ctx, worldID, char.CharacterID)
		if err != nil {
			return login, 0, err
		}
		if !invited {
			return login, 4, nil
		}
	}

	acct, err := st.GetAccountData(ctx, char.AccountID)
	if err != nil {
		return login, 0, err
	}
	if acct.AccountID == 0 || acct.AccountID != accountID {
		return login, 15, nil
	}
	if acct.Deleted {
		return login, 8, nil
	}
	if !auth.Test(password, acct.Auth) {
		return login, 6, nil
	}

	attempts, err := st.GetAccountFailedLoginAttempts(ctx, accountID, accountAttemptWindow)
	if err != nil {
		return login, 0, err
	}
	if attempts > accountAttemptLimit {
		return login, 7, nil
	}
	attempts, err = st.GetIPFailedLoginAttempts(ctx, address, addressAttemptWindow)
	if err != nil {
		return login, 0, err
	}
	if attempts > addressAttemptLimit {
		return login, 9, nil
	}

	if banished, err := st.IsAccountBanished(ctx, accountID); err != nil {
		return login, 0, err
	} else if banished {
		return login, 10, nil
	}
	if namelocked, err := st.IsCharacterNamelocked(ctx, char.CharacterID); err != nil {
		return login, 0, err
	} else if namelocked {
		return login, 11, nil
	}
	if banished, err := st.IsIPBanished(ctx, address); err != nil {
		return login, 0, err
	} else if banished {
		return login, 12, nil
	}

	multiclient, err := st.GetCharacterRight(ctx, char.CharacterID, "ALLOW_MULTICLIENT")
	if err != nil {
		return login, 0, err
	}
	if !multiclient {
		online, err := st.GetAccountOnlineCharacters(ctx, accountID)
		if err != nil {
			return login, 0, err
		}
		if online > 0 {
			self, err := st.IsCharacterOnline(ctx, char.CharacterID)
			if err != nil {
				return login, 0, err
			}
			if !self {
				return login, 13, nil
			}
		}
	}
	if gamemasterRequired {
		gamemaster, err := st.GetCharacterRight(ctx, char.CharacterID, "GAMEMASTER_OUTFIT")
		if err != nil {
			return login, 0, err
		}
		if !gamemaster {
			return login, 14, nil
		}
	}

	login.buddies, err = st.GetBuddies(ctx, worldID, accountID)
	if err != nil {
		return login, 0, err
	}
	login.rights, err = st.GetCharacterRights(ctx, char.CharacterID)
	if err != nil {
		return login, 0, err
	}

	if acct.PremiumDays == 0 && acct.PendingPremiumDays > 0 {
		if err := st.ActivatePendingPremiumDays(ctx, accountID); err != nil {
			return login, 0, err
		}
		acct.PremiumDays += acct.PendingPremiumDays
		login.premiumActivated = true
	}
	if acct.PremiumDays > 0 {
		login.rights = append(login.rights, "PREMIUM_ACCOUNT")
	}

	if err := st.IncrementIsOnline(ctx, worldID, char.CharacterID); err != nil {
		return login, 0, err
	}
	return login, 0, nil
}

func loginGame(ctx context.Context, env *Env, q *query.Query) {
	accountID := q.Request.Read32()
	characterName := q.Request.ReadString()
	password := q.Request.ReadString()
	ipString := q.Request.ReadString()
	privateWorld := q.Request.ReadFlag()
	q.Request.ReadFlag() // reserved
	gamemasterRequired := q.Request.ReadFlag()

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

	login, code, err := admitGameLogin(ctx, st, q.WorldID, accountID,
		characterName, password, address, privateWorld, gamemasterRequired)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	if code != 0 {
		q.Error(code)
		recordLoginAttempt(ctx, env, q, accountID, address)
		return
	}
	if err := tx.Commit(); err != nil {
		dbFailure(env, q, err)
		return
	}

	if len(login.buddies) > 255 {
		login.buddies = login.buddies[:255]
	}
	if len(login.rights) > 255 {
		login.rights = login.rights[:255]
	}
	q.Ok()
	r := q.Response
	r.Write32(login.char.CharacterID)
	r.WriteString(login.char.Name)
	r.Write8(uint8(login.char.Sex))
	r.WriteString(login.char.Guild)
	r.WriteString(login.char.Rank)
	r.WriteString(login.char.Title)
	r.Write8(uint8(len(login.buddies)))
	for _, b := range login.buddies {
		r.Write32(b.CharacterID)
		r.WriteString(b.Name)
	}
	r.Write8(uint8(len(login.rights)))
	for _, right := range login.rights {
		r.WriteString(right)
	}
	r.WriteFlag(login.premiumActivated)
	recordLoginAttempt(ctx, env, q, accountID, address)
}
