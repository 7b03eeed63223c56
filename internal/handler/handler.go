// Package handler implements one handler per query type. Handlers parse
// the request buffer, run against the store, and write the response; a
// database failure marks the query pending so the worker can retry it.
package handler

import (
	"context"
	"encoding/binary"
	"log/slog"
	"net"

	"github.com/queryman/queryman/internal/hostcache"
	"github.com/queryman/queryman/internal/query"
	"github.com/queryman/queryman/internal/store"
)

// Env holds what a handler needs beyond the query itself.
type Env struct {
	Store *store.Store
	Hosts *hostcache.Cache
	Log   *slog.Logger
}

// Func executes one query. The handler sets the query's status through
// Ok, Error, Fail or Pend before returning.
type Func func(ctx context.Context, env *Env, q *query.Query)

var handlers = map[query.Type]Func{
	query.TypeInternalResolveWorld: resolveWorld,

	query.TypeCheckAccountPassword: checkAccountPassword,
	query.TypeLoginAccount:         loginAccount,

	query.TypeLoginGame:              loginGame,
	query.TypeLogoutGame:             logoutGame,
	query.TypeSetNamelock:            setNamelock,
	query.TypeBanishAccount:          banishAccount,
	query.TypeSetNotation:            setNotation,
	query.TypeReportStatement:        reportStatement,
	query.TypeBanishIPAddress:        banishIPAddress,
	query.TypeLogCharacterDeath:      logCharacterDeath,
	query.TypeAddBuddy:               addBuddy,
	query.TypeRemoveBuddy:            removeBuddy,
	query.TypeDecrementIsOnline:      decrementIsOnline,
	query.TypeFinishAuctions:         finishAuctions,
	query.TypeTransferHouses:         transferHouses,
	query.TypeEvictFreeAccounts:      evictFreeAccounts,
	query.TypeEvictDeletedCharacters: evictDeletedCharacters,
	query.TypeEvictExGuildleaders:    evictExGuildleaders,
	query.TypeInsertHouseOwner:       insertHouseOwner,
	query.TypeUpdateHouseOwner:       updateHouseOwner,
	query.TypeDeleteHouseOwner:       deleteHouseOwner,
	query.TypeGetHouseOwners:         getHouseOwners,
	query.TypeGetAuctions:            getAuctions,
	query.TypeStartAuction:           startAuction,
	query.TypeInsertHouses:           insertHouses,
	query.TypeClearIsOnline:          clearIsOnline,
	query.TypeCreatePlayerlist:       createPlayerlist,
	query.TypeLogKilledCreatures:     logKilledCreatures,
	query.TypeLoadPlayers:            loadPlayers,
	query.TypeExcludeFromAuctions:    excludeFromAuctions,
	query.TypeCancelHouseTransfer:    cancelHouseTransfer,
	query.TypeLoadWorldConfig:        loadWorldConfig,

	query.TypeCreateAccount:       createAccount,
	query.TypeCreateCharacter:     createCharacter,
	query.TypeGetAccountSummary:   getAccountSummary,
	query.TypeGetCharacterProfile: getCharacterProfile,

	query.TypeGetWorlds:           getWorlds,
	query.TypeGetOnlineCharacters: getOnlineCharacters,
	query.TypeGetKillStatistics:   getKillStatistics,
}

// Dispatch returns the handler for a query type. LOGIN is handled by the
// connection front-end and LOGIN_ADMIN has no handler; both miss here.
func Dispatch(t query.Type) (Func, bool) {
	f, ok := handlers[t]
	return f, ok
}

// dbFailure marks the query pending after a database error. The worker
// retries pending queries until its attempt budget runs out.
func dbFailure(env *Env, q *query.Query, err error) {
	env.Log.Warn("query hit a database failure",
		"query", q.Type.String(), "err", err)
	q.Pend()
}

// parseIPv4 parses a dotted-quad address into host byte order.
func parseIPv4(s string) (uint32, bool) {
	ip := net.ParseIP(s)
	if ip == nil {
		return 0, false
	}
	v4 := ip.To4()
	if v4 == nil {
		return 0, false
	}
	return binary.BigEndian.Uint32(v4), true
}

// parseOptionalIPv4 treats an empty string as address zero.
func parseOptionalIPv4(s string) (uint32, bool) {
	if s == "" {
		return 0, true
	}
	return parseIPv4(s)
}
