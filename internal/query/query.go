// Package query defines the query objects exchanged between the connection
// front-end and the worker pool, together with the dispatch queue.
package query

import (
	"fmt"
	"sync/atomic"

	"github.com/queryman/queryman/internal/wire"
)

// Status is the response status byte.
type Status uint8

const (
	StatusOK     Status = 0
	StatusError  Status = 1
	StatusFailed Status = 3

	// StatusPending never goes on the wire: it marks a query whose
	// attempt hit a database failure and may be retried. Exhausted
	// retries convert it to StatusFailed.
	StatusPending Status = 4
)

// String returns a lower-case label for metrics and logs.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	case StatusFailed:
		return "failed"
	case StatusPending:
		return "pending"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Type is the query type byte, the first byte of every request payload.
type Type uint8

// Query type codes.
const (
	TypeLogin                Type = 0
	TypeInternalResolveWorld Type = 1

	TypeCheckAccountPassword Type = 10
	TypeLoginAccount         Type = 11
	TypeLoginAdmin           Type = 12

	TypeLoginGame               Type = 20
	TypeLogoutGame              Type = 21
	TypeSetNamelock             Type = 23
	TypeBanishAccount           Type = 25
	TypeSetNotation             Type = 26
	TypeReportStatement         Type = 27
	TypeBanishIPAddress         Type = 28
	TypeLogCharacterDeath       Type = 29
	TypeAddBuddy                Type = 30
	TypeRemoveBuddy             Type = 31
	TypeDecrementIsOnline       Type = 32
	TypeFinishAuctions          Type = 33
	TypeTransferHouses          Type = 35
	TypeEvictFreeAccounts       Type = 36
	TypeEvictDeletedCharacters  Type = 37
	TypeEvictExGuildleaders     Type = 38
	TypeInsertHouseOwner        Type = 39
	TypeUpdateHouseOwner        Type = 40
	TypeDeleteHouseOwner        Type = 41
	TypeGetHouseOwners          Type = 42
	TypeGetAuctions             Type = 43
	TypeStartAuction            Type = 44
	TypeInsertHouses            Type = 45
	TypeClearIsOnline           Type = 46
	TypeCreatePlayerlist        Type = 47
	TypeLogKilledCreatures      Type = 48
	TypeLoadPlayers             Type = 50
	TypeExcludeFromAuctions     Type = 51
	TypeCancelHouseTransfer     Type = 52
	TypeLoadWorldConfig         Type = 53

	TypeCreateAccount       Type = 100
	TypeCreateCharacter     Type = 101
	TypeGetAccountSummary   Type = 102
	TypeGetCharacterProfile Type = 103

	TypeGetWorlds           Type = 150
	TypeGetOnlineCharacters Type = 151
	TypeGetKillStatistics   Type = 152
)

var typeNames = map[Type]string{
	TypeLogin:                   "LOGIN",
	TypeInternalResolveWorld:    "INTERNAL_RESOLVE_WORLD",
	TypeCheckAccountPassword:    "CHECK_ACCOUNT_PASSWORD",
	TypeLoginAccount:            "LOGIN_ACCOUNT",
	TypeLoginAdmin:              "LOGIN_ADMIN",
	TypeLoginGame:               "LOGIN_GAME",
	TypeLogoutGame:              "LOGOUT_GAME",
	TypeSetNamelock:             "SET_NAMELOCK",
	TypeBanishAccount:           "BANISH_ACCOUNT",
	TypeSetNotation:             "SET_NOTATION",
	TypeReportStatement:         "REPORT_STATEMENT",
	TypeBanishIPAddress:         "BANISH_IP_ADDRESS",
	TypeLogCharacterDeath:       "LOG_CHARACTER_DEATH",
	TypeAddBuddy:                "ADD_BUDDY",
	TypeRemoveBuddy:             "REMOVE_BUDDY",
	TypeDecrementIsOnline:       "DECREMENT_IS_ONLINE",
	TypeFinishAuctions:          "FINISH_AUCTIONS",
	TypeTransferHouses:          "TRANSFER_HOUSES",
	TypeEvictFreeAccounts:       "EVICT_FREE_ACCOUNTS",
	TypeEvictDeletedCharacters:  "EVICT_DELETED_CHARACTERS",
	TypeEvictExGuildleaders:     "EVICT_EX_GUILDLEADERS",
	TypeInsertHouseOwner:        "INSERT_HOUSE_OWNER",
	TypeUpdateHouseOwner:        "UPDATE_HOUSE_OWNER",
	TypeDeleteHouseOwner:        "DELETE_HOUSE_OWNER",
	TypeGetHouseOwners:          "GET_HOUSE_OWNERS",
	TypeGetAuctions:             "GET_AUCTIONS",
	TypeStartAuction:            "START_AUCTION",
	TypeInsertHouses:            "INSERT_HOUSES",
	TypeClearIsOnline:           "CLEAR_IS_ONLINE",
	TypeCreatePlayerlist:        "CREATE_PLAYERLIST",
	TypeLogKilledCreatures:      "LOG_KILLED_CREATURES",
	TypeLoadPlayers:             "LOAD_PLAYERS",
	TypeExcludeFromAuctions:     "EXCLUDE_FROM_AUCTIONS",
	TypeCancelHouseTransfer:     "CANCEL_HOUSE_TRANSFER",
	TypeLoadWorldConfig:         "LOAD_WORLD_CONFIG",
	TypeCreateAccount:           "CREATE_ACCOUNT",
	TypeCreateCharacter:         "CREATE_CHARACTER",
	TypeGetAccountSummary:       "GET_ACCOUNT_SUMMARY",
	TypeGetCharacterProfile:     "GET_CHARACTER_PROFILE",
	TypeGetWorlds:               "GET_WORLDS",
	TypeGetOnlineCharacters:     "GET_ONLINE_CHARACTERS",
	TypeGetKillStatistics:       "GET_KILL_STATISTICS",
}

// String returns the query name, or "UNKNOWN" for unassigned codes.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// Query is one in-flight request. The connection that created it holds one
// reference; enqueueing hands a second reference to the worker. Both sides
// call Done exactly once.
type Query struct {
	Type      Type
	WorldID   int
	Request   *wire.ReadBuffer
	Response  *wire.WriteBuffer
	Status    Status
	ErrorCode uint8

	refs  atomic.Int32
	ready chan struct{}
}

// New builds a query over the request payload. The first payload byte is
// the type code; the request buffer is positioned just past it.
func New(payload []byte, responseSize int) *Query {
	q := &Query{
		Request:  wire.NewReadBuffer(payload),
		Response: wire.NewWriteBuffer(responseSize),
		Status:   StatusPending,
		ready:    make(chan struct{}),
	}
	if len(payload) > 0 {
		q.Type = Type(payload[0])
		q.Request.Position = 1
	}
	q.refs.Store(1)
	return q
}

// Acquire takes the worker's reference before enqueueing. It fails when
// the query is already in flight.
func (q *Query) Acquire() bool {
	return q.refs.CompareAndSwap(1, 2)
}

// Done releases one reference and returns the remaining count.
func (q *Query) Done() int32 {
	n := q.refs.Add(-1)
	if n < 0 {
		panic("query: Done called more times than references held")
	}
	return n
}

// Refs returns the current reference count.
func (q *Query) Refs() int32 {
	return q.refs.Load()
}

// Ready is closed by the worker once the response is complete.
func (q *Query) Ready() <-chan struct{} {
	return q.ready
}

// Finish publishes the response: the worker's reference is dropped and the
// waiting connection is woken.
func (q *Query) Finish() {
	q.Done()
	close(q.ready)
}

// RewindRequest repositions the request at the first byte after the type
// code, so a retried attempt re-reads the same parameters.
func (q *Query) RewindRequest() {
	q.Request.Position = 1
}

func (q *Query) beginResponse(status Status) {
	q.Status = status
	q.Response.Reset()
	q.Response.Write16(0) // frame length, patched by Finalize
	q.Response.Write8(uint8(status))
}

// Ok starts an OK response. The handler appends the body afterwards.
func (q *Query) Ok() {
	q.beginResponse(StatusOK)
}

// Error starts an ERROR response carrying a one-byte error code.
func (q *Query) Error(code uint8) {
	q.ErrorCode = code
	q.beginResponse(StatusError)
	q.Response.Write8(code)
}

// Fail starts a FAILED response.
func (q *Query) Fail() {
	q.beginResponse(StatusFailed)
}

// Pend marks the query retryable after a database failure. No response is
// produced; an exhausted retry budget converts this to a FAILED response.
func (q *Query) Pend() {
	q.Status = StatusPending
}

// ErrResponseInvalid is returned by Finalize for overflowed or empty
// responses.
var ErrResponseInvalid = fmt.Errorf("query: response buffer overflowed or empty")

// Finalize patches the frame length into the response and returns the
// bytes ready to write to the socket.
func (q *Query) Finalize() ([]byte, error) {
	r := q.Response
	if r.Overflowed() || r.Position <= 2 {
		return nil, ErrResponseInvalid
	}
	payload := r.Position - 2
	if payload < 0xFFFF {
		r.Rewrite16(0, uint16(payload))
	} else {
		r.Rewrite16(0, 0xFFFF)
		r.Insert32(2, uint32(payload))
		if r.Overflowed() {
			return nil, ErrResponseInvalid
		}
	}
	return r.Bytes(), nil
}
