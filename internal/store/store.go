// Package store implements the typed database accessors for the game
// schema. All statements use the embedded-database dialect and run through
// the session's statement cache; inside transactions the same accessors
// operate on the transaction instead.
package store

import (
	"context"
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/queryman/queryman/internal/database"
)

// Store runs accessors against a session or, after Begin, a transaction.
type Store struct {
	q    database.Querier
	sess *database.Session
}

// New creates a Store over a session.
func New(sess *database.Session) *Store {
	return &Store{q: sess, sess: sess}
}

// Begin opens a transaction and returns it together with a Store scoped to
// it. The caller defers tx.Rollback and commits on success.
func (s *Store) Begin(ctx context.Context) (*database.Tx, *Store, error) {
	tx, err := s.sess.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	return tx, &Store{q: tx, sess: s.sess}, nil
}

// isConstraintViolation reports whether err is a unique or primary key
// violation. Creation accessors translate those into "already exists"
// results instead of failures.
func isConstraintViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrConstraint
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code.Class() == "23"
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return false
}

// World is a row of the world list.
type World struct {
	Name                  string `db:"Name"`
	Type                  int    `db:"Type"`
	NumPlayers            int    `db:"NumPlayers"`
	MaxPlayers            int    `db:"MaxPlayers"`
	OnlineRecord          int    `db:"OnlineRecord"`
	OnlineRecordTimestamp int64  `db:"OnlineRecordTimestamp"`
}

// WorldConfig is the game server configuration of one world.
type WorldConfig struct {
	WorldID             int    `db:"WorldID"`
	Type                int    `db:"Type"`
	RebootTime          int    `db:"RebootTime"`
	Host                string `db:"Host"`
	Port                int    `db:"Port"`
	MaxPlayers          int    `db:"MaxPlayers"`
	PremiumPlayerBuffer int    `db:"PremiumPlayerBuffer"`
	MaxNewbies          int    `db:"MaxNewbies"`
	PremiumNewbieBuffer int    `db:"PremiumNewbieBuffer"`
}

// Account is the credential and premium state of an account.
type Account struct {
	AccountID          uint32 `db:"AccountID"`
	Email              string `db:"Email"`
	Auth               []byte `db:"Auth"`
	PremiumDays        int    `db:"-"`
	PremiumSeconds     int64  `db:"PremiumSeconds"`
	PendingPremiumDays int    `db:"PendingPremiumDays"`
	Deleted            bool   `db:"Deleted"`
}

// AccountBuddy is one buddy list entry.
type AccountBuddy struct {
	CharacterID uint32 `db:"BuddyID"`
	Name        string `db:"Name"`
}

// CharacterEndpoint names a character and the world it plays on.
type CharacterEndpoint struct {
	Name      string `db:"Name"`
	WorldName string `db:"WorldName"`
	WorldHost string `db:"WorldHost"`
	WorldPort int    `db:"WorldPort"`
}

// CharacterSummary is one row of an account's character list.
type CharacterSummary struct {
	Name       string `db:"Name"`
	World      string `db:"World"`
	Level      int    `db:"Level"`
	Profession string `db:"Profession"`
	Online     bool   `db:"Online"`
	Deleted    bool   `db:"Deleted"`
}

// CharacterLoginData is the state needed to admit a game login.
type CharacterLoginData struct {
	WorldID     int    `db:"WorldID"`
	CharacterID uint32 `db:"CharacterID"`
	AccountID   uint32 `db:"AccountID"`
	Name        string `db:"Name"`
	Sex         int    `db:"Sex"`
	Guild       string `db:"Guild"`
	Rank        string `db:"Rank"`
	Title       string `db:"Title"`
	Deleted     bool   `db:"Deleted"`
}

// CharacterProfile is the public character profile.
type CharacterProfile struct {
	Name           string `db:"Name"`
	World          string `db:"World"`
	Sex            int    `db:"Sex"`
	Guild          string `db:"Guild"`
	Rank           string `db:"Rank"`
	Title          string `db:"Title"`
	Level          int    `db:"Level"`
	Profession     string `db:"Profession"`
	Residence      string `db:"Residence"`
	LastLogin      int64  `db:"LastLogin"`
	PremiumDays    int    `db:"-"`
	PremiumSeconds int64  `db:"PremiumSeconds"`
	Online         bool   `db:"Online"`
	Deleted        bool   `db:"Deleted"`
}

// CharacterIndexEntry is one row of the character index used by incremental
// player loads.
type CharacterIndexEntry struct {
	CharacterID uint32 `db:"CharacterID"`
	Name        string `db:"Name"`
}

// HouseAuction is a finished house auction.
type HouseAuction struct {
	HouseID    int    `db:"HouseID"`
	BidderID   uint32 `db:"BidderID"`
	BidderName string `db:"BidderName"`
	BidAmount  int    `db:"BidAmount"`
	FinishTime int64  `db:"FinishTime"`
}

// HouseTransfer is a finished house transfer.
type HouseTransfer struct {
	HouseID      int    `db:"HouseID"`
	NewOwnerID   uint32 `db:"NewOwnerID"`
	NewOwnerName string `db:"NewOwnerName"`
	Price        int    `db:"Price"`
}

// HouseEviction pairs a house with its evicted owner.
type HouseEviction struct {
	HouseID int    `db:"HouseID"`
	OwnerID uint32 `db:"OwnerID"`
}

// HouseOwner is the current owner of a house.
type HouseOwner struct {
	HouseID   int    `db:"HouseID"`
	OwnerID   uint32 `db:"OwnerID"`
	OwnerName string `db:"OwnerName"`
	PaidUntil int64  `db:"PaidUntil"`
}

// House is the static description of a house.
type House struct {
	HouseID     int    `db:"HouseID"`
	Name        string `db:"Name"`
	Rent        int    `db:"Rent"`
	Description string `db:"Description"`
	Size        int    `db:"Size"`
	PositionX   int    `db:"PositionX"`
	PositionY   int    `db:"PositionY"`
	PositionZ   int    `db:"PositionZ"`
	Town        string `db:"Town"`
	GuildHouse  bool   `db:"GuildHouse"`
}

// NamelockStatus reports whether a character is namelocked and whether a
// gamemaster approved a new name already.
type NamelockStatus struct {
	Namelocked bool
	Approved   bool
}

// BanishmentStatus aggregates the banishment history of a character's
// account.
type BanishmentStatus struct {
	Banished      bool
	FinalWarning  bool
	TimesBanished int
}

// Statement is one logged chat statement.
type Statement struct {
	Timestamp   int64  `db:"Timestamp"`
	StatementID uint32 `db:"StatementID"`
	CharacterID uint32 `db:"CharacterID"`
	Channel     string `db:"Channel"`
	Text        string `db:"Text"`
}

// KillStatistics is the kill tally for one creature race.
type KillStatistics struct {
	RaceName      string `db:"RaceName"`
	TimesKilled   int    `db:"TimesKilled"`
	PlayersKilled int    `db:"PlayersKilled"`
}

// OnlineCharacter is one entry of a world's online player list.
type OnlineCharacter struct {
	Name       string `db:"Name"`
	Level      int    `db:"Level"`
	Profession string `db:"Profession"`
}

// roundSecondsToDays converts a remaining-seconds balance to whole days,
// rounding any partial day up.
func roundSecondsToDays(seconds int64) int {
	if seconds <= 0 {
		return 0
	}
	return int((seconds + 86399) / 86400)
}
