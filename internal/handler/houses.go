package handler

import (
	"context"

	"github.com/queryman/queryman/internal/query"
	"github.com/queryman/queryman/internal/store"
)

const auctionExclusionDuration = 7 * 86400

func finishAuctions(ctx context.Context, env *Env, q *query.Query) {
	auctions, err := env.Store.FinishHouseAuctions(ctx, q.WorldID)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	q.Ok()
	r := q.Response
	r.Write16(uint16(len(auctions)))
	for _, a := range auctions {
		r.Write16(uint16(a.HouseID))
		r.Write32(a.BidderID)
		r.WriteString(a.BidderName)
		r.Write32(uint32(a.BidAmount))
	}
}

func transferHouses(ctx context.Context, env *Env, q *query.Query) {
	transfers, err := env.Store.FinishHouseTransfers(ctx, q.WorldID)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	q.Ok()
	r := q.Response
	r.Write16(uint16(len(transfers)))
	for _, t := range transfers {
		r.Write16(uint16(t.HouseID))
		r.Write32(t.NewOwnerID)
		r.WriteString(t.NewOwnerName)
		r.Write32(uint32(t.Price))
	}
}

func evictFreeAccounts(ctx context.Context, env *Env, q *query.Query) {
	evictions, err := env.Store.GetFreeAccountEvictions(ctx, q.WorldID)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	q.Ok()
	r := q.Response
	r.Write16(uint16(len(evictions)))
	for _, e := range evictions {
		r.Write16(uint16(e.HouseID))
		r.Write32(e.OwnerID)
	}
}

func evictDeletedCharacters(ctx context.Context, env *Env, q *query.Query) {
	houseIDs, err := env.Store.GetDeletedCharacterEvictions(ctx, q.WorldID)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	q.Ok()
	r := q.Response
	r.Write16(uint16(len(houseIDs)))
	for _, houseID := range houseIDs {
		r.Write16(uint16(houseID))
	}
}

func evictExGuildleaders(ctx context.Context, env *Env, q *query.Query) {
	numHouses := int(q.Request.Read16())
	type guildHouse struct {
		houseID int
		ownerID uint32
	}
	houses := make([]guildHouse, 0, numHouses)
	for i := 0; i < numHouses; i++ {
		houses = append(houses, guildHouse{
			houseID: int(q.Request.Read16()),
			ownerID: q.Request.Read32(),
		})
	}

	var evicted []int
	for _, h := range houses {
		leader, err := env.Store.GetGuildLeaderStatus(ctx, q.WorldID, h.ownerID)
		if err != nil {
			dbFailure(env, q, err)
			return
		}
		if !leader {
			evicted = append(evicted, h.houseID)
		}
	}

	q.Ok()
	r := q.Response
	r.Write16(uint16(len(evicted)))
	for _, houseID := range evicted {
		r.Write16(uint16(houseID))
	}
}

func insertHouseOwner(ctx context.Context, env *Env, q *query.Query) {
	houseID := int(q.Request.Read16())
	ownerID := q.Request.Read32()
	paidUntil := int64(q.Request.Read32())
	if err := env.Store.InsertHouseOwner(ctx, q.WorldID, houseID, ownerID, paidUntil); err != nil {
		dbFailure(env, q, err)
		return
	}
	q.Ok()
}

func updateHouseOwner(ctx context.Context, env *Env, q *query.Query) {
	houseID := int(q.Request.Read16())
	ownerID := q.Request.Read32()
	paidUntil := int64(q.Request.Read32())
	if err := env.Store.UpdateHouseOwner(ctx, q.WorldID, houseID, ownerID, paidUntil); err != nil {
		dbFailure(env, q, err)
		return
	}
	q.Ok()
}

func deleteHouseOwner(ctx context.Context, env *Env, q *query.Query) {
	houseID := int(q.Request.Read16())
	if err := env.Store.DeleteHouseOwner(ctx, q.WorldID, houseID); err != nil {
		dbFailure(env, q, err)
		return
	}
	q.Ok()
}

func getHouseOwners(ctx context.Context, env *Env, q *query.Query) {
	owners, err := env.Store.GetHouseOwners(ctx, q.WorldID)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	q.Ok()
	r := q.Response
	r.Write16(uint16(len(owners)))
	for _, o := range owners {
		r.Write16(uint16(o.HouseID))
		r.Write32(o.OwnerID)
		r.WriteString(o.OwnerName)
		r.Write32(uint32(o.PaidUntil))
	}
}

func getAuctions(ctx context.Context, env *Env, q *query.Query) {
	houseIDs, err := env.Store.GetHouseAuctions(ctx, q.WorldID)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	q.Ok()
	r := q.Response
	r.Write16(uint16(len(houseIDs)))
	for _, houseID := range houseIDs {
		r.Write16(uint16(houseID))
	}
}

func startAuction(ctx context.Context, env *Env, q *query.Query) {
	houseID := int(q.Request.Read16())
	if err := env.Store.StartHouseAuction(ctx, q.WorldID, houseID); err != nil {
		dbFailure(env, q, err)
		return
	}
	q.Ok()
}

func insertHouses(ctx context.Context, env *Env, q *query.Query) {
	tx, st, err := env.Store.Begin(ctx)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	defer tx.Rollback()

	if err := st.DeleteHouses(ctx, q.WorldID); err != nil {
		dbFailure(env, q, err)
		return
	}

	numHouses := int(q.Request.Read16())
	houses := make([]store.House, 0, numHouses)
	for i := 0; i < numHouses; i++ {
		houses = append(houses, store.House{
			HouseID:     int(q.Request.Read16()),
			Name:        q.Request.ReadString(),
			Rent:        int(q.Request.Read32()),
			Description: q.Request.ReadString(),
			Size:        int(q.Request.Read16()),
			PositionX:   int(q.Request.Read16()),
			PositionY:   int(q.Request.Read16()),
			PositionZ:   int(q.Request.Read8()),
			Town:        q.Request.ReadString(),
			GuildHouse:  q.Request.ReadFlag(),
		})
	}
	if len(houses) > 0 {
		if err := st.InsertHouses(ctx, q.WorldID, houses); err != nil {
			dbFailure(env, q, err)
			return
		}
	}
	if err := tx.Commit(); err != nil {
		dbFailure(env, q, err)
		return
	}
	q.Ok()
}

func excludeFromAuctions(ctx context.Context, env *Env, q *query.Query) {
	characterID := q.Request.Read32()
	banish := q.Request.ReadFlag()

	tx, st, err := env.Store.Begin(ctx)
	if err != nil {
		dbFailure(env, q, err)
		return
	}
	defer tx.Rollback()

	banishmentID := 0
	if banish {
		status, err := st.GetBanishmentStatus(ctx, characterID)
		if err != nil {
			dbFailure(env, q, err)
			return
		}
		days := banishmentBaseDays
		finalWarning := false
		compoundBanishment(status, &days, &finalWarning)
		banishmentID, err = st.InsertBanishment(ctx, characterID, 0, 0,
			"Spoiling Auction", "", finalWarning, int64(days)*86400)
		if err != nil {
			dbFailure(env, q, err)
			return
		}
	}
	if err := st.ExcludeFromAuctions(ctx, q.WorldID, characterID,
		auctionExclusionDuration, banishmentID); err != nil {
		dbFailure(env, q, err)
		return
	}
	if err := tx.Commit(); err != nil {
		dbFailure(env, q, err)
		return
	}
	q.Ok()
}

func cancelHouseTransfer(ctx context.Context, env *Env, q *query.Query) {
	// Pending transfers are only applied by TRANSFER_HOUSES; a cancelled
	// transfer is simply dropped by the game before that runs.
	q.Ok()
}
