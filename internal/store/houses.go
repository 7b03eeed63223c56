package store

import (
	"context"
)

// FinishHouseAuctions removes and returns every auction of the world whose
// finish time has passed. Callers hold a transaction, so the select and
// the delete see the same rows.
func (s *Store) FinishHouseAuctions(ctx context.Context, worldID int) ([]HouseAuction, error) {
	var auctions []HouseAuction
	err := s.q.SelectContext(ctx, &auctions, `
SELECT H.HouseID, H.BidderID, H.BidAmount, H.FinishTime,
	COALESCE(C.Name, '') AS BidderName
FROM HouseAuctions AS H
LEFT JOIN Characters AS C ON C.CharacterID = H.BidderID
WHERE H.WorldID = ? AND H.FinishTime IS NOT NULL AND H.FinishTime <= UNIXEPOCH()`,
		worldID)
	if err != nil {
		return nil, err
	}
	for _, a := range auctions {
		_, err := s.q.ExecContext(ctx,
			"DELETE FROM HouseAuctions WHERE WorldID = ? AND HouseID = ?",
			worldID, a.HouseID)
		if err != nil {
			return nil, err
		}
	}
	return auctions, nil
}

// FinishHouseTransfers removes and returns every pending transfer of the
// world.
func (s *Store) FinishHouseTransfers(ctx context.Context, worldID int) ([]HouseTransfer, error) {
	var transfers []HouseTransfer
	err := s.q.SelectContext(ctx, &transfers, `
SELECT H.HouseID, H.NewOwnerID, H.Price,
	COALESCE(C.Name, '') AS NewOwnerName
FROM HouseTransfers AS H
LEFT JOIN Characters AS C ON C.CharacterID = H.NewOwnerID
WHERE H.WorldID = ?`, worldID)
	if err != nil {
		return nil, err
	}
	if len(transfers) > 0 {
		_, err := s.q.ExecContext(ctx,
			"DELETE FROM HouseTransfers WHERE WorldID = ?", worldID)
		if err != nil {
			return nil, err
		}
	}
	return transfers, nil
}

// GetFreeAccountEvictions lists houses whose owner's account lost premium
// status.
func (s *Store) GetFreeAccountEvictions(ctx context.Context, worldID int) ([]HouseEviction, error) {
	var evictions []HouseEviction
	err := s.q.SelectContext(ctx, &evictions, `
SELECT H.HouseID, H.OwnerID
FROM HouseOwners AS H
LEFT JOIN Characters AS C ON C.CharacterID = H.OwnerID
LEFT JOIN Accounts AS A ON A.AccountID = C.AccountID
WHERE H.WorldID = ? AND (A.PremiumEnd IS NULL OR A.PremiumEnd < UNIXEPOCH())`,
		worldID)
	return evictions, err
}

// GetDeletedCharacterEvictions lists houses whose owner was deleted.
func (s *Store) GetDeletedCharacterEvictions(ctx context.Context, worldID int) ([]int, error) {
	var houseIDs []int
	err := s.q.SelectContext(ctx, &houseIDs, `
SELECT H.HouseID
FROM HouseOwners AS H
LEFT JOIN Characters AS C ON C.CharacterID = H.OwnerID
WHERE H.WorldID = ? AND (C.CharacterID IS NULL OR C.Deleted != 0)`,
		worldID)
	return houseIDs, err
}

// InsertHouseOwner records a new house owner.
func (s *Store) InsertHouseOwner(ctx context.Context, worldID, houseID int, ownerID uint32, paidUntil int64) error {
	_, err := s.q.ExecContext(ctx,
		"INSERT INTO HouseOwners (WorldID, HouseID, OwnerID, PaidUntil) VALUES (?, ?, ?, ?)",
		worldID, houseID, ownerID, paidUntil)
	return err
}

// UpdateHouseOwner updates an existing house owner entry.
func (s *Store) UpdateHouseOwner(ctx context.Context, worldID, houseID int, ownerID uint32, paidUntil int64) error {
	_, err := s.q.ExecContext(ctx,
		"UPDATE HouseOwners SET OwnerID = ?, PaidUntil = ? WHERE WorldID = ? AND HouseID = ?",
		ownerID, paidUntil, worldID, houseID)
	return err
}

// DeleteHouseOwner removes a house owner entry.
func (s *Store) DeleteHouseOwner(ctx context.Context, worldID, houseID int) error {
	_, err := s.q.ExecContext(ctx,
		"DELETE FROM HouseOwners WHERE WorldID = ? AND HouseID = ?",
		worldID, houseID)
	return err
}

// GetHouseOwners lists the current house owners of a world.
func (s *Store) GetHouseOwners(ctx context.Context, worldID int) ([]HouseOwner, error) {
	var owners []HouseOwner
	err := s.q.SelectContext(ctx, &owners, `
SELECT H.HouseID, H.OwnerID, COALESCE(C.Name, '') AS OwnerName, H.PaidUntil
FROM HouseOwners AS H
LEFT JOIN Characters AS C ON C.CharacterID = H.OwnerID
WHERE H.WorldID = ?`, worldID)
	return owners, err
}

// GetHouseAuctions lists the houses currently being auctioned.
func (s *Store) GetHouseAuctions(ctx context.Context, worldID int) ([]int, error) {
	var houseIDs []int
	err := s.q.SelectContext(ctx, &houseIDs,
		"SELECT HouseID FROM HouseAuctions WHERE WorldID = ?", worldID)
	return houseIDs, err
}

// StartHouseAuction opens an auction for a house.
func (s *Store) StartHouseAuction(ctx context.Context, worldID, houseID int) error {
	_, err := s.q.ExecContext(ctx,
		"INSERT INTO HouseAuctions (WorldID, HouseID) VALUES (?, ?)",
		worldID, houseID)
	return err
}

// DeleteHouses removes every house of a world before a fresh insert.
func (s *Store) DeleteHouses(ctx context.Context, worldID int) error {
	_, err := s.q.ExecContext(ctx,
		"DELETE FROM Houses WHERE WorldID = ?", worldID)
	return err
}

// InsertHouses inserts a world's house list.
func (s *Store) InsertHouses(ctx context.Context, worldID int, houses []House) error {
	for _, h := range houses {
		_, err := s.q.ExecContext(ctx, `
INSERT INTO Houses (WorldID, HouseID, Name, Rent, Description, Size,
	PositionX, PositionY, PositionZ, Town, GuildHouse)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			worldID, h.HouseID, h.Name, h.Rent, h.Description, h.Size,
			h.PositionX, h.PositionY, h.PositionZ, h.Town, h.GuildHouse)
		if err != nil {
			return err
		}
	}
	return nil
}

// ExcludeFromAuctions bars a character from house auctions for a duration.
func (s *Store) ExcludeFromAuctions(ctx context.Context, worldID int, characterID uint32, durationSeconds int64, banishmentID int) error {
	_, err := s.q.ExecContext(ctx, `
INSERT INTO HouseAuctionExclusions (CharacterID, Issued, Until, BanishmentID)
SELECT ?, UNIXEPOCH(), UNIXEPOCH() + ?, ?
FROM Characters WHERE WorldID = ? AND CharacterID = ?`,
		characterID, durationSeconds, banishmentID, worldID, characterID)
	return err
}
