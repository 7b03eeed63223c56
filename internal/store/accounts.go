package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/queryman/queryman/internal/auth"
)

// AccountNumberExists reports whether an account id is taken.
func (s *Store) AccountNumberExists(ctx context.Context, accountID uint32) (bool, error) {
	var one int
	err := s.q.GetContext(ctx, &one,
		"SELECT 1 FROM Accounts WHERE AccountID = ?", accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// AccountEmailExists reports whether an email address is taken.
func (s *Store) AccountEmailExists(ctx context.Context, email string) (bool, error) {
	var one int
	err := s.q.GetContext(ctx, &one,
		"SELECT 1 FROM Accounts WHERE Email = ?", email)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// CreateAccount inserts a new account. A key collision returns false
// without error, so the caller can report "already exists".
func (s *Store) CreateAccount(ctx context.Context, accountID uint32, email string, credential []byte) (bool, error) {
	_, err := s.q.ExecContext(ctx,
		"INSERT INTO Accounts (AccountID, Email, Auth) VALUES (?, ?, ?)",
		accountID, email, credential)
	if isConstraintViolation(err) {
		return false, nil
	}
	return err == nil, err
}

// GetAccountData loads an account. The zero value (AccountID 0) means the
// account does not exist. Credentials of the wrong size are dropped so an
// invalid blob can never validate a password.
func (s *Store) GetAccountData(ctx context.Context, accountID uint32) (Account, error) {
	var acct Account
	err := s.q.GetContext(ctx, &acct, `
SELECT AccountID, Email, Auth,
	CASE WHEN PremiumEnd > UNIXEPOCH() THEN PremiumEnd - UNIXEPOCH() ELSE 0 END AS PremiumSeconds,
	PendingPremiumDays, Deleted
FROM Accounts WHERE AccountID = ?`, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, nil
	}
	if err != nil {
		return Account{}, err
	}
	if len(acct.Auth) != auth.Size {
		acct.Auth = nil
	}
	acct.PremiumDays = roundSecondsToDays(acct.PremiumSeconds)
	return acct, nil
}

// GetAccountOnlineCharacters counts the account's characters currently
// marked online.
func (s *Store) GetAccountOnlineCharacters(ctx context.Context, accountID uint32) (int, error) {
	var count int
	err := s.q.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM Characters WHERE AccountID = ? AND IsOnline != 0",
		accountID)
	return count, err
}

// IsCharacterOnline reports whether a character is marked online.
func (s *Store) IsCharacterOnline(ctx context.Context, characterID uint32) (bool, error) {
	var online int
	err := s.q.GetContext(ctx, &online,
		"SELECT IsOnline FROM Characters WHERE CharacterID = ?", characterID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return online != 0, err
}

// ActivatePendingPremiumDays converts an account's pending premium days
// into premium time starting now (or extending a running balance).
func (s *Store) ActivatePendingPremiumDays(ctx context.Context, accountID uint32) error {
	_, err := s.q.ExecContext(ctx, `
UPDATE Accounts
SET PremiumEnd = CASE WHEN PremiumEnd > UNIXEPOCH() THEN PremiumEnd ELSE UNIXEPOCH() END
		+ PendingPremiumDays * 86400,
	PendingPremiumDays = 0
WHERE AccountID = ? AND PendingPremiumDays > 0`, accountID)
	return err
}

// InsertLoginAttempt records a login attempt for rate limiting.
func (s *Store) InsertLoginAttempt(ctx context.Context, accountID uint32, ipAddress uint32, failed bool) error {
	_, err := s.q.ExecContext(ctx, `
INSERT INTO LoginAttempts (AccountID, IPAddress, Timestamp, Failed)
VALUES (?, ?, UNIXEPOCH(), ?)`, accountID, ipAddress, failed)
	return err
}

// GetAccountFailedLoginAttempts counts failed attempts against an account
// within the last windowSeconds.
func (s *Store) GetAccountFailedLoginAttempts(ctx context.Context, accountID uint32, windowSeconds int) (int, error) {
	var count int
	err := s.q.GetContext(ctx, &count, `
SELECT COUNT(*) FROM LoginAttempts
WHERE AccountID = ? AND (UNIXEPOCH() - Timestamp) <= ? AND Failed != 0`,
		accountID, windowSeconds)
	return count, err
}

// GetIPFailedLoginAttempts counts failed attempts from an address within
// the last windowSeconds.
func (s *Store) GetIPFailedLoginAttempts(ctx context.Context, ipAddress uint32, windowSeconds int) (int, error) {
	var count int
	err := s.q.GetContext(ctx, &count, `
SELECT COUNT(*) FROM LoginAttempts
WHERE IPAddress = ? AND (UNIXEPOCH() - Timestamp) <= ? AND Failed != 0`,
		ipAddress, windowSeconds)
	return count, err
}
