package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/storage"
)

// Scope masks and nonces are uint64 counters that may exceed the int64 range
// SQLite integers cover, so both are stored as decimal strings.

// GetGrant returns the grant keyed by (principal, relayer, context).
func (s *Store) GetGrant(ctx context.Context, principal, relayer, scope string) (storage.GrantRecord, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT principal, relayer, context, scope_mask, expiry, updated_at
FROM grants
WHERE principal = ? AND relayer = ? AND context = ?
`, principal, relayer, scope)

	var record storage.GrantRecord
	var mask string
	var updatedAt int64
	err := row.Scan(&record.Principal, &record.Relayer, &record.Context, &mask, &record.Expiry, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.GrantRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.GrantRecord{}, fmt.Errorf("scan grant: %w", err)
	}
	record.ScopeMask, err = strconv.ParseUint(mask, 10, 64)
	if err != nil {
		return storage.GrantRecord{}, fmt.Errorf("parse stored scope mask: %w", err)
	}
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

// GetNonce returns the principal's next expected nonce; missing principals
// start at zero.
func (s *Store) GetNonce(ctx context.Context, principal string) (uint64, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT nonce FROM nonces WHERE principal = ?`, principal)
	var value string
	err := row.Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("scan nonce: %w", err)
	}
	nonce, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse stored nonce: %w", err)
	}
	return nonce, nil
}

// ApplyGrant stores the grant and sets the principal's nonce counter in one
// transaction.
func (s *Store) ApplyGrant(ctx context.Context, record storage.GrantRecord, nextNonce uint64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO grants (principal, relayer, context, scope_mask, expiry, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(principal, relayer, context) DO UPDATE SET
    scope_mask = excluded.scope_mask,
    expiry = excluded.expiry,
    updated_at = excluded.updated_at
`,
			record.Principal,
			record.Relayer,
			record.Context,
			strconv.FormatUint(record.ScopeMask, 10),
			record.Expiry,
			toMillis(record.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("upsert grant: %w", err)
		}
		return setNonce(ctx, tx, record.Principal, nextNonce)
	})
}

// VoidGrant zeroes the grant's scope and expiry, succeeding when no grant
// exists. A non-nil nextNonce advances the principal's counter in the same
// transaction.
func (s *Store) VoidGrant(ctx context.Context, principal, relayer, scope string, updatedAt time.Time, nextNonce *uint64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
UPDATE grants
SET scope_mask = '0', expiry = 0, updated_at = ?
WHERE principal = ? AND relayer = ? AND context = ?
`, toMillis(updatedAt), principal, relayer, scope)
		if err != nil {
			return fmt.Errorf("void grant: %w", err)
		}
		if nextNonce != nil {
			return setNonce(ctx, tx, principal, *nextNonce)
		}
		return nil
	})
}

func setNonce(ctx context.Context, tx *sql.Tx, principal string, nonce uint64) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO nonces (principal, nonce) VALUES (?, ?)
ON CONFLICT(principal) DO UPDATE SET nonce = excluded.nonce
`, principal, strconv.FormatUint(nonce, 10))
	if err != nil {
		return fmt.Errorf("set nonce: %w", err)
	}
	return nil
}
