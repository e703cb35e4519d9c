package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/Endika/participacion/internal/apperror"
	"github.com/Endika/participacion/internal/model"
	"github.com/Endika/participacion/internal/repository"
)

// compile-time checks
var (
	_ repository.LockRepository     = (*DB)(nil)
	_ repository.IdentityRepository = (*DB)(nil)
)

// GetOrCreateLock returns the account's lock, creating an unlocked one on
// first access.
//
// Creation uses INSERT ... ON CONFLICT DO NOTHING followed by a read: two
// goroutines racing on the first lookup both end up reading the single row
// one of them created. The UNIQUE constraint on account_id is what makes
// the upsert idempotent.
func (db *DB) GetOrCreateLock(ctx context.Context, accountID string) (*model.Lock, error) {
	now := time.Now()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO locks (id, account_id, locked, created_at, updated_at)
		 VALUES (?, ?, 0, ?, ?)
		 ON CONFLICT (account_id) DO NOTHING`,
		xid.New().String(), accountID, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: creating lock for account %s: %w", accountID, err)
	}

	var lock model.Lock
	err = db.conn.QueryRowContext(ctx,
		`SELECT id, account_id, locked, created_at, updated_at
		 FROM locks WHERE account_id = ?`, accountID,
	).Scan(&lock.ID, &lock.AccountID, &lock.Locked, &lock.CreatedAt, &lock.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading lock for account %s: %w", accountID, err)
	}
	return &lock, nil
}

// SetLocked flips the account's lock flag, creating the lock row if needed.
func (db *DB) SetLocked(ctx context.Context, accountID string, locked bool) error {
	if _, err := db.GetOrCreateLock(ctx, accountID); err != nil {
		return err
	}
	_, err := db.conn.ExecContext(ctx,
		`UPDATE locks SET locked = ?, updated_at = ? WHERE account_id = ?`,
		locked, time.Now(), accountID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting lock for account %s: %w", accountID, err)
	}
	return nil
}

// CreateIdentity links an account to an external provider identity.
func (db *DB) CreateIdentity(ctx context.Context, identity *model.Identity) error {
	identity.ID = xid.New().String()
	identity.CreatedAt = time.Now()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO identities (id, account_id, provider, uid, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		identity.ID, identity.AccountID, identity.Provider, identity.UID,
		identity.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting identity (%s/%s): %w",
			identity.Provider, identity.UID, err)
	}
	return nil
}

// GetIdentity looks up an identity by provider and uid.
func (db *DB) GetIdentity(ctx context.Context, provider, uid string) (*model.Identity, error) {
	var identity model.Identity
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, account_id, provider, uid, created_at
		 FROM identities WHERE provider = ? AND uid = ?`, provider, uid,
	).Scan(&identity.ID, &identity.AccountID, &identity.Provider,
		&identity.UID, &identity.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("identity", provider+"/"+uid)
		}
		return nil, fmt.Errorf("sqlite: getting identity %s/%s: %w", provider, uid, err)
	}
	return &identity, nil
}
