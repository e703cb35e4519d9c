package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/Endika/participacion/internal/apperror"
	"github.com/Endika/participacion/internal/model"
	"github.com/Endika/participacion/internal/repository"
)

// compile-time check that *DB implements repository.AccountRepository
var _ repository.AccountRepository = (*DB)(nil)

const accountColumns = `id, username, email, unconfirmed_email, password_hash,
	document_number, document_type, phone_number, official_position,
	official_level, locale, confirmed_at, verified_at, erased_at, erase_reason,
	hidden_at, sign_in_count, current_sign_in_at, last_sign_in_at,
	created_at, updated_at`

// Create inserts a new account and, for organization accounts, its
// organization profile in the same transaction.
//
// Uniqueness (username, email, document pair) is enforced by the partial
// unique indexes; violations come back as field-level validation errors so
// the caller can report them next to the offending field.
func (db *DB) Create(ctx context.Context, account *model.Account) error {
	now := time.Now()
	account.ID = xid.New().String()
	account.CreatedAt = now
	account.UpdatedAt = now

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO accounts (id, username, email, unconfirmed_email,
			password_hash, document_number, document_type, phone_number,
			official_position, official_level, locale, confirmed_at,
			verified_at, sign_in_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.Username,
		account.Email,
		account.UnconfirmedEmail,
		account.PasswordHash,
		account.DocumentNumber,
		account.DocumentType,
		account.PhoneNumber,
		account.OfficialPosition,
		account.OfficialLevel,
		account.Locale,
		nullTime(account.ConfirmedAt),
		nullTime(account.VerifiedAt),
		account.SignInCount,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if fieldErr := uniqueViolation(err); fieldErr != nil {
			return fieldErr
		}
		return fmt.Errorf("sqlite: inserting account: %w", err)
	}

	if account.Organization != nil {
		org := account.Organization
		org.ID = xid.New().String()
		org.AccountID = account.ID
		org.CreatedAt = now
		org.UpdatedAt = now
		_, err = tx.ExecContext(ctx,
			`INSERT INTO organizations (id, account_id, name, responsible_name,
				verified_at, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			org.ID, org.AccountID, org.Name, org.ResponsibleName,
			nullTime(org.VerifiedAt), org.CreatedAt, org.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting organization for account %s: %w", account.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing account insert: %w", err)
	}
	return nil
}

// GetByID retrieves an account with its organization profile and roles.
// Returns apperror.ErrNotFound if no account exists with that ID.
// Hidden accounts ARE returned here — moderation tooling needs them.
func (db *DB) GetByID(ctx context.Context, id string) (*model.Account, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	account, err := scanAccount(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("account", id)
		}
		return nil, fmt.Errorf("sqlite: getting account %s: %w", id, err)
	}
	if err := db.loadAssociations(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// GetByEmail retrieves an account by exact primary email. Erased accounts
// have an empty email so they never match; hidden accounts are scoped out.
func (db *DB) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	if email == "" {
		return nil, apperror.NotFound("account", "(blank email)")
	}
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts
		 WHERE email = ? AND hidden_at IS NULL`, email)
	account, err := scanAccount(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("account", email)
		}
		return nil, fmt.Errorf("sqlite: getting account by email: %w", err)
	}
	if err := db.loadAssociations(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// GetByLogin resolves a sign-in identifier: exact email or exact username
// (case-insensitive, matching the uniqueness index).
func (db *DB) GetByLogin(ctx context.Context, login string) (*model.Account, error) {
	if login == "" {
		return nil, apperror.NotFound("account", "(blank login)")
	}
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts
		 WHERE (email = ? OR (username <> '' AND lower(username) = lower(?)))
		   AND hidden_at IS NULL`, login, login)
	account, err := scanAccount(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("account", login)
		}
		return nil, fmt.Errorf("sqlite: getting account by login: %w", err)
	}
	if err := db.loadAssociations(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// Update rewrites the account's mutable columns and upserts the organization
// profile when one is attached.
func (db *DB) Update(ctx context.Context, account *model.Account) error {
	account.UpdatedAt = time.Now()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET username = ?, email = ?, unconfirmed_email = ?,
			password_hash = ?, document_number = ?, document_type = ?,
			phone_number = ?, official_position = ?, official_level = ?,
			locale = ?, confirmed_at = ?, verified_at = ?, updated_at = ?
		 WHERE id = ?`,
		account.Username,
		account.Email,
		account.UnconfirmedEmail,
		account.PasswordHash,
		account.DocumentNumber,
		account.DocumentType,
		account.PhoneNumber,
		account.OfficialPosition,
		account.OfficialLevel,
		account.Locale,
		nullTime(account.ConfirmedAt),
		nullTime(account.VerifiedAt),
		account.UpdatedAt,
		account.ID,
	)
	if err != nil {
		if fieldErr := uniqueViolation(err); fieldErr != nil {
			return fieldErr
		}
		return fmt.Errorf("sqlite: updating account %s: %w", account.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("account", account.ID)
	}

	if account.Organization != nil {
		org := account.Organization
		org.AccountID = account.ID
		org.UpdatedAt = account.UpdatedAt
		if org.ID == "" {
			org.ID = xid.New().String()
			org.CreatedAt = account.UpdatedAt
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO organizations (id, account_id, name, responsible_name,
				verified_at, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (account_id) DO UPDATE SET
				name = excluded.name,
				responsible_name = excluded.responsible_name,
				verified_at = excluded.verified_at,
				updated_at = excluded.updated_at`,
			org.ID, org.AccountID, org.Name, org.ResponsibleName,
			nullTime(org.VerifiedAt), org.CreatedAt, org.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("sqlite: upserting organization for account %s: %w", account.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing account update: %w", err)
	}
	return nil
}

// Search returns visible accounts whose email exactly matches the term or
// whose username contains it case-insensitively. A blank term matches
// nothing — returning every account for "" would be a useful DoS.
func (db *DB) Search(ctx context.Context, term string, opts repository.ListOptions) ([]model.Account, error) {
	if strings.TrimSpace(term) == "" {
		return []model.Account{}, nil
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}

	// instr() on lowered strings gives a case-insensitive "contains"
	// without LIKE-pattern escaping of % and _ in the term.
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts
		 WHERE (email = ? OR (username <> '' AND instr(lower(username), lower(?)) > 0))
		   AND hidden_at IS NULL
		 ORDER BY username
		 LIMIT ? OFFSET ?`,
		term, term, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: searching accounts: %w", err)
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning account row: %w", err)
		}
		accounts = append(accounts, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating account rows: %w", err)
	}

	// Results need their organization and roles: DisplayName() on an
	// organization account reads the organization name, and the page size
	// is capped, so the per-row loads stay bounded.
	for i := range accounts {
		if err := db.loadAssociations(ctx, &accounts[i]); err != nil {
			return nil, err
		}
	}
	return accounts, nil
}

// Erase irreversibly nulls the PII columns and stamps the erasure metadata.
// Re-erasing an already erased account keeps the original timestamp and
// reason — the columns are already blank, there is nothing left to scrub.
func (db *DB) Erase(ctx context.Context, id, reason string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE accounts SET
			username = '', email = '', unconfirmed_email = '',
			document_number = '', document_type = '', phone_number = '',
			password_hash = '',
			erased_at = ?, erase_reason = ?, updated_at = ?
		 WHERE id = ? AND erased_at IS NULL`,
		time.Now(), reason, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: erasing account %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Either missing or already erased — distinguish for the caller.
		var exists int
		if err := db.conn.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM accounts WHERE id = ?`, id).Scan(&exists); err != nil {
			return fmt.Errorf("sqlite: checking account %s: %w", id, err)
		}
		if exists == 0 {
			return apperror.NotFound("account", id)
		}
	}
	return nil
}

// Hide stamps the soft-delete tombstone on an account row.
func (db *DB) Hide(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE accounts SET hidden_at = ?, updated_at = ?
		 WHERE id = ? AND hidden_at IS NULL`,
		time.Now(), time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: hiding account %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		if err := db.conn.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM accounts WHERE id = ?`, id).Scan(&exists); err != nil {
			return fmt.Errorf("sqlite: checking account %s: %w", id, err)
		}
		if exists == 0 {
			return apperror.NotFound("account", id)
		}
	}
	return nil
}

// GrantRole records a moderation role. Granting twice is a no-op.
func (db *DB) GrantRole(ctx context.Context, accountID string, role model.Role) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO account_roles (account_id, role) VALUES (?, ?)
		 ON CONFLICT (account_id, role) DO NOTHING`,
		accountID, string(role),
	)
	if err != nil {
		return fmt.Errorf("sqlite: granting role %s to account %s: %w", role, accountID, err)
	}
	return nil
}

// RevokeRole removes a moderation role. Revoking an absent role is a no-op.
func (db *DB) RevokeRole(ctx context.Context, accountID string, role model.Role) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM account_roles WHERE account_id = ? AND role = ?`,
		accountID, string(role),
	)
	if err != nil {
		return fmt.Errorf("sqlite: revoking role %s from account %s: %w", role, accountID, err)
	}
	return nil
}

// RecordSignIn bumps the sign-in counter and rotates the sign-in timestamps.
func (db *DB) RecordSignIn(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE accounts SET
			sign_in_count = sign_in_count + 1,
			last_sign_in_at = current_sign_in_at,
			current_sign_in_at = ?,
			updated_at = ?
		 WHERE id = ?`,
		time.Now(), time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: recording sign-in for account %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("account", id)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner) (*model.Account, error) {
	var (
		a                                   model.Account
		confirmedAt, verifiedAt, erasedAt   sql.NullTime
		hiddenAt, currentSignIn, lastSignIn sql.NullTime
	)
	err := s.Scan(
		&a.ID,
		&a.Username,
		&a.Email,
		&a.UnconfirmedEmail,
		&a.PasswordHash,
		&a.DocumentNumber,
		&a.DocumentType,
		&a.PhoneNumber,
		&a.OfficialPosition,
		&a.OfficialLevel,
		&a.Locale,
		&confirmedAt,
		&verifiedAt,
		&erasedAt,
		&a.EraseReason,
		&hiddenAt,
		&a.SignInCount,
		&currentSignIn,
		&lastSignIn,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.ConfirmedAt = timePtr(confirmedAt)
	a.VerifiedAt = timePtr(verifiedAt)
	a.ErasedAt = timePtr(erasedAt)
	a.HiddenAt = timePtr(hiddenAt)
	a.CurrentSignInAt = timePtr(currentSignIn)
	a.LastSignInAt = timePtr(lastSignIn)
	return &a, nil
}

// loadAssociations attaches the organization profile and roles to an
// already-scanned account.
func (db *DB) loadAssociations(ctx context.Context, account *model.Account) error {
	var (
		org        model.Organization
		verifiedAt sql.NullTime
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, account_id, name, responsible_name, verified_at,
			created_at, updated_at
		 FROM organizations WHERE account_id = ?`, account.ID,
	).Scan(&org.ID, &org.AccountID, &org.Name, &org.ResponsibleName,
		&verifiedAt, &org.CreatedAt, &org.UpdatedAt)
	switch err {
	case nil:
		org.VerifiedAt = timePtr(verifiedAt)
		account.Organization = &org
	case sql.ErrNoRows:
		// not an organization account
	default:
		return fmt.Errorf("sqlite: loading organization for account %s: %w", account.ID, err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT role FROM account_roles WHERE account_id = ? ORDER BY role`, account.ID)
	if err != nil {
		return fmt.Errorf("sqlite: loading roles for account %s: %w", account.ID, err)
	}
	defer rows.Close()

	account.Roles = nil
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return fmt.Errorf("sqlite: scanning role row: %w", err)
		}
		account.Roles = append(account.Roles, model.Role(role))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterating role rows: %w", err)
	}
	return nil
}

// uniqueViolation maps a SQLite UNIQUE constraint error onto the field it
// protects, so the service layer can surface a field-level validation error
// instead of a bare 500.
func uniqueViolation(err error) error {
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return nil
	}
	switch {
	case strings.Contains(msg, "idx_accounts_username"):
		return apperror.ValidationFailed("username", "username is already taken")
	case strings.Contains(msg, "idx_accounts_email") ||
		strings.Contains(msg, "accounts.email"):
		return apperror.ValidationFailed("email", "email is already registered")
	case strings.Contains(msg, "idx_accounts_document"):
		return apperror.ValidationFailed("documentNumber", "document is already registered")
	}
	return nil
}
