// Package sqlite implements the repository interfaces using SQLite as the
// storage backend.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which needs a C compiler and makes
// cross-compilation painful. modernc.org/sqlite is a pure Go translation of
// the SQLite C code — works everywhere Go works. Tests use ":memory:" for a
// throwaway database per test.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	// Side-effect import: the driver registers itself with database/sql
	// under the name "sqlite".
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and provides the repository methods.
// One struct implements every repository interface — the service layer
// receives it as whichever narrow interface it needs.
type DB struct {
	conn *sql.DB
}

// New creates a new SQLite database connection and runs migrations.
//
// dbPath examples:
//   - "data/participacion.db" → file-based database (persistent)
//   - ":memory:"              → in-memory database (tests, lost on close)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Ping forces an immediate connection so a bad path surfaces here,
	// not on the first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL allows concurrent reads while a write is in progress — default
	// SQLite locks the whole database during writes.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite. We rely on them for the
	// identities-die-with-their-account cascade.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE TABLE IF NOT EXISTS keeps it safe to
// run on every start.
//
// Soft deletion is a nullable hidden_at tombstone on accounts, debates,
// proposals and comments; default scopes filter on "hidden_at IS NULL".
// Uniqueness rules that only apply to populated columns (username, email,
// the document pair) are partial unique indexes.
func (db *DB) migrate() error {
	stmts := []struct {
		name string
		sql  string
	}{
		{"accounts", `
			CREATE TABLE IF NOT EXISTS accounts (
				id                 TEXT PRIMARY KEY,
				username           TEXT NOT NULL DEFAULT '',
				email              TEXT NOT NULL DEFAULT '',
				unconfirmed_email  TEXT NOT NULL DEFAULT '',
				password_hash      TEXT NOT NULL DEFAULT '',
				document_number    TEXT NOT NULL DEFAULT '',
				document_type      TEXT NOT NULL DEFAULT '',
				phone_number       TEXT NOT NULL DEFAULT '',
				official_position  TEXT NOT NULL DEFAULT '',
				official_level     INTEGER NOT NULL DEFAULT 0
					CHECK (official_level BETWEEN 0 AND 5),
				locale             TEXT NOT NULL DEFAULT '',
				confirmed_at       DATETIME,
				verified_at        DATETIME,
				erased_at          DATETIME,
				erase_reason       TEXT NOT NULL DEFAULT '',
				hidden_at          DATETIME,
				sign_in_count      INTEGER NOT NULL DEFAULT 0,
				current_sign_in_at DATETIME,
				last_sign_in_at    DATETIME,
				created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_username
				ON accounts(lower(username)) WHERE username <> '';
			CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_email
				ON accounts(email) WHERE email <> '';
			CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_document
				ON accounts(document_type, document_number) WHERE document_number <> '';
		`},
		{"organizations", `
			CREATE TABLE IF NOT EXISTS organizations (
				id               TEXT PRIMARY KEY,
				account_id       TEXT NOT NULL UNIQUE REFERENCES accounts(id) ON DELETE CASCADE,
				name             TEXT NOT NULL DEFAULT '',
				responsible_name TEXT NOT NULL DEFAULT '',
				verified_at      DATETIME,
				created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
		`},
		{"account_roles", `
			CREATE TABLE IF NOT EXISTS account_roles (
				account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
				role       TEXT NOT NULL,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (account_id, role)
			);
		`},
		{"identities", `
			CREATE TABLE IF NOT EXISTS identities (
				id         TEXT PRIMARY KEY,
				account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
				provider   TEXT NOT NULL,
				uid        TEXT NOT NULL,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				UNIQUE (provider, uid)
			);
		`},
		{"locks", `
			CREATE TABLE IF NOT EXISTS locks (
				id         TEXT PRIMARY KEY,
				account_id TEXT NOT NULL UNIQUE REFERENCES accounts(id) ON DELETE CASCADE,
				locked     INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
		`},
		{"debates", `
			CREATE TABLE IF NOT EXISTS debates (
				id         TEXT PRIMARY KEY,
				author_id  TEXT NOT NULL REFERENCES accounts(id),
				title      TEXT NOT NULL DEFAULT '',
				hidden_at  DATETIME,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_debates_author_id ON debates(author_id);
		`},
		{"proposals", `
			CREATE TABLE IF NOT EXISTS proposals (
				id         TEXT PRIMARY KEY,
				author_id  TEXT NOT NULL REFERENCES accounts(id),
				title      TEXT NOT NULL DEFAULT '',
				hidden_at  DATETIME,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_proposals_author_id ON proposals(author_id);
		`},
		{"comments", `
			CREATE TABLE IF NOT EXISTS comments (
				id         TEXT PRIMARY KEY,
				author_id  TEXT NOT NULL REFERENCES accounts(id),
				body       TEXT NOT NULL DEFAULT '',
				hidden_at  DATETIME,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_comments_author_id ON comments(author_id);
		`},
		{"votes", `
			CREATE TABLE IF NOT EXISTS votes (
				id           TEXT PRIMARY KEY,
				account_id   TEXT NOT NULL REFERENCES accounts(id),
				votable_type TEXT NOT NULL,
				votable_id   TEXT NOT NULL,
				value        TEXT NOT NULL,
				created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				UNIQUE (account_id, votable_type, votable_id)
			);
		`},
		{"flags", `
			CREATE TABLE IF NOT EXISTS flags (
				id             TEXT PRIMARY KEY,
				account_id     TEXT NOT NULL REFERENCES accounts(id),
				flaggable_type TEXT NOT NULL,
				flaggable_id   TEXT NOT NULL,
				created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				UNIQUE (account_id, flaggable_type, flaggable_id)
			);
		`},
		{"failed_census_calls", `
			CREATE TABLE IF NOT EXISTS failed_census_calls (
				id              TEXT PRIMARY KEY,
				account_id      TEXT NOT NULL REFERENCES accounts(id),
				document_type   TEXT NOT NULL DEFAULT '',
				document_number TEXT NOT NULL DEFAULT '',
				created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_failed_census_calls_account_id
				ON failed_census_calls(account_id);
		`},
		{"notifications", `
			CREATE TABLE IF NOT EXISTS notifications (
				id              TEXT PRIMARY KEY,
				account_id      TEXT NOT NULL REFERENCES accounts(id),
				notifiable_type TEXT NOT NULL,
				notifiable_id   TEXT NOT NULL,
				read_at         DATETIME,
				created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_notifications_account_id
				ON notifications(account_id);
		`},
	}

	for _, s := range stmts {
		if _, err := db.conn.Exec(s.sql); err != nil {
			return fmt.Errorf("creating %s: %w", s.name, err)
		}
	}

	return nil
}

// nullTime converts a *time.Time to the sql.NullTime the driver expects for
// a nullable DATETIME column.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// timePtr converts a scanned sql.NullTime back into the model's *time.Time.
func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
