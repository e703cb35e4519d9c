package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/Endika/participacion/internal/model"
	"github.com/Endika/participacion/internal/repository"
)

// compile-time check that *DB implements repository.ContentRepository
var _ repository.ContentRepository = (*DB)(nil)

// The three content tables share one shape (id, author_id, text column,
// hidden_at, created_at), so the queries below are generated per table
// instead of written out three times.

// CreateDebate inserts a debate authored by an account.
func (db *DB) CreateDebate(ctx context.Context, debate *model.Debate) error {
	debate.ID = xid.New().String()
	debate.CreatedAt = time.Now()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO debates (id, author_id, title, hidden_at, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		debate.ID, debate.AuthorID, debate.Title,
		nullTime(debate.HiddenAt), debate.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting debate: %w", err)
	}
	return nil
}

// CreateProposal inserts a proposal authored by an account.
func (db *DB) CreateProposal(ctx context.Context, proposal *model.Proposal) error {
	proposal.ID = xid.New().String()
	proposal.CreatedAt = time.Now()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO proposals (id, author_id, title, hidden_at, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		proposal.ID, proposal.AuthorID, proposal.Title,
		nullTime(proposal.HiddenAt), proposal.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting proposal: %w", err)
	}
	return nil
}

// CreateComment inserts a comment authored by an account.
func (db *DB) CreateComment(ctx context.Context, comment *model.Comment) error {
	comment.ID = xid.New().String()
	comment.CreatedAt = time.Now()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO comments (id, author_id, body, hidden_at, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		comment.ID, comment.AuthorID, comment.Body,
		nullTime(comment.HiddenAt), comment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting comment: %w", err)
	}
	return nil
}

// DebateIDsByAuthor returns every debate ID authored by the account,
// hidden rows included — blocking collects IDs before hiding.
func (db *DB) DebateIDsByAuthor(ctx context.Context, authorID string) ([]string, error) {
	return db.idsByAuthor(ctx, "debates", authorID)
}

// ProposalIDsByAuthor returns every proposal ID authored by the account.
func (db *DB) ProposalIDsByAuthor(ctx context.Context, authorID string) ([]string, error) {
	return db.idsByAuthor(ctx, "proposals", authorID)
}

// CommentIDsByAuthor returns every comment ID authored by the account.
func (db *DB) CommentIDsByAuthor(ctx context.Context, authorID string) ([]string, error) {
	return db.idsByAuthor(ctx, "comments", authorID)
}

func (db *DB) idsByAuthor(ctx context.Context, table, authorID string) ([]string, error) {
	// table is always one of our three literals, never user input.
	rows, err := db.conn.QueryContext(ctx,
		fmt.Sprintf(`SELECT id FROM %s WHERE author_id = ? ORDER BY created_at`, table),
		authorID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing %s ids for author %s: %w", table, authorID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning %s id: %w", table, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating %s ids: %w", table, err)
	}
	return ids, nil
}

// DebatesByAuthor returns the account's debates, hidden ones included.
func (db *DB) DebatesByAuthor(ctx context.Context, authorID string) ([]model.Debate, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, author_id, title, hidden_at, created_at
		 FROM debates WHERE author_id = ? ORDER BY created_at`, authorID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing debates for author %s: %w", authorID, err)
	}
	defer rows.Close()

	var debates []model.Debate
	for rows.Next() {
		var (
			d        model.Debate
			hiddenAt sql.NullTime
		)
		if err := rows.Scan(&d.ID, &d.AuthorID, &d.Title, &hiddenAt, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning debate row: %w", err)
		}
		d.HiddenAt = timePtr(hiddenAt)
		debates = append(debates, d)
	}
	return debates, rows.Err()
}

// ProposalsByAuthor returns the account's proposals, hidden ones included.
func (db *DB) ProposalsByAuthor(ctx context.Context, authorID string) ([]model.Proposal, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, author_id, title, hidden_at, created_at
		 FROM proposals WHERE author_id = ? ORDER BY created_at`, authorID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing proposals for author %s: %w", authorID, err)
	}
	defer rows.Close()

	var proposals []model.Proposal
	for rows.Next() {
		var (
			p        model.Proposal
			hiddenAt sql.NullTime
		)
		if err := rows.Scan(&p.ID, &p.AuthorID, &p.Title, &hiddenAt, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning proposal row: %w", err)
		}
		p.HiddenAt = timePtr(hiddenAt)
		proposals = append(proposals, p)
	}
	return proposals, rows.Err()
}

// CommentsByAuthor returns the account's comments, hidden ones included.
func (db *DB) CommentsByAuthor(ctx context.Context, authorID string) ([]model.Comment, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, author_id, body, hidden_at, created_at
		 FROM comments WHERE author_id = ? ORDER BY created_at`, authorID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing comments for author %s: %w", authorID, err)
	}
	defer rows.Close()

	var comments []model.Comment
	for rows.Next() {
		var (
			c        model.Comment
			hiddenAt sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.AuthorID, &c.Body, &hiddenAt, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning comment row: %w", err)
		}
		c.HiddenAt = timePtr(hiddenAt)
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// HideAllDebates stamps hidden_at on every listed debate not yet hidden.
func (db *DB) HideAllDebates(ctx context.Context, ids []string) error {
	return db.hideAll(ctx, "debates", ids)
}

// HideAllProposals stamps hidden_at on every listed proposal not yet hidden.
func (db *DB) HideAllProposals(ctx context.Context, ids []string) error {
	return db.hideAll(ctx, "proposals", ids)
}

// HideAllComments stamps hidden_at on every listed comment not yet hidden.
func (db *DB) HideAllComments(ctx context.Context, ids []string) error {
	return db.hideAll(ctx, "comments", ids)
}

func (db *DB) hideAll(ctx context.Context, table string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, time.Now())
	for _, id := range ids {
		args = append(args, id)
	}

	query := fmt.Sprintf(
		`UPDATE %s SET hidden_at = ? WHERE id IN (%s) AND hidden_at IS NULL`,
		table, placeholders(len(ids)),
	)
	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlite: hiding %s: %w", table, err)
	}
	return nil
}

// placeholders returns "?, ?, ..." for an IN clause of n values.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
