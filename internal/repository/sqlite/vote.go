package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/Endika/participacion/internal/model"
	"github.com/Endika/participacion/internal/repository"
)

// compile-time checks
var (
	_ repository.VoteRepository = (*DB)(nil)
	_ repository.FlagRepository = (*DB)(nil)
)

// RecordVote stores the account's vote on a subject. Voting again on the
// same subject replaces the previous value — one vote per subject.
func (db *DB) RecordVote(ctx context.Context, vote *model.Vote) error {
	if vote.ID == "" {
		vote.ID = xid.New().String()
	}
	vote.CreatedAt = time.Now()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO votes (id, account_id, votable_type, votable_id, value, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (account_id, votable_type, votable_id) DO UPDATE SET
			value = excluded.value`,
		vote.ID, vote.AccountID, vote.VotableType, vote.VotableID,
		vote.Value, vote.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: recording vote: %w", err)
	}
	return nil
}

// VotesFor maps votable ID → vote value for the account's votes on the
// given subjects only. Subjects the account never voted on are absent from
// the result.
func (db *DB) VotesFor(ctx context.Context, accountID, votableType string, votableIDs []string) (map[string]string, error) {
	votes := make(map[string]string, len(votableIDs))
	if len(votableIDs) == 0 {
		return votes, nil
	}

	args := make([]any, 0, len(votableIDs)+2)
	args = append(args, accountID, votableType)
	for _, id := range votableIDs {
		args = append(args, id)
	}

	rows, err := db.conn.QueryContext(ctx,
		fmt.Sprintf(
			`SELECT votable_id, value FROM votes
			 WHERE account_id = ? AND votable_type = ? AND votable_id IN (%s)`,
			placeholders(len(votableIDs)),
		), args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing votes for account %s: %w", accountID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var votableID, value string
		if err := rows.Scan(&votableID, &value); err != nil {
			return nil, fmt.Errorf("sqlite: scanning vote row: %w", err)
		}
		votes[votableID] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating vote rows: %w", err)
	}
	return votes, nil
}

// RecordFlag stores a flag raised by the account. Flagging the same subject
// twice keeps a single row.
func (db *DB) RecordFlag(ctx context.Context, flag *model.Flag) error {
	if flag.ID == "" {
		flag.ID = xid.New().String()
	}
	flag.CreatedAt = time.Now()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO flags (id, account_id, flaggable_type, flaggable_id, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (account_id, flaggable_type, flaggable_id) DO NOTHING`,
		flag.ID, flag.AccountID, flag.FlaggableType, flag.FlaggableID, flag.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: recording flag: %w", err)
	}
	return nil
}

// FlagsFor maps flaggable ID → true for subjects the account flagged,
// restricted to the given subject set.
func (db *DB) FlagsFor(ctx context.Context, accountID, flaggableType string, flaggableIDs []string) (map[string]bool, error) {
	flags := make(map[string]bool, len(flaggableIDs))
	if len(flaggableIDs) == 0 {
		return flags, nil
	}

	args := make([]any, 0, len(flaggableIDs)+2)
	args = append(args, accountID, flaggableType)
	for _, id := range flaggableIDs {
		args = append(args, id)
	}

	rows, err := db.conn.QueryContext(ctx,
		fmt.Sprintf(
			`SELECT flaggable_id FROM flags
			 WHERE account_id = ? AND flaggable_type = ? AND flaggable_id IN (%s)`,
			placeholders(len(flaggableIDs)),
		), args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing flags for account %s: %w", accountID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var flaggableID string
		if err := rows.Scan(&flaggableID); err != nil {
			return nil, fmt.Errorf("sqlite: scanning flag row: %w", err)
		}
		flags[flaggableID] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating flag rows: %w", err)
	}
	return flags, nil
}
