package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/Endika/participacion/internal/model"
	"github.com/Endika/participacion/internal/repository"
)

// compile-time checks
var (
	_ repository.CensusRepository       = (*DB)(nil)
	_ repository.NotificationRepository = (*DB)(nil)
)

// RecordFailedCensusCall stores an unsuccessful verification attempt.
func (db *DB) RecordFailedCensusCall(ctx context.Context, call *model.FailedCensusCall) error {
	call.ID = xid.New().String()
	call.CreatedAt = time.Now()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO failed_census_calls
			(id, account_id, document_type, document_number, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		call.ID, call.AccountID, call.DocumentType, call.DocumentNumber,
		call.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting failed census call: %w", err)
	}
	return nil
}

// FailedCensusCallCount returns how many verification attempts have failed
// for the account.
func (db *DB) FailedCensusCallCount(ctx context.Context, accountID string) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM failed_census_calls WHERE account_id = ?`,
		accountID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting failed census calls: %w", err)
	}
	return count, nil
}

// CreateNotification stores an in-app notification for an account.
func (db *DB) CreateNotification(ctx context.Context, n *model.Notification) error {
	n.ID = xid.New().String()
	n.CreatedAt = time.Now()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO notifications
			(id, account_id, notifiable_type, notifiable_id, read_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.AccountID, n.NotifiableType, n.NotifiableID,
		nullTime(n.ReadAt), n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting notification: %w", err)
	}
	return nil
}

// NotificationsByAccount lists an account's notifications, newest first.
func (db *DB) NotificationsByAccount(ctx context.Context, accountID string, opts repository.ListOptions) ([]model.Notification, error) {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, account_id, notifiable_type, notifiable_id, read_at, created_at
		 FROM notifications WHERE account_id = ?
		 ORDER BY created_at DESC
		 LIMIT ? OFFSET ?`,
		accountID, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing notifications for account %s: %w", accountID, err)
	}
	defer rows.Close()

	var notifications []model.Notification
	for rows.Next() {
		var (
			n      model.Notification
			readAt sql.NullTime
		)
		if err := rows.Scan(&n.ID, &n.AccountID, &n.NotifiableType,
			&n.NotifiableID, &readAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning notification row: %w", err)
		}
		n.ReadAt = timePtr(readAt)
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating notification rows: %w", err)
	}
	return notifications, nil
}

// MarkNotificationRead stamps read_at on a notification. Already-read
// notifications keep their original timestamp.
func (db *DB) MarkNotificationRead(ctx context.Context, id string) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE notifications SET read_at = ? WHERE id = ? AND read_at IS NULL`,
		time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: marking notification %s read: %w", id, err)
	}
	return nil
}
