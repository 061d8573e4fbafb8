package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/studex/apiserver/types"
)

// NotificationRepository handles persistence for notifications.
type NotificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, notification types.Notification) (types.Notification, error) {
	notification.CreatedAt = time.Now()

	data, err := types.EncodeNotificationData(notification.Data)
	if err != nil {
		return types.Notification{}, err
	}
	var dataArg any
	if notification.Data != nil {
		notification.DataKind = notification.Data.DataKind()
		dataArg = string(data)
	}

	const query = `
		INSERT INTO notifications (user_id, type, title, message, data, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)
		RETURNING id`
	if err := conn(ctx, r.db).QueryRowContext(
		ctx,
		query,
		notification.UserID,
		string(notification.Type),
		notification.Title,
		notification.Message,
		dataArg,
		notification.CreatedAt,
	).Scan(&notification.ID); err != nil {
		return types.Notification{}, err
	}
	return notification, nil
}

// ListRecent returns the newest notifications of a user.
func (r *NotificationRepository) ListRecent(ctx context.Context, userID, limit int) ([]types.Notification, error) {
	const query = `
		SELECT id, user_id, type, title, message, data, is_read, read_at, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifications := make([]types.Notification, 0, limit)
	for rows.Next() {
		var n types.Notification
		var data []byte
		var readAt sql.NullTime
		if err := rows.Scan(
			&n.ID,
			&n.UserID,
			&n.Type,
			&n.Title,
			&n.Message,
			&data,
			&n.IsRead,
			&readAt,
			&n.CreatedAt,
		); err != nil {
			return nil, err
		}
		if readAt.Valid {
			n.ReadAt = &readAt.Time
		}
		// Unknown payload kinds are dropped rather than failing the whole list.
		if decoded, err := types.DecodeNotificationData(data); err == nil && decoded != nil {
			n.Data = decoded
			n.DataKind = decoded.DataKind()
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID int) (int, error) {
	const query = `SELECT COUNT(1) FROM notifications WHERE user_id = $1 AND NOT is_read`
	var count int
	if err := conn(ctx, r.db).QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// MarkRead flags one notification as read. The owner is part of the
// predicate, so another user's notification reports ErrNotFound.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID, id int) error {
	const query = `
		UPDATE notifications
		SET is_read = TRUE, read_at = COALESCE(read_at, NOW())
		WHERE id = $1 AND user_id = $2`
	result, err := conn(ctx, r.db).ExecContext(ctx, query, id, userID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(result)
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID int) (int, error) {
	const query = `
		UPDATE notifications
		SET is_read = TRUE, read_at = NOW()
		WHERE user_id = $1 AND NOT is_read`
	result, err := conn(ctx, r.db).ExecContext(ctx, query, userID)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}
