package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/studex/apiserver/internal/metrics"
	"github.com/studex/apiserver/internal/store"
	"github.com/studex/apiserver/types"
)

const (
	defaultNotificationLimit = 20
	maxNotificationLimit     = 100
)

// NotificationRepository defines persistence operations for notifications.
type NotificationRepository interface {
	Create(ctx context.Context, notification types.Notification) (types.Notification, error)
	ListRecent(ctx context.Context, userID, limit int) ([]types.Notification, error)
	CountUnread(ctx context.Context, userID int) (int, error)
	MarkRead(ctx context.Context, userID, id int) error
	MarkAllRead(ctx context.Context, userID int) (int, error)
}

// NotificationService creates and reads notifications.
type NotificationService struct {
	repo   NotificationRepository
	logger *slog.Logger
}

func NewNotificationService(repo NotificationRepository, logger *slog.Logger) *NotificationService {
	return &NotificationService{repo: repo, logger: logger}
}

// Create stores a notification and returns it. Errors propagate to the caller.
func (s *NotificationService) Create(
	ctx context.Context,
	userID int,
	notificationType types.NotificationType,
	title, message string,
	data types.NotificationData,
) (types.Notification, error) {
	created, err := s.repo.Create(ctx, types.Notification{
		UserID:  userID,
		Type:    notificationType,
		Title:   title,
		Message: message,
		Data:    data,
	})
	if err != nil {
		return types.Notification{}, err
	}
	metrics.NotificationsCreatedTotal.WithLabelValues(string(notificationType)).Inc()
	return created, nil
}

// Notify is the best-effort form of Create: failures are logged and dropped
// so they never fail the operation that triggered them.
func (s *NotificationService) Notify(
	ctx context.Context,
	userID int,
	notificationType types.NotificationType,
	title, message string,
	data types.NotificationData,
) {
	if _, err := s.Create(ctx, userID, notificationType, title, message, data); err != nil {
		metrics.NotificationFailuresTotal.Inc()
		s.logger.Warn("notification dropped",
			slog.Int("user_id", userID),
			slog.String("type", string(notificationType)),
			slog.Any("error", err),
		)
	}
}

func (s *NotificationService) List(ctx context.Context, userID, limit int) ([]types.Notification, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}
	return s.repo.ListRecent(ctx, userID, limit)
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID int) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}

// MarkRead flags a notification owned by userID. Notifications of other
// users are reported as not found and left untouched.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id int) error {
	if err := s.repo.MarkRead(ctx, userID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("notification not found")
		}
		return err
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID int) (int, error) {
	return s.repo.MarkAllRead(ctx, userID)
}
