package notifications

import (
	"context"
	"errors"
	"time"

	"mission-dispatch/internal/models"
)

var ErrNotificationNotFound = errors.New("NOTIFICATION_NOT_FOUND")

// Store persists notifications and their per-channel deliveries.
type Store interface {
	// Insert stores n with one pending delivery per channel. created is false
	// when the recipient already has a notification with n.DedupKey.
	Insert(ctx context.Context, n *models.Notification) (created bool, err error)
	// ClaimBatch marks up to limit due deliveries of channel as processing and
	// returns them by priority, then age. Deliveries stuck in processing longer
	// than visibility are due again.
	ClaimBatch(ctx context.Context, channel models.Channel, now time.Time, limit int, visibility time.Duration) ([]models.DeliveryJob, error)
	MarkSent(ctx context.Context, notificationID string, channel models.Channel, at time.Time) error
	MarkRetry(ctx context.Context, notificationID string, channel models.Channel, retryCount int, nextRetryAt time.Time, errMsg string, at time.Time) error
	MarkFailed(ctx context.Context, notificationID string, channel models.Channel, retryCount int, errMsg string, at time.Time) error

	Get(ctx context.Context, id string) (*models.Notification, error)
	ListInbox(ctx context.Context, recipientID string, includeArchived bool, limit int) ([]models.Notification, error)
	// Archive hides a notification from the inbox. Archiving twice is a no-op.
	Archive(ctx context.Context, id, recipientID string, at time.Time) error

	// GetContact returns an empty contact when none is stored.
	GetContact(ctx context.Context, recipientID string) (models.Contact, error)
	GetPreferences(ctx context.Context, recipientID string) (*Preferences, error)
	SavePreferences(ctx context.Context, p Preferences) error
}
