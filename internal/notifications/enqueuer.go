package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	commonerrors "mission-dispatch/internal/common/errors"
	"mission-dispatch/internal/common/logger"
	"mission-dispatch/internal/common/metrics"
	"mission-dispatch/internal/models"

	"github.com/google/uuid"
)

// Request asks for one notification to one recipient. DedupKey is derived from
// the content when empty.
type Request struct {
	RecipientID     string
	EventType       models.EventType
	RelatedEntityID string
	Title           string
	Message         string
	ActionLink      string
	Priority        models.Priority
	Channels        []models.Channel
	DedupKey        string
}

func (r Request) validate() error {
	var missing []string
	if strings.TrimSpace(r.RecipientID) == "" {
		missing = append(missing, "recipientId")
	}
	if strings.TrimSpace(r.Title) == "" {
		missing = append(missing, "title")
	}
	if len(missing) > 0 {
		return commonerrors.NewValidationError("missing " + strings.Join(missing, ", "))
	}
	if _, err := models.ParseEventType(string(r.EventType)); err != nil {
		return commonerrors.NewValidationError(err.Error())
	}
	for _, c := range r.Channels {
		if _, err := models.ParseChannel(string(c)); err != nil {
			return commonerrors.NewValidationError(err.Error())
		}
	}
	return nil
}

// Index mirrors notification state into the operator inbox.
type Index interface {
	IndexNotification(ctx context.Context, n models.Notification) error
	UpdateDelivery(ctx context.Context, notificationID string, d models.Delivery) error
}

type nopIndex struct{}

func (nopIndex) IndexNotification(context.Context, models.Notification) error {
	return nil
}

func (nopIndex) UpdateDelivery(context.Context, string, models.Delivery) error {
	return nil
}

// NopIndex discards index updates.
var NopIndex Index = nopIndex{}

type Enqueuer struct {
	store      Store
	prefs      PreferenceSource
	index      Index
	maxRetries int
	logger     logger.Logger
	now        func() time.Time
}

func NewEnqueuer(store Store, prefs PreferenceSource, index Index, maxRetries int, log logger.Logger) *Enqueuer {
	if index == nil {
		index = NopIndex
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &Enqueuer{
		store:      store,
		prefs:      prefs,
		index:      index,
		maxRetries: maxRetries,
		logger:     log,
		now:        time.Now,
	}
}

// Enqueue records a notification and its pending deliveries. A duplicate of an
// existing notification is not an error: created is false and nothing changes.
// When preferences filter every channel out the notification is stored as skipped.
func (e *Enqueuer) Enqueue(ctx context.Context, req Request) (n *models.Notification, created bool, err error) {
	if err := req.validate(); err != nil {
		return nil, false, err
	}

	prefs, err := e.prefs.GetPreferences(ctx, req.RecipientID)
	if err != nil {
		return nil, false, commonerrors.NewDatabaseError("get preferences", err)
	}

	now := e.now().UTC()
	channels, skipReason := FilterChannels(prefs, req.EventType, req.Channels, now)

	dedupKey := req.DedupKey
	if dedupKey == "" {
		dedupKey = DedupKey(req.EventType, req.RelatedEntityID, req.Title, req.Message)
	}
	n = &models.Notification{
		ID:              uuid.NewString(),
		RecipientID:     req.RecipientID,
		EventType:       req.EventType,
		RelatedEntityID: req.RelatedEntityID,
		Title:           req.Title,
		Message:         req.Message,
		ActionLink:      req.ActionLink,
		Priority:        req.Priority,
		Channels:        channels,
		DedupKey:        dedupKey,
		Status:          models.NotificationQueued,
		MaxRetries:      e.maxRetries,
		CreatedAt:       now,
	}
	if len(channels) == 0 {
		n.Channels = []models.Channel{}
		n.Status = models.NotificationSkipped
		n.SkipReason = skipReason
	}

	created, err = e.store.Insert(ctx, n)
	if err != nil {
		return nil, false, commonerrors.NewDatabaseError("insert notification", err)
	}
	if !created {
		metrics.NotificationsEnqueued.WithLabelValues("duplicate").Inc()
		e.logger.Debug("Duplicate notification ignored", map[string]interface{}{
			"recipientId": req.RecipientID,
			"eventType":   string(req.EventType),
			"dedupKey":    dedupKey,
		})
		return nil, false, nil
	}

	outcome := "created"
	if n.Status == models.NotificationSkipped {
		outcome = "skipped"
	}
	metrics.NotificationsEnqueued.WithLabelValues(outcome).Inc()

	for _, c := range n.Channels {
		n.Deliveries = append(n.Deliveries, models.Delivery{
			NotificationID: n.ID,
			Channel:        c,
			Status:         models.DeliveryPending,
			NextRetryAt:    now,
			UpdatedAt:      now,
		})
	}
	if err := e.index.IndexNotification(ctx, *n); err != nil {
		e.logger.Warn("Failed to index notification", map[string]interface{}{
			"notificationId": n.ID,
			"error":          err.Error(),
		})
	}

	e.logger.Info("Notification enqueued", map[string]interface{}{
		"notificationId": n.ID,
		"recipientId":    n.RecipientID,
		"eventType":      string(n.EventType),
		"channels":       fmt.Sprint(n.Channels),
		"status":         string(n.Status),
	})
	return n, true, nil
}
