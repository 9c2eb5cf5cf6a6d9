package channels

import (
	"context"
	"fmt"
	"time"

	"mission-dispatch/internal/dispatch/events"
	"mission-dispatch/internal/models"
)

// TopicPublisher is satisfied by events.Hub.
type TopicPublisher interface {
	PublishJSON(ctx context.Context, topic string, v interface{}) error
}

// InboxMessage is what live inbox subscribers receive.
type InboxMessage struct {
	NotificationID string           `json:"notificationId"`
	EventType      models.EventType `json:"eventType"`
	Title          string           `json:"title"`
	Message        string           `json:"message"`
	ActionLink     string           `json:"actionLink,omitempty"`
	Priority       models.Priority  `json:"priority"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// InApp pushes the notification to the recipient's live inbox topic. The
// stored notification is the inbox itself, so a recipient without an open
// stream still sees it on the next fetch.
type InApp struct {
	hub TopicPublisher
}

func NewInApp(hub TopicPublisher) *InApp {
	return &InApp{hub: hub}
}

func (a *InApp) Channel() models.Channel {
	return models.ChannelInApp
}

func (a *InApp) Send(ctx context.Context, contact models.Contact, job models.DeliveryJob) error {
	err := a.hub.PublishJSON(ctx, events.InboxTopic(job.RecipientID), InboxMessage{
		NotificationID: job.NotificationID,
		EventType:      job.EventType,
		Title:          job.Title,
		Message:        job.Message,
		ActionLink:     job.ActionLink,
		Priority:       job.Priority,
		CreatedAt:      job.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("publish inbox message: %w", err)
	}
	return nil
}
