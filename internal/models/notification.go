// internal/models/notification.go
package models

import (
	"fmt"
	"time"
)

// Channel is a notification delivery medium.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

// AllChannels lists every channel in worker registration order.
var AllChannels = []Channel{ChannelInApp, ChannelEmail, ChannelSMS, ChannelPush}

func ParseChannel(s string) (Channel, error) {
	for _, c := range AllChannels {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown channel %q", s)
}

// Intrusive channels are suppressed during quiet hours.
func (c Channel) Intrusive() bool {
	return c == ChannelSMS || c == ChannelPush
}

// NotificationStatus is the record-level state.
type NotificationStatus string

const (
	NotificationQueued   NotificationStatus = "queued"
	NotificationSkipped  NotificationStatus = "skipped"
	NotificationArchived NotificationStatus = "archived"
)

func ParseNotificationStatus(s string) (NotificationStatus, error) {
	switch st := NotificationStatus(s); st {
	case NotificationQueued, NotificationSkipped, NotificationArchived:
		return st, nil
	default:
		return "", fmt.Errorf("unknown notification status %q", s)
	}
}

// DeliveryStatus is the per-channel state.
type DeliveryStatus string

const (
	DeliveryPending    DeliveryStatus = "pending"
	DeliveryProcessing DeliveryStatus = "processing"
	DeliverySent       DeliveryStatus = "sent"
	DeliveryFailed     DeliveryStatus = "failed"
)

func ParseDeliveryStatus(s string) (DeliveryStatus, error) {
	switch st := DeliveryStatus(s); st {
	case DeliveryPending, DeliveryProcessing, DeliverySent, DeliveryFailed:
		return st, nil
	case "":
		return DeliveryPending, nil
	default:
		return "", fmt.Errorf("unknown delivery status %q", s)
	}
}

// Priority orders the backlog; higher is delivered first.
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 5
	PriorityHigh   Priority = 10
)

// Notification is a durable message to one recipient.
type Notification struct {
	ID              string             `json:"id"`
	RecipientID     string             `json:"recipientId"`
	EventType       EventType          `json:"eventType"`
	RelatedEntityID string             `json:"relatedEntityId,omitempty"`
	Title           string             `json:"title"`
	Message         string             `json:"message"`
	ActionLink      string             `json:"actionLink,omitempty"`
	Priority        Priority           `json:"priority"`
	Channels        []Channel          `json:"channels"`
	DedupKey        string             `json:"dedupKey"`
	Status          NotificationStatus `json:"status"`
	SkipReason      string             `json:"skipReason,omitempty"`
	MaxRetries      int                `json:"maxRetries"`
	CreatedAt       time.Time          `json:"createdAt"`
	ArchivedAt      *time.Time         `json:"archivedAt,omitempty"`
	Deliveries      []Delivery         `json:"deliveries,omitempty"`
}

// Delivery is the state of one channel of a notification.
type Delivery struct {
	NotificationID string         `json:"notificationId"`
	Channel        Channel        `json:"channel"`
	Status         DeliveryStatus `json:"status"`
	Error          string         `json:"error,omitempty"`
	RetryCount     int            `json:"retryCount"`
	NextRetryAt    time.Time      `json:"nextRetryAt"`
	SentAt         *time.Time     `json:"sentAt,omitempty"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// DeliveryJob is a claimed delivery plus the notification content to send.
type DeliveryJob struct {
	NotificationID string
	Channel        Channel
	RecipientID    string
	EventType      EventType
	Title          string
	Message        string
	ActionLink     string
	Priority       Priority
	RetryCount     int
	MaxRetries     int
	CreatedAt      time.Time
}
