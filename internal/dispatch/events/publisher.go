// Package events carries dispatch events from committed state changes to their
// consumers: the notification pipeline, the change stream and the workflow engine.
package events

import (
	"context"
	"time"

	"mission-dispatch/internal/models"

	"github.com/google/uuid"
)

// Publisher accepts a dispatch event. Implementations must not block on slow consumers.
type Publisher interface {
	Publish(ctx context.Context, evt models.DispatchEvent) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, evt models.DispatchEvent) error

func (f PublisherFunc) Publish(ctx context.Context, evt models.DispatchEvent) error {
	return f(ctx, evt)
}

// Discard drops every event.
var Discard Publisher = PublisherFunc(func(context.Context, models.DispatchEvent) error { return nil })

// New stamps an id and timestamp on a new event.
func New(t models.EventType, missionID string, now time.Time) models.DispatchEvent {
	return models.DispatchEvent{
		ID:         uuid.NewString(),
		Type:       t,
		MissionID:  missionID,
		OccurredAt: now.UTC(),
	}
}
