package events

import (
	"context"
	"time"

	"mission-dispatch/internal/models"
)

// MessagePublisher is implemented by camunda.Client.
type MessagePublisher interface {
	PublishMessage(ctx context.Context, name, correlationKey, messageID string, ttl time.Duration, vars map[string]interface{}) error
}

var messageNames = map[models.EventType]string{
	models.EventOfferClaimed:     "mission-claimed",
	models.EventMissionAssigned:  "mission-assigned",
	models.EventMissionCancelled: "mission-cancelled",
	models.EventMissionCompleted: "mission-completed",
}

// ZeebeSink correlates assignment outcomes with the operator's process instance
// by mission id. Other event types are ignored.
type ZeebeSink struct {
	publisher MessagePublisher
	ttl       time.Duration
}

func NewZeebeSink(publisher MessagePublisher, ttl time.Duration) *ZeebeSink {
	return &ZeebeSink{publisher: publisher, ttl: ttl}
}

func (s *ZeebeSink) Publish(ctx context.Context, evt models.DispatchEvent) error {
	name, ok := messageNames[evt.Type]
	if !ok {
		return nil
	}
	vars := map[string]interface{}{
		"missionId":  evt.MissionID,
		"eventType":  string(evt.Type),
		"occurredAt": evt.OccurredAt.Format(time.RFC3339),
	}
	if evt.CandidateID != "" {
		vars["assignedWorkerId"] = evt.CandidateID
	}
	if evt.ActorID != "" {
		vars["actorId"] = evt.ActorID
	}
	return s.publisher.PublishMessage(ctx, name, evt.MissionID, evt.ID, s.ttl, vars)
}
