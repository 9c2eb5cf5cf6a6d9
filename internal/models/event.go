// internal/models/event.go
package models

import (
	"fmt"
	"time"
)

// EventType names a dispatch event. Topics, message names and notification
// templates key off it.
type EventType string

const (
	EventOfferPublished   EventType = "offer.published"
	EventOfferClaimed     EventType = "offer.claimed"
	EventOfferRefused     EventType = "offer.refused"
	EventOfferExpired     EventType = "offer.expired"
	EventMissionAssigned  EventType = "mission.assigned"
	EventMissionCancelled EventType = "mission.cancelled"
	EventMissionStarted   EventType = "mission.started"
	EventMissionCompleted EventType = "mission.completed"
)

// AllEventTypes lists every dispatch event type.
var AllEventTypes = []EventType{
	EventOfferPublished,
	EventOfferClaimed,
	EventOfferRefused,
	EventOfferExpired,
	EventMissionAssigned,
	EventMissionCancelled,
	EventMissionStarted,
	EventMissionCompleted,
}

func ParseEventType(s string) (EventType, error) {
	for _, t := range AllEventTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown event type %q", s)
}

// DispatchEvent is emitted after a dispatch state change commits.
type DispatchEvent struct {
	ID           string                 `json:"id"`
	Type         EventType              `json:"type"`
	MissionID    string                 `json:"missionId"`
	MissionTitle string                 `json:"missionTitle,omitempty"`
	CandidateID  string                 `json:"candidateId,omitempty"`
	Recipients   []string               `json:"recipients,omitempty"`
	ActorID      string                 `json:"actorId,omitempty"`
	OccurredAt   time.Time              `json:"occurredAt"`
	Data         map[string]interface{} `json:"data,omitempty"`
}
