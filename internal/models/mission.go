// internal/models/mission.go
package models

import (
	"fmt"
	"time"
)

// MissionStatus is the closed set of mission lifecycle states.
type MissionStatus string

const (
	MissionDraft      MissionStatus = "draft"
	MissionPublished  MissionStatus = "published"
	MissionAssigned   MissionStatus = "assigned"
	MissionInProgress MissionStatus = "in_progress"
	MissionCompleted  MissionStatus = "completed"
	MissionCancelled  MissionStatus = "cancelled"
)

var missionTransitions = map[MissionStatus][]MissionStatus{
	MissionDraft:      {MissionPublished, MissionAssigned, MissionCancelled},
	MissionPublished:  {MissionPublished, MissionAssigned, MissionCancelled},
	MissionAssigned:   {MissionAssigned, MissionInProgress, MissionCancelled},
	MissionInProgress: {MissionCompleted, MissionCancelled},
	MissionCompleted:  nil,
	MissionCancelled:  nil,
}

// ParseMissionStatus validates a raw status read from storage or a request.
func ParseMissionStatus(s string) (MissionStatus, error) {
	status := MissionStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("unknown mission status %q", s)
	}
	return status, nil
}

func (s MissionStatus) Valid() bool {
	_, ok := missionTransitions[s]
	return ok
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s MissionStatus) CanTransitionTo(next MissionStatus) bool {
	for _, allowed := range missionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s MissionStatus) Terminal() bool {
	return s.Valid() && len(missionTransitions[s]) == 0
}

// Audience selects which worker roles a mission is offered to.
type Audience string

const (
	AudienceSubcontractors             Audience = "subcontractors"
	AudienceSubcontractorsAndEmployees Audience = "subcontractors_and_employees"
)

func ParseAudience(s string) (Audience, error) {
	switch a := Audience(s); a {
	case AudienceSubcontractors, AudienceSubcontractorsAndEmployees:
		return a, nil
	case "":
		return AudienceSubcontractors, nil
	default:
		return "", fmt.Errorf("unknown audience %q", s)
	}
}

// Mission is a unit of field work to be performed at a location.
type Mission struct {
	ID               string        `json:"id"`
	Title            string        `json:"title"`
	Status           MissionStatus `json:"status"`
	SkillTag         string        `json:"skillTag,omitempty"`
	Audience         Audience      `json:"audience"`
	Address          string        `json:"address"`
	City             string        `json:"city"`
	Latitude         float64       `json:"latitude"`
	Longitude        float64       `json:"longitude"`
	AssignedWorkerID *string       `json:"assignedWorkerId,omitempty"`
	CreatedBy        string        `json:"createdBy,omitempty"`
	Version          int64         `json:"version"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

// IsAssignedTo reports whether workerID holds the mission.
func (m Mission) IsAssignedTo(workerID string) bool {
	return m.AssignedWorkerID != nil && *m.AssignedWorkerID == workerID
}
