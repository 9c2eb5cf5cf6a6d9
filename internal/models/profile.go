// internal/models/profile.go
package models

import "fmt"

// WorkerRole is the employment relationship of a worker.
type WorkerRole string

const (
	WorkerSubcontractor WorkerRole = "subcontractor"
	WorkerEmployee      WorkerRole = "employee"
)

func ParseWorkerRole(s string) (WorkerRole, error) {
	switch r := WorkerRole(s); r {
	case WorkerSubcontractor, WorkerEmployee:
		return r, nil
	default:
		return "", fmt.Errorf("unknown worker role %q", s)
	}
}

// WorkerProfile carries the eligibility facts of a worker.
type WorkerProfile struct {
	ID             string     `json:"id"`
	Role           WorkerRole `json:"role"`
	Skills         []string   `json:"skills"`
	BlackoutCities []string   `json:"blackoutCities"`
	Active         bool       `json:"active"`
}

// Contact is what a channel provider needs to reach a recipient. Any field may be empty.
type Contact struct {
	RecipientID     string
	Email           string
	Phone           string
	PushEndpointARN string
}
