package publishmission

import (
	"time"

	"mission-dispatch/internal/models"
)

type Input struct {
	MissionID        string `json:"missionId"`
	TTLMinutes       int    `json:"ttlMinutes"`
	IncludeEmployees bool   `json:"includeEmployees"`
}

type Output struct {
	MissionID     string           `json:"missionId"`
	OffersCreated int              `json:"offersCreated"`
	ExpiresAt     time.Time        `json:"expiresAt"`
	Targeting     models.Targeting `json:"targeting"`
}
