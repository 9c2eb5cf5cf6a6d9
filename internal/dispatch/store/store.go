// Package store persists missions, offers and worker eligibility facts.
package store

import (
	"context"
	"errors"
	"time"

	"mission-dispatch/internal/models"
)

var (
	ErrMissionNotFound = errors.New("MISSION_NOT_FOUND")
	ErrOfferNotFound   = errors.New("OFFER_NOT_FOUND")
)

// MissionTx is a view of one mission held under its lock. Every change made
// through it commits together when the callback returns nil.
type MissionTx interface {
	Mission() models.Mission
	// Offer returns nil, nil when the candidate has no offer for the mission.
	Offer(ctx context.Context, candidateID string) (*models.Offer, error)
	// ReplaceOffers drops the current offer set and inserts one offer per candidate.
	ReplaceOffers(ctx context.Context, candidateIDs []string, sentAt, expiresAt time.Time) (int, error)
	UpdateMission(ctx context.Context, status models.MissionStatus, assignedWorkerID *string, now time.Time) error
	AcceptOffer(ctx context.Context, candidateID string, at time.Time) error
	ClearAcceptance(ctx context.Context) error
	RefuseOffer(ctx context.Context, candidateID string, at time.Time) error
}

// Store is implemented by PostgresStore and MemoryStore.
type Store interface {
	GetMission(ctx context.Context, id string) (*models.Mission, error)
	CreateMission(ctx context.Context, m models.Mission) error
	// WithMissionLock serializes fn against every other locked operation on the mission.
	WithMissionLock(ctx context.Context, missionID string, fn func(ctx context.Context, tx MissionTx) error) error
	ListOffersForCandidate(ctx context.Context, candidateID string) ([]models.OfferWithMission, error)
	ListOffersForMission(ctx context.Context, missionID string) ([]models.OfferWithMission, error)
	// MarkExpiredOffers flags unanswered offers past their expiry and returns them.
	MarkExpiredOffers(ctx context.Context, now time.Time) ([]models.Offer, error)
	ListWorkerProfiles(ctx context.Context, roles []models.WorkerRole) ([]models.WorkerProfile, error)
	UpsertWorkerProfile(ctx context.Context, p models.WorkerProfile) error
}
