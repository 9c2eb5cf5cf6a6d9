// Package offers publishes missions to eligible workers and serves the
// viewer-relative offer listings.
package offers

import (
	"context"
	"errors"
	"fmt"
	"time"

	commonerrors "mission-dispatch/internal/common/errors"
	"mission-dispatch/internal/common/logger"
	"mission-dispatch/internal/common/metrics"
	"mission-dispatch/internal/common/observability"
	"mission-dispatch/internal/dispatch/events"
	"mission-dispatch/internal/dispatch/privacy"
	"mission-dispatch/internal/dispatch/store"
	"mission-dispatch/internal/models"

	"go.opentelemetry.io/otel/attribute"
)

// CandidateResolver is implemented by eligibility.Resolver.
type CandidateResolver interface {
	Resolve(ctx context.Context, mission models.Mission, includeEmployees bool) (*models.Targeting, error)
}

type Manager struct {
	store      store.Store
	resolver   CandidateResolver
	masker     *privacy.Masker
	publisher  events.Publisher
	logger     logger.Logger
	defaultTTL time.Duration
	now        func() time.Time
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(
	st store.Store,
	resolver CandidateResolver,
	masker *privacy.Masker,
	publisher events.Publisher,
	log logger.Logger,
	defaultTTL time.Duration,
	opts ...Option,
) *Manager {
	if defaultTTL <= 0 {
		defaultTTL = 30 * time.Minute
	}
	if publisher == nil {
		publisher = events.Discard
	}
	m := &Manager{
		store:      st,
		resolver:   resolver,
		masker:     masker,
		publisher:  publisher,
		logger:     log,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Publish replaces the mission's offer set with fresh offers for every eligible
// worker and moves the mission to published. A non-positive ttlMinutes selects
// the default TTL.
func (m *Manager) Publish(ctx context.Context, missionID string, ttlMinutes int, includeEmployees bool) (*models.PublishResult, error) {
	ctx, span := observability.StartSpan(ctx, "offers.Publish", attribute.String("mission.id", missionID))
	defer span.End()

	mission, err := m.store.GetMission(ctx, missionID)
	if err != nil {
		return nil, translate("get mission", missionID, err)
	}
	if !mission.Status.CanTransitionTo(models.MissionPublished) {
		return nil, commonerrors.NewInvalidStateTransitionError(
			fmt.Sprintf("cannot publish mission %s in status %s", missionID, mission.Status))
	}

	targeting, err := m.resolver.Resolve(ctx, *mission, includeEmployees)
	if err != nil {
		return nil, commonerrors.NewDatabaseError("resolve candidates", err)
	}

	ttl := m.defaultTTL
	if ttlMinutes > 0 {
		ttl = time.Duration(ttlMinutes) * time.Minute
	}
	sentAt := m.now().UTC()
	expiresAt := sentAt.Add(ttl)

	var created int
	var title string
	err = m.store.WithMissionLock(ctx, missionID, func(ctx context.Context, tx store.MissionTx) error {
		locked := tx.Mission()
		if !locked.Status.CanTransitionTo(models.MissionPublished) {
			return commonerrors.NewInvalidStateTransitionError(
				fmt.Sprintf("cannot publish mission %s in status %s", missionID, locked.Status))
		}
		title = locked.Title

		n, err := tx.ReplaceOffers(ctx, targeting.CandidateIDs, sentAt, expiresAt)
		if err != nil {
			return err
		}
		created = n
		return tx.UpdateMission(ctx, models.MissionPublished, nil, sentAt)
	})
	if err != nil {
		span.RecordError(err)
		return nil, translate("publish mission", missionID, err)
	}

	metrics.OffersPublished.Add(float64(created))
	metrics.MissionTransitions.WithLabelValues(string(models.MissionPublished)).Inc()

	evt := events.New(models.EventOfferPublished, missionID, sentAt)
	evt.MissionTitle = title
	evt.Recipients = targeting.CandidateIDs
	evt.Data = map[string]interface{}{
		"expiresAt":     expiresAt.Format(time.RFC3339),
		"offersCreated": created,
	}
	m.emit(ctx, evt)

	m.logger.Info("Mission published", map[string]interface{}{
		"missionId":          missionID,
		"offersCreated":      created,
		"totalCandidates":    targeting.TotalCandidates,
		"finalEligible":      targeting.FinalEligible,
		"skillFilterApplied": targeting.SkillFilterApplied,
		"expiresAt":          expiresAt,
	})

	return &models.PublishResult{
		MissionID:     missionID,
		OffersCreated: created,
		ExpiresAt:     expiresAt,
		Targeting:     *targeting,
	}, nil
}

// ListForCandidate returns the viewer's own offers, newest first.
func (m *Manager) ListForCandidate(ctx context.Context, viewer models.Identity) ([]models.OfferView, error) {
	rows, err := m.store.ListOffersForCandidate(ctx, viewer.UserID)
	if err != nil {
		return nil, commonerrors.NewDatabaseError("list offers for candidate", err)
	}
	return m.views(rows, viewer.UserID), nil
}

// ListForMission returns every offer of a mission as seen by viewer.
func (m *Manager) ListForMission(ctx context.Context, missionID string, viewer models.Identity) ([]models.OfferView, error) {
	if _, err := m.store.GetMission(ctx, missionID); err != nil {
		return nil, translate("get mission", missionID, err)
	}
	rows, err := m.store.ListOffersForMission(ctx, missionID)
	if err != nil {
		return nil, commonerrors.NewDatabaseError("list offers for mission", err)
	}
	return m.views(rows, viewer.UserID), nil
}

func (m *Manager) views(rows []models.OfferWithMission, viewerID string) []models.OfferView {
	now := m.now()
	out := make([]models.OfferView, 0, len(rows))
	for _, r := range rows {
		usable := models.OfferUsable(r.Offer, r.Mission.Status, now)
		out = append(out, m.masker.View(r.Offer, r.Mission, viewerID, usable))
	}
	return out
}

// Refuse records that the candidate declined a usable offer.
func (m *Manager) Refuse(ctx context.Context, missionID, candidateID string) error {
	now := m.now().UTC()
	var title string
	err := m.store.WithMissionLock(ctx, missionID, func(ctx context.Context, tx store.MissionTx) error {
		mission := tx.Mission()
		title = mission.Title
		offer, err := tx.Offer(ctx, candidateID)
		if err != nil {
			return err
		}
		if offer == nil || !models.OfferUsable(*offer, mission.Status, now) {
			return commonerrors.NewInvalidStateTransitionError(
				fmt.Sprintf("no usable offer for candidate %s on mission %s", candidateID, missionID))
		}
		return tx.RefuseOffer(ctx, candidateID, now)
	})
	if err != nil {
		return translate("refuse offer", missionID, err)
	}

	evt := events.New(models.EventOfferRefused, missionID, now)
	evt.MissionTitle = title
	evt.CandidateID = candidateID
	evt.ActorID = candidateID
	m.emit(ctx, evt)
	return nil
}

// SweepExpired flags unanswered offers past their expiry. Usability is always
// computed from ExpiresAt, so the flag only feeds listings and notifications.
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	now := m.now().UTC()
	expired, err := m.store.MarkExpiredOffers(ctx, now)
	if err != nil {
		return 0, commonerrors.NewDatabaseError("mark expired offers", err)
	}
	for _, o := range expired {
		evt := events.New(models.EventOfferExpired, o.MissionID, now)
		evt.CandidateID = o.CandidateID
		evt.Recipients = []string{o.CandidateID}
		m.emit(ctx, evt)
	}
	if len(expired) > 0 {
		m.logger.Info("Expired offers flagged", map[string]interface{}{"count": len(expired)})
	}
	return len(expired), nil
}

func (m *Manager) emit(ctx context.Context, evt models.DispatchEvent) {
	if err := m.publisher.Publish(ctx, evt); err != nil {
		m.logger.Warn("Failed to emit dispatch event", map[string]interface{}{
			"eventType": string(evt.Type),
			"missionId": evt.MissionID,
			"error":     err.Error(),
		})
	}
}

func translate(op, missionID string, err error) error {
	var stdErr *commonerrors.StandardError
	switch {
	case errors.As(err, &stdErr):
		return stdErr
	case errors.Is(err, store.ErrMissionNotFound):
		return commonerrors.NewMissionNotFoundError(missionID)
	default:
		return commonerrors.NewDatabaseError(op, err)
	}
}
