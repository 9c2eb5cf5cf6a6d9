// Package arbiter owns every mutation of mission assignment: the concurrent
// claim, the administrator override and the later lifecycle transitions.
package arbiter

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
	"mission-dispatch/internal/dispatch/store"
	"mission-dispatch/internal/models"

	"go.opentelemetry.io/otel/attribute"
)

type Arbiter struct {
	store     store.Store
	publisher events.Publisher
	logger    logger.Logger
	now       func() time.Time
}

func New(st store.Store, publisher events.Publisher, log logger.Logger, now func() time.Time) *Arbiter {
	if publisher == nil {
		publisher = events.Discard
	}
	if now == nil {
		now = time.Now
	}
	return &Arbiter{store: st, publisher: publisher, logger: log, now: now}
}

// Claim resolves a candidate's attempt to take a mission. Exactly one caller per
// published mission gets ClaimOK; losing the race is a result, not an error.
func (a *Arbiter) Claim(ctx context.Context, missionID, candidateID string) (models.ClaimResult, error) {
	ctx, span := observability.StartSpan(ctx, "arbiter.Claim",
		attribute.String("mission.id", missionID),
		attribute.String("candidate.id", candidateID),
	)
	defer span.End()

	result := models.ClaimOfferNotFoundOrExpired
	var title string
	err := a.store.WithMissionLock(ctx, missionID, func(ctx context.Context, tx store.MissionTx) error {
		// Timestamp taken under the lock so expiry is judged at serialization time.
		now := a.now().UTC()
		mission := tx.Mission()
		title = mission.Title

		if mission.Status != models.MissionPublished || mission.AssignedWorkerID != nil {
			result = models.ClaimAlreadyTaken
			return nil
		}

		offer, err := tx.Offer(ctx, candidateID)
		if err != nil {
			return err
		}
		if offer == nil || !models.OfferUsable(*offer, mission.Status, now) {
			result = models.ClaimOfferNotFoundOrExpired
			return nil
		}

		winner := candidateID
		if err := tx.UpdateMission(ctx, models.MissionAssigned, &winner, now); err != nil {
			return err
		}
		if err := tx.AcceptOffer(ctx, candidateID, now); err != nil {
			return err
		}
		result = models.ClaimOK
		return nil
	})
	if errors.Is(err, store.ErrMissionNotFound) {
		result, err = models.ClaimOfferNotFoundOrExpired, nil
	}
	if err != nil {
		span.RecordError(err)
		metrics.ClaimAttempts.WithLabelValues("error").Inc()
		return "", translate("claim mission", missionID, err)
	}

	span.SetAttributes(attribute.String("claim.result", string(result)))
	metrics.ClaimAttempts.WithLabelValues(string(result)).Inc()

	if result != models.ClaimOK {
		a.logger.Debug("Claim rejected", map[string]interface{}{
			"missionId":   missionID,
			"candidateId": candidateID,
			"result":      string(result),
		})
		return result, nil
	}

	metrics.MissionTransitions.WithLabelValues(string(models.MissionAssigned)).Inc()
	a.logger.Info("Mission claimed", map[string]interface{}{
		"missionId":   missionID,
		"candidateId": candidateID,
	})

	evt := events.New(models.EventOfferClaimed, missionID, a.now())
	evt.MissionTitle = title
	evt.CandidateID = candidateID
	evt.ActorID = candidateID
	evt.Recipients = a.otherCandidates(ctx, missionID, candidateID)
	a.emit(ctx, evt)
	return result, nil
}

// AssignManually lets an administrator assign a mission directly, bypassing the
// claim race. A candidate without an offer is assigned without creating one.
func (a *Arbiter) AssignManually(ctx context.Context, missionID, candidateID string, caller models.Identity) error {
	if !caller.IsAdministrator() {
		return commonerrors.NewForbiddenError("assign mission")
	}
	if candidateID == "" {
		return commonerrors.NewValidationError("candidateId is required")
	}

	ctx, span := observability.StartSpan(ctx, "arbiter.AssignManually",
		attribute.String("mission.id", missionID),
		attribute.String("candidate.id", candidateID),
	)
	defer span.End()

	var title string
	var previous *string
	var hadOffer, refused bool
	err := a.store.WithMissionLock(ctx, missionID, func(ctx context.Context, tx store.MissionTx) error {
		now := a.now().UTC()
		mission := tx.Mission()
		title = mission.Title
		previous = mission.AssignedWorkerID

		if !mission.Status.CanTransitionTo(models.MissionAssigned) {
			return commonerrors.NewInvalidStateTransitionError(
				fmt.Sprintf("cannot assign mission %s in status %s", missionID, mission.Status))
		}

		offer, err := tx.Offer(ctx, candidateID)
		if err != nil {
			return err
		}
		if err := tx.ClearAcceptance(ctx); err != nil {
			return err
		}
		assignee := candidateID
		if err := tx.UpdateMission(ctx, models.MissionAssigned, &assignee, now); err != nil {
			return err
		}
		switch {
		case offer == nil:
		case offer.RefusedAt != nil:
			// A refusal stays on record; the assignment proceeds as if no offer existed.
			refused = true
		default:
			hadOffer = true
			return tx.AcceptOffer(ctx, candidateID, now)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return translate("assign mission", missionID, err)
	}

	metrics.MissionTransitions.WithLabelValues(string(models.MissionAssigned)).Inc()
	if !hadOffer {
		a.logger.Warn("Mission assigned to a candidate without an offer", map[string]interface{}{
			"missionId":    missionID,
			"candidateId":  candidateID,
			"actorId":      caller.UserID,
			"offerRefused": refused,
		})
	}

	evt := events.New(models.EventMissionAssigned, missionID, a.now())
	evt.MissionTitle = title
	evt.CandidateID = candidateID
	evt.ActorID = caller.UserID
	evt.Data = map[string]interface{}{"withoutOffer": !hadOffer}
	if refused {
		evt.Data["offerRefused"] = true
	}
	if previous != nil && *previous != candidateID {
		evt.Recipients = []string{*previous}
		evt.Data["previousWorkerId"] = *previous
	}
	a.emit(ctx, evt)
	return nil
}

// Cancel ends the mission. Outstanding offers stop being usable because the
// mission leaves the published state; offer rows are left untouched.
func (a *Arbiter) Cancel(ctx context.Context, missionID string, caller models.Identity, reason string) error {
	if !caller.IsAdministrator() {
		return commonerrors.NewForbiddenError("cancel mission")
	}

	var mission models.Mission
	err := a.store.WithMissionLock(ctx, missionID, func(ctx context.Context, tx store.MissionTx) error {
		mission = tx.Mission()
		if !mission.Status.CanTransitionTo(models.MissionCancelled) {
			return commonerrors.NewInvalidStateTransitionError(
				fmt.Sprintf("cannot cancel mission %s in status %s", missionID, mission.Status))
		}
		return tx.UpdateMission(ctx, models.MissionCancelled, mission.AssignedWorkerID, a.now().UTC())
	})
	if err != nil {
		return translate("cancel mission", missionID, err)
	}

	metrics.MissionTransitions.WithLabelValues(string(models.MissionCancelled)).Inc()
	a.logger.Info("Mission cancelled", map[string]interface{}{
		"missionId": missionID,
		"actorId":   caller.UserID,
		"reason":    reason,
	})

	evt := events.New(models.EventMissionCancelled, missionID, a.now())
	evt.MissionTitle = mission.Title
	evt.ActorID = caller.UserID
	if mission.AssignedWorkerID != nil {
		evt.CandidateID = *mission.AssignedWorkerID
	}
	evt.Recipients = a.otherCandidates(ctx, missionID, evt.CandidateID)
	if reason != "" {
		evt.Data = map[string]interface{}{"reason": reason}
	}
	a.emit(ctx, evt)
	return nil
}

// Start moves an assigned mission to in_progress. Only the assigned worker may start it.
func (a *Arbiter) Start(ctx context.Context, missionID string, caller models.Identity) error {
	return a.advance(ctx, missionID, caller, models.MissionInProgress, models.EventMissionStarted)
}

// Complete closes an in-progress mission. Only the assigned worker may complete it.
func (a *Arbiter) Complete(ctx context.Context, missionID string, caller models.Identity) error {
	return a.advance(ctx, missionID, caller, models.MissionCompleted, models.EventMissionCompleted)
}

func (a *Arbiter) advance(ctx context.Context, missionID string, caller models.Identity, to models.MissionStatus, eventType models.EventType) error {
	var title string
	err := a.store.WithMissionLock(ctx, missionID, func(ctx context.Context, tx store.MissionTx) error {
		mission := tx.Mission()
		title = mission.Title
		if !mission.IsAssignedTo(caller.UserID) {
			return commonerrors.NewNotAssignedWorkerError(missionID)
		}
		if !mission.Status.CanTransitionTo(to) || mission.Status == to {
			return commonerrors.NewInvalidStateTransitionError(
				fmt.Sprintf("cannot move mission %s from %s to %s", missionID, mission.Status, to))
		}
		return tx.UpdateMission(ctx, to, mission.AssignedWorkerID, a.now().UTC())
	})
	if err != nil {
		return translate("update mission status", missionID, err)
	}

	metrics.MissionTransitions.WithLabelValues(string(to)).Inc()

	evt := events.New(eventType, missionID, a.now())
	evt.MissionTitle = title
	evt.CandidateID = caller.UserID
	evt.ActorID = caller.UserID
	a.emit(ctx, evt)
	return nil
}

// otherCandidates lists the mission's offer holders except skip. Used only for
// notification fan-out, so a read failure is logged and yields no recipients.
func (a *Arbiter) otherCandidates(ctx context.Context, missionID, skip string) []string {
	rows, err := a.store.ListOffersForMission(ctx, missionID)
	if err != nil {
		a.logger.Warn("Failed to list offer holders", map[string]interface{}{
			"missionId": missionID,
			"error":     err.Error(),
		})
		return nil
	}
	var out []string
	for _, r := range rows {
		if r.Offer.CandidateID != skip && r.Offer.RefusedAt == nil {
			out = append(out, r.Offer.CandidateID)
		}
	}
	return out
}

func (a *Arbiter) emit(ctx context.Context, evt models.DispatchEvent) {
	if err := a.publisher.Publish(ctx, evt); err != nil {
		a.logger.Warn("Failed to emit dispatch event", map[string]interface{}{
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
