// Package eligibility computes which workers receive an offer for a mission.
package eligibility

import (
	"context"
	"fmt"
	"strings"

	"mission-dispatch/internal/common/logger"
	"mission-dispatch/internal/models"

	"github.com/samber/lo"
)

// ProfileSource lists worker profiles by role.
type ProfileSource interface {
	ListWorkerProfiles(ctx context.Context, roles []models.WorkerRole) ([]models.WorkerProfile, error)
}

type Resolver struct {
	profiles ProfileSource
	logger   logger.Logger
}

func NewResolver(profiles ProfileSource, log logger.Logger) *Resolver {
	return &Resolver{profiles: profiles, logger: log}
}

// Resolve applies the role, skill and blackout filters in that order.
func (r *Resolver) Resolve(ctx context.Context, mission models.Mission, includeEmployees bool) (*models.Targeting, error) {
	roles := []models.WorkerRole{models.WorkerSubcontractor}
	if includeEmployees || mission.Audience == models.AudienceSubcontractorsAndEmployees {
		roles = append(roles, models.WorkerEmployee)
	}

	profiles, err := r.profiles.ListWorkerProfiles(ctx, roles)
	if err != nil {
		return nil, fmt.Errorf("list worker profiles: %w", err)
	}

	targeting := Filter(mission, roles, profiles)

	r.logger.Debug("Eligibility resolved", map[string]interface{}{
		"missionId":          mission.ID,
		"roles":              roles,
		"totalCandidates":    targeting.TotalCandidates,
		"afterSkillFilter":   targeting.AfterSkillFilter,
		"afterBlackout":      targeting.AfterBlackoutFilter,
		"skillFilterApplied": targeting.SkillFilterApplied,
	})
	return targeting, nil
}

// Filter is the pure part of Resolve.
func Filter(mission models.Mission, roles []models.WorkerRole, profiles []models.WorkerProfile) *models.Targeting {
	population := lo.UniqBy(
		lo.Filter(profiles, func(p models.WorkerProfile, _ int) bool {
			return p.Active && p.ID != "" && lo.Contains(roles, p.Role)
		}),
		func(p models.WorkerProfile) string { return p.ID },
	)
	targeting := &models.Targeting{TotalCandidates: len(population)}

	skill := normalize(mission.SkillTag)
	skilled := population
	if skill != "" {
		withSkill := lo.Filter(population, func(p models.WorkerProfile, _ int) bool {
			return hasNormalized(p.Skills, skill)
		})
		// A tag nobody declares has no registered skill data; skip rather than exclude everyone.
		if len(withSkill) > 0 {
			skilled = withSkill
			targeting.SkillFilterApplied = true
		}
	}
	targeting.AfterSkillFilter = len(skilled)

	city := normalize(mission.City)
	eligible := skilled
	if city != "" {
		eligible = lo.Reject(skilled, func(p models.WorkerProfile, _ int) bool {
			return hasNormalized(p.BlackoutCities, city)
		})
	}
	targeting.AfterBlackoutFilter = len(eligible)
	targeting.FinalEligible = len(eligible)
	targeting.CandidateIDs = lo.Map(eligible, func(p models.WorkerProfile, _ int) string { return p.ID })

	return targeting
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func hasNormalized(values []string, want string) bool {
	return lo.ContainsBy(values, func(v string) bool { return normalize(v) == want })
}
