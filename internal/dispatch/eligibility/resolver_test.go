package eligibility

import (
	"context"
	"errors"
	"testing"

	"mission-dispatch/internal/common/logger"
	"mission-dispatch/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockProfileSource returns canned profiles filtered by role.
type MockProfileSource struct {
	Profiles []models.WorkerProfile
	Err      error
	Roles    []models.WorkerRole
}

func (m *MockProfileSource) ListWorkerProfiles(ctx context.Context, roles []models.WorkerRole) ([]models.WorkerProfile, error) {
	m.Roles = roles
	if m.Err != nil {
		return nil, m.Err
	}
	var out []models.WorkerProfile
	for _, p := range m.Profiles {
		for _, r := range roles {
			if p.Role == r {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func worker(id string, role models.WorkerRole, skills []string, blackout ...string) models.WorkerProfile {
	return models.WorkerProfile{ID: id, Role: role, Skills: skills, BlackoutCities: blackout, Active: true}
}

func population() []models.WorkerProfile {
	return []models.WorkerProfile{
		worker("s1", models.WorkerSubcontractor, []string{"plumbing"}),
		worker("s2", models.WorkerSubcontractor, []string{"plumbing", "electrical"}, "Lyon"),
		worker("s3", models.WorkerSubcontractor, []string{"electrical"}),
		worker("e1", models.WorkerEmployee, []string{"plumbing"}),
		{ID: "s4", Role: models.WorkerSubcontractor, Skills: []string{"plumbing"}, Active: false},
	}
}

func TestResolve_SubcontractorsOnly(t *testing.T) {
	src := &MockProfileSource{Profiles: population()}
	r := NewResolver(src, logger.NewTestLogger(t))

	got, err := r.Resolve(context.Background(), models.Mission{ID: "m1", City: "Paris"}, false)
	require.NoError(t, err)

	assert.Equal(t, []models.WorkerRole{models.WorkerSubcontractor}, src.Roles)
	assert.ElementsMatch(t, []string{"s1", "s2", "s3"}, got.CandidateIDs)
	assert.Equal(t, 3, got.TotalCandidates)
	assert.False(t, got.SkillFilterApplied)
}

func TestResolve_IncludeEmployees(t *testing.T) {
	for _, tc := range []struct {
		name     string
		flag     bool
		audience models.Audience
	}{
		{"explicit flag", true, models.AudienceSubcontractors},
		{"mission audience", false, models.AudienceSubcontractorsAndEmployees},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := NewResolver(&MockProfileSource{Profiles: population()}, logger.NewNoOpLogger())
			got, err := r.Resolve(context.Background(), models.Mission{ID: "m1", Audience: tc.audience}, tc.flag)
			require.NoError(t, err)
			assert.Contains(t, got.CandidateIDs, "e1")
			assert.Equal(t, 4, got.FinalEligible)
		})
	}
}

func TestResolve_SkillAndBlackoutFilters(t *testing.T) {
	r := NewResolver(&MockProfileSource{Profiles: population()}, logger.NewNoOpLogger())

	got, err := r.Resolve(context.Background(), models.Mission{ID: "m1", SkillTag: " Plumbing ", City: "lyon"}, false)
	require.NoError(t, err)

	assert.True(t, got.SkillFilterApplied)
	assert.Equal(t, 3, got.TotalCandidates)
	assert.Equal(t, 2, got.AfterSkillFilter)
	assert.Equal(t, 1, got.AfterBlackoutFilter)
	assert.Equal(t, []string{"s1"}, got.CandidateIDs)
}

func TestResolve_UnregisteredSkillSkipsFilter(t *testing.T) {
	r := NewResolver(&MockProfileSource{Profiles: population()}, logger.NewNoOpLogger())

	got, err := r.Resolve(context.Background(), models.Mission{ID: "m1", SkillTag: "roofing"}, false)
	require.NoError(t, err)

	assert.False(t, got.SkillFilterApplied)
	assert.Equal(t, got.TotalCandidates, got.AfterSkillFilter)
	assert.Len(t, got.CandidateIDs, 3)
}

func TestResolve_SourceError(t *testing.T) {
	r := NewResolver(&MockProfileSource{Err: errors.New("connection refused")}, logger.NewNoOpLogger())

	_, err := r.Resolve(context.Background(), models.Mission{ID: "m1"}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestFilter_DeduplicatesProfiles(t *testing.T) {
	profiles := []models.WorkerProfile{
		worker("s1", models.WorkerSubcontractor, nil),
		worker("s1", models.WorkerSubcontractor, nil),
	}
	got := Filter(models.Mission{}, []models.WorkerRole{models.WorkerSubcontractor}, profiles)
	assert.Equal(t, []string{"s1"}, got.CandidateIDs)
}
