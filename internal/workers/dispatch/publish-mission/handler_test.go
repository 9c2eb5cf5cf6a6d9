package publishmission

import (
	"context"
	"errors"
	"testing"
	"time"

	commonerrors "mission-dispatch/internal/common/errors"
	"mission-dispatch/internal/common/logger"
	"mission-dispatch/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mocks
// ==========================

type MockPublisher struct {
	PublishFunc func(ctx context.Context, missionID string, ttlMinutes int, includeEmployees bool) (*models.PublishResult, error)
}

func (m *MockPublisher) Publish(ctx context.Context, missionID string, ttlMinutes int, includeEmployees bool) (*models.PublishResult, error) {
	return m.PublishFunc(ctx, missionID, ttlMinutes, includeEmployees)
}

func createTestHandler(t *testing.T, pub Publisher) *Handler {
	return NewHandler(DefaultConfig(), pub, logger.NewTestLogger(t), nil)
}

// ==========================
// Input Validation Tests
// ==========================

func TestParseInput(t *testing.T) {
	tests := []struct {
		name      string
		variables string
		want      *Input
		wantField string
	}{
		{
			name:      "all fields",
			variables: `{"missionId":"m-1","ttlMinutes":45,"includeEmployees":true}`,
			want:      &Input{MissionID: "m-1", TTLMinutes: 45, IncludeEmployees: true},
		},
		{
			name:      "extra process variables are ignored",
			variables: `{"missionId":"m-1","customerName":"ACME"}`,
			want:      &Input{MissionID: "m-1"},
		},
		{
			name:      "missing mission id",
			variables: `{"ttlMinutes":10}`,
			wantField: "missionId",
		},
		{
			name:      "ttl out of range",
			variables: `{"missionId":"m-1","ttlMinutes":-1}`,
			wantField: "ttlMinutes",
		},
		{
			name:      "ttl is not an integer",
			variables: `{"missionId":"m-1","ttlMinutes":"soon"}`,
			wantField: "ttlMinutes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, err := ParseInput(tt.variables)
			if tt.wantField == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.want, input)
				return
			}
			require.Error(t, err)
			stdErr := commonerrors.AsStandard(err)
			assert.Equal(t, commonerrors.ErrCodeInvalidJobVariables, stdErr.Code)
			assert.Contains(t, stdErr.Details, tt.wantField)
			assert.False(t, stdErr.Retryable)
		})
	}
}

func TestParseInput_NotJSON(t *testing.T) {
	_, err := ParseInput(`not json`)
	require.Error(t, err)
	assert.Equal(t, commonerrors.ErrCodeInvalidJobVariables, commonerrors.AsStandard(err).Code)
}

// ==========================
// Execute Tests
// ==========================

func TestHandler_Execute_Success(t *testing.T) {
	expires := time.Date(2026, 6, 1, 12, 30, 0, 0, time.UTC)
	pub := &MockPublisher{
		PublishFunc: func(ctx context.Context, missionID string, ttlMinutes int, includeEmployees bool) (*models.PublishResult, error) {
			assert.Equal(t, "m-1", missionID)
			assert.Equal(t, 30, ttlMinutes)
			assert.True(t, includeEmployees)
			return &models.PublishResult{
				MissionID:     missionID,
				OffersCreated: 3,
				ExpiresAt:     expires,
				Targeting:     models.Targeting{TotalCandidates: 5, FinalEligible: 3},
			}, nil
		},
	}

	out, err := createTestHandler(t, pub).Execute(context.Background(), &Input{MissionID: "m-1", TTLMinutes: 30, IncludeEmployees: true})
	require.NoError(t, err)
	assert.Equal(t, "m-1", out.MissionID)
	assert.Equal(t, 3, out.OffersCreated)
	assert.Equal(t, expires, out.ExpiresAt)
	assert.Equal(t, 5, out.Targeting.TotalCandidates)
}

func TestHandler_Execute_PropagatesDomainErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      commonerrors.ErrorCode
		retryable bool
	}{
		{"mission missing", commonerrors.NewMissionNotFoundError("m-1"), commonerrors.ErrCodeMissionNotFound, false},
		{"mission already running", commonerrors.NewInvalidStateTransitionError("mission is started"), commonerrors.ErrCodeInvalidStateTransition, false},
		{"database down", commonerrors.NewDatabaseError("publish mission", errors.New("connection refused")), commonerrors.ErrCodeDatabaseError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &MockPublisher{
				PublishFunc: func(ctx context.Context, missionID string, ttlMinutes int, includeEmployees bool) (*models.PublishResult, error) {
					return nil, tt.err
				},
			}
			out, err := createTestHandler(t, pub).Execute(context.Background(), &Input{MissionID: "m-1"})
			require.Error(t, err)
			assert.Nil(t, out)
			stdErr := commonerrors.AsStandard(err)
			assert.Equal(t, tt.code, stdErr.Code)
			assert.Equal(t, tt.retryable, stdErr.Retryable)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, (&Config{MaxJobsActive: 1}).Validate())
	assert.Error(t, (&Config{Timeout: time.Second}).Validate())
}
