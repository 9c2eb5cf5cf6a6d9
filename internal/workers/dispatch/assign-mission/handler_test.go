package assignmission

import (
	"context"
	"testing"

	commonerrors "mission-dispatch/internal/common/errors"
	"mission-dispatch/internal/common/logger"
	"mission-dispatch/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockAssigner struct {
	AssignManuallyFunc func(ctx context.Context, missionID, candidateID string, caller models.Identity) error
}

func (m *MockAssigner) AssignManually(ctx context.Context, missionID, candidateID string, caller models.Identity) error {
	return m.AssignManuallyFunc(ctx, missionID, candidateID, caller)
}

func createTestHandler(t *testing.T, a Assigner) *Handler {
	return NewHandler(DefaultConfig(), a, logger.NewTestLogger(t), nil)
}

func TestParseInput(t *testing.T) {
	input, err := ParseInput(`{"missionId":"m-1","candidateId":"w1","actorId":"admin-1","actorRole":"administrator"}`)
	require.NoError(t, err)
	assert.Equal(t, &Input{MissionID: "m-1", CandidateID: "w1", ActorID: "admin-1", ActorRole: "administrator"}, input)

	_, err = ParseInput(`{"missionId":"m-1","actorId":"admin-1","actorRole":"administrator"}`)
	require.Error(t, err)
	assert.Contains(t, commonerrors.AsStandard(err).Details, "candidateId")

	_, err = ParseInput(`{"missionId":"m-1","candidateId":"w1","actorId":"x","actorRole":"root"}`)
	require.Error(t, err)
	assert.Equal(t, commonerrors.ErrCodeInvalidJobVariables, commonerrors.AsStandard(err).Code)
}

func TestHandler_Execute_Success(t *testing.T) {
	var got models.Identity
	a := &MockAssigner{
		AssignManuallyFunc: func(ctx context.Context, missionID, candidateID string, caller models.Identity) error {
			assert.Equal(t, "m-1", missionID)
			assert.Equal(t, "w1", candidateID)
			got = caller
			return nil
		},
	}

	out, err := createTestHandler(t, a).Execute(context.Background(), &Input{
		MissionID: "m-1", CandidateID: "w1", ActorID: "admin-1", ActorRole: "administrator",
	})
	require.NoError(t, err)
	assert.Equal(t, models.Identity{UserID: "admin-1", Role: models.RoleAdministrator}, got)
	assert.Equal(t, &Output{MissionID: "m-1", AssignedWorkerID: "w1", Status: "assigned"}, out)
}

func TestHandler_Execute_Errors(t *testing.T) {
	a := &MockAssigner{
		AssignManuallyFunc: func(ctx context.Context, missionID, candidateID string, caller models.Identity) error {
			if !caller.IsAdministrator() {
				return commonerrors.NewForbiddenError("assign mission")
			}
			return commonerrors.NewInvalidStateTransitionError("mission is completed")
		},
	}
	h := createTestHandler(t, a)

	_, err := h.Execute(context.Background(), &Input{MissionID: "m-1", CandidateID: "w1", ActorID: "op-1", ActorRole: "operator"})
	assert.Equal(t, commonerrors.ErrCodeForbidden, commonerrors.AsStandard(err).Code)

	_, err = h.Execute(context.Background(), &Input{MissionID: "m-1", CandidateID: "w1", ActorID: "admin-1", ActorRole: "administrator"})
	assert.Equal(t, commonerrors.ErrCodeInvalidStateTransition, commonerrors.AsStandard(err).Code)

	_, err = h.Execute(context.Background(), &Input{MissionID: "m-1", CandidateID: "w1", ActorID: "x", ActorRole: "superuser"})
	assert.Equal(t, commonerrors.ErrCodeInvalidJobVariables, commonerrors.AsStandard(err).Code)
}
