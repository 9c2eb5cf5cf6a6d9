package assignmission

import (
	"context"

	"mission-dispatch/internal/common/camunda"
	commonerrors "mission-dispatch/internal/common/errors"
	"mission-dispatch/internal/common/logger"
	"mission-dispatch/internal/common/observability"
	"mission-dispatch/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "assign-mission"

type Assigner interface {
	AssignManually(ctx context.Context, missionID, candidateID string, caller models.Identity) error
}

// Handler performs a manual assignment on behalf of the actor recorded in the
// process. The arbiter enforces that the actor is an administrator.
type Handler struct {
	config  *Config
	arbiter Assigner
	runner  *camunda.JobRunner
	logger  logger.Logger
}

func NewHandler(config *Config, arbiter Assigner, log logger.Logger, obs *observability.Observability) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:  config,
		arbiter: arbiter,
		runner:  camunda.NewJobRunner(TaskType, config.Timeout, log, obs),
		logger:  log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	return h.runner.Run(client, job, func(ctx context.Context) (interface{}, error) {
		input, err := ParseInput(job.Variables)
		if err != nil {
			return nil, err
		}
		return h.Execute(ctx, input)
	})
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	role, err := models.ParseRole(input.ActorRole)
	if err != nil {
		return nil, commonerrors.NewInvalidJobVariablesError(err.Error())
	}
	caller := models.Identity{UserID: input.ActorID, Role: role}

	if err := h.arbiter.AssignManually(ctx, input.MissionID, input.CandidateID, caller); err != nil {
		return nil, err
	}

	h.logger.Info("mission assigned", map[string]interface{}{
		"missionId":   input.MissionID,
		"candidateId": input.CandidateID,
		"actorId":     input.ActorID,
	})

	return &Output{
		MissionID:        input.MissionID,
		AssignedWorkerID: input.CandidateID,
		Status:           string(models.MissionAssigned),
	}, nil
}
