package cancelmission

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

const TaskType = "cancel-mission"

type Canceller interface {
	Cancel(ctx context.Context, missionID string, caller models.Identity, reason string) error
}

type Handler struct {
	config  *Config
	arbiter Canceller
	runner  *camunda.JobRunner
	logger  logger.Logger
}

func NewHandler(config *Config, arbiter Canceller, log logger.Logger, obs *observability.Observability) *Handler {
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

	err = h.arbiter.Cancel(ctx, input.MissionID, models.Identity{UserID: input.ActorID, Role: role}, input.Reason)
	if err != nil {
		return nil, err
	}

	h.logger.Info("mission cancelled", map[string]interface{}{
		"missionId": input.MissionID,
		"actorId":   input.ActorID,
		"reason":    input.Reason,
	})
	return &Output{MissionID: input.MissionID, Status: string(models.MissionCancelled), Reason: input.Reason}, nil
}
