package publishmission

import (
	"context"

	"mission-dispatch/internal/common/camunda"
	"mission-dispatch/internal/common/logger"
	"mission-dispatch/internal/common/observability"
	"mission-dispatch/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "publish-mission"

// Publisher is the part of the offer manager this worker drives.
type Publisher interface {
	Publish(ctx context.Context, missionID string, ttlMinutes int, includeEmployees bool) (*models.PublishResult, error)
}

type Handler struct {
	config *Config
	offers Publisher
	runner *camunda.JobRunner
	logger logger.Logger
}

func NewHandler(config *Config, offers Publisher, log logger.Logger, obs *observability.Observability) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config: config,
		offers: offers,
		runner: camunda.NewJobRunner(TaskType, config.Timeout, log, obs),
		logger: log,
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
	res, err := h.offers.Publish(ctx, input.MissionID, input.TTLMinutes, input.IncludeEmployees)
	if err != nil {
		return nil, err
	}

	h.logger.Info("mission published", map[string]interface{}{
		"missionId":     res.MissionID,
		"offersCreated": res.OffersCreated,
		"expiresAt":     res.ExpiresAt,
	})

	return &Output{
		MissionID:     res.MissionID,
		OffersCreated: res.OffersCreated,
		ExpiresAt:     res.ExpiresAt,
		Targeting:     res.Targeting,
	}, nil
}
