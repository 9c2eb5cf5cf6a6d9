package camunda

import (
	"time"

	"mission-dispatch/internal/common/logger"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// JobHandler is implemented by every dispatch job worker.
type JobHandler interface {
	Handle(client worker.JobClient, job entities.Job) error
}

// WorkerOptions mirrors config.WorkerConfig without importing it.
type WorkerOptions struct {
	MaxJobsActive int
	Timeout       time.Duration
}

// OpenWorker registers handler for taskType and returns the running job worker.
func OpenWorker(client zbc.Client, taskType string, opts WorkerOptions, handler JobHandler, log logger.Logger) worker.JobWorker {
	log.Info("Starting job worker", map[string]interface{}{
		"taskType":      taskType,
		"maxJobsActive": opts.MaxJobsActive,
		"timeout":       opts.Timeout.String(),
	})

	return client.NewJobWorker().
		JobType(taskType).
		Handler(func(jc worker.JobClient, job entities.Job) {
			if err := handler.Handle(jc, job); err != nil {
				log.Error("Handler returned error", map[string]interface{}{
					"taskType": taskType,
					"jobKey":   job.Key,
					"error":    err.Error(),
				})
			}
		}).
		MaxJobsActive(opts.MaxJobsActive).
		Timeout(opts.Timeout).
		Open()
}
