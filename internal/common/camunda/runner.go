package camunda

import (
	"context"
	"time"

	commonerrors "mission-dispatch/internal/common/errors"
	"mission-dispatch/internal/common/logger"
	"mission-dispatch/internal/common/metrics"
	"mission-dispatch/internal/common/observability"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ExecuteFunc does the work of one job and returns the variables to complete it with.
type ExecuteFunc func(ctx context.Context) (interface{}, error)

// JobRunner drives a job through execution and completion. Failures go through
// the error handler so retryable errors fail the job and the rest become BPMN errors.
type JobRunner struct {
	TaskType      string
	Timeout       time.Duration
	Logger        logger.Logger
	Errors        *commonerrors.ErrorHandler
	Observability *observability.Observability
}

func NewJobRunner(taskType string, timeout time.Duration, log logger.Logger, obs *observability.Observability) *JobRunner {
	if obs == nil {
		obs = observability.NewNoop()
	}
	return &JobRunner{
		TaskType:      taskType,
		Timeout:       timeout,
		Logger:        log,
		Errors:        commonerrors.NewErrorHandler(log),
		Observability: obs,
	}
}

func (r *JobRunner) Run(client worker.JobClient, job entities.Job, exec ExecuteFunc) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), r.Timeout)
	defer cancel()

	ctx, span := observability.StartSpan(ctx, "job."+r.TaskType,
		attribute.Int64("job.key", job.Key),
		attribute.Int64("process.instance.key", job.ProcessInstanceKey),
	)
	defer span.End()

	r.Logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
		"retries":     job.Retries,
	})

	output, err := exec(ctx)
	if err == nil {
		err = r.complete(ctx, client, job, output)
	}
	elapsed := time.Since(start)
	metrics.WorkerJobDuration.WithLabelValues(r.TaskType).Observe(elapsed.Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.WorkerJobsFailed.WithLabelValues(r.TaskType, string(commonerrors.AsStandard(err).Code)).Inc()
		r.Observability.RecordJob(ctx, r.TaskType, "failed", elapsed)
		// The job deadline may already be spent; reporting the failure must still reach Zeebe.
		r.Errors.HandleJobError(context.WithoutCancel(ctx), client, job, err)
		return err
	}

	metrics.WorkerJobsCompleted.WithLabelValues(r.TaskType).Inc()
	r.Observability.RecordJob(ctx, r.TaskType, "completed", elapsed)
	return nil
}

func (r *JobRunner) complete(ctx context.Context, client worker.JobClient, job entities.Job, output interface{}) error {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		return commonerrors.NewInternalError(err)
	}
	if _, err := cmd.Send(ctx); err != nil {
		return &commonerrors.StandardError{
			Code:      commonerrors.ErrCodePublishFailed,
			Message:   "Failed to complete job",
			Details:   err.Error(),
			Retryable: true,
			Timestamp: time.Now().UTC(),
		}
	}
	return nil
}
