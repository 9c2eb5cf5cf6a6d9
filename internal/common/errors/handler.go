package errors

import (
	"context"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// failBackoff delays the next activation of a failed dispatch job so a
// briefly unavailable database or broker is not hammered by instant retries.
const failBackoff = 5 * time.Second

// ErrorHandler turns a failed dispatch job into either a retried failure or a BPMN error.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleJobError fails the job while both the error code and the job still
// allow retries, and throws a BPMN error otherwise so the process can route it.
func (h *ErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := AsStandard(err)
	bpmnErr := ConvertToBPMNError(stdErr)

	fields := map[string]interface{}{
		"jobKey":          job.Key,
		"jobType":         job.Type,
		"processInstance": job.ProcessInstanceKey,
		"errorCode":       string(stdErr.Code),
		"errorCategory":   GetErrorCategory(stdErr.Code),
		"details":         stdErr.Details,
		"jobRetries":      job.Retries,
	}

	if bpmnErr.Retries > 0 && job.Retries > 1 {
		retries := int32(bpmnErr.Retries)
		if job.Retries-1 < retries {
			retries = job.Retries - 1
		}
		fields["retriesLeft"] = retries
		h.logger.Warn("Dispatch job failed, will retry", fields)

		cmd := client.NewFailJobCommand().
			JobKey(job.Key).
			Retries(retries).
			RetryBackoff(failBackoff).
			ErrorMessage(bpmnErr.Message)
		if withVars, verr := cmd.VariablesFromMap(bpmnErr.ToErrorVariables()); verr == nil {
			_, err = withVars.Send(ctx)
		} else {
			_, err = cmd.Send(ctx)
		}
		h.reportSend("fail job", job, err)
		return
	}

	h.logger.Error("Dispatch job failed, raising BPMN error", fields)
	cmd := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(bpmnErr.Code).
		ErrorMessage(bpmnErr.Message)
	if withVars, verr := cmd.VariablesFromMap(bpmnErr.ToErrorVariables()); verr == nil {
		_, err = withVars.Send(ctx)
	} else {
		_, err = cmd.Send(ctx)
	}
	h.reportSend("throw error", job, err)
}

func (h *ErrorHandler) reportSend(command string, job entities.Job, err error) {
	if err == nil {
		return
	}
	// Zeebe re-activates the job once its timeout elapses.
	h.logger.Error("Zeebe command failed", map[string]interface{}{
		"command": command,
		"jobKey":  job.Key,
		"error":   err.Error(),
	})
}
