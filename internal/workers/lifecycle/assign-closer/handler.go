// internal/workers/lifecycle/assign-closer/handler.go
package assigncloser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "ambient-pro/internal/common/errors"
	"ambient-pro/internal/common/logger"
	"ambient-pro/internal/common/metrics"
	"ambient-pro/internal/lifecycle"
	"ambient-pro/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "assign-closer"
)

// Assigner is the part of the lifecycle engine this worker drives.
type Assigner interface {
	AssignCloser(ctx context.Context, setID, closerID, closerName string, opts lifecycle.AssignOptions) (*models.Set, error)
}

type Handler struct {
	config *Config
	engine Assigner
	logger logger.Logger
	errors *apperrors.ErrorHandler
}

func NewHandler(config *Config, engine Assigner, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config: config,
		engine: engine,
		logger: l,
		errors: apperrors.NewErrorHandler(l),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(apperrors.ErrCodeValidationFailed)).Inc()
		h.errors.HandleJobError(ctx, client, job,
			apperrors.NewValidationError(map[string]string{"variables": fmt.Sprintf("parse input: %v", err)}))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(apperrors.CodeOf(err))).Inc()
		h.errors.HandleJobError(ctx, client, job, err)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	fields := map[string]string{}
	if input.SetID == "" {
		fields["setId"] = "required"
	}
	if input.CloserID == "" {
		fields["closerId"] = "required"
	}
	if len(fields) > 0 {
		return nil, apperrors.NewValidationError(fields)
	}
	if input.Reassign && !h.config.AllowReassign {
		return nil, apperrors.NewForbiddenError("reassignment is disabled for this worker")
	}

	set, err := h.engine.AssignCloser(ctx, input.SetID, input.CloserID, input.CloserName, lifecycle.AssignOptions{
		ExpectedVersion: input.ExpectedVersion,
		Reassign:        input.Reassign,
	})
	if err != nil {
		return nil, err
	}

	return &Output{
		SetID:      set.ID,
		CloserID:   set.CloserID,
		CloserName: set.CloserName,
		SetStatus:  string(set.Status),
		SetVersion: set.Version,
		AssignedAt: set.UpdatedAt.UTC().Format(time.RFC3339),
	}, nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	_, err = cmd.Send(context.Background())
	if err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
