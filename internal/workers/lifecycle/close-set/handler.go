// internal/workers/lifecycle/close-set/handler.go
package closeset

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "ambient-pro/internal/common/errors"
	"ambient-pro/internal/common/logger"
	"ambient-pro/internal/common/metrics"
	"ambient-pro/internal/lifecycle"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "close-set"
)

// Closer is the part of the lifecycle engine this worker drives.
type Closer interface {
	CloseSet(ctx context.Context, req lifecycle.CloseRequest) (*lifecycle.CloseResult, error)
	ClosedSet(ctx context.Context, setID string) (*lifecycle.CloseResult, error)
}

type Handler struct {
	config *Config
	engine Closer
	logger logger.Logger
	errors *apperrors.ErrorHandler
}

func NewHandler(config *Config, engine Closer, log logger.Logger) *Handler {
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
	if input.SetID == "" {
		return nil, apperrors.NewValidationError(map[string]string{"setId": "required"})
	}

	res, err := h.engine.CloseSet(ctx, lifecycle.CloseRequest{
		SetID:           input.SetID,
		ClosingUserID:   input.ClosingUserID,
		Form:            input.Form,
		Confirmed:       input.Confirmed,
		ExpectedVersion: input.ExpectedVersion,
	})
	if apperrors.CodeOf(err) == apperrors.ErrCodeNotFound {
		// A redelivered job finds the set already gone. Report the project
		// it became instead of failing the instance.
		prior, lookupErr := h.engine.ClosedSet(ctx, input.SetID)
		if lookupErr != nil {
			return nil, err
		}
		h.logger.Info("set already closed, reporting existing project", map[string]interface{}{
			"setId":     input.SetID,
			"projectId": prior.Project.ID,
		})
		res, err = prior, nil
	}
	if err != nil {
		return nil, err
	}

	p := res.Project
	return &Output{
		ProjectID:      p.ID,
		OwnerID:        res.OwnerID,
		CloserID:       p.CloserID,
		CustomerName:   p.CustomerName,
		DealNumber:     p.DealNumber,
		CommissionRate: p.CommissionRate,
		PaymentAmount:  p.PaymentAmount,
		PaymentDate:    p.PaymentDate,
		GrossCost:      res.GrossCost,
		LedgerEntryID:  res.Ledger.ID,
		MirroredTo:     res.MirroredTo,
		ClosedAt:       p.CreatedAt.UTC().Format(time.RFC3339),
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
