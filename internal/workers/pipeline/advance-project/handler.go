// internal/workers/pipeline/advance-project/handler.go
package advanceproject

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "ambient-pro/internal/common/errors"
	"ambient-pro/internal/common/logger"
	"ambient-pro/internal/common/metrics"
	"ambient-pro/internal/commission"
	"ambient-pro/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "advance-project"
)

// Advancer is the part of the lifecycle engine this worker drives.
type Advancer interface {
	AdvanceProject(ctx context.Context, projectID string, to models.ProjectStatus, date string) (*models.Project, error)
}

type Handler struct {
	config *Config
	engine Advancer
	now    func() time.Time
	logger logger.Logger
	errors *apperrors.ErrorHandler
}

func NewHandler(config *Config, engine Advancer, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config: config,
		engine: engine,
		now:    func() time.Time { return time.Now().UTC() },
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
	if input.ProjectID == "" {
		return nil, apperrors.NewValidationError(map[string]string{"projectId": "required"})
	}
	to := models.ProjectStatus(input.Status)

	date := input.Date
	if date == "" && h.config.DefaultToToday && to != models.ProjectStatusCancelled && to != models.ProjectStatusCompleted {
		date = h.now().Format(commission.DateLayout)
	}

	project, err := h.engine.AdvanceProject(ctx, input.ProjectID, to, date)
	if err != nil {
		return nil, err
	}

	return &Output{
		ProjectID:      project.ID,
		ProjectStatus:  string(project.Status),
		ProjectVersion: project.Version,
		StageDate:      stageDate(project),
		PaymentDate:    project.PaymentDate,
		Completed:      project.Status == models.ProjectStatusCompleted,
	}, nil
}

// stageDate returns the date recorded for the project's current stage.
func stageDate(p *models.Project) string {
	switch p.Status {
	case models.ProjectStatusPermit:
		return p.PermitDate
	case models.ProjectStatusInstall:
		return p.InstallDate
	case models.ProjectStatusInspection:
		return p.InspectionDate
	case models.ProjectStatusPTO:
		return p.PTODate
	}
	return ""
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
