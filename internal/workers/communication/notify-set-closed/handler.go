// internal/workers/communication/notify-set-closed/handler.go
package notifysetclosed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "ambient-pro/internal/common/errors"
	"ambient-pro/internal/common/logger"
	"ambient-pro/internal/common/metrics"
	"ambient-pro/internal/store"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
)

const (
	TaskType = "notify-set-closed"
)

const (
	emailSubject = "Deal #{{dealNumber}} closed: {{customerName}}"
	emailBody    = "Hi {{ownerName}}, {{customerName}} just closed. " +
		"Your commission of ${{paymentAmount}} is scheduled for {{paymentDate}}."
	smsBody = "Ambient Pro: {{customerName}} is closed and now in site survey. Deal #{{dealNumber}}."
)

// EmailSender is satisfied by aws.SESClient.
type EmailSender interface {
	SendEmail(ctx context.Context, from, to, subject, body string) (string, error)
}

// SMSSender is satisfied by aws.SNSClient.
type SMSSender interface {
	SendSMS(ctx context.Context, phone, message, senderID string) (string, error)
}

type Handler struct {
	config *Config
	users  store.UserStore
	email  EmailSender
	sms    SMSSender
	logger logger.Logger
	errors *apperrors.ErrorHandler
	now    func() time.Time
}

func NewHandler(config *Config, users store.UserStore, email EmailSender, sms SMSSender, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config: config,
		users:  users,
		email:  email,
		sms:    sms,
		logger: l,
		errors: apperrors.NewErrorHandler(l),
		now:    func() time.Time { return time.Now().UTC() },
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
	if input.ProjectID == "" || input.OwnerID == "" {
		fields := map[string]string{}
		if input.ProjectID == "" {
			fields["projectId"] = "required"
		}
		if input.OwnerID == "" {
			fields["ownerId"] = "required"
		}
		return nil, apperrors.NewValidationError(fields)
	}

	data := map[string]interface{}{
		"projectId":     input.ProjectID,
		"customerName":  input.CustomerName,
		"dealNumber":    input.DealNumber,
		"paymentAmount": fmt.Sprintf("%.2f", input.PaymentAmount),
		"paymentDate":   input.PaymentDate,
	}

	output := &Output{
		NotificationID: uuid.New().String(),
		EmailStatus:    StatusDisabled,
		SMSStatus:      StatusDisabled,
		SentAt:         h.now().Format(time.RFC3339),
	}

	attempted, failed := 0, 0
	var lastErr error

	if h.config.EmailEnabled && h.email != nil {
		owner, err := h.lookupRecipient(ctx, input.OwnerID)
		if err != nil {
			return nil, err
		}
		if owner != nil && owner.Email != "" {
			data["ownerName"] = owner.Name
			attempted++
			subject := renderTemplate(emailSubject, data)
			body := renderTemplate(emailBody, data)
			if _, err := h.email.SendEmail(ctx, h.config.FromEmail, owner.Email, subject, body); err != nil {
				h.logger.Warn("email send failed", map[string]interface{}{
					"error":   err,
					"ownerId": input.OwnerID,
				})
				output.EmailStatus = StatusFailed
				failed++
				lastErr = err
			} else {
				output.EmailStatus = StatusSent
			}
		} else {
			h.logger.Warn("owner has no email on file", map[string]interface{}{"ownerId": input.OwnerID})
		}
	}

	if h.config.SMSEnabled && h.sms != nil && input.CloserID != "" {
		closer, err := h.lookupRecipient(ctx, input.CloserID)
		if err != nil {
			return nil, err
		}
		if closer != nil && closer.Phone != "" {
			attempted++
			if _, err := h.sms.SendSMS(ctx, closer.Phone, renderTemplate(smsBody, data), h.config.SenderID); err != nil {
				h.logger.Warn("SMS send failed", map[string]interface{}{
					"error":    err,
					"closerId": input.CloserID,
				})
				output.SMSStatus = StatusFailed
				failed++
				lastErr = err
			} else {
				output.SMSStatus = StatusSent
			}
		} else {
			h.logger.Warn("closer has no phone on file", map[string]interface{}{"closerId": input.CloserID})
		}
	}

	switch {
	case attempted == 0:
		output.Status = StatusDisabled
	case failed == attempted:
		return nil, apperrors.NewNotificationSendFailedError(TaskType, lastErr)
	case failed > 0:
		output.Status = StatusPartial
	default:
		output.Status = StatusSent
	}

	h.logger.Info("set closed notification processed", map[string]interface{}{
		"projectId":      input.ProjectID,
		"notificationId": output.NotificationID,
		"status":         output.Status,
	})
	return output, nil
}

// lookupRecipient returns nil when the user does not exist.
func (h *Handler) lookupRecipient(ctx context.Context, userID string) (*recipient, error) {
	u, err := h.users.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError("lookup_recipient", err)
	}
	return &recipient{Name: u.Name, Email: u.Email, Phone: u.PhoneNumber}, nil
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

// renderTemplate fills {{key}} placeholders in one pass over tmpl and drops
// any without a value. Substituted values are never scanned for placeholders.
func renderTemplate(tmpl string, data map[string]interface{}) string {
	var b strings.Builder
	rest := tmpl
	for {
		start := strings.Index(rest, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(rest[start:], "}}")
		if end == -1 {
			break
		}
		end += start

		b.WriteString(rest[:start])
		if v, ok := data[rest[start+2:end]]; ok && v != nil {
			if s, ok := v.(string); ok {
				b.WriteString(s)
			} else {
				b.WriteString(fmt.Sprintf("%v", v))
			}
		}
		rest = rest[end+2:]
	}
	b.WriteString(rest)
	return b.String()
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
