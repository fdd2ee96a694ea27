package lifecycle

import (
	"context"
	"fmt"
	"time"

	apperrors "ambient-pro/internal/common/errors"
	"ambient-pro/internal/commission"
	"ambient-pro/internal/models"
	"ambient-pro/internal/store"

	"go.opentelemetry.io/otel/attribute"
)

// AdvanceProject moves a project one stage along the pipeline, or cancels it.
// A supplied date is recorded against the stage being entered. Commission
// fields are never touched.
func (e *Engine) AdvanceProject(ctx context.Context, projectID string, to models.ProjectStatus, date string) (project *models.Project, err error) {
	ctx, done := e.observe(ctx, "advance_project",
		attribute.String("project.id", projectID),
		attribute.String("project.to", string(to)))
	defer func() { done(err) }()

	if !to.Valid() {
		return nil, apperrors.NewValidationError(map[string]string{"status": fmt.Sprintf("unknown status %q", to)})
	}
	if date != "" {
		if _, err := time.Parse(commission.DateLayout, date); err != nil {
			return nil, apperrors.NewValidationError(map[string]string{"date": "must be YYYY-MM-DD"})
		}
	}

	current, err := e.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, e.storeErr("advance_project", "Project", projectID, err)
	}
	if !projectTransitionAllowed(current.Status, to) {
		return nil, apperrors.NewInvalidTransitionError("project", string(current.Status), string(to))
	}

	patch := store.ProjectPatch{Status: &to}
	if date != "" {
		switch to {
		case models.ProjectStatusPermit:
			patch.PermitDate = &date
		case models.ProjectStatusInstall:
			patch.InstallDate = &date
		case models.ProjectStatusInspection:
			patch.InspectionDate = &date
		case models.ProjectStatusPTO:
			patch.PTODate = &date
		}
	}

	project, err = e.store.UpdateProject(ctx, projectID, patch, store.Condition{ExpectedVersion: current.Version})
	if err != nil {
		return nil, e.storeErr("advance_project", "Project", projectID, err)
	}
	e.index(ctx, project)

	e.logger.Info("project advanced", map[string]interface{}{
		"projectId": projectID,
		"from":      string(current.Status),
		"to":        string(to),
		"date":      date,
	})
	return project, nil
}

func projectTransitionAllowed(from, to models.ProjectStatus) bool {
	if from.Terminal() {
		return false
	}
	if to == models.ProjectStatusCancelled {
		return true
	}
	next, ok := from.Next()
	return ok && next == to
}

// MarkCommissionPaid moves one ledger entry from pending to paid. Paying an
// entry that is already paid changes nothing.
func (e *Engine) MarkCommissionPaid(ctx context.Context, userID, entryID string) (entry *models.CommissionPayment, err error) {
	ctx, done := e.observe(ctx, "mark_commission_paid",
		attribute.String("user.id", userID),
		attribute.String("entry.id", entryID))
	defer func() { done(err) }()

	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return nil, e.storeErr("mark_commission_paid", "User", userID, err)
	}

	var found *models.CommissionPayment
	for i := range user.CommissionPayments {
		if user.CommissionPayments[i].ID == entryID {
			found = &user.CommissionPayments[i]
			break
		}
	}
	if found == nil {
		return nil, apperrors.NewNotFoundError("CommissionPayment", entryID)
	}
	if found.Status == models.PaymentStatusPaid {
		return found, nil
	}

	paidAt := e.now()
	if err := e.store.SetCommissionStatus(ctx, userID, entryID, models.PaymentStatusPaid, &paidAt); err != nil {
		return nil, e.storeErr("mark_commission_paid", "CommissionPayment", entryID, err)
	}
	found.Status = models.PaymentStatusPaid
	found.PaidAt = &paidAt

	e.logger.Info("commission marked paid", map[string]interface{}{
		"userId":  userID,
		"entryId": entryID,
		"amount":  found.Amount,
	})
	return found, nil
}
