package lifecycle

import (
	"context"
	"fmt"
	"strconv"

	apperrors "ambient-pro/internal/common/errors"
	"ambient-pro/internal/common/metrics"
	"ambient-pro/internal/commission"
	"ambient-pro/internal/models"
	"ambient-pro/internal/store"

	"go.opentelemetry.io/otel/attribute"
)

// CloseRequest carries everything needed to close a set.
type CloseRequest struct {
	SetID         string
	ClosingUserID string
	Form          models.CloseForm
	// Confirmed must be true; the caller collects the confirmation.
	Confirmed bool
	// ExpectedVersion, when non-zero, must match the set's current version.
	ExpectedVersion int64
}

// CloseResult is the created project plus figures derived along the way.
type CloseResult struct {
	Project    *models.Project
	Ledger     models.CommissionPayment
	GrossCost  float64
	OwnerID    string
	MirroredTo string
}

// derived holds the commission figures for one close.
type derived struct {
	dealNumber  int
	rate        float64
	amount      float64
	grossCost   float64
	paymentDate string
}

// CloseSet migrates a set into a project. The project write, the set delete,
// the ledger append and the aggregate update commit together or not at all.
func (e *Engine) CloseSet(ctx context.Context, req CloseRequest) (result *CloseResult, err error) {
	ctx, done := e.observe(ctx, "close_set", attribute.String("set.id", req.SetID))
	defer func() { done(err) }()

	if !req.Confirmed {
		return nil, apperrors.NewCloseNotConfirmedError(req.SetID)
	}
	size, ppw, err := validateCloseForm(&req.Form)
	if err != nil {
		return nil, err
	}

	err = e.store.WithTx(ctx, func(tx store.Tx) error {
		set, err := tx.GetSet(ctx, req.SetID)
		if err != nil {
			return e.storeErr("close_set", "Set", req.SetID, err)
		}
		if req.ExpectedVersion != 0 && set.Version != req.ExpectedVersion {
			return e.conflict("close_set", "Set", set.ID,
				fmt.Sprintf("set is at version %d, expected %d", set.Version, req.ExpectedVersion))
		}
		if !closable(set.Status) {
			return apperrors.NewInvalidTransitionError("set", string(set.Status), string(models.SetStatusClosed))
		}

		ownerID := set.UserID
		if ownerID == "" {
			ownerID = req.ClosingUserID
		}
		if ownerID == "" {
			return apperrors.NewValidationError(map[string]string{"closingUserId": "required when the set has no owner"})
		}
		if _, err := tx.GetUser(ctx, ownerID); err != nil {
			return e.storeErr("close_set", "User", ownerID, err)
		}

		count, err := tx.CountProjects(ctx, ownerID)
		if err != nil {
			return e.storeErr("close_set", "Project", ownerID, err)
		}
		d, err := e.derive(count+1, size, ppw, req.Form.PTODate)
		if err != nil {
			return err
		}

		project := buildProject(set, ownerID, req.ClosingUserID, req.Form, d)
		if err := tx.CreateProject(ctx, project); err != nil {
			return e.storeErr("close_set", "Project", project.ID, err)
		}
		if err := tx.DeleteSet(ctx, set.ID, store.Condition{ExpectedVersion: set.Version}); err != nil {
			return e.storeErr("close_set", "Set", set.ID, err)
		}

		entry := models.CommissionPayment{
			ID:             e.newID(),
			Amount:         d.amount,
			Date:           d.paymentDate,
			ProjectID:      project.ID,
			Description:    fmt.Sprintf("Deal #%d - %s", d.dealNumber, set.CustomerName),
			Status:         models.PaymentStatusPending,
			CustomerName:   set.CustomerName,
			DealNumber:     d.dealNumber,
			SystemSize:     req.Form.SystemSize,
			CommissionRate: d.rate,
		}
		if err := tx.AppendCommissionPayment(ctx, ownerID, entry); err != nil {
			return e.storeErr("close_set", "User", ownerID, err)
		}
		if err := tx.IncrementAggregates(ctx, ownerID, 1, d.amount); err != nil {
			return e.storeErr("close_set", "User", ownerID, err)
		}

		var mirroredTo string
		if e.mirror && req.ClosingUserID != "" && req.ClosingUserID != ownerID {
			mirrored := entry
			mirrored.ID = e.newID()
			if err := tx.AppendCommissionPayment(ctx, req.ClosingUserID, mirrored); err != nil {
				return e.storeErr("close_set", "User", req.ClosingUserID, err)
			}
			mirroredTo = req.ClosingUserID
		}

		result = &CloseResult{
			Project:    project,
			Ledger:     entry,
			GrossCost:  d.grossCost,
			OwnerID:    ownerID,
			MirroredTo: mirroredTo,
		}
		return nil
	})
	if err != nil {
		return nil, e.storeErr("close_set", "Set", req.SetID, err)
	}

	office := result.Project.Office
	if office == "" {
		office = "unassigned"
	}
	metrics.SetsClosed.WithLabelValues(office).Inc()
	metrics.CommissionAmount.Add(result.Ledger.Amount)
	e.index(ctx, result.Project)

	e.logger.Info("set closed", map[string]interface{}{
		"setId":          req.SetID,
		"ownerId":        result.OwnerID,
		"closingUserId":  req.ClosingUserID,
		"dealNumber":     result.Project.DealNumber,
		"commissionRate": result.Project.CommissionRate,
		"paymentAmount":  result.Project.PaymentAmount,
		"paymentDate":    result.Project.PaymentDate,
		"grossCost":      result.GrossCost,
		"mirroredTo":     result.MirroredTo,
	})
	return result, nil
}

// ClosedSet rebuilds the outcome of an earlier close of setID from the project
// it became and the owner's ledger. It returns NOT_FOUND when the set was
// never closed.
func (e *Engine) ClosedSet(ctx context.Context, setID string) (*CloseResult, error) {
	project, err := e.store.GetProject(ctx, setID)
	if err != nil {
		return nil, e.storeErr("closed_set", "Project", setID, err)
	}
	owner, err := e.store.GetUser(ctx, project.UserID)
	if err != nil {
		return nil, e.storeErr("closed_set", "User", project.UserID, err)
	}

	res := &CloseResult{Project: project, OwnerID: project.UserID}
	for _, entry := range owner.CommissionPayments {
		if entry.ProjectID == project.ID {
			res.Ledger = entry
			break
		}
	}
	size, _ := strconv.ParseFloat(project.SystemSize, 64)
	ppw, _ := strconv.ParseFloat(project.GrossPPW, 64)
	res.GrossCost = commission.GrossCost(ppw, size)
	if e.mirror && project.ClosedBy != "" && project.ClosedBy != project.UserID {
		res.MirroredTo = project.ClosedBy
	}
	return res, nil
}

func closable(s models.SetStatus) bool {
	return s == models.SetStatusAssigned || s == models.SetStatusNotClosed
}

func (e *Engine) derive(dealNumber int, size, ppw float64, ptoDate string) (derived, error) {
	rate := e.policy.Rate(dealNumber)
	paymentDate, err := e.policy.PaymentDate(ptoDate, e.now())
	if err != nil {
		return derived{}, apperrors.NewValidationError(map[string]string{"ptoDate": err.Error()})
	}
	return derived{
		dealNumber:  dealNumber,
		rate:        rate,
		amount:      commission.PaymentAmount(rate, size),
		grossCost:   commission.GrossCost(ppw, size),
		paymentDate: paymentDate,
	}, nil
}

func buildProject(set *models.Set, ownerID, closedBy string, form models.CloseForm, d derived) *models.Project {
	if closedBy == "" {
		closedBy = ownerID
	}
	var adders []string
	if len(form.Adders) > 0 {
		adders = append(adders, form.Adders...)
	}
	return &models.Project{
		ID:               set.ID,
		UserID:           ownerID,
		ClosedBy:         closedBy,
		CustomerName:     set.CustomerName,
		Address:          set.Address,
		PhoneNumber:      set.PhoneNumber,
		Email:            set.Email,
		IsSpanishSpeaker: set.IsSpanishSpeaker,
		Office:           set.Office,
		CloserID:         set.CloserID,
		CloserName:       set.CloserName,
		SystemSize:       form.SystemSize,
		GrossPPW:         form.GrossPPW,
		FinanceType:      form.FinanceType,
		Lender:           form.Lender,
		Adders:           adders,
		PanelType:        form.PanelType,
		BatteryType:      form.BatteryType,
		BatteryQuantity:  form.BatteryQuantity,
		SiteSurveyDate:   form.SiteSurveyDate,
		SiteSurveyTime:   form.SiteSurveyTime,
		PermitDate:       form.PermitDate,
		InstallDate:      form.InstallDate,
		InspectionDate:   form.InspectionDate,
		PTODate:          form.PTODate,
		PaymentDate:      d.paymentDate,
		PaymentAmount:    d.amount,
		CommissionRate:   d.rate,
		DealNumber:       d.dealNumber,
		Status:           models.ProjectStatusSiteSurvey,
	}
}

// validateCloseForm checks the form and returns system size and price per watt.
func validateCloseForm(form *models.CloseForm) (size, ppw float64, err error) {
	res, err := closeFormSchema.Validate(form)
	if err != nil {
		return 0, 0, apperrors.NewValidationError(map[string]string{"form": err.Error()})
	}
	if !res.Valid {
		return 0, 0, apperrors.NewValidationError(res.FieldMap())
	}

	size, err = strconv.ParseFloat(form.SystemSize, 64)
	if err != nil || size <= 0 {
		return 0, 0, apperrors.NewValidationError(map[string]string{"systemSize": "must be a positive number of kW"})
	}
	ppw, err = strconv.ParseFloat(form.GrossPPW, 64)
	if err != nil || ppw <= 0 {
		return 0, 0, apperrors.NewValidationError(map[string]string{"grossPPW": "must be a positive price per watt"})
	}
	return size, ppw, nil
}
