package lifecycle

import (
	"context"
	"fmt"

	apperrors "ambient-pro/internal/common/errors"
	"ambient-pro/internal/common/metrics"
	"ambient-pro/internal/models"
	"ambient-pro/internal/store"

	"go.opentelemetry.io/otel/attribute"
)

// CreateSet validates and stores a new appointment in the active status.
func (e *Engine) CreateSet(ctx context.Context, in models.NewSet) (set *models.Set, err error) {
	ctx, done := e.observe(ctx, "create_set", attribute.String("user.id", in.UserID))
	defer func() { done(err) }()

	res, err := newSetSchema.Validate(in)
	if err != nil {
		return nil, apperrors.NewValidationError(map[string]string{"set": err.Error()})
	}
	if !res.Valid {
		return nil, apperrors.NewValidationError(res.FieldMap())
	}

	set = &models.Set{
		ID:               e.newID(),
		UserID:           in.UserID,
		CustomerName:     in.CustomerName,
		Address:          in.Address,
		PhoneNumber:      in.PhoneNumber,
		Email:            in.Email,
		AppointmentDate:  in.AppointmentDate,
		AppointmentTime:  in.AppointmentTime,
		IsSpanishSpeaker: in.IsSpanishSpeaker,
		Status:           models.SetStatusActive,
		Office:           in.Office,
		UtilityBill:      in.UtilityBill,
		Notes:            in.Notes,
	}
	if err := e.store.CreateSet(ctx, set); err != nil {
		return nil, e.storeErr("create_set", "Set", set.ID, err)
	}

	e.logger.Info("set created", map[string]interface{}{
		"setId":  set.ID,
		"userId": set.UserID,
		"office": set.Office,
	})
	return set, nil
}

// AssignOptions tunes AssignCloser.
type AssignOptions struct {
	// ExpectedVersion, when non-zero, must match the set's current version.
	ExpectedVersion int64
	// Reassign allows replacing a different closer already on the set.
	Reassign bool
}

// AssignCloser records the closer on a set without changing its status.
// Assigning the closer already recorded is a no-op.
func (e *Engine) AssignCloser(ctx context.Context, setID, closerID, closerName string, opts AssignOptions) (set *models.Set, err error) {
	ctx, done := e.observe(ctx, "assign_closer",
		attribute.String("set.id", setID),
		attribute.String("closer.id", closerID))
	defer func() { done(err) }()

	if closerID == "" {
		return nil, apperrors.NewValidationError(map[string]string{"closerId": "required"})
	}

	current, err := e.store.GetSet(ctx, setID)
	if err != nil {
		return nil, e.storeErr("assign_closer", "Set", setID, err)
	}
	if opts.ExpectedVersion != 0 && current.Version != opts.ExpectedVersion {
		return nil, e.conflict("assign_closer", "Set", setID,
			fmt.Sprintf("set is at version %d, expected %d", current.Version, opts.ExpectedVersion))
	}
	if current.Status.Terminal() {
		return nil, apperrors.NewValidationError(map[string]string{
			"status": fmt.Sprintf("cannot assign a closer to a %s set", current.Status),
		})
	}
	if current.CloserID == closerID && current.CloserName == closerName {
		return current, nil
	}
	if current.CloserID != "" && current.CloserID != closerID && !opts.Reassign {
		return nil, e.conflict("assign_closer", "Set", setID,
			fmt.Sprintf("set is already assigned to %s", current.CloserID))
	}

	set, err = e.store.UpdateSet(ctx, setID, store.SetPatch{
		CloserID:   &closerID,
		CloserName: &closerName,
	}, store.Condition{ExpectedVersion: current.Version})
	if err != nil {
		return nil, e.storeErr("assign_closer", "Set", setID, err)
	}

	metrics.CloserAssignments.Inc()
	e.logger.Info("closer assigned", map[string]interface{}{
		"setId":          setID,
		"closerId":       closerID,
		"previousCloser": current.CloserID,
	})
	return set, nil
}

// TransitionSet moves a set between statuses:
//
//	active     -> assigned (needs a closer)
//	assigned   -> not_closed
//	not_closed -> assigned
//	any non-terminal status -> inactive
//
// closed is reached only through CloseSet.
func (e *Engine) TransitionSet(ctx context.Context, setID string, to models.SetStatus, expectedVersion int64) (set *models.Set, err error) {
	ctx, done := e.observe(ctx, "transition_set",
		attribute.String("set.id", setID),
		attribute.String("set.to", string(to)))
	defer func() { done(err) }()

	if !to.Valid() {
		return nil, apperrors.NewValidationError(map[string]string{"status": fmt.Sprintf("unknown status %q", to)})
	}

	current, err := e.store.GetSet(ctx, setID)
	if err != nil {
		return nil, e.storeErr("transition_set", "Set", setID, err)
	}
	if expectedVersion != 0 && current.Version != expectedVersion {
		return nil, e.conflict("transition_set", "Set", setID,
			fmt.Sprintf("set is at version %d, expected %d", current.Version, expectedVersion))
	}
	if !setTransitionAllowed(current.Status, to) {
		return nil, apperrors.NewInvalidTransitionError("set", string(current.Status), string(to))
	}
	if to == models.SetStatusAssigned && current.CloserID == "" {
		return nil, apperrors.NewValidationError(map[string]string{"closerId": "assign a closer first"})
	}

	set, err = e.store.UpdateSet(ctx, setID, store.SetPatch{Status: &to}, store.Condition{ExpectedVersion: current.Version})
	if err != nil {
		return nil, e.storeErr("transition_set", "Set", setID, err)
	}

	e.logger.Info("set status changed", map[string]interface{}{
		"setId": setID,
		"from":  string(current.Status),
		"to":    string(to),
	})
	return set, nil
}

func setTransitionAllowed(from, to models.SetStatus) bool {
	if from.Terminal() || to == models.SetStatusClosed {
		return false
	}
	switch to {
	case models.SetStatusInactive:
		return true
	case models.SetStatusAssigned:
		return from == models.SetStatusActive || from == models.SetStatusNotClosed
	case models.SetStatusNotClosed:
		return from == models.SetStatusAssigned
	}
	return false
}
