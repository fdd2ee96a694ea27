// internal/workers/lifecycle/close-set/models.go
package closeset

import "ambient-pro/internal/models"

type Input struct {
	SetID           string           `json:"setId"`
	ClosingUserID   string           `json:"closingUserId"`
	Form            models.CloseForm `json:"form"`
	Confirmed       bool             `json:"confirmed"`
	ExpectedVersion int64            `json:"expectedVersion,omitempty"`
}

type Output struct {
	ProjectID      string  `json:"projectId"`
	OwnerID        string  `json:"ownerId"`
	CloserID       string  `json:"closerId,omitempty"`
	CustomerName   string  `json:"customerName"`
	DealNumber     int     `json:"dealNumber"`
	CommissionRate float64 `json:"commissionRate"`
	PaymentAmount  float64 `json:"paymentAmount"`
	PaymentDate    string  `json:"paymentDate"`
	GrossCost      float64 `json:"grossCost"`
	LedgerEntryID  string  `json:"ledgerEntryId"`
	MirroredTo     string  `json:"mirroredTo,omitempty"`
	ClosedAt       string  `json:"closedAt"` // RFC 3339
}
