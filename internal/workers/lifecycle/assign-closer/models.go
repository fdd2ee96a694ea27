// internal/workers/lifecycle/assign-closer/models.go
package assigncloser

type Input struct {
	SetID           string `json:"setId"`
	CloserID        string `json:"closerId"`
	CloserName      string `json:"closerName"`
	ExpectedVersion int64  `json:"expectedVersion,omitempty"`
	Reassign        bool   `json:"reassign,omitempty"`
}

type Output struct {
	SetID      string `json:"setId"`
	CloserID   string `json:"closerId"`
	CloserName string `json:"closerName"`
	SetStatus  string `json:"setStatus"`
	SetVersion int64  `json:"setVersion"`
	AssignedAt string `json:"assignedAt"` // RFC 3339
}
