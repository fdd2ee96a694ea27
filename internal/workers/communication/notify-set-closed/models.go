// internal/workers/communication/notify-set-closed/models.go
package notifysetclosed

type Input struct {
	ProjectID     string  `json:"projectId"`
	OwnerID       string  `json:"ownerId"`
	CloserID      string  `json:"closerId,omitempty"`
	CustomerName  string  `json:"customerName"`
	DealNumber    int     `json:"dealNumber"`
	PaymentAmount float64 `json:"paymentAmount"`
	PaymentDate   string  `json:"paymentDate"`
}

type Output struct {
	NotificationID string `json:"notificationId"`
	EmailStatus    string `json:"emailStatus"`
	SMSStatus      string `json:"smsStatus"`
	Status         string `json:"status"` // "sent", "partial", "disabled"
	SentAt         string `json:"sentAt"` // RFC 3339
}

// Statuses
const (
	StatusSent     = "sent"
	StatusPartial  = "partial"
	StatusFailed   = "failed"
	StatusDisabled = "disabled"
)

type recipient struct {
	Name  string
	Email string
	Phone string
}
