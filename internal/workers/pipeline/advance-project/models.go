// internal/workers/pipeline/advance-project/models.go
package advanceproject

type Input struct {
	ProjectID string `json:"projectId"`
	Status    string `json:"status"`
	Date      string `json:"date,omitempty"` // YYYY-MM-DD
}

type Output struct {
	ProjectID      string `json:"projectId"`
	ProjectStatus  string `json:"projectStatus"`
	ProjectVersion int64  `json:"projectVersion"`
	StageDate      string `json:"stageDate,omitempty"`
	PaymentDate    string `json:"paymentDate"`
	Completed      bool   `json:"completed"`
}
