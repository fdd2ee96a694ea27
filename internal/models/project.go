// internal/models/project.go
package models

import "time"

// ProjectStatus is the installation pipeline stage of a project.
type ProjectStatus string

const (
	ProjectStatusSiteSurvey ProjectStatus = "site_survey"
	ProjectStatusPermit     ProjectStatus = "permit"
	ProjectStatusInstall    ProjectStatus = "install"
	ProjectStatusInspection ProjectStatus = "inspection"
	ProjectStatusPTO        ProjectStatus = "pto"
	ProjectStatusCompleted  ProjectStatus = "completed"
	ProjectStatusCancelled  ProjectStatus = "cancelled"
)

// ProjectPipeline lists the non-cancelled stages in order.
var ProjectPipeline = []ProjectStatus{
	ProjectStatusSiteSurvey,
	ProjectStatusPermit,
	ProjectStatusInstall,
	ProjectStatusInspection,
	ProjectStatusPTO,
	ProjectStatusCompleted,
}

// Valid reports whether s is a known project status.
func (s ProjectStatus) Valid() bool {
	if s == ProjectStatusCancelled {
		return true
	}
	return s.stage() >= 0
}

// Terminal reports whether the project can no longer move.
func (s ProjectStatus) Terminal() bool {
	return s == ProjectStatusCompleted || s == ProjectStatusCancelled
}

// Next returns the stage following s in the pipeline.
func (s ProjectStatus) Next() (ProjectStatus, bool) {
	i := s.stage()
	if i < 0 || i+1 >= len(ProjectPipeline) {
		return "", false
	}
	return ProjectPipeline[i+1], true
}

func (s ProjectStatus) stage() int {
	for i, st := range ProjectPipeline {
		if st == s {
			return i
		}
	}
	return -1
}

// Project is the installation record created when a set closes.
// DealNumber and CommissionRate are fixed at creation.
type Project struct {
	ID               string        `json:"id" db:"id"`
	UserID           string        `json:"userId" db:"user_id"`
	ClosedBy         string        `json:"closedBy" db:"closed_by"`
	CustomerName     string        `json:"customerName" db:"customer_name"`
	Address          string        `json:"address" db:"address"`
	PhoneNumber      string        `json:"phoneNumber" db:"phone_number"`
	Email            string        `json:"email,omitempty" db:"email"`
	IsSpanishSpeaker bool          `json:"isSpanishSpeaker" db:"is_spanish_speaker"`
	Office           string        `json:"office,omitempty" db:"office"`
	CloserID         string        `json:"closerId,omitempty" db:"closer_id"`
	CloserName       string        `json:"closerName,omitempty" db:"closer_name"`
	SystemSize       string        `json:"systemSize" db:"system_size"`
	GrossPPW         string        `json:"grossPPW" db:"gross_ppw"`
	FinanceType      string        `json:"financeType" db:"finance_type"`
	Lender           string        `json:"lender" db:"lender"`
	Adders           []string      `json:"adders" db:"adders"`
	PanelType        string        `json:"panelType" db:"panel_type"`
	BatteryType      string        `json:"batteryType,omitempty" db:"battery_type"`
	BatteryQuantity  int           `json:"batteryQuantity,omitempty" db:"battery_quantity"`
	SiteSurveyDate   string        `json:"siteSurveyDate" db:"site_survey_date"`
	SiteSurveyTime   string        `json:"siteSurveyTime" db:"site_survey_time"`
	PermitDate       string        `json:"permitDate,omitempty" db:"permit_date"`
	InstallDate      string        `json:"installDate,omitempty" db:"install_date"`
	InspectionDate   string        `json:"inspectionDate,omitempty" db:"inspection_date"`
	PTODate          string        `json:"ptoDate,omitempty" db:"pto_date"`
	PaymentDate      string        `json:"paymentDate" db:"payment_date"`
	PaymentAmount    float64       `json:"paymentAmount" db:"payment_amount"`
	CommissionRate   float64       `json:"commissionRate" db:"commission_rate"`
	DealNumber       int           `json:"dealNumber" db:"deal_number"`
	Status           ProjectStatus `json:"status" db:"status"`
	Version          int64         `json:"version" db:"version"`
	CreatedAt        time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time     `json:"updatedAt" db:"updated_at"`
}

// Clone returns a deep copy of p.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Adders != nil {
		cp.Adders = append([]string(nil), p.Adders...)
	}
	return &cp
}

// CloseForm holds the deal details a closer enters when closing a set.
type CloseForm struct {
	SystemSize      string   `json:"systemSize"`
	GrossPPW        string   `json:"grossPPW"`
	FinanceType     string   `json:"financeType"`
	Lender          string   `json:"lender"`
	Adders          []string `json:"adders,omitempty"`
	PanelType       string   `json:"panelType"`
	BatteryType     string   `json:"batteryType,omitempty"`
	BatteryQuantity int      `json:"batteryQuantity,omitempty"`
	SiteSurveyDate  string   `json:"siteSurveyDate"`
	SiteSurveyTime  string   `json:"siteSurveyTime"`
	PermitDate      string   `json:"permitDate,omitempty"`
	InstallDate     string   `json:"installDate,omitempty"`
	InspectionDate  string   `json:"inspectionDate,omitempty"`
	PTODate         string   `json:"ptoDate,omitempty"`
}
