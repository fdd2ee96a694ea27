// internal/models/user.go
package models

import "time"

// Role is the organisational role of a user.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleCloser  Role = "closer"
	RoleSetter  Role = "setter"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleCloser, RoleSetter:
		return true
	}
	return false
}

// PaymentStatus is the payout state of a commission ledger entry.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
)

// CommissionPayment is one entry of a user's commission ledger.
type CommissionPayment struct {
	ID             string        `json:"id" db:"id"`
	Amount         float64       `json:"amount" db:"amount"`
	Date           string        `json:"date" db:"payment_date"`
	ProjectID      string        `json:"projectId" db:"project_id"`
	Description    string        `json:"description" db:"description"`
	Status         PaymentStatus `json:"status" db:"status"`
	CustomerName   string        `json:"customerName" db:"customer_name"`
	DealNumber     int           `json:"dealNumber" db:"deal_number"`
	SystemSize     string        `json:"systemSize" db:"system_size"`
	CommissionRate float64       `json:"commissionRate" db:"commission_rate"`
	CreatedAt      time.Time     `json:"createdAt" db:"created_at"`
	PaidAt         *time.Time    `json:"paidAt,omitempty" db:"paid_at"`
}

// User is a member of the sales organisation with their commission ledger.
type User struct {
	ID                 string              `json:"id" db:"id"`
	Name               string              `json:"name" db:"name"`
	Email              string              `json:"email,omitempty" db:"email"`
	PhoneNumber        string              `json:"phoneNumber,omitempty" db:"phone_number"`
	Role               Role                `json:"role" db:"role"`
	Office             string              `json:"office,omitempty" db:"office"`
	DealCount          int                 `json:"dealCount" db:"deal_count"`
	TotalCommission    float64             `json:"totalCommission" db:"total_commission"`
	CommissionPayments []CommissionPayment `json:"commissionPayments"`
	CreatedAt          time.Time           `json:"createdAt" db:"created_at"`
}

// Clone returns a deep copy of u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	cp := *u
	if u.CommissionPayments != nil {
		cp.CommissionPayments = make([]CommissionPayment, len(u.CommissionPayments))
		for i, p := range u.CommissionPayments {
			if p.PaidAt != nil {
				t := *p.PaidAt
				p.PaidAt = &t
			}
			cp.CommissionPayments[i] = p
		}
	}
	return &cp
}
