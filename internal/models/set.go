// internal/models/set.go
package models

import "time"

// SetStatus is the lifecycle state of an appointment.
type SetStatus string

const (
	SetStatusActive    SetStatus = "active"
	SetStatusAssigned  SetStatus = "assigned"
	SetStatusNotClosed SetStatus = "not_closed"
	SetStatusClosed    SetStatus = "closed"
	SetStatusInactive  SetStatus = "inactive"
)

// Valid reports whether s is a known set status.
func (s SetStatus) Valid() bool {
	switch s {
	case SetStatusActive, SetStatusAssigned, SetStatusNotClosed, SetStatusClosed, SetStatusInactive:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed from s.
func (s SetStatus) Terminal() bool {
	return s == SetStatusClosed || s == SetStatusInactive
}

// Set is a scheduled customer appointment booked by a setter.
type Set struct {
	ID               string    `json:"id" db:"id"`
	UserID           string    `json:"userId" db:"user_id"`
	CustomerName     string    `json:"customerName" db:"customer_name"`
	Address          string    `json:"address" db:"address"`
	PhoneNumber      string    `json:"phoneNumber" db:"phone_number"`
	Email            string    `json:"email,omitempty" db:"email"`
	AppointmentDate  string    `json:"appointmentDate" db:"appointment_date"`
	AppointmentTime  string    `json:"appointmentTime" db:"appointment_time"`
	IsSpanishSpeaker bool      `json:"isSpanishSpeaker" db:"is_spanish_speaker"`
	Status           SetStatus `json:"status" db:"status"`
	CloserID         string    `json:"closerId,omitempty" db:"closer_id"`
	CloserName       string    `json:"closerName,omitempty" db:"closer_name"`
	Office           string    `json:"office,omitempty" db:"office"`
	UtilityBill      string    `json:"utilityBill,omitempty" db:"utility_bill"`
	Notes            string    `json:"notes,omitempty" db:"notes"`
	Version          int64     `json:"version" db:"version"`
	CreatedAt        time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time `json:"updatedAt" db:"updated_at"`
}

// Clone returns a copy of the set that shares no memory with s.
func (s *Set) Clone() *Set {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

// NewSet carries the fields a setter supplies when booking an appointment.
type NewSet struct {
	UserID           string `json:"userId"`
	CustomerName     string `json:"customerName"`
	Address          string `json:"address"`
	PhoneNumber      string `json:"phoneNumber"`
	Email            string `json:"email,omitempty"`
	AppointmentDate  string `json:"appointmentDate"`
	AppointmentTime  string `json:"appointmentTime"`
	IsSpanishSpeaker bool   `json:"isSpanishSpeaker"`
	Office           string `json:"office,omitempty"`
	UtilityBill      string `json:"utilityBill,omitempty"`
	Notes            string `json:"notes,omitempty"`
}
