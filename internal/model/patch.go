package model

import (
	"time"
)

// Patch is a partial field set for a remote merge-update. Nil fields are
// left untouched; list fields replace the whole stored list.
type Patch struct {
	Status       *Status
	TimeSessions *[]TimeSession
	Materials    *[]MaterialLine
	Orders       *[]OrderLine
	TravelCount  *int
	TravelCost   *float64
	TotalFinal   *float64

	// Clock replaces all three timer fields at once
	Clock *Clock

	PlannedAt     *time.Time
	ScheduledTime *string
	PaymentNote   *string
	CompletedAt   *time.Time
	BilledAt      *time.Time
	PaidAt        *time.Time
}

// IsEmpty returns true when the patch would change nothing
func (p Patch) IsEmpty() bool {
	return p.Status == nil && p.TimeSessions == nil && p.Materials == nil &&
		p.Orders == nil && p.TravelCount == nil && p.TravelCost == nil &&
		p.TotalFinal == nil && p.Clock == nil && p.PlannedAt == nil &&
		p.ScheduledTime == nil && p.PaymentNote == nil && p.CompletedAt == nil &&
		p.BilledAt == nil && p.PaidAt == nil
}

// Apply writes the patch onto inv in place
func (p Patch) Apply(inv *Intervention) {
	if p.Status != nil {
		inv.Status = *p.Status
	}
	if p.TimeSessions != nil {
		inv.TimeSessions = append([]TimeSession(nil), (*p.TimeSessions)...)
	}
	if p.Materials != nil {
		inv.Materials = append([]MaterialLine(nil), (*p.Materials)...)
	}
	if p.Orders != nil {
		inv.Orders = append([]OrderLine(nil), (*p.Orders)...)
	}
	if p.TravelCount != nil {
		inv.TravelCount = *p.TravelCount
	}
	if p.TravelCost != nil {
		inv.TravelCost = *p.TravelCost
	}
	if p.TotalFinal != nil {
		inv.TotalFinal = *p.TotalFinal
	}
	if p.Clock != nil {
		inv.Clock = p.Clock.Clone()
	}
	if p.PlannedAt != nil {
		t := *p.PlannedAt
		inv.PlannedAt = &t
	}
	if p.ScheduledTime != nil {
		inv.ScheduledTime = *p.ScheduledTime
	}
	if p.PaymentNote != nil {
		inv.PaymentNote = *p.PaymentNote
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		inv.CompletedAt = &t
	}
	if p.BilledAt != nil {
		t := *p.BilledAt
		inv.BilledAt = &t
	}
	if p.PaidAt != nil {
		t := *p.PaidAt
		inv.PaidAt = &t
	}
}

// EventKind is the type of change a realtime event carries
type EventKind string

const (
	EventCreate EventKind = "create"
	EventUpdate EventKind = "update"
	EventDelete EventKind = "delete"
)

// Event is a realtime snapshot pushed after every remote mutation
type Event struct {
	Kind         EventKind
	Intervention *Intervention
}
