package model

import (
	"encoding/json"
	"time"
)

// Status represents where an intervention is in its lifecycle
type Status string

const (
	StatusOpen    Status = "OPEN"
	StatusWaiting Status = "WAITING"
	StatusPlanned Status = "PLANNED"
	StatusStarted Status = "STARTED"
	StatusPaused  Status = "PAUSED"
	StatusStopped Status = "STOPPED"
	StatusEnd     Status = "END"
	StatusBilled  Status = "BILLED"
	StatusPaid    Status = "PAID"
)

// AllStatuses lists every status in lifecycle order
var AllStatuses = []Status{
	StatusOpen, StatusWaiting, StatusPlanned, StatusStarted, StatusPaused,
	StatusStopped, StatusEnd, StatusBilled, StatusPaid,
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Label returns the display name used on dashboards
func (s Status) Label() string {
	switch s {
	case StatusOpen:
		return "Open"
	case StatusWaiting:
		return "Waiting"
	case StatusPlanned:
		return "Planned"
	case StatusStarted:
		return "In progress"
	case StatusPaused:
		return "Paused"
	case StatusStopped:
		return "Stopped"
	case StatusEnd:
		return "Done"
	case StatusBilled:
		return "Billed"
	case StatusPaid:
		return "Paid"
	default:
		return string(s)
	}
}

// Clock holds the persisted fields of an in-progress work session.
// StartTime is nil when no session is open. TotalPause keeps the closed
// pause segments at full precision; it is only cut to whole seconds when
// elapsed time is read.
type Clock struct {
	StartTime      *time.Time    `json:"startTime,omitempty"`
	PauseStartTime *time.Time    `json:"pauseStartTime,omitempty"`
	TotalPause     time.Duration `json:"totalPause"`
}

// TotalPauseSeconds returns the closed pause time in whole seconds
func (c Clock) TotalPauseSeconds() int64 {
	return int64(c.TotalPause / time.Second)
}

// Intervention is a single field-service visit
type Intervention struct {
	ID        string `json:"id"`
	Status    Status `json:"status"`
	CreatedBy string `json:"createdBy,omitempty"`
	Assigned  string `json:"assigned,omitempty"`

	Address Address `json:"adresse"`

	// Owned by the intake feature, carried through untouched
	Inhabitants json.RawMessage `json:"habitants,omitempty"`
	Owner       json.RawMessage `json:"proprietaire,omitempty"`
	Mission     json.RawMessage `json:"mission,omitempty"`

	TimeSessions []TimeSession  `json:"timeSessions"`
	Materials    []MaterialLine `json:"materials"`
	Orders       []OrderLine    `json:"orders"`

	TravelCount int     `json:"travelCount"`
	TravelCost  float64 `json:"travelCost"`
	TotalFinal  float64 `json:"totalFinal"`

	Clock

	PlannedAt     *time.Time `json:"plannedAt,omitempty"`
	ScheduledTime string     `json:"scheduledTime,omitempty"`
	PaymentNote   string     `json:"paymentNote,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	BilledAt    *time.Time `json:"billedAt,omitempty"`
	PaidAt      *time.Time `json:"paidAt,omitempty"`
}

// IsRunning returns true while a work session is open (working or paused)
func (i *Intervention) IsRunning() bool {
	return i.StartTime != nil
}

// Clone returns a deep copy so callers can mutate without aliasing slices
func (i *Intervention) Clone() *Intervention {
	if i == nil {
		return nil
	}
	c := *i
	c.TimeSessions = append([]TimeSession(nil), i.TimeSessions...)
	c.Materials = append([]MaterialLine(nil), i.Materials...)
	c.Orders = make([]OrderLine, len(i.Orders))
	for n, o := range i.Orders {
		c.Orders[n] = o.clone()
	}
	c.Clock = i.Clock.Clone()
	return &c
}

// Clone copies the clock including its timestamp pointers
func (c Clock) Clone() Clock {
	out := Clock{TotalPause: c.TotalPause}
	if c.StartTime != nil {
		t := *c.StartTime
		out.StartTime = &t
	}
	if c.PauseStartTime != nil {
		t := *c.PauseStartTime
		out.PauseStartTime = &t
	}
	return out
}
