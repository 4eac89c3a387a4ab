// Package lifecycle holds the legal status transitions of an intervention.
//
// Transitions are looked up, never forced: an action that has no edge from
// the current status is simply not available, and Next reports false.
package lifecycle

import (
	"github.com/dori/terrain/internal/model"
)

// Action is something an operator or a collaborating feature can do
type Action string

const (
	Schedule       Action = "schedule"
	Play           Action = "play"
	Pause          Action = "pause"
	Stop           Action = "stop"
	RequestRevisit Action = "request-revisit"
	Finish         Action = "finish"
	Bill           Action = "bill"
	Pay            Action = "pay"
)

// actionOrder is the order actions are offered in a view
var actionOrder = []Action{Play, Pause, Stop, RequestRevisit, Finish, Schedule, Bill, Pay}

type edge struct {
	from   model.Status
	action Action
}

var transitions = map[edge]model.Status{
	// Scheduling feature
	{model.StatusOpen, Schedule}:    model.StatusPlanned,
	{model.StatusWaiting, Schedule}: model.StatusPlanned,

	// Timer engine
	{model.StatusPlanned, Play}: model.StatusStarted,
	{model.StatusStopped, Play}: model.StatusStarted,
	{model.StatusStarted, Play}: model.StatusStarted,
	{model.StatusPaused, Play}:  model.StatusStarted,

	{model.StatusStarted, Pause}: model.StatusPaused,

	{model.StatusStarted, Stop}: model.StatusStopped,
	{model.StatusPaused, Stop}:  model.StatusStopped,

	// Revisit. Offered while a session runs so the view can tell the
	// technician to stop first; the controller refuses it until then.
	{model.StatusStarted, RequestRevisit}: model.StatusWaiting,
	{model.StatusPaused, RequestRevisit}:  model.StatusWaiting,
	{model.StatusStopped, RequestRevisit}: model.StatusWaiting,

	{model.StatusStopped, Finish}: model.StatusEnd,
	{model.StatusPlanned, Finish}: model.StatusEnd,
	{model.StatusStarted, Finish}: model.StatusEnd, // implicit stop first
	{model.StatusPaused, Finish}:  model.StatusEnd, // implicit stop first

	// Invoice feature
	{model.StatusEnd, Bill}:   model.StatusBilled,
	{model.StatusBilled, Pay}: model.StatusPaid,
}

// Next returns the status reached by applying action from status.
// ok is false when the action is not available in that status.
func Next(from model.Status, action Action) (to model.Status, ok bool) {
	to, ok = transitions[edge{from, action}]
	if !ok {
		return from, false
	}
	return to, true
}

// Allowed reports whether action has an edge out of status
func Allowed(from model.Status, action Action) bool {
	_, ok := transitions[edge{from, action}]
	return ok
}

// Actions lists the actions a view should expose for status
func Actions(from model.Status) []Action {
	var out []Action
	for _, a := range actionOrder {
		if Allowed(from, a) {
			out = append(out, a)
		}
	}
	return out
}

// IsTerminal returns true when no further transition exists
func IsTerminal(s model.Status) bool {
	return len(Actions(s)) == 0
}

// IsActive returns true for statuses still handled by technicians
func IsActive(s model.Status) bool {
	switch s {
	case model.StatusEnd, model.StatusBilled, model.StatusPaid:
		return false
	default:
		return s.Valid()
	}
}

// ActiveStatuses lists every status IsActive accepts
func ActiveStatuses() []model.Status {
	var out []model.Status
	for _, s := range model.AllStatuses {
		if IsActive(s) {
			out = append(out, s)
		}
	}
	return out
}
