package model

import (
	"time"
)

// TimeSession is a committed, priced record of one completed work period
type TimeSession struct {
	ID            string    `json:"id"`
	WorkDuration  string    `json:"workDuration"`  // HH:MM:SS, rounded
	PauseDuration string    `json:"pauseDuration"` // HH:MM:SS
	Price         float64   `json:"price"`
	Date          time.Time `json:"date"`
}

// Equal compares every stored field. Sessions carry no other identity
// than their content.
func (s TimeSession) Equal(o TimeSession) bool {
	return s.ID == o.ID &&
		s.WorkDuration == o.WorkDuration &&
		s.PauseDuration == o.PauseDuration &&
		s.Price == o.Price &&
		s.Date.Equal(o.Date)
}
