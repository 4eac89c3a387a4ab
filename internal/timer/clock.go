// Package timer computes live work and pause time from absolute timestamps.
//
// Elapsed time is never accumulated tick by tick: it is always derived from
// the session start, the closed pause total and the open pause, so a
// suspended process or a reload loses nothing.
package timer

import (
	"time"

	"github.com/dori/terrain/internal/duration"
	"github.com/dori/terrain/internal/model"
)

// Start opens a fresh session at now
func Start(now time.Time) model.Clock {
	t := now
	return model.Clock{StartTime: &t}
}

// Pause opens a pause segment. Pausing twice keeps the first segment.
func Pause(c model.Clock, now time.Time) model.Clock {
	c = c.Clone()
	if c.StartTime == nil || c.PauseStartTime != nil {
		return c
	}
	t := now
	c.PauseStartTime = &t
	return c
}

// Resume closes the open pause segment and folds it into the total
func Resume(c model.Clock, now time.Time) model.Clock {
	c = c.Clone()
	if c.PauseStartTime == nil {
		return c
	}
	if d := now.Sub(*c.PauseStartTime); d > 0 {
		c.TotalPause += d
	}
	c.PauseStartTime = nil
	return c
}

// Running returns true while a session is open
func Running(c model.Clock) bool {
	return c.StartTime != nil
}

// Paused returns true while a pause segment is open
func Paused(c model.Clock) bool {
	return c.StartTime != nil && c.PauseStartTime != nil
}

// Elapsed splits the time since StartTime into work and pause seconds.
// The split is done on exact durations and truncated once, so
// work + pause always equals the whole seconds elapsed since StartTime.
func Elapsed(c model.Clock, now time.Time) (work, pause int64) {
	if c.StartTime == nil {
		return 0, 0
	}
	total := now.Sub(*c.StartTime)
	if total < 0 {
		total = 0
	}

	paused := c.TotalPause
	if c.PauseStartTime != nil {
		if d := now.Sub(*c.PauseStartTime); d > 0 {
			paused += d
		}
	}
	if paused > total {
		paused = total
	}
	if paused < 0 {
		paused = 0
	}

	work = seconds(total - paused)
	return work, seconds(total) - work
}

// Reading is one refresh of the timer display
type Reading struct {
	Work      int64
	Pause     int64
	WorkText  string
	PauseText string
	TotalText string
	Running   bool
	Paused    bool
}

// ReadingAt computes the display values for c at now
func ReadingAt(c model.Clock, now time.Time) Reading {
	work, pause := Elapsed(c, now)
	return Reading{
		Work:      work,
		Pause:     pause,
		WorkText:  duration.Format(work, true),
		PauseText: duration.Format(pause, true),
		TotalText: duration.Format(work+pause, true),
		Running:   Running(c),
		Paused:    Paused(c),
	}
}

func seconds(d time.Duration) int64 {
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}
