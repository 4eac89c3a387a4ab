package main

import (
	"strings"
	"time"
)

// parseVisitDay reads a visit day relative to now: today, tomorrow, a
// weekday name (the next one, never today) or an explicit date
func parseVisitDay(s string, now time.Time) (time.Time, bool) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch strings.ToLower(s) {
	case "today":
		return today, true
	case "tomorrow", "tom":
		return today.AddDate(0, 0, 1), true
	case "monday", "mon":
		return nextWeekday(today, time.Monday), true
	case "tuesday", "tue":
		return nextWeekday(today, time.Tuesday), true
	case "wednesday", "wed":
		return nextWeekday(today, time.Wednesday), true
	case "thursday", "thu":
		return nextWeekday(today, time.Thursday), true
	case "friday", "fri":
		return nextWeekday(today, time.Friday), true
	case "saturday", "sat":
		return nextWeekday(today, time.Saturday), true
	case "sunday", "sun":
		return nextWeekday(today, time.Sunday), true
	case "nextweek":
		return today.AddDate(0, 0, 7), true
	}

	formats := []string{
		"2006-01-02",
		"02/01/2006",
		"02/01",
		"Jan 2",
		"Jan 2, 2006",
	}
	for _, format := range formats {
		if t, err := time.ParseInLocation(format, s, now.Location()); err == nil {
			// If no year, use the next occurrence
			if t.Year() == 0 {
				t = time.Date(now.Year(), t.Month(), t.Day(), 0, 0, 0, 0, now.Location())
				if t.Before(today) {
					t = t.AddDate(1, 0, 0)
				}
			}
			return t, true
		}
	}

	return time.Time{}, false
}

func nextWeekday(today time.Time, day time.Weekday) time.Time {
	daysUntil := int(day - today.Weekday())
	if daysUntil <= 0 {
		daysUntil += 7
	}
	return today.AddDate(0, 0, daysUntil)
}

func formatVisitDay(t, now time.Time) string {
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return "today"
	}

	tomorrow := now.AddDate(0, 0, 1)
	if t.Year() == tomorrow.Year() && t.YearDay() == tomorrow.YearDay() {
		return "tomorrow"
	}

	if t.Year() == now.Year() {
		return t.Format("Mon, Jan 2")
	}

	return t.Format("Jan 2, 2006")
}
