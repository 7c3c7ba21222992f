package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
	// DisplayLayout renders "Mon, Jan 2".
	DisplayLayout = "Mon, Jan 2"
)

// Slot is a bookable interval on a single day.
type Slot struct {
	StartTime string `json:"start_time" db:"start_time" binding:"required,clock"`
	EndTime   string `json:"end_time" db:"end_time" binding:"required,clock"`
}

// Day is one calendar date of a provider's availability.
type Day struct {
	ProviderID   uuid.UUID `json:"-" db:"provider_id"`
	Date         string    `json:"date" db:"date" binding:"required,datestr"`
	DisplayLabel string    `json:"display_label" db:"display_label"`
	DayName      string    `json:"day_name" db:"day_name"`
	IsAvailable  bool      `json:"is_available" db:"is_available"`
	Slots        []Slot    `json:"slots" db:"-" binding:"dive"`
}

// HasSlot reports whether the day is open and offers a slot starting at clock.
func (d *Day) HasSlot(clock string) bool {
	if d == nil || !d.IsAvailable {
		return false
	}
	for _, s := range d.Slots {
		if s.StartTime == clock {
			return true
		}
	}
	return false
}

type ReplaceDaysRequest struct {
	Days []Day `json:"days" binding:"required,dive"`
}

type BuildWeekRequest struct {
	WeekStart string   `json:"week_start" binding:"required,datestr"`
	OpenDates []string `json:"open_dates" binding:"dive,datestr"`
}

// ParseClock converts a zero-padded "HH:mm" string to minutes after midnight.
func ParseClock(s string) (int, error) {
	if len(s) != len(ClockLayout) {
		return 0, fmt.Errorf("invalid clock %q: want HH:mm", s)
	}
	t, err := time.Parse(ClockLayout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatClock renders minutes after midnight as "HH:mm".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ParseDate parses a zero-padded "YYYY-MM-DD" string in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if len(s) != len(DateLayout) {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	t, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}
