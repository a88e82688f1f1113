package radio

import (
	"time"

	"SyncFM/model"
)

// ModeSchedule maps wall-clock time to a catalog mode.
// Day runs from DayStartHour (inclusive) to DayEndHour (exclusive) in Location.
// When DayStartHour > DayEndHour the day window wraps past midnight.
type ModeSchedule struct {
	Location     *time.Location
	DayStartHour int
	DayEndHour   int
}

// ModeAt returns the mode in effect at t.
func (s ModeSchedule) ModeAt(t time.Time) model.Mode {
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}
	h := t.In(loc).Hour()

	var day bool
	if s.DayStartHour <= s.DayEndHour {
		day = h >= s.DayStartHour && h < s.DayEndHour
	} else {
		day = h >= s.DayStartHour || h < s.DayEndHour
	}
	if day {
		return model.ModeDay
	}
	return model.ModeNight
}
