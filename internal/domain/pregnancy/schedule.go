package pregnancy

import (
	"fmt"
	"strings"
	"time"
)

// ScheduleOffset describes one canonical checkpoint relative to the transfer.
type ScheduleOffset struct {
	ID            string
	Title         string
	Days          int
	IsParturition bool
}

// ParturitionOffsetDays is the number of days from transfer to expected delivery.
const ParturitionOffsetDays = 330

// DefaultOffsets is the canonical checkpoint schedule. The parturition entry
// must stay last.
var DefaultOffsets = []ScheduleOffset{
	{ID: "check15", Title: "Day 15 Pregnancy Check", Days: 15},
	{ID: "check30", Title: "Day 30 Pregnancy Check", Days: 30},
	{ID: "check45", Title: "Day 45 Pregnancy Check", Days: 45},
	{ID: "check60", Title: "Day 60 Pregnancy Check", Days: 60},
	{ID: "parturition", Title: "Parturition", Days: ParturitionOffsetDays, IsParturition: true},
}

// GenerateSchedule returns the canonical checkpoints for a transfer performed
// on anchor. Only the calendar day of anchor is significant.
func GenerateSchedule(anchor time.Time) ([]Checkpoint, error) {
	if anchor.IsZero() {
		return nil, fmt.Errorf("anchor date is required: %w", ErrInvalidDate)
	}
	day := dayOf(anchor)

	checkpoints := make([]Checkpoint, 0, len(DefaultOffsets))
	for _, off := range DefaultOffsets {
		cp := Checkpoint{
			ID:               off.ID,
			Title:            off.Title,
			ScheduledDate:    day.AddDate(0, 0, off.Days),
			DaysFromTransfer: off.Days,
			IsParturition:    off.IsParturition,
			Result:           ResultUnknown,
			Complications:    []string{},
		}
		if off.IsParturition {
			cp.ExpectedDate = timePtr(cp.ScheduledDate)
		}
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, nil
}

// ParseAnchorDate accepts YYYY-MM-DD or an RFC 3339 timestamp.
func ParseAnchorDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("anchor date is required: %w", ErrInvalidDate)
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unparseable anchor date %q: %w", s, ErrInvalidDate)
}
