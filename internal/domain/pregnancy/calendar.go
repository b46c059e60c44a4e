package pregnancy

import (
	"fmt"
	"sort"
	"time"

	"github.com/reprotech/pregtrack/internal/platform/calendar"
)

// DefaultUpcomingLimit caps the upcoming view when no limit is configured.
const DefaultUpcomingLimit = 5

func eventStatus(s CheckpointStatus) calendar.EventStatus {
	switch s {
	case StatusDueToday:
		return calendar.StatusDueToday
	case StatusOverdue:
		return calendar.StatusOverdue
	default:
		return calendar.StatusPending
	}
}

// CheckpointEvents projects the unperformed checkpoints of one transfer.
func CheckpointEvents(t *Transfer, now time.Time) []calendar.Event {
	var events []calendar.Event
	for _, cp := range t.Tracking.Checkpoints {
		if cp.Performed {
			continue
		}
		typ := calendar.TypePregnancyCheck
		if cp.IsParturition {
			typ = calendar.TypeParturition
		}
		ref := t.TransferCode
		if ref == "" {
			ref = t.ID.String()
		}
		events = append(events, calendar.Event{
			ID:            t.ID.String() + "-" + cp.ID,
			Title:         cp.Title + " - " + t.RecipientName,
			Date:          cp.ScheduledDate,
			Type:          typ,
			Status:        eventStatus(Classify(cp, now)),
			Assignee:      t.Veterinarian,
			Reference:     ref,
			TransferID:    t.ID.String(),
			CheckpointID:  cp.ID,
			RecipientName: t.RecipientName,
		})
	}
	return events
}

// ToCalendarEvents projects every transfer and sorts the events by date.
// Events on the same date keep their input order.
func ToCalendarEvents(transfers []*Transfer, now time.Time) []calendar.Event {
	events := []calendar.Event{}
	for _, t := range transfers {
		events = append(events, CheckpointEvents(t, now)...)
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Date.Before(events[j].Date)
	})
	return events
}

// Upcoming returns sorted events dated today or later, capped at limit.
func Upcoming(events []calendar.Event, now time.Time, limit int) []calendar.Event {
	if limit <= 0 {
		limit = DefaultUpcomingLimit
	}
	today := dayOf(now)
	out := []calendar.Event{}
	for _, e := range events {
		if dayOf(e.Date).Before(today) {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out
}

// Overdue returns the events whose date has passed.
func Overdue(events []calendar.Event) []calendar.Event {
	return filterStatus(events, calendar.StatusOverdue)
}

// DueToday returns the events due on the reference day.
func DueToday(events []calendar.Event) []calendar.Event {
	return filterStatus(events, calendar.StatusDueToday)
}

func filterStatus(events []calendar.Event, status calendar.EventStatus) []calendar.Event {
	out := []calendar.Event{}
	for _, e := range events {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out
}

// DaysUntilLabel renders the distance from now to date for display.
func DaysUntilLabel(date, now time.Time) string {
	days := DaysBetween(now, date)
	switch {
	case days == 0:
		return "Due Today"
	case days < 0:
		if days == -1 {
			return "1 day overdue"
		}
		return fmt.Sprintf("%d days overdue", -days)
	case days == 1:
		return "In 1 day"
	default:
		return fmt.Sprintf("In %d days", days)
	}
}
