// Package calendar holds the generic calendar event shape and its iCalendar
// (RFC 5545) serialization.
package calendar

import (
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
)

const (
	// ProductID is written as the PRODID of every exported calendar.
	ProductID = "-//Reprotech//Pregnancy Tracking//EN"
	// ContentType is the MIME type of an exported calendar.
	ContentType = "text/calendar; charset=utf-8"
	// UIDDomain is appended to event ids to make them globally unique.
	UIDDomain = "reprotech.com"

	startHour = 9
	endHour   = 10
)

// EventType distinguishes delivery events from routine checks.
type EventType string

const (
	TypeParturition    EventType = "parturition"
	TypePregnancyCheck EventType = "pregnancy_check"
)

// EventStatus is the calendar-level status of an event.
type EventStatus string

const (
	StatusDueToday EventStatus = "due_today"
	StatusOverdue  EventStatus = "overdue"
	StatusPending  EventStatus = "pending"
)

// Event is one dated entry on the calendar.
type Event struct {
	ID            string      `json:"id"`
	Title         string      `json:"title"`
	Date          time.Time   `json:"date"`
	Type          EventType   `json:"type"`
	Status        EventStatus `json:"status"`
	Assignee      string      `json:"assigned_to"`
	Reference     string      `json:"reference"`
	TransferID    string      `json:"transfer_id,omitempty"`
	CheckpointID  string      `json:"checkpoint_id,omitempty"`
	RecipientName string      `json:"recipient_name,omitempty"`
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func description(e Event) string {
	return fmt.Sprintf("Pregnancy check for %s - Assigned to %s", e.Reference, e.Assignee)
}

// Export renders events as a VCALENDAR document with one VEVENT per event.
// Each event occupies a one-hour placeholder window on its date. stamp is
// written as DTSTAMP.
func Export(events []Event, stamp time.Time) (string, error) {
	cal := ics.NewCalendar()
	cal.SetProductId(ProductID)
	cal.SetMethod(ics.MethodPublish)

	for _, e := range events {
		if e.ID == "" {
			return "", fmt.Errorf("calendar event without id")
		}
		if e.Date.IsZero() {
			return "", fmt.Errorf("calendar event %s has no date", e.ID)
		}
		d := day(e.Date)
		ev := cal.AddEvent(e.ID + "@" + UIDDomain)
		ev.SetDtStampTime(stamp.UTC())
		ev.SetStartAt(d.Add(startHour * time.Hour))
		ev.SetEndAt(d.Add(endHour * time.Hour))
		ev.SetSummary(e.Title)
		ev.SetDescription(description(e))
	}
	return cal.Serialize(), nil
}

// Parse reads a document produced by Export back into events. Only the
// fields carried by the iCalendar text are recovered.
func Parse(text string) ([]Event, error) {
	cal, err := ics.ParseCalendar(strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}
	var events []Event
	for _, ev := range cal.Events() {
		start, err := ev.GetStartAt()
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", ev.Id(), err)
		}
		e := Event{
			ID:   strings.TrimSuffix(ev.Id(), "@"+UIDDomain),
			Date: day(start.UTC()),
		}
		if p := ev.GetProperty(ics.ComponentPropertySummary); p != nil {
			e.Title = p.Value
		}
		if p := ev.GetProperty(ics.ComponentPropertyDescription); p != nil {
			if i := strings.LastIndex(p.Value, " - Assigned to "); i >= 0 {
				e.Reference = strings.TrimPrefix(p.Value[:i], "Pregnancy check for ")
				e.Assignee = p.Value[i+len(" - Assigned to "):]
			}
		}
		events = append(events, e)
	}
	return events, nil
}
