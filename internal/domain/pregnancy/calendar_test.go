package pregnancy

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/reprotech/pregtrack/internal/platform/calendar"
)

func newTestTransfer(t *testing.T, code, recipient string, anchor time.Time) *Transfer {
	t.Helper()
	tr, err := NewTracking(anchor)
	if err != nil {
		t.Fatalf("NewTracking: %v", err)
	}
	return &Transfer{
		ID:            uuid.New(),
		TransferCode:  code,
		TransferDate:  anchor,
		EmbryoID:      "EMB-" + code,
		RecipientID:   "R-" + code,
		RecipientName: recipient,
		Veterinarian:  "Dr. Smith",
		Tracking:      *tr,
		Version:       1,
	}
}

func TestCheckpointEvents(t *testing.T) {
	tr := newTestTransfer(t, "ET-001", "Bella", date(2025, 1, 15))
	tr.Tracking.RecordResult("check15", record(ResultPregnant, date(2025, 1, 30)))

	events := CheckpointEvents(tr, date(2025, 2, 14))
	if len(events) != 4 {
		t.Fatalf("expected 4 unperformed events, got %d", len(events))
	}
	first := events[0]
	if first.ID != tr.ID.String()+"-check30" {
		t.Errorf("unexpected id %q", first.ID)
	}
	if first.Title != "Day 30 Pregnancy Check - Bella" {
		t.Errorf("unexpected title %q", first.Title)
	}
	if first.Status != calendar.StatusDueToday {
		t.Errorf("expected due_today, got %s", first.Status)
	}
	if first.Type != calendar.TypePregnancyCheck {
		t.Errorf("expected pregnancy_check, got %s", first.Type)
	}
	if first.Assignee != "Dr. Smith" || first.Reference != "ET-001" {
		t.Errorf("unexpected assignee/reference %q/%q", first.Assignee, first.Reference)
	}
	last := events[len(events)-1]
	if last.Type != calendar.TypeParturition || last.Status != calendar.StatusPending {
		t.Errorf("expected pending parturition, got %s/%s", last.Type, last.Status)
	}
}

func TestToCalendarEvents_SortedAcrossTransfers(t *testing.T) {
	a := newTestTransfer(t, "ET-A", "Bella", date(2025, 1, 15))
	b := newTestTransfer(t, "ET-B", "Daisy", date(2025, 1, 10))
	events := ToCalendarEvents([]*Transfer{a, b}, date(2025, 1, 1))
	if len(events) != 10 {
		t.Fatalf("expected 10 events, got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].Date.Before(events[i-1].Date) {
			t.Fatalf("events not sorted at %d", i)
		}
	}
	if events[0].RecipientName != "Daisy" {
		t.Errorf("expected Daisy's check first, got %s", events[0].RecipientName)
	}
}

func TestToCalendarEvents_StableForSameDate(t *testing.T) {
	a := newTestTransfer(t, "ET-A", "Bella", date(2025, 1, 15))
	b := newTestTransfer(t, "ET-B", "Daisy", date(2025, 1, 15))
	events := ToCalendarEvents([]*Transfer{a, b}, date(2025, 1, 1))
	if events[0].TransferID != a.ID.String() || events[1].TransferID != b.ID.String() {
		t.Error("expected input order to be kept for equal dates")
	}
}

func TestToCalendarEvents_Empty(t *testing.T) {
	events := ToCalendarEvents(nil, date(2025, 1, 1))
	if events == nil || len(events) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", events)
	}
}

func TestCalendarViews(t *testing.T) {
	a := newTestTransfer(t, "ET-A", "Bella", date(2025, 1, 15))
	b := newTestTransfer(t, "ET-B", "Daisy", date(2025, 1, 30))
	now := date(2025, 2, 14)
	events := ToCalendarEvents([]*Transfer{a, b}, now)

	overdue := Overdue(events)
	// Bella's day 15 check (2025-01-30) is the only past date
	if len(overdue) != 1 || overdue[0].CheckpointID != "check15" {
		t.Errorf("expected 1 overdue event, got %+v", overdue)
	}

	today := DueToday(events)
	// Bella day 30 and Daisy day 15 both fall on 2025-02-14
	if len(today) != 2 {
		t.Errorf("expected 2 events due today, got %d", len(today))
	}

	upcoming := Upcoming(events, now, 3)
	if len(upcoming) != 3 {
		t.Fatalf("expected upcoming capped at 3, got %d", len(upcoming))
	}
	if upcoming[0].Status != calendar.StatusDueToday {
		t.Error("expected upcoming to include today")
	}
	for _, e := range upcoming {
		if e.Date.Before(now) {
			t.Errorf("upcoming contains past event %s", e.ID)
		}
	}

	if got := Upcoming(events, now, 0); len(got) != DefaultUpcomingLimit {
		t.Errorf("expected default limit %d, got %d", DefaultUpcomingLimit, len(got))
	}
}

func TestCalendarExportRoundTrip(t *testing.T) {
	a := newTestTransfer(t, "ET-A", "Bella", date(2025, 1, 15))
	events := ToCalendarEvents([]*Transfer{a}, date(2025, 1, 1))
	text, err := calendar.Export(events, date(2025, 1, 1))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if n := strings.Count(text, "BEGIN:VEVENT"); n != len(events) {
		t.Errorf("expected %d VEVENT blocks, got %d", len(events), n)
	}
	parsed, err := calendar.Parse(text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(parsed) != len(events) {
		t.Fatalf("expected %d parsed events, got %d", len(events), len(parsed))
	}
	for i := range events {
		if !parsed[i].Date.Equal(events[i].Date) {
			t.Errorf("event %d: expected %v, got %v", i, events[i].Date, parsed[i].Date)
		}
	}
}

func TestDaysUntilLabel(t *testing.T) {
	now := date(2025, 2, 14)
	tests := []struct {
		date time.Time
		want string
	}{
		{date(2025, 2, 14), "Due Today"},
		{date(2025, 2, 15), "In 1 day"},
		{date(2025, 2, 20), "In 6 days"},
		{date(2025, 2, 13), "1 day overdue"},
		{date(2025, 2, 4), "10 days overdue"},
	}
	for _, tt := range tests {
		if got := DaysUntilLabel(tt.date, now); got != tt.want {
			t.Errorf("DaysUntilLabel(%s) = %q, want %q", tt.date.Format("2006-01-02"), got, tt.want)
		}
	}
}
