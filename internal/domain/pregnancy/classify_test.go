package pregnancy

import (
	"testing"
	"time"
)

func TestClassify_Performed(t *testing.T) {
	now := date(2025, 2, 1)
	tests := []struct {
		result Result
		want   CheckpointStatus
	}{
		{ResultPregnant, StatusCompletedSuccess},
		{ResultDelivered, StatusCompletedSuccess},
		{ResultNotPregnant, StatusCompletedFailed},
		{ResultAborted, StatusCompletedFailed},
		{ResultDied, StatusCompletedFailed},
		{ResultRecheck, StatusPending},
		{ResultUnknown, StatusCompleted},
	}
	for _, tt := range tests {
		t.Run(string(tt.result), func(t *testing.T) {
			cp := Checkpoint{Performed: true, Result: tt.result, ScheduledDate: date(2025, 1, 30)}
			if got := Classify(cp, now); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClassify_Temporal(t *testing.T) {
	due := date(2025, 2, 14)
	tests := []struct {
		name string
		now  time.Time
		want CheckpointStatus
	}{
		{"day before", date(2025, 2, 13), StatusUpcoming},
		{"same day morning", time.Date(2025, 2, 14, 0, 0, 1, 0, time.UTC), StatusDueToday},
		{"same day evening", time.Date(2025, 2, 14, 23, 59, 59, 0, time.UTC), StatusDueToday},
		{"day after", date(2025, 2, 15), StatusOverdue},
		{"week after", date(2025, 2, 20), StatusOverdue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp := Checkpoint{ScheduledDate: due, Result: ResultUnknown}
			if got := Classify(cp, tt.now); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClassify_Pure(t *testing.T) {
	cp := Checkpoint{ScheduledDate: date(2025, 2, 14), Result: ResultUnknown}
	now := date(2025, 2, 20)
	first := Classify(cp, now)
	for i := 0; i < 10; i++ {
		if got := Classify(cp, now); got != first {
			t.Fatalf("expected stable classification, got %s then %s", first, got)
		}
	}
}

func TestTally(t *testing.T) {
	cps, _ := GenerateSchedule(date(2025, 1, 15))
	cps[0].Performed = true
	cps[0].Result = ResultPregnant

	// check30 due 2025-02-14 is today, check45 and later upcoming
	counts := Tally(cps, date(2025, 2, 14))
	if counts.DueToday != 1 {
		t.Errorf("expected 1 due today, got %d", counts.DueToday)
	}
	if counts.Overdue != 0 {
		t.Errorf("expected 0 overdue, got %d", counts.Overdue)
	}
	if counts.Upcoming != 3 {
		t.Errorf("expected 3 upcoming, got %d", counts.Upcoming)
	}

	counts = Tally(cps, date(2025, 3, 10))
	if counts.Overdue != 2 || counts.Upcoming != 2 {
		t.Errorf("expected 2 overdue and 2 upcoming, got %+v", counts)
	}
}
