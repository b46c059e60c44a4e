package pregnancy

import "time"

// CheckpointStatus is the display/alert status of a checkpoint at a given time.
type CheckpointStatus string

const (
	StatusCompletedSuccess CheckpointStatus = "completed-success"
	StatusCompletedFailed  CheckpointStatus = "completed-failed"
	StatusCompleted        CheckpointStatus = "completed"
	StatusPending          CheckpointStatus = "pending"
	StatusDueToday         CheckpointStatus = "due-today"
	StatusOverdue          CheckpointStatus = "overdue"
	StatusUpcoming         CheckpointStatus = "upcoming"
)

// performedStatus maps a recorded result to its status. Results missing from
// the table classify as StatusCompleted.
var performedStatus = map[Result]CheckpointStatus{
	ResultPregnant:    StatusCompletedSuccess,
	ResultDelivered:   StatusCompletedSuccess,
	ResultNotPregnant: StatusCompletedFailed,
	ResultAborted:     StatusCompletedFailed,
	ResultDied:        StatusCompletedFailed,
	ResultRecheck:     StatusPending,
}

// Classify returns the status of cp relative to now. Unperformed checkpoints
// are compared at calendar-day granularity.
func Classify(cp Checkpoint, now time.Time) CheckpointStatus {
	if cp.Performed {
		if s, ok := performedStatus[cp.Result]; ok {
			return s
		}
		return StatusCompleted
	}
	scheduled, today := dayOf(cp.ScheduledDate), dayOf(now)
	switch {
	case scheduled.Equal(today):
		return StatusDueToday
	case scheduled.Before(today):
		return StatusOverdue
	default:
		return StatusUpcoming
	}
}

// StatusCounts tallies unperformed checkpoints by temporal status.
type StatusCounts struct {
	Overdue  int `json:"overdue"`
	DueToday int `json:"due_today"`
	Upcoming int `json:"upcoming"`
}

// Tally counts the unperformed checkpoints that are overdue, due today or upcoming.
func Tally(checkpoints []Checkpoint, now time.Time) StatusCounts {
	var c StatusCounts
	for _, cp := range checkpoints {
		switch Classify(cp, now) {
		case StatusOverdue:
			c.Overdue++
		case StatusDueToday:
			c.DueToday++
		case StatusUpcoming:
			c.Upcoming++
		}
	}
	return c
}
