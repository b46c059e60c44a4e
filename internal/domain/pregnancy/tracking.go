package pregnancy

import (
	"fmt"
	"sort"
	"time"
)

// ResultRecord carries the fields written when a checkpoint result is recorded.
type ResultRecord struct {
	Result           Result
	ActualDate       time.Time
	Confidence       *int
	Notes            string
	Complications    []string
	FollowUpRequired bool
	NextCheckDate    *time.Time
	UpdatedBy        string
	UpdatedAt        time.Time
}

// Derived holds the read-only metrics computed from a checkpoint list.
type Derived struct {
	CurrentStatus      TrackingState `json:"current_status"`
	NextCheckpoint     *Checkpoint   `json:"next_checkpoint,omitempty"`
	ProgressPercentage float64       `json:"progress_percentage"`
	LastCheckDate      *time.Time    `json:"last_check_date,omitempty"`
}

// NewTracking creates a tracking together with its full checkpoint schedule.
func NewTracking(anchor time.Time) (*Tracking, error) {
	checkpoints, err := GenerateSchedule(anchor)
	if err != nil {
		return nil, err
	}
	t := &Tracking{
		AnchorDate:      dayOf(anchor),
		Checkpoints:     checkpoints,
		CurrentStatus:   StatePending,
		RiskFactors:     []string{},
		Recommendations: []string{},
	}
	t.refresh()
	return t, nil
}

// Clone returns a deep copy of t.
func (t *Tracking) Clone() *Tracking {
	c := *t
	c.Checkpoints = nil
	if t.Checkpoints != nil {
		c.Checkpoints = make([]Checkpoint, len(t.Checkpoints))
		for i, cp := range t.Checkpoints {
			c.Checkpoints[i] = cloneCheckpoint(cp)
		}
	}
	c.LastCheckDate = clonePtr(t.LastCheckDate)
	c.NextCheckDate = clonePtr(t.NextCheckDate)
	c.PregnancyConfirmedDate = clonePtr(t.PregnancyConfirmedDate)
	c.ExpectedDeliveryDate = clonePtr(t.ExpectedDeliveryDate)
	c.ActualDeliveryDate = clonePtr(t.ActualDeliveryDate)
	c.RiskFactors = cloneStrings(t.RiskFactors)
	c.Recommendations = cloneStrings(t.Recommendations)
	return &c
}

func cloneCheckpoint(cp Checkpoint) Checkpoint {
	cp.ExpectedDate = clonePtr(cp.ExpectedDate)
	cp.ActualDate = clonePtr(cp.ActualDate)
	cp.NextCheckDate = clonePtr(cp.NextCheckDate)
	cp.UpdatedAt = clonePtr(cp.UpdatedAt)
	if cp.Confidence != nil {
		v := *cp.Confidence
		cp.Confidence = &v
	}
	cp.Complications = cloneStrings(cp.Complications)
	return cp
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string{}, s...)
}

func clonePtr(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Checkpoint returns the checkpoint with the given id, or nil.
func (t *Tracking) Checkpoint(id string) *Checkpoint {
	if i := t.indexOf(id); i >= 0 {
		return &t.Checkpoints[i]
	}
	return nil
}

func (t *Tracking) indexOf(id string) int {
	for i := range t.Checkpoints {
		if t.Checkpoints[i].ID == id {
			return i
		}
	}
	return -1
}

func (t *Tracking) parturition() *Checkpoint {
	for i := range t.Checkpoints {
		if t.Checkpoints[i].IsParturition {
			return &t.Checkpoints[i]
		}
	}
	return nil
}

// RecordResult writes a result onto the checkpoint with the given id and
// re-derives the tracking. RECHECK results and follow-up requests with a next
// check date insert a supplementary checkpoint. The tracking is left untouched
// when an error is returned.
func (t *Tracking) RecordResult(checkpointID string, rec ResultRecord) (*Checkpoint, error) {
	idx := t.indexOf(checkpointID)
	if idx < 0 {
		return nil, fmt.Errorf("checkpoint %q: %w", checkpointID, ErrNotFound)
	}
	if rec.Result == ResultUnknown || !rec.Result.Valid() {
		return nil, fmt.Errorf("result %q cannot be recorded: %w", rec.Result, ErrInvalidResult)
	}
	if rec.ActualDate.IsZero() {
		return nil, fmt.Errorf("actual date is required: %w", ErrInvalidDate)
	}
	wantsFollowUp := rec.NextCheckDate != nil && (rec.Result == ResultRecheck || rec.FollowUpRequired)
	if wantsFollowUp {
		if err := t.checkFollowUpDate(*rec.NextCheckDate); err != nil {
			return nil, err
		}
	}

	cp := &t.Checkpoints[idx]
	cp.Performed = true
	cp.Result = rec.Result
	cp.ActualDate = timePtr(rec.ActualDate)
	cp.Confidence = rec.Confidence
	cp.Notes = rec.Notes
	cp.Complications = append([]string{}, rec.Complications...)
	cp.FollowUpRequired = rec.FollowUpRequired
	cp.NextCheckDate = clonePtr(rec.NextCheckDate)
	cp.UpdatedBy = rec.UpdatedBy
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = rec.ActualDate
	}
	cp.UpdatedAt = timePtr(updatedAt)
	cp.Sequence = t.lastSequence() + 1
	recorded := cloneCheckpoint(*cp)

	if wantsFollowUp {
		t.insertFollowUp(*rec.NextCheckDate)
	}
	t.refresh()
	return &recorded, nil
}

func (t *Tracking) lastSequence() int {
	last := 0
	for _, cp := range t.Checkpoints {
		if cp.Sequence > last {
			last = cp.Sequence
		}
	}
	return last
}

func (t *Tracking) checkFollowUpDate(date time.Time) error {
	day := dayOf(date)
	if !day.After(t.AnchorDate) {
		return fmt.Errorf("next check date %s is not after the transfer date: %w", day.Format("2006-01-02"), ErrInvalidDate)
	}
	if p := t.parturition(); p != nil && !day.Before(p.ScheduledDate) {
		return fmt.Errorf("next check date %s is not before parturition: %w", day.Format("2006-01-02"), ErrInvalidDate)
	}
	return nil
}

// insertFollowUp adds a supplementary checkpoint in date order, always ahead
// of the parturition checkpoint. Inserting the same date twice is a no-op.
func (t *Tracking) insertFollowUp(date time.Time) {
	day := dayOf(date)
	id := "recheck-" + day.Format("20060102")
	if t.indexOf(id) >= 0 {
		return
	}
	days := DaysBetween(t.AnchorDate, day)
	cp := Checkpoint{
		ID:               id,
		Title:            fmt.Sprintf("Day %d Follow-up Check", days),
		ScheduledDate:    day,
		DaysFromTransfer: days,
		Supplementary:    true,
		Result:           ResultUnknown,
		Complications:    []string{},
	}

	at := len(t.Checkpoints)
	for i, existing := range t.Checkpoints {
		if existing.IsParturition || day.Before(existing.ScheduledDate) {
			at = i
			break
		}
	}
	t.Checkpoints = append(t.Checkpoints, Checkpoint{})
	copy(t.Checkpoints[at+1:], t.Checkpoints[at:])
	t.Checkpoints[at] = cp
}

// refresh recomputes every derived field from the checkpoint list.
func (t *Tracking) refresh() {
	d := DeriveTracking(t.Checkpoints)
	t.CurrentStatus = d.CurrentStatus
	t.LastCheckDate = d.LastCheckDate
	t.NextCheckDate = nil
	if d.NextCheckpoint != nil {
		t.NextCheckDate = timePtr(d.NextCheckpoint.ScheduledDate)
	}

	t.ActualDeliveryDate = nil
	if p := t.parturition(); p != nil {
		t.ExpectedDeliveryDate = timePtr(p.ScheduledDate)
		if p.Performed && p.Result == ResultDelivered {
			t.ActualDeliveryDate = clonePtr(p.ActualDate)
		}
	}

	t.PregnancyConfirmedDate = confirmedDate(t.Checkpoints)

	seen := make(map[string]bool)
	risks := []string{}
	for _, cp := range t.Checkpoints {
		for _, c := range cp.Complications {
			if c != "" && !seen[c] {
				seen[c] = true
				risks = append(risks, c)
			}
		}
	}
	t.RiskFactors = risks
}

// NextCheckpoint returns the unperformed checkpoint with the earliest
// scheduled date, or nil when every checkpoint has been performed.
func (t *Tracking) NextCheckpoint() *Checkpoint {
	return nextCheckpoint(t.Checkpoints)
}

// ProgressPercentage returns the share of canonical checkpoints performed.
func (t *Tracking) ProgressPercentage() float64 {
	return progress(t.Checkpoints)
}

// GestationDays returns the days since transfer while pregnant, or the days
// from transfer to delivery once delivered. Other states report zero.
func (t *Tracking) GestationDays(now time.Time) int {
	switch t.CurrentStatus {
	case StatePregnant:
		if d := DaysBetween(t.AnchorDate, now); d > 0 {
			return d
		}
	case StateDelivered:
		if t.ActualDeliveryDate != nil {
			return DaysBetween(t.AnchorDate, *t.ActualDeliveryDate)
		}
	}
	return 0
}

// DeriveTracking replays performed results in the order they were recorded
// and returns the resulting status and summary metrics.
func DeriveTracking(checkpoints []Checkpoint) Derived {
	d := Derived{
		CurrentStatus:      deriveState(checkpoints),
		NextCheckpoint:     nextCheckpoint(checkpoints),
		ProgressPercentage: progress(checkpoints),
	}
	for _, cp := range checkpoints {
		if !cp.Performed || cp.ActualDate == nil {
			continue
		}
		if d.LastCheckDate == nil || cp.ActualDate.After(*d.LastCheckDate) {
			d.LastCheckDate = timePtr(*cp.ActualDate)
		}
	}
	return d
}

func deriveState(checkpoints []Checkpoint) TrackingState {
	if len(checkpoints) == 0 {
		return StateUnknown
	}
	state := StatePending
	for _, cp := range recordingOrder(checkpoints) {
		state = transition(state, cp)
	}
	return state
}

// recordingOrder returns the performed checkpoints sorted by Sequence.
// Checkpoints without a sequence come first, in schedule order.
func recordingOrder(checkpoints []Checkpoint) []Checkpoint {
	performed := make([]Checkpoint, 0, len(checkpoints))
	for _, cp := range checkpoints {
		if cp.Performed {
			performed = append(performed, cp)
		}
	}
	sort.SliceStable(performed, func(i, j int) bool {
		return performed[i].Sequence < performed[j].Sequence
	})
	return performed
}

// confirmedDate is the earliest actual date of a PREGNANT result on a
// pregnancy check, or nil when none is recorded.
func confirmedDate(checkpoints []Checkpoint) *time.Time {
	var first *time.Time
	for _, cp := range checkpoints {
		if !cp.Performed || cp.IsParturition || cp.Result != ResultPregnant || cp.ActualDate == nil {
			continue
		}
		if first == nil || cp.ActualDate.Before(*first) {
			first = cp.ActualDate
		}
	}
	return clonePtr(first)
}

// transition applies one performed checkpoint to the current state.
func transition(state TrackingState, cp Checkpoint) TrackingState {
	if state.Terminal() {
		return StateUnknown
	}
	if cp.Result == ResultRecheck {
		return state
	}
	if cp.IsParturition {
		switch cp.Result {
		case ResultDelivered:
			return StateDelivered
		case ResultAborted, ResultDied:
			return StateLost
		}
		return StateUnknown
	}
	switch cp.Result {
	case ResultPregnant:
		return StatePregnant
	case ResultNotPregnant:
		return StateNotPregnant
	case ResultAborted, ResultDied:
		return StateLost
	}
	return StateUnknown
}

func nextCheckpoint(checkpoints []Checkpoint) *Checkpoint {
	var next *Checkpoint
	for i := range checkpoints {
		cp := &checkpoints[i]
		if cp.Performed {
			continue
		}
		if next == nil || cp.ScheduledDate.Before(next.ScheduledDate) {
			next = cp
		}
	}
	if next == nil {
		return nil
	}
	c := cloneCheckpoint(*next)
	return &c
}

// progress ignores supplementary checkpoints so that inserting a follow-up
// never lowers the percentage.
func progress(checkpoints []Checkpoint) float64 {
	var total, performed int
	for _, cp := range checkpoints {
		if cp.Supplementary {
			continue
		}
		total++
		if cp.Performed {
			performed++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(performed) / float64(total) * 100
}

// Validate checks the structural invariants of the tracking.
func (t *Tracking) Validate() error {
	if len(t.Checkpoints) == 0 {
		return fmt.Errorf("tracking has no checkpoints")
	}
	if !t.CurrentStatus.Valid() {
		return fmt.Errorf("invalid tracking status %q", t.CurrentStatus)
	}
	parturitions := 0
	ids := make(map[string]bool, len(t.Checkpoints))
	for i, cp := range t.Checkpoints {
		if ids[cp.ID] {
			return fmt.Errorf("duplicate checkpoint id %q", cp.ID)
		}
		ids[cp.ID] = true
		if cp.IsParturition {
			parturitions++
			if i != len(t.Checkpoints)-1 {
				return fmt.Errorf("parturition checkpoint must be last")
			}
		}
		if i > 0 && cp.ScheduledDate.Before(t.Checkpoints[i-1].ScheduledDate) {
			return fmt.Errorf("checkpoint %q is out of schedule order", cp.ID)
		}
		if cp.Performed && cp.Result == ResultUnknown {
			return fmt.Errorf("checkpoint %q is performed without a result", cp.ID)
		}
		if !cp.Performed && cp.Result != ResultUnknown {
			return fmt.Errorf("checkpoint %q has a result but is not performed", cp.ID)
		}
		if cp.Performed && cp.ActualDate == nil {
			return fmt.Errorf("checkpoint %q is performed without an actual date", cp.ID)
		}
		if cp.FollowUpRequired && cp.NextCheckDate == nil {
			return fmt.Errorf("checkpoint %q requires follow-up without a next check date", cp.ID)
		}
		if !dayOf(cp.ScheduledDate).Equal(t.AnchorDate.AddDate(0, 0, cp.DaysFromTransfer)) {
			return fmt.Errorf("checkpoint %q scheduled date does not match its offset", cp.ID)
		}
	}
	if parturitions != 1 {
		return fmt.Errorf("expected exactly one parturition checkpoint, found %d", parturitions)
	}
	return nil
}
