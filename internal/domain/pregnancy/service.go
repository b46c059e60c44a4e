package pregnancy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/reprotech/pregtrack/internal/platform/auth"
	"github.com/reprotech/pregtrack/internal/platform/calendar"
	"github.com/reprotech/pregtrack/internal/platform/clock"
)

// ChangeListener is notified after any write that alters transfer data.
type ChangeListener interface {
	TransfersChanged(ctx context.Context)
}

// CustomerReportAgeDays is the transfer age at which a customer report is due.
const CustomerReportAgeDays = 60

const listPageSize = 500

type Service struct {
	transfers     TransferRepository
	now           clock.Func
	logger        zerolog.Logger
	listener      ChangeListener
	upcomingLimit int
}

func NewService(transfers TransferRepository, now clock.Func, logger zerolog.Logger) *Service {
	if now == nil {
		now = clock.System
	}
	return &Service{
		transfers:     transfers,
		now:           now,
		logger:        logger,
		upcomingLimit: DefaultUpcomingLimit,
	}
}

// SetChangeListener registers l to be notified after writes.
func (s *Service) SetChangeListener(l ChangeListener) {
	s.listener = l
}

// SetUpcomingLimit overrides the size of the upcoming calendar view.
func (s *Service) SetUpcomingLimit(n int) {
	if n > 0 {
		s.upcomingLimit = n
	}
}

// Now returns the reference time for ctx, frozen per request when the clock
// middleware is installed.
func (s *Service) Now(ctx context.Context) time.Time {
	return clock.Now(ctx, s.now)
}

func (s *Service) changed(ctx context.Context) {
	if s.listener != nil {
		s.listener.TransfersChanged(ctx)
	}
}

// -- Transfers --

func (s *Service) CreateTransfer(ctx context.Context, t *Transfer) error {
	if err := t.Validate(); err != nil {
		return err
	}
	tracking, err := NewTracking(t.TransferDate)
	if err != nil {
		return err
	}
	t.TransferDate = tracking.AnchorDate
	t.Tracking = *tracking
	if t.CreatedBy == "" {
		t.CreatedBy = auth.UserIDFromContext(ctx)
	}
	if err := s.transfers.Create(ctx, t); err != nil {
		return err
	}
	s.logger.Info().
		Str("transfer_id", t.ID.String()).
		Str("recipient_id", t.RecipientID).
		Time("transfer_date", t.TransferDate).
		Msg("transfer created")
	s.changed(ctx)
	return nil
}

func (s *Service) GetTransfer(ctx context.Context, id uuid.UUID) (*Transfer, error) {
	return s.transfers.GetByID(ctx, id)
}

func (s *Service) ListTransfers(ctx context.Context, filter TransferFilter, limit, offset int) ([]*Transfer, int, error) {
	return s.transfers.List(ctx, filter, limit, offset)
}

// ListAllTransfers pages through the repository and returns every transfer
// matching filter.
func (s *Service) ListAllTransfers(ctx context.Context, filter TransferFilter) ([]*Transfer, error) {
	var all []*Transfer
	for offset := 0; ; offset += listPageSize {
		items, total, err := s.transfers.List(ctx, filter, listPageSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if len(items) < listPageSize || len(all) >= total {
			return all, nil
		}
	}
}

func (s *Service) DeleteTransfer(ctx context.Context, id uuid.UUID) error {
	if err := s.transfers.Delete(ctx, id); err != nil {
		return err
	}
	s.changed(ctx)
	return nil
}

// -- Checkpoints --

// UpdateCheckpoint validates in, records it on the checkpoint and persists the
// tracking guarded by the version read. A concurrent write yields ErrConflict.
func (s *Service) UpdateCheckpoint(ctx context.Context, transferID uuid.UUID, checkpointID string, in ResultInput) (*Checkpoint, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	t, err := s.transfers.GetByID(ctx, transferID)
	if err != nil {
		return nil, err
	}

	next := t.Tracking.Clone()
	cp, err := next.RecordResult(checkpointID, in.Record(auth.UserNameFromContext(ctx), s.Now(ctx)))
	if err != nil {
		return nil, err
	}
	if err := next.Validate(); err != nil {
		return nil, fmt.Errorf("tracking for transfer %s: %w", t.ID, err)
	}
	if err := s.transfers.UpdateTracking(ctx, t.ID, next, t.Version); err != nil {
		if errors.Is(err, ErrConflict) {
			s.logger.Warn().
				Str("transfer_id", t.ID.String()).
				Str("checkpoint_id", checkpointID).
				Int("version", t.Version).
				Msg("checkpoint update lost a concurrent write")
		}
		return nil, err
	}
	s.logger.Info().
		Str("transfer_id", t.ID.String()).
		Str("checkpoint_id", checkpointID).
		Str("result", string(cp.Result)).
		Str("status", string(next.CurrentStatus)).
		Msg("checkpoint result recorded")
	s.changed(ctx)
	return cp, nil
}

// CheckpointView is a checkpoint with its classification at the reference time.
type CheckpointView struct {
	Checkpoint
	Status    CheckpointStatus `json:"status"`
	DaysUntil string           `json:"days_until,omitempty"`
}

// TrackingView is the read model served for one transfer.
type TrackingView struct {
	TransferID    uuid.UUID        `json:"transfer_id"`
	TransferCode  string           `json:"transfer_code"`
	RecipientName string           `json:"recipient_name"`
	Tracking      *Tracking        `json:"tracking"`
	Derived       Derived          `json:"derived"`
	GestationDays int              `json:"gestation_days"`
	Checkpoints   []CheckpointView `json:"checkpoints"`
}

// BuildTrackingView derives the read model for t at now.
func BuildTrackingView(t *Transfer, now time.Time) *TrackingView {
	v := &TrackingView{
		TransferID:    t.ID,
		TransferCode:  t.TransferCode,
		RecipientName: t.RecipientName,
		Tracking:      &t.Tracking,
		Derived:       DeriveTracking(t.Tracking.Checkpoints),
		GestationDays: t.Tracking.GestationDays(now),
	}
	for _, cp := range t.Tracking.Checkpoints {
		cv := CheckpointView{Checkpoint: cp, Status: Classify(cp, now)}
		if !cp.Performed {
			cv.DaysUntil = DaysUntilLabel(cp.ScheduledDate, now)
		}
		v.Checkpoints = append(v.Checkpoints, cv)
	}
	return v
}

func (s *Service) Tracking(ctx context.Context, id uuid.UUID) (*TrackingView, error) {
	t, err := s.transfers.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return BuildTrackingView(t, s.Now(ctx)), nil
}

// -- Dashboard --

type Dashboard struct {
	TotalTransfers        int                   `json:"total_transfers"`
	ByStatus              map[TrackingState]int `json:"by_status"`
	PendingResults        int                   `json:"pending_results"`
	OverdueCheckups       int                   `json:"overdue_checkups"`
	DueToday              int                   `json:"due_today"`
	UrgentFollowUps       int                   `json:"urgent_follow_ups"`
	PendingFollowUps      int                   `json:"pending_follow_ups"`
	CustomerReportsNeeded int                   `json:"customer_reports_needed"`
}

// BuildDashboard computes the dashboard counters over transfers at now.
// UrgentFollowUps counts transfers with an overdue or due-today checkpoint.
// PendingFollowUps counts unperformed checkpoints due within the next 7 days.
func BuildDashboard(transfers []*Transfer, now time.Time) *Dashboard {
	d := &Dashboard{
		TotalTransfers: len(transfers),
		ByStatus:       make(map[TrackingState]int),
	}
	for _, t := range transfers {
		d.ByStatus[t.Tracking.CurrentStatus]++
		if t.Tracking.CurrentStatus == StatePending {
			d.PendingResults++
		}
		counts := Tally(t.Tracking.Checkpoints, now)
		d.OverdueCheckups += counts.Overdue
		d.DueToday += counts.DueToday
		if counts.Overdue > 0 || counts.DueToday > 0 {
			d.UrgentFollowUps++
		}
		for _, cp := range t.Tracking.Checkpoints {
			if cp.Performed {
				continue
			}
			if days := DaysBetween(now, cp.ScheduledDate); days > 0 && days <= 7 {
				d.PendingFollowUps++
			}
		}
		if DaysBetween(t.TransferDate, now) >= CustomerReportAgeDays {
			d.CustomerReportsNeeded++
		}
	}
	return d
}

func (s *Service) Dashboard(ctx context.Context, filter TransferFilter) (*Dashboard, error) {
	transfers, err := s.ListAllTransfers(ctx, filter)
	if err != nil {
		return nil, err
	}
	return BuildDashboard(transfers, s.Now(ctx)), nil
}

// -- Calendar --

type CalendarView string

const (
	ViewAll      CalendarView = "all"
	ViewUpcoming CalendarView = "upcoming"
	ViewOverdue  CalendarView = "overdue"
	ViewToday    CalendarView = "today"
)

// ParseCalendarView maps a query value to a view; empty selects ViewAll.
func ParseCalendarView(v string) (CalendarView, error) {
	switch CalendarView(v) {
	case "", ViewAll:
		return ViewAll, nil
	case ViewUpcoming, ViewOverdue, ViewToday:
		return CalendarView(v), nil
	}
	return "", fmt.Errorf("%q: %w", v, ErrInvalidView)
}

func (s *Service) CalendarEvents(ctx context.Context, filter TransferFilter, view CalendarView) ([]calendar.Event, error) {
	transfers, err := s.ListAllTransfers(ctx, filter)
	if err != nil {
		return nil, err
	}
	now := s.Now(ctx)
	events := ToCalendarEvents(transfers, now)
	switch view {
	case ViewAll, "":
		return events, nil
	case ViewUpcoming:
		return Upcoming(events, now, s.upcomingLimit), nil
	case ViewOverdue:
		return Overdue(events), nil
	case ViewToday:
		return DueToday(events), nil
	}
	return nil, fmt.Errorf("%q: %w", view, ErrInvalidView)
}

// ExportCalendar renders every pending checkpoint as an iCalendar document.
func (s *Service) ExportCalendar(ctx context.Context, filter TransferFilter) (string, error) {
	events, err := s.CalendarEvents(ctx, filter, ViewAll)
	if err != nil {
		return "", err
	}
	return calendar.Export(events, s.Now(ctx))
}
