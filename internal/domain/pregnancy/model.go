package pregnancy

import (
	"time"

	"github.com/google/uuid"
)

// Result is the outcome recorded for a checkpoint examination.
type Result string

const (
	ResultPregnant    Result = "PREGNANT"
	ResultNotPregnant Result = "NOT_PREGNANT"
	ResultRecheck     Result = "RECHECK"
	ResultUnknown     Result = "UNKNOWN"
	ResultDelivered   Result = "DELIVERED"
	ResultAborted     Result = "ABORTED"
	ResultDied        Result = "DIED"
)

// Results lists every result value in display order.
var Results = []Result{
	ResultPregnant, ResultNotPregnant, ResultRecheck, ResultUnknown,
	ResultDelivered, ResultAborted, ResultDied,
}

// Valid reports whether r is one of the known result values.
func (r Result) Valid() bool {
	for _, known := range Results {
		if r == known {
			return true
		}
	}
	return false
}

// TrackingState is the aggregate status of a pregnancy tracking.
type TrackingState string

const (
	StatePending     TrackingState = "PENDING"
	StatePregnant    TrackingState = "PREGNANT"
	StateNotPregnant TrackingState = "NOT_PREGNANT"
	StateDelivered   TrackingState = "DELIVERED"
	StateLost        TrackingState = "LOST"
	StateUnknown     TrackingState = "UNKNOWN"
)

var validStates = map[TrackingState]bool{
	StatePending: true, StatePregnant: true, StateNotPregnant: true,
	StateDelivered: true, StateLost: true, StateUnknown: true,
}

// Valid reports whether s is one of the known tracking states.
func (s TrackingState) Valid() bool {
	return validStates[s]
}

// Terminal reports whether no further result can change the state.
func (s TrackingState) Terminal() bool {
	return s == StateDelivered || s == StateLost
}

// Checkpoint is one scheduled or completed follow-up examination.
type Checkpoint struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	ScheduledDate    time.Time  `json:"scheduled_date"`
	ExpectedDate     *time.Time `json:"expected_date,omitempty"`
	DaysFromTransfer int        `json:"days_from_transfer"`
	IsParturition    bool       `json:"is_parturition"`
	Supplementary    bool       `json:"supplementary,omitempty"`
	Performed        bool       `json:"performed"`
	ActualDate       *time.Time `json:"actual_date,omitempty"`
	Result           Result     `json:"result"`
	Confidence       *int       `json:"confidence,omitempty"`
	Notes            string     `json:"notes"`
	Complications    []string   `json:"complications,omitempty"`
	FollowUpRequired bool       `json:"follow_up_required"`
	NextCheckDate    *time.Time `json:"next_check_date,omitempty"`
	UpdatedBy        string     `json:"updated_by,omitempty"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
	// Sequence orders results by when they were recorded, starting at 1.
	// Zero means no sequence was assigned.
	Sequence int `json:"sequence,omitempty"`
}

// Tracking aggregates all checkpoints of one transfer. Checkpoints are kept in
// ascending schedule order with the parturition checkpoint last.
type Tracking struct {
	AnchorDate             time.Time     `json:"anchor_date"`
	Checkpoints            []Checkpoint  `json:"checkpoints"`
	CurrentStatus          TrackingState `json:"current_status"`
	LastCheckDate          *time.Time    `json:"last_check_date,omitempty"`
	NextCheckDate          *time.Time    `json:"next_check_date,omitempty"`
	PregnancyConfirmedDate *time.Time    `json:"pregnancy_confirmed_date,omitempty"`
	ExpectedDeliveryDate   *time.Time    `json:"expected_delivery_date,omitempty"`
	ActualDeliveryDate     *time.Time    `json:"actual_delivery_date,omitempty"`
	PregnancyRate          float64       `json:"pregnancy_rate"`
	RiskFactors            []string      `json:"risk_factors,omitempty"`
	Recommendations        []string      `json:"recommendations,omitempty"`
}

// Transfer maps to the embryo_transfer table. It owns exactly one Tracking.
type Transfer struct {
	ID            uuid.UUID `db:"id" json:"id"`
	TransferCode  string    `db:"transfer_code" json:"transfer_code"`
	TransferDate  time.Time `db:"transfer_date" json:"transfer_date"`
	EmbryoID      string    `db:"embryo_id" json:"embryo_id"`
	EmbryoGrade   *string   `db:"embryo_grade" json:"embryo_grade,omitempty"`
	QualityScore  *float64  `db:"quality_score" json:"quality_score,omitempty"`
	RecipientID   string    `db:"recipient_id" json:"recipient_id"`
	RecipientName string    `db:"recipient_name" json:"recipient_name"`
	DonorID       string    `db:"donor_id" json:"donor_id"`
	DonorName     string    `db:"donor_name" json:"donor_name"`
	SireID        string    `db:"sire_id" json:"sire_id"`
	SireName      string    `db:"sire_name" json:"sire_name"`
	CustomerName  *string   `db:"customer_name" json:"customer_name,omitempty"`
	Veterinarian  string    `db:"veterinarian" json:"veterinarian"`
	Technician    *string   `db:"technician" json:"technician,omitempty"`
	Tracking      Tracking  `db:"tracking" json:"pregnancy_tracking"`
	Version       int       `db:"version" json:"version"`
	CreatedBy     string    `db:"created_by" json:"created_by,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// TransferFilter narrows the set of transfers returned by a repository.
type TransferFilter struct {
	Status       TrackingState
	Veterinarian string
	DonorID      string
	From         *time.Time
	To           *time.Time
}

// dayOf truncates t to midnight of its UTC calendar day.
func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(dayOf(b).Sub(dayOf(a)).Hours() / 24)
}

func timePtr(t time.Time) *time.Time { return &t }
