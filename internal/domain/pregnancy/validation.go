package pregnancy

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ValidationError reports field-level input errors. It is raised before any
// aggregate is loaded or mutated.
type ValidationError struct {
	Fields validation.Errors
}

func (e *ValidationError) Error() string { return e.Fields.Error() }

func (e *ValidationError) Unwrap() error { return e.Fields }

func asValidationError(err error) error {
	if err == nil {
		return nil
	}
	var fields validation.Errors
	if errors.As(err, &fields) {
		return &ValidationError{Fields: fields}
	}
	return err
}

// ResultInput is the request body for recording a checkpoint result.
type ResultInput struct {
	Result           Result     `json:"result"`
	ActualDate       *time.Time `json:"actual_date"`
	Confidence       *int       `json:"confidence,omitempty"`
	Notes            string     `json:"notes"`
	Complications    []string   `json:"complications"`
	FollowUpRequired bool       `json:"follow_up_required"`
	NextCheckDate    *time.Time `json:"next_check_date,omitempty"`
}

var recordableResults = []interface{}{
	ResultPregnant, ResultNotPregnant, ResultRecheck,
	ResultDelivered, ResultAborted, ResultDied,
}

// Validate checks the input with the same rules the result form enforces.
func (in ResultInput) Validate() error {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Result,
			validation.Required.Error("please select a result"),
			validation.In(recordableResults...).Error("must be a recordable result")),
		validation.Field(&in.ActualDate,
			validation.Required.Error("actual date is required")),
		validation.Field(&in.Confidence,
			validation.Min(0).Error("confidence must be between 0 and 100"),
			validation.Max(100).Error("confidence must be between 0 and 100")),
		validation.Field(&in.Notes, validation.Length(0, 2000)),
		validation.Field(&in.Complications, validation.Each(validation.Length(1, 200))),
		validation.Field(&in.NextCheckDate,
			validation.When(in.FollowUpRequired,
				validation.Required.Error("next check date is required when follow-up is needed")),
			validation.By(in.afterActualDate)),
	)
	return asValidationError(err)
}

func (in ResultInput) afterActualDate(value interface{}) error {
	next, _ := value.(*time.Time)
	if next == nil || in.ActualDate == nil {
		return nil
	}
	if !dayOf(*next).After(dayOf(*in.ActualDate)) {
		return errors.New("next check date must be after the actual date")
	}
	return nil
}

// Record converts validated input into a ResultRecord stamped with the author
// and write time.
func (in ResultInput) Record(updatedBy string, now time.Time) ResultRecord {
	rec := ResultRecord{
		Result:           in.Result,
		Confidence:       in.Confidence,
		Notes:            in.Notes,
		Complications:    in.Complications,
		FollowUpRequired: in.FollowUpRequired,
		NextCheckDate:    in.NextCheckDate,
		UpdatedBy:        updatedBy,
		UpdatedAt:        now,
	}
	if in.ActualDate != nil {
		rec.ActualDate = *in.ActualDate
	}
	return rec
}

// Validate checks the identifying fields required to create a transfer.
func (t *Transfer) Validate() error {
	err := validation.ValidateStruct(t,
		validation.Field(&t.TransferCode, validation.Length(0, 64)),
		validation.Field(&t.TransferDate, validation.Required.Error("transfer date is required")),
		validation.Field(&t.EmbryoID, validation.Required.Error("embryo is required")),
		validation.Field(&t.RecipientID, validation.Required.Error("recipient is required")),
		validation.Field(&t.Veterinarian, validation.Required.Error("veterinarian is required")),
		validation.Field(&t.QualityScore, validation.Min(0.0), validation.Max(100.0)),
	)
	return asValidationError(err)
}
