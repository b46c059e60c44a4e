package pregnancy

import (
	"errors"
	"testing"
)

func validInput() ResultInput {
	return ResultInput{
		Result:     ResultPregnant,
		ActualDate: ptrTime(date(2025, 1, 30)),
		Confidence: ptrInt(90),
		Notes:      "strong heartbeat",
	}
}

func fieldErrors(t *testing.T, err error) map[string]string {
	t.Helper()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
	out := make(map[string]string)
	for k, v := range verr.Fields {
		out[k] = v.Error()
	}
	return out
}

func TestResultInput_Valid(t *testing.T) {
	if err := validInput().Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestResultInput_MissingResult(t *testing.T) {
	in := validInput()
	in.Result = ""
	fields := fieldErrors(t, in.Validate())
	if fields["result"] != "please select a result" {
		t.Errorf("unexpected result error %q", fields["result"])
	}
}

func TestResultInput_UnknownResultRejected(t *testing.T) {
	for _, r := range []Result{ResultUnknown, "MAYBE"} {
		in := validInput()
		in.Result = r
		fields := fieldErrors(t, in.Validate())
		if _, ok := fields["result"]; !ok {
			t.Errorf("expected result error for %q", r)
		}
	}
}

func TestResultInput_MissingActualDate(t *testing.T) {
	in := validInput()
	in.ActualDate = nil
	fields := fieldErrors(t, in.Validate())
	if fields["actual_date"] != "actual date is required" {
		t.Errorf("unexpected actual_date error %q", fields["actual_date"])
	}
}

func TestResultInput_ConfidenceBounds(t *testing.T) {
	tests := []struct {
		value   *int
		wantErr bool
	}{
		{nil, false},
		{ptrInt(0), false},
		{ptrInt(100), false},
		{ptrInt(-1), true},
		{ptrInt(101), true},
	}
	for _, tt := range tests {
		in := validInput()
		in.Confidence = tt.value
		err := in.Validate()
		if tt.wantErr {
			fields := fieldErrors(t, err)
			if fields["confidence"] != "confidence must be between 0 and 100" {
				t.Errorf("unexpected confidence error %q", fields["confidence"])
			}
		} else if err != nil {
			t.Errorf("unexpected error for %v: %v", tt.value, err)
		}
	}
}

func TestResultInput_FollowUpRequiresDate(t *testing.T) {
	in := validInput()
	in.FollowUpRequired = true
	fields := fieldErrors(t, in.Validate())
	if fields["next_check_date"] != "next check date is required when follow-up is needed" {
		t.Errorf("unexpected next_check_date error %q", fields["next_check_date"])
	}

	in.NextCheckDate = ptrTime(date(2025, 2, 5))
	if err := in.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestResultInput_NextCheckAfterActual(t *testing.T) {
	in := validInput()
	in.NextCheckDate = ptrTime(date(2025, 1, 30))
	fields := fieldErrors(t, in.Validate())
	if _, ok := fields["next_check_date"]; !ok {
		t.Error("expected next_check_date error for same-day follow-up")
	}
}

func TestResultInput_Record(t *testing.T) {
	in := validInput()
	now := date(2025, 2, 1)
	rec := in.Record("Dr. Smith", now)
	if rec.UpdatedBy != "Dr. Smith" || !rec.UpdatedAt.Equal(now) {
		t.Errorf("unexpected audit fields %+v", rec)
	}
	if !rec.ActualDate.Equal(date(2025, 1, 30)) {
		t.Errorf("expected actual date to carry over, got %v", rec.ActualDate)
	}
}

func TestTransfer_Validate(t *testing.T) {
	valid := Transfer{
		TransferDate: date(2025, 1, 15),
		EmbryoID:     "EMB-1",
		RecipientID:  "R-1",
		Veterinarian: "Dr. Smith",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	missing := Transfer{}
	fields := fieldErrors(t, missing.Validate())
	for _, f := range []string{"transfer_date", "embryo_id", "recipient_id", "veterinarian"} {
		if _, ok := fields[f]; !ok {
			t.Errorf("expected error for %s", f)
		}
	}

	bad := valid
	bad.QualityScore = ptrFloat(120)
	fields = fieldErrors(t, bad.Validate())
	if _, ok := fields["quality_score"]; !ok {
		t.Error("expected quality_score error")
	}
}
