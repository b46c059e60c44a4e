package rollup

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Summary is one group's row in the rollup table.
type Summary struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	TotalTransfers int     `json:"total_transfers"`
	Pregnancies    int     `json:"pregnancies"`
	Open           int     `json:"open"`
	Aborted        int     `json:"aborted"`
	UnderTransfer  int     `json:"under_transfer"`
	PregnancyRate  float64 `json:"pregnancy_rate"`
	// PregnancyRateLabel is PregnancyRate with exactly one decimal.
	PregnancyRateLabel string  `json:"pregnancy_rate_label"`
	AvgQuality         float64 `json:"avg_quality"`
}

// Summaries computes one row per group, in group order.
func Summaries(groups []Group) []Summary {
	rows := make([]Summary, 0, len(groups))
	for _, g := range groups {
		d := StatusDistribution(g.Transfers)
		s := Summary{
			ID:             g.ID,
			Name:           g.Name,
			TotalTransfers: len(g.Transfers),
			Pregnancies:    d[CategoryPregnant],
			Open:           d[CategoryOpen],
			Aborted:        d[CategoryAborted],
			UnderTransfer:  d[CategoryUnderTransfer],
			PregnancyRate:  d.Rate(),
		}
		s.PregnancyRateLabel = FormatRate(s.PregnancyRate)
		var sum float64
		var n int
		for _, t := range g.Transfers {
			if t.QualityScore != nil {
				sum += *t.QualityScore
				n++
			}
		}
		if n > 0 {
			s.AvgQuality = math.Round(sum/float64(n)*10) / 10
		}
		rows = append(rows, s)
	}
	return rows
}

type fieldKind int

const (
	kindText fieldKind = iota
	kindNumber
)

type summaryField struct {
	kind   fieldKind
	text   func(Summary) string
	number func(Summary) float64
}

func textField(f func(Summary) string) summaryField {
	return summaryField{kind: kindText, text: f}
}

func numberField(f func(Summary) float64) summaryField {
	return summaryField{kind: kindNumber, number: f}
}

// summaryFields declares how each sortable column compares.
var summaryFields = map[string]summaryField{
	"id":              textField(func(s Summary) string { return s.ID }),
	"name":            textField(func(s Summary) string { return s.Name }),
	"total_transfers": numberField(func(s Summary) float64 { return float64(s.TotalTransfers) }),
	"pregnancies":     numberField(func(s Summary) float64 { return float64(s.Pregnancies) }),
	"open":            numberField(func(s Summary) float64 { return float64(s.Open) }),
	"aborted":         numberField(func(s Summary) float64 { return float64(s.Aborted) }),
	"under_transfer":  numberField(func(s Summary) float64 { return float64(s.UnderTransfer) }),
	"pregnancy_rate":  numberField(func(s Summary) float64 { return s.PregnancyRate }),
	"avg_quality":     numberField(func(s Summary) float64 { return s.AvgQuality }),
}

// SortFields lists the accepted sort field names.
func SortFields() []string {
	names := make([]string, 0, len(summaryFields))
	for name := range summaryFields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SortSummaries orders rows in place by field. Text fields compare
// case-insensitively, numeric fields by value. Equal rows keep their order
// in both directions.
func SortSummaries(rows []Summary, field string, asc bool) error {
	f, ok := summaryFields[field]
	if !ok {
		return fmt.Errorf("%q: %w", field, ErrUnknownField)
	}
	cmp := func(a, b Summary) int {
		if f.kind == kindText {
			return strings.Compare(strings.ToLower(f.text(a)), strings.ToLower(f.text(b)))
		}
		x, y := f.number(a), f.number(b)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	}
	sort.SliceStable(rows, func(i, j int) bool {
		c := cmp(rows[i], rows[j])
		if asc {
			return c < 0
		}
		return c > 0
	})
	return nil
}

// FilterSummaries keeps rows whose name or id contains q, ignoring case.
// An empty q keeps every row.
func FilterSummaries(rows []Summary, q string) []Summary {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return rows
	}
	out := []Summary{}
	for _, r := range rows {
		if strings.Contains(strings.ToLower(r.Name), q) || strings.Contains(strings.ToLower(r.ID), q) {
			out = append(out, r)
		}
	}
	return out
}
