// Package rollup aggregates many transfer trackings into dashboard
// distributions, day-by-day pivots, success rates and histograms.
package rollup

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/reprotech/pregtrack/internal/domain/pregnancy"
)

var (
	ErrUnknownGroupKey = errors.New("unknown group key")
	ErrUnknownField    = errors.New("unknown summary field")
)

// Category is the dashboard bucket a transfer falls into.
type Category string

const (
	CategoryPregnant      Category = "PREGNANT"
	CategoryOpen          Category = "OPEN"
	CategoryAborted       Category = "ABORTED"
	CategoryUnderTransfer Category = "UNDER_TRANSFER"
)

var Categories = []Category{CategoryPregnant, CategoryOpen, CategoryAborted, CategoryUnderTransfer}

// CategoryOf maps a tracking state onto its dashboard category.
func CategoryOf(s pregnancy.TrackingState) Category {
	switch s {
	case pregnancy.StatePregnant, pregnancy.StateDelivered:
		return CategoryPregnant
	case pregnancy.StateNotPregnant:
		return CategoryOpen
	case pregnancy.StateLost:
		return CategoryAborted
	default:
		return CategoryUnderTransfer
	}
}

// -- Grouping --

type GroupKey string

const (
	GroupByDonor        GroupKey = "donor"
	GroupBySire         GroupKey = "sire"
	GroupByRecipient    GroupKey = "recipient"
	GroupByVeterinarian GroupKey = "veterinarian"
	GroupByCustomer     GroupKey = "customer"
)

// UnassignedName labels the group of transfers with no value for the key.
const UnassignedName = "Unassigned"

// ParseGroupKey maps a query value to a key; empty selects donor.
func ParseGroupKey(s string) (GroupKey, error) {
	switch GroupKey(s) {
	case "":
		return GroupByDonor, nil
	case GroupByDonor, GroupBySire, GroupByRecipient, GroupByVeterinarian, GroupByCustomer:
		return GroupKey(s), nil
	}
	return "", fmt.Errorf("%q: %w", s, ErrUnknownGroupKey)
}

func (k GroupKey) identify(t *pregnancy.Transfer) (id, name string) {
	switch k {
	case GroupBySire:
		return t.SireID, t.SireName
	case GroupByRecipient:
		return t.RecipientID, t.RecipientName
	case GroupByVeterinarian:
		return t.Veterinarian, t.Veterinarian
	case GroupByCustomer:
		if t.CustomerName == nil {
			return "", ""
		}
		return *t.CustomerName, *t.CustomerName
	default:
		return t.DonorID, t.DonorName
	}
}

type Group struct {
	ID        string
	Name      string
	Transfers []*pregnancy.Transfer
}

// GroupBy partitions transfers by key. Groups appear in order of first
// occurrence and transfers keep their input order within a group.
func GroupBy(transfers []*pregnancy.Transfer, key GroupKey) []Group {
	var groups []Group
	index := make(map[string]int)
	for _, t := range transfers {
		id, name := key.identify(t)
		if name == "" {
			name = id
		}
		if id == "" {
			name = UnassignedName
		}
		i, ok := index[id]
		if !ok {
			i = len(groups)
			index[id] = i
			groups = append(groups, Group{ID: id, Name: name})
		}
		groups[i].Transfers = append(groups[i].Transfers, t)
	}
	return groups
}

// -- Distribution and rates --

// Distribution counts transfers per category. Every category is present.
type Distribution map[Category]int

func newDistribution() Distribution {
	d := make(Distribution, len(Categories))
	for _, c := range Categories {
		d[c] = 0
	}
	return d
}

func StatusDistribution(transfers []*pregnancy.Transfer) Distribution {
	d := newDistribution()
	for _, t := range transfers {
		d[CategoryOf(t.Tracking.CurrentStatus)]++
	}
	return d
}

// Checked is the number of transfers with a determined outcome.
func (d Distribution) Checked() int {
	n := 0
	for c, count := range d {
		if c != CategoryUnderTransfer {
			n += count
		}
	}
	return n
}

// Rate is the success rate over the checked transfers in d.
func (d Distribution) Rate() float64 {
	return SuccessRate(d[CategoryPregnant], d.Checked())
}

// SuccessRate returns pregnancies/totalChecked as a percentage rounded to one
// decimal place. It is 0 when nothing has been checked.
func SuccessRate(pregnancies, totalChecked int) float64 {
	if totalChecked == 0 {
		return 0
	}
	return math.Round(float64(pregnancies)/float64(totalChecked)*1000) / 10
}

// FormatRate renders a rate with exactly one decimal place.
func FormatRate(rate float64) string {
	return strconv.FormatFloat(rate, 'f', 1, 64)
}

// -- Pivot --

// PivotOffsets are the check days compared side by side in the pivot.
var PivotOffsets = []int{15, 30, 45, 60}

type PivotRow struct {
	GroupID     string   `json:"group_id"`
	GroupName   string   `json:"group_name"`
	TransferID  string   `json:"transfer_id"`
	EmbryoID    string   `json:"embryo_id"`
	RecipientID string   `json:"recipient_id"`
	Status      Category `json:"status"`
	// Results is keyed by check day; an unrecorded check is blank.
	Results map[int]string `json:"results"`
}

func pivotRow(g Group, t *pregnancy.Transfer) PivotRow {
	row := PivotRow{
		GroupID:     g.ID,
		GroupName:   g.Name,
		TransferID:  t.ID.String(),
		EmbryoID:    t.EmbryoID,
		RecipientID: t.RecipientID,
		Status:      CategoryOf(t.Tracking.CurrentStatus),
		Results:     make(map[int]string, len(PivotOffsets)),
	}
	for _, day := range PivotOffsets {
		row.Results[day] = ""
	}
	for _, cp := range t.Tracking.Checkpoints {
		if cp.Supplementary || !cp.Performed {
			continue
		}
		if _, ok := row.Results[cp.DaysFromTransfer]; ok {
			row.Results[cp.DaysFromTransfer] = string(cp.Result)
		}
	}
	return row
}

// Pivot lists one row per transfer with its result at each pivot offset.
func Pivot(groups []Group) []PivotRow {
	rows := []PivotRow{}
	for _, g := range groups {
		for _, t := range g.Transfers {
			rows = append(rows, pivotRow(g, t))
		}
	}
	return rows
}

// -- Histogram --

type Bucket struct {
	Label string `json:"label"`
	Lower int    `json:"lower"`
	Upper int    `json:"upper"`
	Count int    `json:"count"`
}

// Histogram counts values in ten-wide buckets labelled "lower-upper",
// ordered by lower bound. Empty buckets are omitted.
func Histogram(values []float64) []Bucket {
	counts := make(map[int]int)
	for _, v := range values {
		counts[int(math.Floor(v/10))*10]++
	}
	buckets := make([]Bucket, 0, len(counts))
	for lower, n := range counts {
		buckets = append(buckets, Bucket{
			Label: fmt.Sprintf("%d-%d", lower, lower+9),
			Lower: lower,
			Upper: lower + 9,
			Count: n,
		})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Lower < buckets[j].Lower })
	return buckets
}

// -- Report --

const (
	HistogramSuccessRate  = "success_rate"
	HistogramQualityScore = "quality_score"
)

type Report struct {
	GroupBy            GroupKey            `json:"group_by"`
	TotalTransfers     int                 `json:"total_transfers"`
	StatusDistribution Distribution        `json:"status_distribution"`
	Pivot              []PivotRow          `json:"pivot"`
	SuccessRate        float64             `json:"success_rate"`
	SuccessRateLabel   string              `json:"success_rate_label"`
	Histograms         map[string][]Bucket `json:"histograms"`
	Groups             []Summary           `json:"groups"`
}

// Rollup aggregates groups into a report and attaches each group's rate to
// its transfers.
func Rollup(key GroupKey, groups []Group) *Report {
	var all []*pregnancy.Transfer
	var quality []float64
	for _, g := range groups {
		for _, t := range g.Transfers {
			all = append(all, t)
			if t.QualityScore != nil {
				quality = append(quality, *t.QualityScore)
			}
		}
	}

	summaries := Summaries(groups)
	rates := make([]float64, 0, len(summaries))
	for _, s := range summaries {
		rates = append(rates, s.PregnancyRate)
	}
	AttachRates(groups)

	dist := StatusDistribution(all)
	rate := dist.Rate()
	return &Report{
		GroupBy:            key,
		TotalTransfers:     len(all),
		StatusDistribution: dist,
		Pivot:              Pivot(groups),
		SuccessRate:        rate,
		SuccessRateLabel:   FormatRate(rate),
		Histograms: map[string][]Bucket{
			HistogramSuccessRate:  Histogram(rates),
			HistogramQualityScore: Histogram(quality),
		},
		Groups: summaries,
	}
}

// AttachRates stores each group's success rate on its transfers' trackings.
func AttachRates(groups []Group) {
	for _, g := range groups {
		rate := StatusDistribution(g.Transfers).Rate()
		for _, t := range g.Transfers {
			t.Tracking.PregnancyRate = rate
		}
	}
}
