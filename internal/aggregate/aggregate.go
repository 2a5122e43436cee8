// Package aggregate computes time-bucketed harvest statistics from a
// normalized ledger. Every operation is a pure function of its inputs: the
// ledger is never modified and repeated calls return identical results.
package aggregate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lox/harvestcast/internal/models"
)

const (
	minYear     = 1000
	maxYear     = 9999
	maxYearSpan = 200
)

// DefaultBucketEdges are the lower edges, in kilograms, of the yield
// distribution buckets. The last bucket is unbounded above.
var DefaultBucketEdges = []float64{0, 10, 50, 200, 1000}

type Engine struct {
	asOf  time.Time
	edges []float64
}

type Option func(*Engine)

// WithAsOf ignores harvests dated after t. A zero t disables the cutoff.
func WithAsOf(t time.Time) Option {
	return func(e *Engine) { e.asOf = t }
}

// WithBucketEdges replaces the default distribution edges.
func WithBucketEdges(edges []float64) Option {
	return func(e *Engine) { e.edges = append([]float64(nil), edges...) }
}

func New(opts ...Option) *Engine {
	e := &Engine{edges: DefaultBucketEdges}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// harvestRow is a harvest joined with its crop name.
type harvestRow struct {
	crop  string
	date  time.Time
	yield float64
}

func (e *Engine) rows(ledger *models.Ledger) []harvestRow {
	crops := ledger.CropByID()
	rows := make([]harvestRow, 0, len(ledger.Harvests))
	for _, h := range ledger.Harvests {
		if !e.asOf.IsZero() && h.Date.After(e.asOf) {
			continue
		}
		rows = append(rows, harvestRow{crop: crops[h.CropID].Name, date: h.Date, yield: h.YieldAmount})
	}
	return rows
}

func (e *Engine) rowsInRange(ledger *models.Ledger, fromYear, toYear int) []harvestRow {
	all := e.rows(ledger)
	rows := all[:0:0]
	for _, r := range all {
		if y := r.date.Year(); y >= fromYear && y <= toYear {
			rows = append(rows, r)
		}
	}
	return rows
}

func checkRange(fromYear, toYear int) error {
	if fromYear > toYear {
		return &models.EmptyRangeError{FromYear: fromYear, ToYear: toYear}
	}
	if fromYear < minYear || toYear > maxYear {
		return &models.InvalidParameterError{
			Param:  "yearRange",
			Reason: fmt.Sprintf("years must be between %d and %d", minYear, maxYear),
		}
	}
	if toYear-fromYear+1 > maxYearSpan {
		return &models.InvalidParameterError{
			Param:  "yearRange",
			Reason: fmt.Sprintf("range spans more than %d years", maxYearSpan),
		}
	}
	return nil
}

// sameCrop compares crop names the way growers type them.
func sameCrop(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func emptyMonths() [12]models.MonthTotal {
	var months [12]models.MonthTotal
	for i := range months {
		months[i].Month = i + 1
	}
	return months
}

// YearlyTotals sums yield by harvest year, ascending. Years without harvests
// are omitted.
func (e *Engine) YearlyTotals(ledger *models.Ledger) []models.YearlyTotal {
	byYear := make(map[int]*models.YearlyTotal)
	for _, r := range e.rows(ledger) {
		y := r.date.Year()
		t, ok := byYear[y]
		if !ok {
			t = &models.YearlyTotal{UserID: ledger.UserID, Year: y}
			byYear[y] = t
		}
		t.TotalYield += r.yield
		t.HarvestEvents++
	}

	totals := make([]models.YearlyTotal, 0, len(byYear))
	for _, t := range byYear {
		totals = append(totals, *t)
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].Year < totals[j].Year })
	return totals
}

// CropYear reports planting and harvest activity for one crop name in one
// year. Planting is attributed by planting date, harvests by harvest date, so
// a crop planted in December and harvested in March counts in two years.
func (e *Engine) CropYear(ledger *models.Ledger, cropName string, year int) models.CropYearDetail {
	d := models.CropYearDetail{
		UserID:       ledger.UserID,
		CropName:     strings.TrimSpace(cropName),
		Year:         year,
		MonthlyYield: emptyMonths(),
	}

	for _, c := range ledger.Crops {
		if sameCrop(c.Name, cropName) && c.PlantingDate.Year() == year {
			d.PlantedCount++
			d.PlantedArea += c.Area
		}
	}

	for _, r := range e.rows(ledger) {
		if !sameCrop(r.crop, cropName) || r.date.Year() != year {
			continue
		}
		d.HarvestEvents++
		d.TotalYield += r.yield
		d.MonthlyYield[r.date.Month()-1].TotalYield += r.yield
	}
	return d
}
