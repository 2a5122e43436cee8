package aggregate

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lox/harvestcast/internal/models"
)

// cropGroup accumulates yield for one crop name. Names are grouped
// case-insensitively and reported with the first spelling seen.
type cropGroup struct {
	name    string
	total   float64
	count   int
	last    time.Time
	perYear map[int]float64
}

func groupByCrop(rows []harvestRow) []*cropGroup {
	idx := make(map[string]*cropGroup)
	var groups []*cropGroup
	for _, r := range rows {
		key := strings.ToLower(strings.TrimSpace(r.crop))
		g, ok := idx[key]
		if !ok {
			g = &cropGroup{name: strings.TrimSpace(r.crop), perYear: make(map[int]float64)}
			idx[key] = g
			groups = append(groups, g)
		}
		g.total += r.yield
		g.count++
		g.perYear[r.date.Year()] += r.yield
		if r.date.After(g.last) {
			g.last = r.date
		}
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].total != groups[j].total {
			return groups[i].total > groups[j].total
		}
		return groups[i].name < groups[j].name
	})
	return groups
}

// TopCrops ranks crops by total yield over [fromYear, toYear] and returns
// the topN with a dense per-year series covering the whole range.
func (e *Engine) TopCrops(ledger *models.Ledger, fromYear, toYear, topN int) (models.TopCropSeries, error) {
	if err := checkRange(fromYear, toYear); err != nil {
		return models.TopCropSeries{}, err
	}
	if topN <= 0 {
		return models.TopCropSeries{}, &models.InvalidParameterError{Param: "topN", Reason: "must be at least 1"}
	}

	groups := groupByCrop(e.rowsInRange(ledger, fromYear, toYear))
	if len(groups) > topN {
		groups = groups[:topN]
	}

	series := models.TopCropSeries{
		UserID:   ledger.UserID,
		FromYear: fromYear,
		ToYear:   toYear,
		TopN:     topN,
		Crops:    make([]models.CropSeries, 0, len(groups)),
	}
	for _, g := range groups {
		cs := models.CropSeries{
			CropName:   g.name,
			TotalYield: g.total,
			Years:      make([]models.YearYield, 0, toYear-fromYear+1),
		}
		for y := fromYear; y <= toYear; y++ {
			cs.Years = append(cs.Years, models.YearYield{Year: y, Yield: g.perYear[y]})
		}
		series.Crops = append(series.Crops, cs)
	}
	return series, nil
}

// Seasonality sums yield by calendar month across every year in range,
// regardless of crop. The profile always has twelve months.
func (e *Engine) Seasonality(ledger *models.Ledger, fromYear, toYear int) (models.SeasonalityProfile, error) {
	if err := checkRange(fromYear, toYear); err != nil {
		return models.SeasonalityProfile{}, err
	}

	p := models.SeasonalityProfile{
		UserID:   ledger.UserID,
		FromYear: fromYear,
		ToYear:   toYear,
		Months:   emptyMonths(),
	}
	for _, r := range e.rowsInRange(ledger, fromYear, toYear) {
		p.Months[r.date.Month()-1].TotalYield += r.yield
	}
	return p, nil
}

// ValidateEdges checks that bucket edges are finite and strictly increasing.
func ValidateEdges(edges []float64) error {
	if len(edges) == 0 {
		return &models.InvalidParameterError{Param: "bucketEdges", Reason: "at least one edge is required"}
	}
	for i, v := range edges {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &models.InvalidParameterError{Param: "bucketEdges", Reason: fmt.Sprintf("edge %d is not finite", i)}
		}
		if i > 0 && v <= edges[i-1] {
			return &models.InvalidParameterError{Param: "bucketEdges", Reason: "edges must be strictly increasing"}
		}
	}
	return nil
}

func formatKg(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func buildBuckets(edges []float64) []models.Bucket {
	var buckets []models.Bucket
	if edges[0] > 0 {
		upper := edges[0]
		buckets = append(buckets, models.Bucket{Label: "<" + formatKg(upper), Upper: &upper})
	}
	for i := range edges {
		lower := edges[i]
		b := models.Bucket{Lower: &lower}
		if i+1 < len(edges) {
			upper := edges[i+1]
			b.Upper = &upper
			b.Label = formatKg(lower) + "-" + formatKg(upper)
		} else {
			b.Label = formatKg(lower) + "+"
		}
		buckets = append(buckets, b)
	}
	return buckets
}

// bucketIndex finds the bucket for v using half-open intervals, so a value
// equal to an edge lands in the bucket that starts at that edge.
func bucketIndex(edges []float64, v float64) int {
	offset := 0
	if edges[0] > 0 {
		offset = 1
	}
	// first edge strictly greater than v
	i := sort.Search(len(edges), func(i int) bool { return edges[i] > v })
	if i == 0 {
		return 0
	}
	return i - 1 + offset
}

// Distribution counts in-range harvest events per yield bucket. A nil edges
// slice uses the engine's configured edges.
func (e *Engine) Distribution(ledger *models.Ledger, fromYear, toYear int, edges []float64) (models.DistributionHistogram, error) {
	if err := checkRange(fromYear, toYear); err != nil {
		return models.DistributionHistogram{}, err
	}
	if edges == nil {
		edges = e.edges
	}
	if err := ValidateEdges(edges); err != nil {
		return models.DistributionHistogram{}, err
	}

	h := models.DistributionHistogram{
		UserID:   ledger.UserID,
		FromYear: fromYear,
		ToYear:   toYear,
		Buckets:  buildBuckets(edges),
	}
	for _, r := range e.rowsInRange(ledger, fromYear, toYear) {
		h.Buckets[bucketIndex(edges, r.yield)].Count++
	}
	return h, nil
}

// Summary reports per-crop harvest statistics over the range, ordered like
// TopCrops, along with overall totals.
func (e *Engine) Summary(ledger *models.Ledger, fromYear, toYear int) (models.CropSummary, error) {
	if err := checkRange(fromYear, toYear); err != nil {
		return models.CropSummary{}, err
	}

	s := models.CropSummary{
		UserID:   ledger.UserID,
		FromYear: fromYear,
		ToYear:   toYear,
		Crops:    []models.CropStat{},
	}
	for _, g := range groupByCrop(e.rowsInRange(ledger, fromYear, toYear)) {
		s.Crops = append(s.Crops, models.CropStat{
			CropName:      g.name,
			HarvestEvents: g.count,
			TotalYield:    g.total,
			AverageYield:  g.total / float64(g.count),
			LastHarvest:   g.last,
		})
		s.TotalYield += g.total
		s.HarvestEvents += g.count
	}
	if len(s.Crops) > 0 {
		s.TopCrop = s.Crops[0].CropName
	}
	return s, nil
}
