// Package config holds the data tables the engines consume: the
// month-to-season mapping, the crop by season baseline yields and the
// numeric thresholds. Tables are plain data and can be replaced from YAML
// without touching engine code.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lox/harvestcast/internal/aggregate"
	"github.com/lox/harvestcast/internal/models"
)

// Seasons used by the default tables.
const (
	SeasonRainy      = "rainy"
	SeasonShortRains = "short_rains"
	SeasonDry        = "dry"
	SeasonOff        = "off_season"
)

type Tables struct {
	// Seasons maps a season name to its calendar months (1-12).
	Seasons map[string][]int `yaml:"seasons"`
	// Baselines maps crop name to season to expected yield in kg per acre.
	Baselines map[string]map[string]float64 `yaml:"baselines"`

	RegressionMinSamples int       `yaml:"regression_min_samples"`
	ConfidenceMedium     int       `yaml:"confidence_medium"`
	ConfidenceHigh       int       `yaml:"confidence_high"`
	MaxPlausibleFactor   float64   `yaml:"max_plausible_factor"`
	BucketEdges          []float64 `yaml:"bucket_edges"`
}

func Default() *Tables {
	return &Tables{
		Seasons: map[string][]int{
			SeasonOff:        {1, 2},
			SeasonRainy:      {3, 4, 5},
			SeasonDry:        {6, 7, 8, 9},
			SeasonShortRains: {10, 11, 12},
		},
		Baselines: map[string]map[string]float64{
			"Maize":   {SeasonRainy: 1500, SeasonShortRains: 1400, SeasonDry: 1200, SeasonOff: 1300},
			"Rice":    {SeasonRainy: 2400, SeasonShortRains: 2200, SeasonDry: 1800, SeasonOff: 2000},
			"Beans":   {SeasonRainy: 450, SeasonShortRains: 420, SeasonDry: 350, SeasonOff: 400},
			"Cassava": {SeasonRainy: 4200, SeasonShortRains: 4100, SeasonDry: 3800, SeasonOff: 4000},
			"Sorghum": {SeasonRainy: 900, SeasonShortRains: 850, SeasonDry: 750, SeasonOff: 800},
			"Wheat":   {SeasonRainy: 1300, SeasonShortRains: 1250, SeasonDry: 1100, SeasonOff: 1200},
		},
		RegressionMinSamples: 3,
		ConfidenceMedium:     3,
		ConfidenceHigh:       8,
		MaxPlausibleFactor:   3,
		BucketEdges:          append([]float64(nil), aggregate.DefaultBucketEdges...),
	}
}

// Parse decodes a YAML document and overlays it on the defaults. Sections
// missing from the document keep their default values; a present seasons or
// baselines section replaces the default one entirely.
func Parse(data []byte) (*Tables, error) {
	var overlay Tables
	if err := decodeOverlay(data, &overlay); err != nil {
		return nil, fmt.Errorf("decode tables: %w", err)
	}

	t := Default()
	t.Merge(&overlay)
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Load reads tables from a YAML file. An empty path returns the defaults.
func Load(path string) (*Tables, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tables %s: %w", path, err)
	}
	return Parse(data)
}

func decodeOverlay(data []byte, overlay *Tables) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(overlay); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Merge copies every non-zero section of o into t.
func (t *Tables) Merge(o *Tables) {
	if len(o.Seasons) > 0 {
		t.Seasons = o.Seasons
	}
	if len(o.Baselines) > 0 {
		t.Baselines = o.Baselines
	}
	if o.RegressionMinSamples > 0 {
		t.RegressionMinSamples = o.RegressionMinSamples
	}
	if o.ConfidenceMedium > 0 {
		t.ConfidenceMedium = o.ConfidenceMedium
	}
	if o.ConfidenceHigh > 0 {
		t.ConfidenceHigh = o.ConfidenceHigh
	}
	if o.MaxPlausibleFactor > 0 {
		t.MaxPlausibleFactor = o.MaxPlausibleFactor
	}
	if len(o.BucketEdges) > 0 {
		t.BucketEdges = o.BucketEdges
	}
}

func (t *Tables) Validate() error {
	seen := make(map[int]string)
	for season, months := range t.Seasons {
		for _, m := range months {
			if m < 1 || m > 12 {
				return fmt.Errorf("season %s: month %d out of range", season, m)
			}
			if prev, dup := seen[m]; dup {
				return fmt.Errorf("month %d mapped to both %s and %s", m, prev, season)
			}
			seen[m] = season
		}
	}
	if len(seen) != 12 {
		return fmt.Errorf("seasons cover %d of 12 months", len(seen))
	}

	if len(t.Baselines) == 0 {
		return fmt.Errorf("baseline table is empty")
	}
	folded := make(map[string]bool, len(t.Baselines))
	for crop, bySeason := range t.Baselines {
		key := strings.ToLower(strings.TrimSpace(crop))
		if folded[key] {
			return fmt.Errorf("baseline %s is listed more than once", crop)
		}
		folded[key] = true
		if len(bySeason) == 0 {
			return fmt.Errorf("baseline %s has no seasons", crop)
		}
		for season, v := range bySeason {
			if _, ok := t.Seasons[season]; !ok {
				return fmt.Errorf("baseline %s: unknown season %s", crop, season)
			}
			if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("baseline %s/%s: %v is not a positive yield", crop, season, v)
			}
		}
	}

	if t.RegressionMinSamples < 2 {
		return fmt.Errorf("regression_min_samples must be at least 2")
	}
	if t.ConfidenceMedium > t.ConfidenceHigh {
		return fmt.Errorf("confidence_medium (%d) exceeds confidence_high (%d)", t.ConfidenceMedium, t.ConfidenceHigh)
	}
	if t.MaxPlausibleFactor <= 1 {
		return fmt.Errorf("max_plausible_factor must be greater than 1")
	}
	if err := aggregate.ValidateEdges(t.BucketEdges); err != nil {
		return err
	}
	return nil
}

// SeasonFor returns the season containing month, or "" if none does.
func (t *Tables) SeasonFor(month int) string {
	for season, months := range t.Seasons {
		for _, m := range months {
			if m == month {
				return season
			}
		}
	}
	return ""
}

func (t *Tables) cropEntry(crop string) (map[string]float64, bool) {
	crop = strings.TrimSpace(crop)
	if bySeason, ok := t.Baselines[crop]; ok {
		return bySeason, true
	}
	for name, bySeason := range t.Baselines {
		if strings.EqualFold(name, crop) {
			return bySeason, true
		}
	}
	return nil, false
}

// Baseline returns the expected kg per acre for crop in season. A crop with
// no entry for the season uses the mean of its other seasons. A crop missing
// from the table returns *models.UnknownCropError.
func (t *Tables) Baseline(crop, season string) (float64, error) {
	bySeason, ok := t.cropEntry(crop)
	if !ok {
		return 0, &models.UnknownCropError{Crop: crop}
	}
	if v, ok := bySeason[season]; ok {
		return v, nil
	}
	return mean(bySeason), nil
}

// GenericBaseline is the cross-crop average for season, used for crops the
// table does not know.
func (t *Tables) GenericBaseline(season string) float64 {
	crops := make([]string, 0, len(t.Baselines))
	for crop := range t.Baselines {
		crops = append(crops, crop)
	}
	sort.Strings(crops)

	var sum float64
	for _, crop := range crops {
		v, _ := t.Baseline(crop, season)
		sum += v
	}
	if len(crops) == 0 {
		return 0
	}
	return sum / float64(len(crops))
}

// Crops lists the crop names in the baseline table, sorted.
func (t *Tables) Crops() []string {
	crops := make([]string, 0, len(t.Baselines))
	for crop := range t.Baselines {
		crops = append(crops, crop)
	}
	sort.Strings(crops)
	return crops
}

func mean(m map[string]float64) float64 {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sum float64
	for _, k := range keys {
		sum += m[k]
	}
	return sum / float64(len(keys))
}
