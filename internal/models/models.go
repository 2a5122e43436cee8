package models

import (
	"time"
)

// RawCrop is a crop as supplied by the event store or an import file, before
// normalization. Numeric and date fields are kept as text so malformed values
// can be reported instead of failing at scan time.
type RawCrop struct {
	ID           int64
	UserID       int64
	Name         string
	Area         string
	PlantingDate string
}

type RawHarvest struct {
	ID          int64
	UserID      int64
	CropID      int64
	Date        string
	YieldAmount string
}

type CropRecord struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"userId"`
	Name         string    `json:"name"`
	Area         float64   `json:"areaAcres"`
	PlantingDate time.Time `json:"plantingDate"`
}

type HarvestRecord struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"userId"`
	CropID      int64     `json:"cropId"`
	Date        time.Time `json:"date"`
	YieldAmount float64   `json:"yieldKg"`
}

// Ledger is the normalized record set for one user. Every harvest references
// a crop in Crops owned by UserID.
type Ledger struct {
	UserID   int64
	Crops    []CropRecord
	Harvests []HarvestRecord
}

// CropByID indexes the ledger's crops.
func (l *Ledger) CropByID() map[int64]CropRecord {
	idx := make(map[int64]CropRecord, len(l.Crops))
	for _, c := range l.Crops {
		idx[c.ID] = c
	}
	return idx
}

type YearlyTotal struct {
	UserID        int64   `json:"userId"`
	Year          int     `json:"year"`
	TotalYield    float64 `json:"totalYieldKg"`
	HarvestEvents int     `json:"harvestEvents"`
}

type MonthTotal struct {
	Month      int     `json:"month"`
	TotalYield float64 `json:"totalYieldKg"`
}

type CropYearDetail struct {
	UserID        int64          `json:"userId"`
	CropName      string         `json:"cropName"`
	Year          int            `json:"year"`
	PlantedCount  int            `json:"plantedCount"`
	PlantedArea   float64        `json:"plantedAreaAcres"`
	HarvestEvents int            `json:"harvestEvents"`
	TotalYield    float64        `json:"totalYieldKg"`
	MonthlyYield  [12]MonthTotal `json:"monthlyYield"`
}

type YearYield struct {
	Year  int     `json:"year"`
	Yield float64 `json:"yieldKg"`
}

type CropSeries struct {
	CropName   string      `json:"cropName"`
	TotalYield float64     `json:"totalYieldKg"`
	Years      []YearYield `json:"years"`
}

type TopCropSeries struct {
	UserID   int64        `json:"userId"`
	FromYear int          `json:"fromYear"`
	ToYear   int          `json:"toYear"`
	TopN     int          `json:"topN"`
	Crops    []CropSeries `json:"crops"`
}

type SeasonalityProfile struct {
	UserID   int64          `json:"userId"`
	FromYear int            `json:"fromYear"`
	ToYear   int            `json:"toYear"`
	Months   [12]MonthTotal `json:"months"`
}

// Bucket counts harvests whose yield falls in [Lower, Upper). Upper is nil for
// the unbounded top bucket, Lower is nil for the underflow bucket.
type Bucket struct {
	Label string   `json:"label"`
	Lower *float64 `json:"lowerKg"`
	Upper *float64 `json:"upperKg"`
	Count int      `json:"count"`
}

type DistributionHistogram struct {
	UserID   int64    `json:"userId"`
	FromYear int      `json:"fromYear"`
	ToYear   int      `json:"toYear"`
	Buckets  []Bucket `json:"buckets"`
}

type CropStat struct {
	CropName      string    `json:"cropName"`
	HarvestEvents int       `json:"harvestEvents"`
	TotalYield    float64   `json:"totalYieldKg"`
	AverageYield  float64   `json:"averageYieldKg"`
	LastHarvest   time.Time `json:"lastHarvest"`
}

type CropSummary struct {
	UserID        int64      `json:"userId"`
	FromYear      int        `json:"fromYear"`
	ToYear        int        `json:"toYear"`
	TotalYield    float64    `json:"totalYieldKg"`
	HarvestEvents int        `json:"harvestEvents"`
	TopCrop       string     `json:"topCrop,omitempty"`
	Crops         []CropStat `json:"crops"`
}

type Category string

const (
	CategoryLow    Category = "low"
	CategoryMedium Category = "medium"
	CategoryHigh   Category = "high"
)

type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Decision reasons recorded on a forecast.
const (
	ReasonRegression          = "regression"
	ReasonInsufficientHistory = "insufficient_history"
	ReasonImplausible         = "implausible_regression"
)

type ForecastResult struct {
	UserID                int64      `json:"userId"`
	CropName              string     `json:"cropName"`
	Area                  float64    `json:"areaAcres"`
	PlantingDate          time.Time  `json:"plantingDate"`
	MonthPlanted          int        `json:"monthPlanted"`
	Season                string     `json:"season"`
	PredictedYield        float64    `json:"predictedYieldKg"`
	PredictedYieldPerArea float64    `json:"predictedYieldKgPerAcre"`
	BaselineYieldPerArea  float64    `json:"baselineYieldKgPerAcre"`
	Category              Category   `json:"category"`
	Confidence            Confidence `json:"confidence"`
	TrainingPoints        int        `json:"trainingPoints"`
	UsedRegressionModel   bool       `json:"usedRegressionModel"`
	GenericBaseline       bool       `json:"genericBaseline"`
	DecisionReason        string     `json:"decisionReason"`
	Tips                  []string   `json:"tips"`
}

// Dashboard bundles the range aggregations shown together on the stats page.
type Dashboard struct {
	UserID       int64                 `json:"userId"`
	FromYear     int                   `json:"fromYear"`
	ToYear       int                   `json:"toYear"`
	YearlyTotals []YearlyTotal         `json:"yearlyTotals"`
	TopCrops     TopCropSeries         `json:"topCrops"`
	Seasonality  SeasonalityProfile    `json:"seasonality"`
	Distribution DistributionHistogram `json:"distribution"`
	Summary      CropSummary           `json:"summary"`
}
