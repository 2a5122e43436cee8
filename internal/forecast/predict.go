// Package forecast predicts the yield of a newly planted crop from the
// grower's own harvest history and the agronomic baseline tables.
package forecast

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/lox/harvestcast/internal/advisory"
	"github.com/lox/harvestcast/internal/config"
	"github.com/lox/harvestcast/internal/models"
)

type Request struct {
	UserID       int64
	CropName     string
	Area         float64 // acres
	PlantingDate time.Time
}

// Engine is stateless apart from its tables and safe for concurrent use.
type Engine struct {
	tables *config.Tables
}

func New(tables *config.Tables) *Engine {
	return &Engine{tables: tables}
}

// History collects the per-acre samples for a user's crop name.
func History(ledger *models.Ledger, userID int64, cropName string) []Sample {
	crops := ledger.CropByID()
	name := strings.TrimSpace(cropName)

	var samples []Sample
	for _, h := range ledger.Harvests {
		if h.UserID != userID {
			continue
		}
		crop, ok := crops[h.CropID]
		if !ok || crop.Area <= 0 || !strings.EqualFold(crop.Name, name) {
			continue
		}
		samples = append(samples, Sample{
			Month:        int(crop.PlantingDate.Month()),
			YieldPerArea: h.YieldAmount / crop.Area,
		})
	}
	return samples
}

// Predict forecasts total and per-acre yield for req using the ledger as
// history. Nothing is cached: every call recomputes from the ledger.
func (e *Engine) Predict(req Request, ledger *models.Ledger) (*models.ForecastResult, error) {
	if req.Area <= 0 || math.IsNaN(req.Area) || math.IsInf(req.Area, 0) {
		return nil, &models.DivisionError{Area: req.Area}
	}
	name := strings.TrimSpace(req.CropName)
	if name == "" {
		return nil, &models.InvalidParameterError{Param: "cropName", Reason: "must not be empty"}
	}
	if req.PlantingDate.IsZero() {
		return nil, &models.InvalidParameterError{Param: "plantingDate", Reason: "must be set"}
	}
	if ledger != nil && ledger.UserID != req.UserID {
		return nil, &models.InvalidParameterError{Param: "userId", Reason: "history belongs to another user"}
	}

	month := int(req.PlantingDate.Month())
	season := e.tables.SeasonFor(month)
	if season == "" {
		return nil, fmt.Errorf("no season configured for month %d", month)
	}

	generic := false
	baseline, err := e.tables.Baseline(name, season)
	var uce *models.UnknownCropError
	if errors.As(err, &uce) {
		baseline = e.tables.GenericBaseline(season)
		generic = true
	} else if err != nil {
		return nil, err
	}

	var samples []Sample
	if ledger != nil {
		samples = History(ledger, req.UserID, name)
	}
	n := len(samples)

	var fitp *Fit
	if fit, ok := FitOLS(samples); ok {
		fitp = &fit
	}
	decision := Decide(n, fitp, month, baseline, e.tables)

	predicted := decision.YieldPerArea * req.Area
	perArea := predicted / req.Area
	category := Categorize(perArea, baseline)

	return &models.ForecastResult{
		UserID:                req.UserID,
		CropName:              name,
		Area:                  req.Area,
		PlantingDate:          req.PlantingDate,
		MonthPlanted:          month,
		Season:                season,
		PredictedYield:        predicted,
		PredictedYieldPerArea: perArea,
		BaselineYieldPerArea:  baseline,
		Category:              category,
		Confidence:            Confidence(n, decision.UseRegression, e.tables),
		TrainingPoints:        n,
		UsedRegressionModel:   decision.UseRegression,
		GenericBaseline:       generic,
		DecisionReason:        decision.Reason,
		Tips:                  advisory.Tips(category, season, name),
	}, nil
}
