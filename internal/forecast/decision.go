package forecast

import (
	"math"

	"github.com/lox/harvestcast/internal/config"
	"github.com/lox/harvestcast/internal/models"
)

// Category thresholds as a ratio of predicted to baseline yield per acre.
const (
	lowRatio  = 0.8
	highRatio = 1.2
)

// Decision records which path produced a forecast and why.
type Decision struct {
	UseRegression bool
	Reason        string
	YieldPerArea  float64
}

// Decide chooses between the regression and baseline paths. Regression is
// used only with at least RegressionMinSamples points and a fit whose
// prediction for month is positive and no more than MaxPlausibleFactor times
// the baseline. Every other case falls back to the baseline.
func Decide(n int, fit *Fit, month int, baseline float64, t *config.Tables) Decision {
	if n < t.RegressionMinSamples || fit == nil {
		return Decision{Reason: models.ReasonInsufficientHistory, YieldPerArea: baseline}
	}

	predicted := fit.Predict(month)
	if math.IsNaN(predicted) || predicted <= 0 || predicted > baseline*t.MaxPlausibleFactor {
		return Decision{Reason: models.ReasonImplausible, YieldPerArea: baseline}
	}

	return Decision{UseRegression: true, Reason: models.ReasonRegression, YieldPerArea: predicted}
}

// Categorize compares a predicted yield per acre with the baseline.
func Categorize(yieldPerArea, baseline float64) models.Category {
	if baseline <= 0 {
		return models.CategoryMedium
	}
	ratio := yieldPerArea / baseline
	switch {
	case ratio < lowRatio:
		return models.CategoryLow
	case ratio > highRatio:
		return models.CategoryHigh
	default:
		return models.CategoryMedium
	}
}

// Confidence grades a forecast by its training points. The baseline path
// carries no user evidence and is capped at medium.
func Confidence(n int, usedRegression bool, t *config.Tables) models.Confidence {
	c := models.ConfidenceLow
	switch {
	case n >= t.ConfidenceHigh:
		c = models.ConfidenceHigh
	case n >= t.ConfidenceMedium:
		c = models.ConfidenceMedium
	}
	if !usedRegression && c == models.ConfidenceHigh {
		c = models.ConfidenceMedium
	}
	return c
}
