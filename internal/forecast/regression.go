package forecast

import "math"

// Sample is one historical harvest: the month its crop was planted and the
// yield it produced per acre.
type Sample struct {
	Month        int
	YieldPerArea float64
}

// Fit is a single-feature least squares line: yield = Intercept + Slope*month.
type Fit struct {
	Intercept float64
	Slope     float64
	N         int
}

func (f Fit) Predict(month int) float64 {
	return f.Intercept + f.Slope*float64(month)
}

// FitOLS fits yield per acre against planting month by ordinary least
// squares. When every sample shares one month the slope is undefined and the
// fit is the sample mean. Fewer than two samples cannot be fitted.
func FitOLS(samples []Sample) (Fit, bool) {
	n := len(samples)
	if n < 2 {
		return Fit{}, false
	}

	var sumX, sumY float64
	for _, s := range samples {
		sumX += float64(s.Month)
		sumY += s.YieldPerArea
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var sxx, sxy float64
	for _, s := range samples {
		dx := float64(s.Month) - meanX
		sxx += dx * dx
		sxy += dx * (s.YieldPerArea - meanY)
	}

	if sxx == 0 {
		return Fit{Intercept: meanY, N: n}, true
	}

	slope := sxy / sxx
	fit := Fit{Intercept: meanY - slope*meanX, Slope: slope, N: n}
	if math.IsNaN(fit.Intercept) || math.IsInf(fit.Intercept, 0) || math.IsNaN(slope) || math.IsInf(slope, 0) {
		return Fit{}, false
	}
	return fit, true
}
