// Package advisory turns a forecast outcome into short agronomic tips.
package advisory

import (
	"strings"

	"github.com/lox/harvestcast/internal/models"
)

const genericTip = "Keep records of seed, fertilizer and planting dates to compare seasons."

var categoryTips = map[models.Category][]string{
	models.CategoryLow: {
		"Add compost or manure and apply the recommended fertilizer rate.",
		"Plant on time and keep proper spacing.",
		"Weed early and control pests and diseases quickly.",
	},
	models.CategoryMedium: {
		"Keep up regular weeding and correct spacing.",
		"Top-dress fertilizer at the right growth stage.",
		"Check for pests and diseases weekly.",
	},
	models.CategoryHigh: {
		"Record seed type, fertilizer and dates so this result can be repeated.",
		"Harvest on time and dry and store properly to reduce losses.",
		"Keep the practices that worked this season.",
	},
}

type seasonKey struct {
	season   string
	category models.Category
}

var seasonTips = map[seasonKey]string{
	{"rainy", models.CategoryLow}:          "Open drainage channels; waterlogging during the rains cuts yield.",
	{"rainy", models.CategoryHigh}:         "Arrange drying space before harvest; wet-season grain spoils fast.",
	{"dry", models.CategoryLow}:            "Plan supplementary irrigation or mulch to hold soil moisture.",
	{"dry", models.CategoryMedium}:         "Irrigate at flowering, when moisture stress costs the most yield.",
	{"short_rains", models.CategoryLow}:    "Plant at the onset of the short rains to use the limited moisture.",
	{"short_rains", models.CategoryMedium}: "Choose early-maturing varieties for the short rains.",
	{"off_season", models.CategoryLow}:     "Off-season plantings rely on irrigation; schedule watering before sowing.",
}

var cropTips = map[string]string{
	"maize":   "Scout for fall armyworm from emergence and act at the first signs.",
	"rice":    "Keep paddy water levels steady through tillering.",
	"beans":   "Stay out of bean rows while foliage is wet to limit blight spread.",
	"cassava": "Use clean, disease-free cuttings to limit mosaic virus.",
	"sorghum": "Protect maturing heads from bird damage.",
	"wheat":   "Watch for rust and spray at the first pustules.",
}

// Tips returns the advice for a forecast outcome: category tips, then a
// season tip and a crop tip when rules exist. The result is never empty and
// is the same for the same inputs.
func Tips(category models.Category, season, cropName string) []string {
	var tips []string
	tips = append(tips, categoryTips[category]...)

	if tip, ok := seasonTips[seasonKey{strings.ToLower(season), category}]; ok {
		tips = append(tips, tip)
	}
	if tip, ok := cropTips[strings.ToLower(strings.TrimSpace(cropName))]; ok {
		tips = append(tips, tip)
	}

	if len(tips) == 0 {
		tips = append(tips, genericTip)
	}
	return tips
}
