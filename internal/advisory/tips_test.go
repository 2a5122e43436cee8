package advisory

import (
	"slices"
	"testing"

	"github.com/lox/harvestcast/internal/models"
)

func TestTips(t *testing.T) {
	tests := []struct {
		name     string
		category models.Category
		season   string
		crop     string
		wantLen  int
		wantLast string
	}{
		{"low rainy maize", models.CategoryLow, "rainy", "Maize", 5, cropTips["maize"]},
		{"medium rainy no crop rule", models.CategoryMedium, "rainy", "Quinoa", 3, categoryTips[models.CategoryMedium][2]},
		{"high dry rice", models.CategoryHigh, "dry", " rice ", 4, cropTips["rice"]},
		{"unknown everything", models.Category("bogus"), "monsoon", "Quinoa", 1, genericTip},
		{"unknown category known crop", models.Category(""), "dry", "Sorghum", 1, cropTips["sorghum"]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tips(tt.category, tt.season, tt.crop)
			if len(got) != tt.wantLen {
				t.Fatalf("len(Tips) = %d, want %d: %v", len(got), tt.wantLen, got)
			}
			if got[len(got)-1] != tt.wantLast {
				t.Errorf("last tip = %q, want %q", got[len(got)-1], tt.wantLast)
			}
		})
	}
}

func TestTipsDeterministic(t *testing.T) {
	first := Tips(models.CategoryLow, "short_rains", "Beans")
	for i := 0; i < 10; i++ {
		if got := Tips(models.CategoryLow, "short_rains", "Beans"); !slices.Equal(got, first) {
			t.Fatalf("Tips changed between calls: %v vs %v", got, first)
		}
	}
}

func TestTipsDoNotAliasTable(t *testing.T) {
	got := Tips(models.CategoryHigh, "", "")
	got[0] = "mutated"
	if categoryTips[models.CategoryHigh][0] == "mutated" {
		t.Fatal("Tips returned a slice aliasing the rule table")
	}
}
