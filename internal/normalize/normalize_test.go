package normalize

import (
	"errors"
	"testing"
	"time"

	"github.com/lox/harvestcast/internal/models"
)

func TestNormalizeCrop(t *testing.T) {
	tests := []struct {
		name      string
		raw       models.RawCrop
		wantField string
	}{
		{"valid", models.RawCrop{ID: 1, UserID: 7, Name: " Maize ", Area: "2.5", PlantingDate: "2024-04-10"}, ""},
		{"rfc3339 date", models.RawCrop{ID: 1, UserID: 7, Name: "Maize", Area: "1", PlantingDate: "2024-04-10T08:30:00+03:00"}, ""},
		{"empty name", models.RawCrop{ID: 1, UserID: 7, Name: "   ", Area: "1", PlantingDate: "2024-04-10"}, "name"},
		{"numeric name", models.RawCrop{ID: 1, UserID: 7, Name: "42", Area: "1", PlantingDate: "2024-04-10"}, "name"},
		{"zero area", models.RawCrop{ID: 1, UserID: 7, Name: "Maize", Area: "0", PlantingDate: "2024-04-10"}, "area"},
		{"negative area", models.RawCrop{ID: 1, UserID: 7, Name: "Maize", Area: "-3", PlantingDate: "2024-04-10"}, "area"},
		{"infinite area", models.RawCrop{ID: 1, UserID: 7, Name: "Maize", Area: "Inf", PlantingDate: "2024-04-10"}, "area"},
		{"text area", models.RawCrop{ID: 1, UserID: 7, Name: "Maize", Area: "two", PlantingDate: "2024-04-10"}, "area"},
		{"bad date", models.RawCrop{ID: 1, UserID: 7, Name: "Maize", Area: "1", PlantingDate: "2024-02-30"}, "plantingDate"},
		{"other user", models.RawCrop{ID: 1, UserID: 8, Name: "Maize", Area: "1", PlantingDate: "2024-04-10"}, "userId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crop, err := NormalizeCrop(7, tt.raw)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("NormalizeCrop: %v", err)
				}
				if crop.Name != "Maize" {
					t.Errorf("Name = %q, want Maize", crop.Name)
				}
				if crop.PlantingDate.Month() != time.April || crop.PlantingDate.Day() != 10 {
					t.Errorf("PlantingDate = %v, want 2024-04-10", crop.PlantingDate)
				}
				return
			}
			var ve *models.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", ve.Field, tt.wantField)
			}
		})
	}
}

func TestNumericNames(t *testing.T) {
	tests := []struct {
		name    string
		numeric bool
	}{
		{"42", true},
		{"-1.5", true},
		{"1e3", true},
		{"Nan", false},
		{"Inf", false},
		{"infinity", false},
		{"Maize 2", false},
	}
	for _, tt := range tests {
		_, err := NormalizeCrop(7, models.RawCrop{ID: 1, UserID: 7, Name: tt.name, Area: "1", PlantingDate: "2024-04-10"})
		if got := err != nil; got != tt.numeric {
			t.Errorf("NormalizeCrop(name %q) err = %v, want rejected %v", tt.name, err, tt.numeric)
		}
	}
}

func TestNormalizeHarvestChronology(t *testing.T) {
	crop := models.CropRecord{ID: 3, UserID: 7, Name: "Rice", Area: 1, PlantingDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}

	_, err := NormalizeHarvest(crop, models.RawHarvest{ID: 9, UserID: 7, CropID: 3, Date: "2024-02-28", YieldAmount: "100"})
	var ce *models.ChronologyError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want ChronologyError", err)
	}
	if ce.HarvestID != 9 || ce.CropID != 3 {
		t.Errorf("ChronologyError = %+v", ce)
	}

	h, err := NormalizeHarvest(crop, models.RawHarvest{ID: 10, UserID: 7, CropID: 3, Date: "2024-03-01", YieldAmount: "100"})
	if err != nil {
		t.Fatalf("same-day harvest: %v", err)
	}
	if h.YieldAmount != 100 {
		t.Errorf("YieldAmount = %v, want 100", h.YieldAmount)
	}
}

func TestNormalizeHarvestFields(t *testing.T) {
	crop := models.CropRecord{ID: 3, UserID: 7, Name: "Rice", Area: 1, PlantingDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}

	tests := []struct {
		name      string
		raw       models.RawHarvest
		wantField string
	}{
		{"zero yield", models.RawHarvest{ID: 1, UserID: 7, CropID: 3, Date: "2024-06-01", YieldAmount: "0"}, "yieldAmount"},
		{"nan yield", models.RawHarvest{ID: 1, UserID: 7, CropID: 3, Date: "2024-06-01", YieldAmount: "NaN"}, "yieldAmount"},
		{"bad date", models.RawHarvest{ID: 1, UserID: 7, CropID: 3, Date: "06/01/2024", YieldAmount: "5"}, "date"},
		{"foreign owner", models.RawHarvest{ID: 1, UserID: 8, CropID: 3, Date: "2024-06-01", YieldAmount: "5"}, "userId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizeHarvest(crop, tt.raw)
			var ve *models.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", ve.Field, tt.wantField)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	crops := []models.RawCrop{
		{ID: 1, UserID: 7, Name: "Maize", Area: "2", PlantingDate: "2023-04-01"},
		{ID: 2, UserID: 7, Name: "Beans", Area: "0.5", PlantingDate: "2023-10-15"},
	}
	harvests := []models.RawHarvest{
		{ID: 1, UserID: 7, CropID: 1, Date: "2023-08-01", YieldAmount: "1200"},
		{ID: 2, UserID: 7, CropID: 2, Date: "2024-01-20", YieldAmount: "180.5"},
	}

	ledger, err := Normalize(7, crops, harvests)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(ledger.Crops) != 2 || len(ledger.Harvests) != 2 {
		t.Fatalf("ledger = %d crops, %d harvests; want 2, 2", len(ledger.Crops), len(ledger.Harvests))
	}
	if ledger.UserID != 7 {
		t.Errorf("UserID = %d, want 7", ledger.UserID)
	}

	t.Run("unknown crop", func(t *testing.T) {
		bad := append([]models.RawHarvest{}, harvests...)
		bad = append(bad, models.RawHarvest{ID: 3, UserID: 7, CropID: 99, Date: "2024-01-20", YieldAmount: "1"})
		_, err := Normalize(7, crops, bad)
		var ve *models.ValidationError
		if !errors.As(err, &ve) || ve.Field != "cropId" {
			t.Fatalf("err = %v, want cropId ValidationError", err)
		}
	})

	t.Run("duplicate crop id", func(t *testing.T) {
		dup := append([]models.RawCrop{}, crops...)
		dup = append(dup, crops[0])
		_, err := Normalize(7, dup, nil)
		var ve *models.ValidationError
		if !errors.As(err, &ve) || ve.Field != "id" {
			t.Fatalf("err = %v, want id ValidationError", err)
		}
	})

	t.Run("chronology stops the batch", func(t *testing.T) {
		bad := []models.RawHarvest{{ID: 5, UserID: 7, CropID: 2, Date: "2023-10-01", YieldAmount: "10"}}
		ledger, err := Normalize(7, crops, bad)
		var ce *models.ChronologyError
		if !errors.As(err, &ce) {
			t.Fatalf("err = %v, want ChronologyError", err)
		}
		if ledger != nil {
			t.Error("expected no partial ledger")
		}
	})
}
