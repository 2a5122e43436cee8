// Package normalize turns raw crop and harvest records into the canonical
// ledger consumed by the aggregation and forecast engines.
package normalize

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lox/harvestcast/internal/models"
)

const (
	ReasonEmpty       = "must not be empty"
	ReasonNumericName = "must not be a number"
	ReasonNotNumber   = "must be a number"
	ReasonNotFinite   = "must be finite"
	ReasonNotPositive = "must be greater than zero"
	ReasonBadDate     = "must be a calendar date (YYYY-MM-DD)"
	ReasonWrongUser   = "does not belong to the requested user"
	ReasonDuplicateID = "duplicate id"
	ReasonUnknownCrop = "references an unknown crop"
)

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp and returns the
// calendar date at midnight UTC.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

func parsePositive(s string) (float64, string) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, ReasonNotNumber
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ReasonNotFinite
	}
	if v <= 0 {
		return 0, ReasonNotPositive
	}
	return v, ""
}

// isNumber reports whether s is a decimal number. ParseFloat alone also
// accepts words such as "Inf" and "NaN".
func isNumber(s string) bool {
	if !strings.ContainsAny(s, "0123456789") {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// NormalizeCrop validates a single crop owned by userID.
func NormalizeCrop(userID int64, raw models.RawCrop) (models.CropRecord, error) {
	fail := func(field, value, reason string) (models.CropRecord, error) {
		return models.CropRecord{}, &models.ValidationError{Record: "crop", ID: raw.ID, Field: field, Value: value, Reason: reason}
	}

	if raw.UserID != userID {
		return fail("userId", strconv.FormatInt(raw.UserID, 10), ReasonWrongUser)
	}

	name := strings.TrimSpace(raw.Name)
	if name == "" {
		return fail("name", raw.Name, ReasonEmpty)
	}
	if isNumber(name) {
		return fail("name", raw.Name, ReasonNumericName)
	}

	area, reason := parsePositive(raw.Area)
	if reason != "" {
		return fail("area", raw.Area, reason)
	}

	planted, ok := ParseDate(raw.PlantingDate)
	if !ok {
		return fail("plantingDate", raw.PlantingDate, ReasonBadDate)
	}

	return models.CropRecord{
		ID:           raw.ID,
		UserID:       raw.UserID,
		Name:         name,
		Area:         area,
		PlantingDate: planted,
	}, nil
}

// NormalizeHarvest validates a single harvest against its crop.
func NormalizeHarvest(crop models.CropRecord, raw models.RawHarvest) (models.HarvestRecord, error) {
	fail := func(field, value, reason string) (models.HarvestRecord, error) {
		return models.HarvestRecord{}, &models.ValidationError{Record: "harvest", ID: raw.ID, Field: field, Value: value, Reason: reason}
	}

	if raw.UserID != crop.UserID {
		return fail("userId", strconv.FormatInt(raw.UserID, 10), ReasonWrongUser)
	}
	if raw.CropID != crop.ID {
		return fail("cropId", strconv.FormatInt(raw.CropID, 10), ReasonUnknownCrop)
	}

	amount, reason := parsePositive(raw.YieldAmount)
	if reason != "" {
		return fail("yieldAmount", raw.YieldAmount, reason)
	}

	date, ok := ParseDate(raw.Date)
	if !ok {
		return fail("date", raw.Date, ReasonBadDate)
	}
	if date.Before(crop.PlantingDate) {
		return models.HarvestRecord{}, &models.ChronologyError{
			HarvestID:    raw.ID,
			CropID:       crop.ID,
			HarvestDate:  date,
			PlantingDate: crop.PlantingDate,
		}
	}

	return models.HarvestRecord{
		ID:          raw.ID,
		UserID:      raw.UserID,
		CropID:      raw.CropID,
		Date:        date,
		YieldAmount: amount,
	}, nil
}

// Normalize validates a user's full record set. It stops at the first invalid
// record; no partial ledger is returned.
func Normalize(userID int64, crops []models.RawCrop, harvests []models.RawHarvest) (*models.Ledger, error) {
	ledger := &models.Ledger{
		UserID:   userID,
		Crops:    make([]models.CropRecord, 0, len(crops)),
		Harvests: make([]models.HarvestRecord, 0, len(harvests)),
	}

	byID := make(map[int64]models.CropRecord, len(crops))
	for _, raw := range crops {
		if _, dup := byID[raw.ID]; dup {
			return nil, &models.ValidationError{Record: "crop", ID: raw.ID, Field: "id", Value: strconv.FormatInt(raw.ID, 10), Reason: ReasonDuplicateID}
		}
		c, err := NormalizeCrop(userID, raw)
		if err != nil {
			return nil, err
		}
		byID[c.ID] = c
		ledger.Crops = append(ledger.Crops, c)
	}

	seen := make(map[int64]bool, len(harvests))
	for _, raw := range harvests {
		if seen[raw.ID] {
			return nil, &models.ValidationError{Record: "harvest", ID: raw.ID, Field: "id", Value: strconv.FormatInt(raw.ID, 10), Reason: ReasonDuplicateID}
		}
		seen[raw.ID] = true

		crop, ok := byID[raw.CropID]
		if !ok {
			return nil, &models.ValidationError{Record: "harvest", ID: raw.ID, Field: "cropId", Value: strconv.FormatInt(raw.CropID, 10), Reason: ReasonUnknownCrop}
		}
		h, err := NormalizeHarvest(crop, raw)
		if err != nil {
			return nil, err
		}
		ledger.Harvests = append(ledger.Harvests, h)
	}

	return ledger, nil
}
