package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/lox/harvestcast/internal/models"
)

// Sheets holds the raw rows of a crops table and a harvests table, header
// row first.
type Sheets struct {
	Crops    [][]string
	Harvests [][]string
}

var (
	cropColumns    = []string{"id", "name", "area", "plantingdate"}
	harvestColumns = []string{"id", "cropid", "date", "yieldamount"}
)

// ReadCSV reads one CSV table. Either argument may be nil.
func ReadCSV(crops, harvests io.Reader) (*Sheets, error) {
	var sheets Sheets
	var err error
	if crops != nil {
		if sheets.Crops, err = readCSVTable(crops); err != nil {
			return nil, fmt.Errorf("crops: %w", err)
		}
	}
	if harvests != nil {
		if sheets.Harvests, err = readCSVTable(harvests); err != nil {
			return nil, fmt.Errorf("harvests: %w", err)
		}
	}
	return &sheets, nil
}

func readCSVTable(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return cr.ReadAll()
}

// ReadXLSX reads the "Crops" and "Harvests" sheets of a workbook. Sheet names
// match case-insensitively and a missing sheet yields no rows. Date cells
// stored as Excel serials are converted to YYYY-MM-DD.
func ReadXLSX(data []byte) (*Sheets, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var sheets Sheets
	for _, name := range f.GetSheetList() {
		var dst *[][]string
		var dateCols []string
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "crops":
			dst, dateCols = &sheets.Crops, []string{"plantingdate"}
		case "harvests":
			dst, dateCols = &sheets.Harvests, []string{"date"}
		default:
			continue
		}

		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", name, err)
		}
		convertSerialDates(rows, dateCols)
		*dst = rows
	}
	return &sheets, nil
}

func convertSerialDates(rows [][]string, cols []string) {
	if len(rows) == 0 {
		return
	}
	idx := headerIndex(rows[0])
	for _, col := range cols {
		i, ok := idx[col]
		if !ok {
			continue
		}
		for _, row := range rows[1:] {
			if i >= len(row) {
				continue
			}
			serial, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
			if err != nil {
				continue
			}
			if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
				row[i] = t.Format(time.DateOnly)
			}
		}
	}
}

// headerKey folds "Planting Date", "planting_date" and "plantingDate" to the
// same key.
func headerKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s)
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		k := headerKey(h)
		if _, dup := idx[k]; !dup {
			idx[k] = i
		}
	}
	return idx
}

func requireColumns(table string, idx map[string]int, cols []string) error {
	for _, c := range cols {
		if _, ok := idx[c]; !ok {
			return fmt.Errorf("%s table is missing column %q", table, c)
		}
	}
	return nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func parseID(record string, field, value string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, &models.ValidationError{Record: record, Field: field, Value: value, Reason: "must be a positive integer"}
	}
	return id, nil
}

// rawRecords converts table rows to raw records owned by userID. Rows whose
// ids cannot be parsed are returned as errors alongside the good rows.
func (s *Sheets) rawRecords(userID int64) ([]models.RawCrop, []models.RawHarvest, []error, error) {
	var crops []models.RawCrop
	var harvests []models.RawHarvest
	var bad []error

	if len(s.Crops) > 0 {
		idx := headerIndex(s.Crops[0])
		if err := requireColumns("crops", idx, cropColumns); err != nil {
			return nil, nil, nil, err
		}
		for _, row := range s.Crops[1:] {
			if blank(row) {
				continue
			}
			id, err := parseID("crop", "id", cell(row, idx["id"]))
			if err != nil {
				bad = append(bad, err)
				continue
			}
			crops = append(crops, models.RawCrop{
				ID:           id,
				UserID:       userID,
				Name:         cell(row, idx["name"]),
				Area:         cell(row, idx["area"]),
				PlantingDate: cell(row, idx["plantingdate"]),
			})
		}
	}

	if len(s.Harvests) > 0 {
		idx := headerIndex(s.Harvests[0])
		if err := requireColumns("harvests", idx, harvestColumns); err != nil {
			return nil, nil, nil, err
		}
		for _, row := range s.Harvests[1:] {
			if blank(row) {
				continue
			}
			id, err := parseID("harvest", "id", cell(row, idx["id"]))
			if err != nil {
				bad = append(bad, err)
				continue
			}
			cropID, err := parseID("harvest", "cropId", cell(row, idx["cropid"]))
			if err != nil {
				bad = append(bad, err)
				continue
			}
			harvests = append(harvests, models.RawHarvest{
				ID:          id,
				UserID:      userID,
				CropID:      cropID,
				Date:        cell(row, idx["date"]),
				YieldAmount: cell(row, idx["yieldamount"]),
			})
		}
	}

	return crops, harvests, bad, nil
}
