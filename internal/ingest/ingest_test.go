package ingest

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
	_ "modernc.org/sqlite"

	"github.com/lox/harvestcast/internal/logger"
	"github.com/lox/harvestcast/internal/models"
	"github.com/lox/harvestcast/internal/store"
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	st := store.New(db, logger.Nop())
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return st
}

const cropsCSV = `id,name,area,planting_date
1,Maize,2,2023-03-10
2,Beans,1.5,2023-10-01
`

const harvestsCSV = `ID,Crop ID,Date,Yield Amount
10,1,2023-07-20,3000
11,2,2024-01-15,450
`

func TestReadCSVHeaders(t *testing.T) {
	sheets, err := ReadCSV(strings.NewReader(cropsCSV), strings.NewReader(harvestsCSV))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	crops, harvests, bad, err := sheets.rawRecords(3)
	if err != nil {
		t.Fatalf("rawRecords: %v", err)
	}
	if len(bad) != 0 {
		t.Fatalf("bad rows: %v", bad)
	}
	if len(crops) != 2 || crops[1].Area != "1.5" || crops[1].UserID != 3 {
		t.Errorf("crops = %+v", crops)
	}
	if len(harvests) != 2 || harvests[0].CropID != 1 || harvests[0].YieldAmount != "3000" {
		t.Errorf("harvests = %+v", harvests)
	}
}

func TestReadCSVMissingColumn(t *testing.T) {
	sheets, err := ReadCSV(strings.NewReader("id,name,area\n1,Maize,2\n"), nil)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if _, _, _, err := sheets.rawRecords(1); err == nil {
		t.Fatal("expected missing column error")
	}
}

func TestHeaderKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"planting_date", "plantingdate"},
		{"Planting Date", "plantingdate"},
		{"plantingDate", "plantingdate"},
		{" Crop-ID ", "cropid"},
	}
	for _, tt := range tests {
		if got := headerKey(tt.in); got != tt.want {
			t.Errorf("headerKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestImportCSV(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	sheets, err := ReadCSV(strings.NewReader(cropsCSV), strings.NewReader(harvestsCSV))
	if err != nil {
		t.Fatal(err)
	}
	imp := NewImporter(st, logger.Nop())
	res, err := imp.Import(ctx, 3, "farm.csv", FormatCSV, []byte(cropsCSV+harvestsCSV), sheets)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Crops != 2 || res.Harvests != 2 || len(res.Rejected) != 0 {
		t.Errorf("result = %+v", res)
	}
	if res.BatchID == "" {
		t.Error("empty batch id")
	}

	crops, harvests, err := st.LoadRaw(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(crops) != 2 || len(harvests) != 2 {
		t.Errorf("stored %d crops %d harvests", len(crops), len(harvests))
	}

	_, err = imp.Import(ctx, 3, "farm.csv", FormatCSV, []byte(cropsCSV+harvestsCSV), sheets)
	if err == nil {
		t.Fatal("re-import of the same file succeeded")
	}
}

func TestImportStrictRejectsFile(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	bad := cropsCSV + "3,Rice,-1,2023-06-01\n"
	sheets, _ := ReadCSV(strings.NewReader(bad), nil)

	_, err := NewImporter(st, logger.Nop()).Import(ctx, 3, "bad.csv", FormatCSV, []byte(bad), sheets)
	var ve *models.ValidationError
	if !errors.As(err, &ve) || ve.Field != "area" {
		t.Fatalf("err = %v, want area ValidationError", err)
	}

	crops, _, _ := st.LoadRaw(ctx, 3)
	if len(crops) != 0 {
		t.Errorf("strict import stored %d crops", len(crops))
	}
}

func TestImportSkipInvalid(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	crops := cropsCSV + "3,Rice,-1,2023-06-01\nx,Teff,1,2023-06-01\n"
	harvests := harvestsCSV +
		"12,3,2023-09-01,100\n" + // crop 3 was rejected
		"13,1,2023-01-01,100\n" + // before planting
		"14,1,2023-08-01,200\n"
	sheets, _ := ReadCSV(strings.NewReader(crops), strings.NewReader(harvests))

	res, err := NewImporter(st, logger.Nop(), WithSkipInvalid(true)).Import(ctx, 3, "mixed.csv", FormatCSV, []byte(crops+harvests), sheets)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Crops != 2 || res.Harvests != 3 {
		t.Errorf("accepted %d crops %d harvests, want 2 and 3", res.Crops, res.Harvests)
	}
	if len(res.Rejected) != 4 {
		t.Fatalf("rejected = %v, want 4 errors", res.Rejected)
	}
	var ce *models.ChronologyError
	found := false
	for _, r := range res.Rejected {
		if errors.As(r, &ce) {
			found = true
		}
	}
	if !found {
		t.Error("no ChronologyError among rejections")
	}
}

func TestImportHarvestsForStoredCrops(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	if _, err := st.InsertCrop(ctx, models.RawCrop{ID: 1, UserID: 3, Name: "Maize", Area: "2", PlantingDate: "2023-03-10"}); err != nil {
		t.Fatal(err)
	}

	data := "id,crop_id,date,yield_amount\n20,1,2023-08-01,1800\n"
	sheets, _ := ReadCSV(nil, strings.NewReader(data))
	res, err := NewImporter(st, logger.Nop()).Import(ctx, 3, "h.csv", FormatCSV, []byte(data), sheets)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Harvests != 1 {
		t.Errorf("Harvests = %d, want 1", res.Harvests)
	}

	// another user's crop is not visible
	data = "id,crop_id,date,yield_amount\n21,1,2023-08-02,10\n"
	sheets, _ = ReadCSV(nil, strings.NewReader(data))
	if _, err := NewImporter(st, logger.Nop()).Import(ctx, 4, "h.csv", FormatCSV, []byte(data), sheets); err == nil {
		t.Error("import against another user's crop succeeded")
	}
}

func TestImportSameIDsForTwoUsers(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	if _, err := st.InsertCrop(ctx, models.RawCrop{ID: 1, UserID: 7, Name: "Maize", Area: "2", PlantingDate: "2023-03-10"}); err != nil {
		t.Fatal(err)
	}

	data := "id,name,area,planting_date\n1,Beans,1,2023-04-01\n2,Rice,3,2023-05-20\n"
	sheets, _ := ReadCSV(strings.NewReader(data), nil)
	res, err := NewImporter(st, logger.Nop(), WithSkipInvalid(true)).Import(ctx, 8, "crops.csv", FormatCSV, []byte(data), sheets)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Crops != 2 || len(res.Rejected) != 0 {
		t.Errorf("result = %+v, want 2 crops and no rejections", res)
	}

	crops, _, err := st.LoadRaw(ctx, 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(crops) != 2 || crops[0].ID != 1 || crops[0].Name != "Beans" {
		t.Errorf("user 8 crops = %+v", crops)
	}
	mine, _, _ := st.LoadRaw(ctx, 7)
	if len(mine) != 1 || mine[0].Name != "Maize" {
		t.Errorf("user 7 crops = %+v", mine)
	}
}

func buildWorkbook(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", "Crops"); err != nil {
		t.Fatal(err)
	}
	rows := [][]any{
		{"ID", "Name", "Area", "Planting Date"},
		{1, "Maize", 2.5, time.Date(2023, 3, 10, 0, 0, 0, 0, time.UTC)},
		{2, "Rice", 1, "2023-06-01"},
	}
	for i, row := range rows {
		cellRef, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Crops", cellRef, &row); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := f.NewSheet("harvests"); err != nil {
		t.Fatal(err)
	}
	rows = [][]any{
		{"id", "crop_id", "date", "yield_amount"},
		{10, 1, time.Date(2023, 7, 20, 0, 0, 0, 0, time.UTC), 3100},
		{11, 2, "2023-10-05", 5200.5},
	}
	for i, row := range rows {
		cellRef, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("harvests", cellRef, &row); err != nil {
			t.Fatal(err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestReadXLSX(t *testing.T) {
	sheets, err := ReadXLSX(buildWorkbook(t))
	if err != nil {
		t.Fatalf("ReadXLSX: %v", err)
	}
	crops, harvests, bad, err := sheets.rawRecords(9)
	if err != nil {
		t.Fatal(err)
	}
	if len(bad) != 0 {
		t.Fatalf("bad rows: %v", bad)
	}
	if len(crops) != 2 || len(harvests) != 2 {
		t.Fatalf("got %d crops %d harvests", len(crops), len(harvests))
	}
	if crops[0].PlantingDate != "2023-03-10" {
		t.Errorf("serial date = %q, want 2023-03-10", crops[0].PlantingDate)
	}
	if crops[1].PlantingDate != "2023-06-01" {
		t.Errorf("text date = %q", crops[1].PlantingDate)
	}
	if harvests[0].Date != "2023-07-20" || harvests[1].YieldAmount != "5200.5" {
		t.Errorf("harvests = %+v", harvests)
	}
}

func TestImportXLSX(t *testing.T) {
	st := setupTestStore(t)
	data := buildWorkbook(t)
	sheets, err := ReadXLSX(data)
	if err != nil {
		t.Fatal(err)
	}
	res, err := NewImporter(st, logger.Nop()).Import(context.Background(), 9, "farm.xlsx", FormatXLSX, data, sheets)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Crops != 2 || res.Harvests != 2 {
		t.Errorf("result = %+v", res)
	}
}
