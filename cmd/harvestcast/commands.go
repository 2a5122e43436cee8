package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/lox/harvestcast/internal/advisory"
	"github.com/lox/harvestcast/internal/forecast"
	"github.com/lox/harvestcast/internal/ingest"
	"github.com/lox/harvestcast/internal/models"
)

type MigrateCmd struct{}

func (c *MigrateCmd) Run(env *Env) error {
	st, closeStore, err := env.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	version, err := st.MigrationVersion(env.Ctx)
	if err != nil {
		return err
	}
	env.Log.Info("database migrated", "path", env.DB, "version", version)
	return nil
}

type ImportCmd struct {
	User        int64  `help:"Owner of the imported records." required:""`
	Crops       string `help:"CSV file of crops (id, name, area, planting_date)." xor:"csv-xlsx"`
	Harvests    string `help:"CSV file of harvests (id, crop_id, date, yield_amount)."`
	XLSX        string `name:"xlsx" help:"Workbook with Crops and Harvests sheets." xor:"csv-xlsx"`
	SkipInvalid bool   `help:"Import the valid rows and report the rest instead of rejecting the file."`
}

type importReport struct {
	*ingest.Result
	Rejected []string `json:"rejected"`
}

func (c *ImportCmd) Run(env *Env) error {
	var (
		sheets  *ingest.Sheets
		payload []byte
		source  string
		format  string
		err     error
	)

	switch {
	case c.XLSX != "":
		if c.Harvests != "" {
			return errors.New("--harvests cannot be combined with --xlsx")
		}
		payload, err = os.ReadFile(c.XLSX)
		if err != nil {
			return fmt.Errorf("read workbook: %w", err)
		}
		sheets, err = ingest.ReadXLSX(payload)
		source, format = filepath.Base(c.XLSX), ingest.FormatXLSX
	case c.Crops != "" || c.Harvests != "":
		var crops, harvests []byte
		var cropsR, harvestsR io.Reader
		if c.Crops != "" {
			if crops, err = os.ReadFile(c.Crops); err != nil {
				return fmt.Errorf("read crops: %w", err)
			}
			cropsR = bytes.NewReader(crops)
			source = filepath.Base(c.Crops)
		}
		if c.Harvests != "" {
			if harvests, err = os.ReadFile(c.Harvests); err != nil {
				return fmt.Errorf("read harvests: %w", err)
			}
			harvestsR = bytes.NewReader(harvests)
			if source == "" {
				source = filepath.Base(c.Harvests)
			} else {
				source += "+" + filepath.Base(c.Harvests)
			}
		}
		payload = append(append(crops, 0), harvests...)
		sheets, err = ingest.ReadCSV(cropsR, harvestsR)
		format = ingest.FormatCSV
	default:
		return errors.New("nothing to import: pass --xlsx or --crops/--harvests")
	}
	if err != nil {
		return err
	}

	st, closeStore, err := env.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	res, err := ingest.NewImporter(st, env.Log, ingest.WithSkipInvalid(c.SkipInvalid)).
		Import(env.Ctx, c.User, source, format, payload, sheets)
	if err != nil {
		return err
	}

	out := importReport{Result: res, Rejected: []string{}}
	for _, r := range res.Rejected {
		out.Rejected = append(out.Rejected, r.Error())
	}
	return env.printJSON(out)
}

type BatchesCmd struct {
	User int64 `help:"User whose imports to list." required:""`
}

func (c *BatchesCmd) Run(env *Env) error {
	st, closeStore, err := env.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	batches, err := st.ImportBatches(env.Ctx, c.User)
	if err != nil {
		return err
	}
	return env.printJSON(batches)
}

type DashboardCmd struct {
	User int64 `help:"User to report on." required:""`
	From int   `help:"First harvest year of the range." required:""`
	To   int   `help:"Last harvest year of the range." required:""`
	Top  int   `help:"Number of top crops." default:"5"`
}

func (c *DashboardCmd) Run(env *Env) error {
	svc, closeAll, err := env.service()
	if err != nil {
		return err
	}
	defer closeAll()

	d, err := svc.Dashboard(env.Ctx, c.User, c.From, c.To, c.Top)
	if err != nil {
		return err
	}
	return env.printJSON(d)
}

type CropYearCmd struct {
	User int64  `help:"User to report on." required:""`
	Crop string `help:"Crop name, matched case-insensitively." required:""`
	Year int    `help:"Calendar year." required:""`
}

func (c *CropYearCmd) Run(env *Env) error {
	svc, closeAll, err := env.service()
	if err != nil {
		return err
	}
	defer closeAll()

	d, err := svc.CropYear(env.Ctx, c.User, c.Crop, c.Year)
	if err != nil {
		return err
	}
	return env.printJSON(d)
}

type ForecastCmd struct {
	User    int64   `help:"User whose history trains the forecast." required:""`
	Crop    string  `help:"Crop to plant." required:""`
	Area    float64 `help:"Planted area in acres." required:""`
	Planted string  `help:"Planting date (YYYY-MM-DD)." required:""`
}

func (c *ForecastCmd) Run(env *Env) error {
	planted, err := parseDay("planted", c.Planted)
	if err != nil {
		return err
	}

	svc, closeAll, err := env.service()
	if err != nil {
		return err
	}
	defer closeAll()

	res, err := svc.Forecast(env.Ctx, forecast.Request{
		UserID:       c.User,
		CropName:     c.Crop,
		Area:         c.Area,
		PlantingDate: planted,
	})
	if err != nil {
		return err
	}
	return env.printJSON(res)
}

type TipsCmd struct {
	Category string `help:"Yield category." enum:"low,medium,high" required:""`
	Season   string `help:"Season name, e.g. rainy."`
	Crop     string `help:"Crop name."`
}

func (c *TipsCmd) Run(env *Env) error {
	return env.printJSON(advisory.Tips(models.Category(c.Category), c.Season, c.Crop))
}

type LedgerCmd struct {
	User int64 `help:"User whose records to print." required:""`
}

func (c *LedgerCmd) Run(env *Env) error {
	svc, closeAll, err := env.service()
	if err != nil {
		return err
	}
	defer closeAll()

	l, err := svc.Ledger(env.Ctx, c.User)
	if err != nil {
		return err
	}
	return env.printJSON(l)
}

type UsersCmd struct{}

func (c *UsersCmd) Run(env *Env) error {
	st, closeStore, err := env.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	users, err := st.Users(env.Ctx)
	if err != nil {
		return err
	}
	if users == nil {
		users = []int64{}
	}
	return env.printJSON(users)
}

type BaselinesCmd struct {
	Crops bool `help:"Only list the crops that have baselines."`
}

func (c *BaselinesCmd) Run(env *Env) error {
	t, err := env.tables()
	if err != nil {
		return err
	}
	if c.Crops {
		return env.printJSON(t.Crops())
	}
	enc := yaml.NewEncoder(env.out())
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(t)
}
