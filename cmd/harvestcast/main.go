package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"

	"github.com/lox/harvestcast/internal/logger"
	"github.com/lox/harvestcast/internal/metrics"
	"github.com/lox/harvestcast/internal/models"
)

type Globals struct {
	EnvFile kongdotenv.ENVFileConfig `kong:"optional,name=env-file,default='.env',help='Path to .env file'"`

	DB             string        `help:"Path to SQLite database." default:"data/harvestcast.db" env:"HARVESTCAST_DB"`
	Config         string        `help:"YAML file overriding the engine tables." env:"HARVESTCAST_CONFIG"`
	BaselineSource string        `help:"Baseline table overlay: a path, http(s):// or ftp:// URL." env:"HARVESTCAST_BASELINE_SOURCE"`
	RedisAddr      string        `help:"Redis address for the result cache. In-memory when empty." env:"HARVESTCAST_REDIS_ADDR"`
	CacheTTL       time.Duration `help:"Result cache TTL." default:"10m" env:"HARVESTCAST_CACHE_TTL"`
	Timeout        time.Duration `help:"Per-call time budget. Zero disables it." default:"0s" env:"HARVESTCAST_TIMEOUT"`
	AsOf           string        `help:"Ignore harvests dated after this day (YYYY-MM-DD)." env:"HARVESTCAST_AS_OF"`
	LogMode        string        `help:"Log format." default:"dev" enum:"dev,prod" env:"HARVESTCAST_LOG_MODE"`
	MetricsFile    string        `help:"Write Prometheus metrics to this textfile on exit." env:"HARVESTCAST_METRICS_FILE"`
	Trace          bool          `help:"Print trace spans to stderr." env:"HARVESTCAST_TRACE"`
}

// Env is passed to every command's Run method.
type Env struct {
	Ctx context.Context
	Log *logger.Logger
	Out io.Writer
	*Globals
}

type CLI struct {
	Globals

	Migrate   MigrateCmd   `cmd:"" help:"Apply database migrations."`
	Import    ImportCmd    `cmd:"" help:"Import crops and harvests from CSV or XLSX."`
	Batches   BatchesCmd   `cmd:"" help:"List a user's import batches."`
	Dashboard DashboardCmd `cmd:"" help:"Yearly totals, top crops, seasonality, distribution and summary for a year range."`
	CropYear  CropYearCmd  `cmd:"" name:"crop-year" help:"Planting and harvest detail for one crop in one year."`
	Forecast  ForecastCmd  `cmd:"" help:"Forecast the yield of a new planting."`
	Tips      TipsCmd      `cmd:"" help:"Advisory tips for a yield category, season and crop."`
	Ledger    LedgerCmd    `cmd:"" help:"Print a user's normalized crops and harvests."`
	Users     UsersCmd     `cmd:"" help:"List users with stored crops."`
	Baselines BaselinesCmd `cmd:"" help:"Print the effective engine tables as YAML."`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("harvestcast"),
		kong.Description("Harvest analytics and yield forecasting."),
		kong.UsageOnError(),
	)

	log, err := logger.New(cli.LogMode)
	if err != nil {
		kctx.Fatalf("init logger: %v", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := setupTracing(cli.Trace)

	err = kctx.Run(&Env{Ctx: ctx, Log: log, Out: os.Stdout, Globals: &cli.Globals})

	if err := shutdownTracing(context.Background()); err != nil {
		log.Warn("trace shutdown failed", "error", err)
	}
	if cli.MetricsFile != "" {
		if err := metrics.WriteTextfile(cli.MetricsFile); err != nil {
			log.Warn("write metrics textfile failed", "path", cli.MetricsFile, "error", err)
		}
	}
	if err != nil {
		log.Error("command failed", "class", models.Classify(err), "error", err)
		log.Sync()
		os.Exit(1)
	}
}
