package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	_ "modernc.org/sqlite"

	"github.com/lox/harvestcast/internal/cache"
	"github.com/lox/harvestcast/internal/config"
	"github.com/lox/harvestcast/internal/models"
	"github.com/lox/harvestcast/internal/normalize"
	"github.com/lox/harvestcast/internal/report"
	"github.com/lox/harvestcast/internal/store"
)

func setupTracing(enabled bool) func(context.Context) error {
	if !enabled {
		return func(context.Context) error { return nil }
	}
	exp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithPrettyPrint())
	if err != nil {
		fmt.Fprintf(os.Stderr, "trace exporter: %v\n", err)
		return func(context.Context) error { return nil }
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}

// tables loads the engine tables: defaults, then the config file, then the
// remote baseline source.
func (e *Env) tables() (*config.Tables, error) {
	t, err := config.Load(e.Config)
	if err != nil {
		return nil, err
	}
	if e.BaselineSource == "" {
		return t, nil
	}
	return config.NewFetcher(e.Log).Fetch(e.Ctx, t, e.BaselineSource)
}

func (e *Env) openStore() (*store.Store, func(), error) {
	if dir := filepath.Dir(e.DB); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", e.DB+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	st := store.New(db, e.Log)
	if err := st.Migrate(e.Ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return st, func() { db.Close() }, nil
}

func (e *Env) service() (*report.Service, func(), error) {
	tables, err := e.tables()
	if err != nil {
		return nil, nil, err
	}

	opts := []report.Option{
		report.WithLogger(e.Log),
		report.WithTimeout(e.Timeout),
	}
	if e.AsOf != "" {
		asOf, ok := normalize.ParseDate(e.AsOf)
		if !ok {
			return nil, nil, &models.InvalidParameterError{Param: "as-of", Reason: normalize.ReasonBadDate}
		}
		opts = append(opts, report.WithAsOf(asOf))
	}

	closers := []func(){}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if e.RedisAddr != "" {
		rc, err := cache.NewRedis(e.Ctx, e.RedisAddr, e.Log)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { rc.Close() })
		opts = append(opts, report.WithCache(rc, e.CacheTTL))
	} else {
		opts = append(opts, report.WithCache(cache.NewMemory(), e.CacheTTL))
	}

	st, closeStore, err := e.openStore()
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	closers = append(closers, closeStore)

	return report.New(st, tables, opts...), closeAll, nil
}

func (e *Env) out() io.Writer {
	if e.Out == nil {
		return os.Stdout
	}
	return e.Out
}

func (e *Env) printJSON(v any) error {
	enc := json.NewEncoder(e.out())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseDay(param, s string) (time.Time, error) {
	t, ok := normalize.ParseDate(s)
	if !ok {
		return time.Time{}, &models.InvalidParameterError{Param: param, Reason: normalize.ReasonBadDate}
	}
	return t, nil
}
