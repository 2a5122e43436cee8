// Package report serves engine results for a user: it loads the user's
// records from the event store, normalizes them and runs the aggregation and
// forecast engines, with result caching, metrics and tracing around each call.
package report

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lox/harvestcast/internal/aggregate"
	"github.com/lox/harvestcast/internal/cache"
	"github.com/lox/harvestcast/internal/config"
	"github.com/lox/harvestcast/internal/forecast"
	"github.com/lox/harvestcast/internal/logger"
	"github.com/lox/harvestcast/internal/metrics"
	"github.com/lox/harvestcast/internal/models"
	"github.com/lox/harvestcast/internal/normalize"
	"github.com/lox/harvestcast/internal/store"
)

const tracerName = "github.com/lox/harvestcast/internal/report"

type Service struct {
	store   *store.Store
	tables  *config.Tables
	agg     *aggregate.Engine
	fc      *forecast.Engine
	cache   cache.Cache
	ttl     time.Duration
	timeout time.Duration
	asOf    time.Time
	log     *logger.Logger
	tracer  trace.Tracer

	// tablesTag keeps cached results from outliving a change of tables.
	tablesTag string
}

type Option func(*Service)

func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.ttl = ttl
	}
}

// WithTimeout bounds each call's wall-clock time. Zero disables the budget.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.log = l }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer(tracerName) }
}

// WithAsOf ignores harvests dated after t in aggregations.
func WithAsOf(t time.Time) Option {
	return func(s *Service) { s.asOf = t }
}

func New(st *store.Store, tables *config.Tables, opts ...Option) *Service {
	s := &Service{
		store:  st,
		tables: tables,
		log:    logger.Nop(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "report")
	s.agg = aggregate.New(aggregate.WithAsOf(s.asOf), aggregate.WithBucketEdges(tables.BucketEdges))
	s.fc = forecast.New(tables)

	sum := sha256.Sum256([]byte(fmt.Sprint(*tables, s.asOf.Unix())))
	s.tablesTag = hex.EncodeToString(sum[:6])
	return s
}

// run wraps one service call with the time budget, a span, metrics and a
// request-scoped logger. fn's result travels back over a channel, so a call
// abandoned on timeout never writes into the caller's variables.
func run[T any](ctx context.Context, s *Service, op string, userID int64, fn func(ctx context.Context) (T, error)) (_ T, err error) {
	var zero T
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "report."+op, trace.WithAttributes(
		attribute.String("harvestcast.op", op),
		attribute.Int64("harvestcast.user_id", userID),
	))
	log := s.log.With("op", op, "user", userID, "request", uuid.NewString())

	defer func() {
		status := "ok"
		if err != nil {
			status = models.Classify(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			log.Warn("call failed", "class", status, "error", err, "duration", time.Since(start))
		} else {
			log.Debug("call completed", "duration", time.Since(start))
		}
		metrics.EngineCallsTotal.WithLabelValues(op, status).Inc()
		metrics.EngineLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
		span.End()
	}()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return zero, s.contextError(op, err)
	}

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) {
				return zero, s.contextError(op, r.err)
			}
			return zero, r.err
		}
		return r.v, nil
	case <-ctx.Done():
		return zero, s.contextError(op, ctx.Err())
	}
}

func (s *Service) contextError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &models.TimeoutError{Op: op, Budget: s.timeout}
	}
	return err
}

// ledger loads and normalizes the user's records.
func (s *Service) ledger(ctx context.Context, userID int64) (*models.Ledger, error) {
	ctx, span := s.tracer.Start(ctx, "report.load")
	defer span.End()

	crops, harvests, err := s.store.LoadRaw(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	span.SetAttributes(attribute.Int("harvestcast.crops", len(crops)), attribute.Int("harvestcast.harvests", len(harvests)))

	ledger, err := normalize.Normalize(userID, crops, harvests)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return ledger, nil
}

// cached returns the stored result for (userID, op, params) at the user's
// current data version, computing and storing it on a miss. Cache failures
// are logged and never fail the call.
func cached[T any](ctx context.Context, s *Service, userID int64, op string, params []any, compute func(ctx context.Context, ledger *models.Ledger) (T, error)) (T, error) {
	var zero T

	// read the version before the records
	version, err := s.store.DataVersion(ctx, userID)
	if err != nil {
		return zero, err
	}
	key := cache.Key(userID, op, version, append(params, s.tablesTag)...)

	if s.cache != nil {
		b, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			metrics.CacheRequests.WithLabelValues("error").Inc()
			s.log.Warn("cache get failed", "key", key, "error", err)
		case ok:
			var v T
			if err := json.Unmarshal(b, &v); err == nil {
				metrics.CacheRequests.WithLabelValues("hit").Inc()
				trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("harvestcast.cache_hit", true))
				return v, nil
			}
			s.log.Warn("discarding undecodable cache entry", "key", key)
		default:
			metrics.CacheRequests.WithLabelValues("miss").Inc()
		}
	}

	ledger, err := s.ledger(ctx, userID)
	if err != nil {
		return zero, err
	}
	v, err := compute(ctx, ledger)
	if err != nil {
		return zero, err
	}

	if s.cache != nil {
		if b, err := json.Marshal(v); err == nil {
			if err := s.cache.Set(ctx, key, b, s.ttl); err != nil {
				s.log.Warn("cache set failed", "key", key, "error", err)
			}
		}
	}
	return v, nil
}

// Ledger returns the user's normalized records without caching.
func (s *Service) Ledger(ctx context.Context, userID int64) (*models.Ledger, error) {
	return run(ctx, s, "ledger", userID, func(ctx context.Context) (*models.Ledger, error) {
		return s.ledger(ctx, userID)
	})
}

func (s *Service) YearlyTotals(ctx context.Context, userID int64) ([]models.YearlyTotal, error) {
	return run(ctx, s, "yearly_totals", userID, func(ctx context.Context) ([]models.YearlyTotal, error) {
		return cached(ctx, s, userID, "yearly_totals", nil, func(_ context.Context, l *models.Ledger) ([]models.YearlyTotal, error) {
			return s.agg.YearlyTotals(l), nil
		})
	})
}

func (s *Service) CropYear(ctx context.Context, userID int64, cropName string, year int) (*models.CropYearDetail, error) {
	if err := validateCropYear(cropName, year); err != nil {
		return nil, err
	}

	out, err := run(ctx, s, "crop_year", userID, func(ctx context.Context) (models.CropYearDetail, error) {
		params := []any{normalizedName(cropName), year}
		return cached(ctx, s, userID, "crop_year", params, func(_ context.Context, l *models.Ledger) (models.CropYearDetail, error) {
			return s.agg.CropYear(l, cropName, year), nil
		})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Forecast predicts yield for a new planting from the user's stored history.
func (s *Service) Forecast(ctx context.Context, req forecast.Request) (*models.ForecastResult, error) {
	out, err := run(ctx, s, "forecast", req.UserID, func(ctx context.Context) (*models.ForecastResult, error) {
		params := []any{normalizedName(req.CropName), req.Area, req.PlantingDate.Format(time.DateOnly)}
		return cached(ctx, s, req.UserID, "forecast", params, func(ctx context.Context, l *models.Ledger) (*models.ForecastResult, error) {
			_, span := s.tracer.Start(ctx, "forecast.predict")
			defer span.End()
			return s.fc.Predict(req, l)
		})
	})
	if err != nil {
		return nil, err
	}
	metrics.ForecastPathTotal.WithLabelValues(out.DecisionReason).Inc()
	return out, nil
}
