package report

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/lox/harvestcast/internal/models"
)

func normalizedName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func validateCropYear(cropName string, year int) error {
	if strings.TrimSpace(cropName) == "" {
		return &models.InvalidParameterError{Param: "cropName", Reason: "must not be empty"}
	}
	if year < 1000 || year > 9999 {
		return &models.InvalidParameterError{Param: "year", Reason: fmt.Sprintf("%d is not a four-digit year", year)}
	}
	return nil
}

// Dashboard computes the range aggregations of the stats page. The sections
// are independent and run concurrently; the first failure cancels the rest.
func (s *Service) Dashboard(ctx context.Context, userID int64, fromYear, toYear, topN int) (*models.Dashboard, error) {
	out, err := run(ctx, s, "dashboard", userID, func(ctx context.Context) (models.Dashboard, error) {
		return cached(ctx, s, userID, "dashboard", []any{fromYear, toYear, topN}, func(ctx context.Context, l *models.Ledger) (models.Dashboard, error) {
			return s.dashboard(ctx, l, fromYear, toYear, topN)
		})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) dashboard(ctx context.Context, l *models.Ledger, fromYear, toYear, topN int) (models.Dashboard, error) {
	d := models.Dashboard{UserID: l.UserID, FromYear: fromYear, ToYear: toYear}

	g, gctx := errgroup.WithContext(ctx)
	section := func(name string, fn func() error) {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, span := s.tracer.Start(gctx, "aggregate."+name)
			span.SetAttributes(attribute.Int("harvestcast.from_year", fromYear), attribute.Int("harvestcast.to_year", toYear))
			defer span.End()
			return fn()
		})
	}

	section("yearly_totals", func() error {
		d.YearlyTotals = s.agg.YearlyTotals(l)
		return nil
	})
	section("top_crops", func() error {
		var err error
		d.TopCrops, err = s.agg.TopCrops(l, fromYear, toYear, topN)
		return err
	})
	section("seasonality", func() error {
		var err error
		d.Seasonality, err = s.agg.Seasonality(l, fromYear, toYear)
		return err
	})
	section("distribution", func() error {
		var err error
		d.Distribution, err = s.agg.Distribution(l, fromYear, toYear, nil)
		return err
	})
	section("summary", func() error {
		var err error
		d.Summary, err = s.agg.Summary(l, fromYear, toYear)
		return err
	})

	if err := g.Wait(); err != nil {
		return models.Dashboard{}, err
	}
	return d, nil
}
