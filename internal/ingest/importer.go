// Package ingest bulk-loads crops and harvests from CSV files or an XLSX
// workbook into the event store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/lox/harvestcast/internal/logger"
	"github.com/lox/harvestcast/internal/metrics"
	"github.com/lox/harvestcast/internal/models"
	"github.com/lox/harvestcast/internal/normalize"
	"github.com/lox/harvestcast/internal/store"
)

const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

type Importer struct {
	store       *store.Store
	log         *logger.Logger
	skipInvalid bool
}

type Option func(*Importer)

// WithSkipInvalid imports the valid records of a file and reports the rest
// instead of rejecting the whole file.
func WithSkipInvalid(skip bool) Option {
	return func(i *Importer) { i.skipInvalid = skip }
}

func NewImporter(st *store.Store, log *logger.Logger, opts ...Option) *Importer {
	if log == nil {
		log = logger.Nop()
	}
	i := &Importer{store: st, log: log.With("component", "importer")}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

type Result struct {
	BatchID  string  `json:"batchId"`
	Crops    int     `json:"crops"`
	Harvests int     `json:"harvests"`
	Rejected []error `json:"-"`
}

// Import validates sheets against the user's stored records and saves the
// accepted rows as one batch. payload is the original file content, used for
// duplicate detection.
func (i *Importer) Import(ctx context.Context, userID int64, source, format string, payload []byte, sheets *Sheets) (*Result, error) {
	log := i.log.With("user", userID, "source", source)

	crops, harvests, rejected, err := sheets.rawRecords(userID)
	if err != nil {
		return nil, err
	}
	if len(rejected) > 0 && !i.skipInvalid {
		return nil, rejected[0]
	}

	existingCrops, existingHarvests, err := i.store.LoadRaw(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load existing records: %w", err)
	}

	accepted, more, err := i.validate(userID, existingCrops, existingHarvests, crops, harvests)
	if err != nil {
		return nil, err
	}
	rejected = append(rejected, more...)

	for _, r := range rejected {
		metrics.RecordsRejected.WithLabelValues(recordKind(r)).Inc()
		log.Warn("record rejected", "error", r)
	}

	if len(accepted.crops) == 0 && len(accepted.harvests) == 0 {
		return nil, fmt.Errorf("%s: no importable records", source)
	}

	batch := store.ImportBatch{
		ID:       uuid.NewString(),
		UserID:   userID,
		Source:   source,
		Format:   format,
		Crops:    len(accepted.crops),
		Harvests: len(accepted.harvests),
		Rejected: len(rejected),
	}
	if err := i.store.SaveImport(ctx, batch, payload, accepted.crops, accepted.harvests); err != nil {
		return nil, err
	}

	metrics.RecordsImported.WithLabelValues("crop").Add(float64(batch.Crops))
	metrics.RecordsImported.WithLabelValues("harvest").Add(float64(batch.Harvests))
	log.Info("import complete", "batch", batch.ID, "crops", batch.Crops, "harvests", batch.Harvests, "rejected", batch.Rejected)

	return &Result{BatchID: batch.ID, Crops: batch.Crops, Harvests: batch.Harvests, Rejected: rejected}, nil
}

type acceptedRecords struct {
	crops    []models.RawCrop
	harvests []models.RawHarvest
}

// validate runs every new record through the normalizer. Harvests may
// reference stored crops or crops from the same file. In strict mode the
// first failure is returned as err.
func (i *Importer) validate(userID int64, existingCrops []models.RawCrop, existingHarvests []models.RawHarvest, crops []models.RawCrop, harvests []models.RawHarvest) (acceptedRecords, []error, error) {
	var out acceptedRecords
	var rejected []error

	reject := func(err error) error {
		if !i.skipInvalid {
			return err
		}
		rejected = append(rejected, err)
		return nil
	}

	known := make(map[int64]models.CropRecord, len(existingCrops)+len(crops))
	taken := make(map[int64]bool, len(existingCrops))
	for _, raw := range existingCrops {
		taken[raw.ID] = true
		if c, err := normalize.NormalizeCrop(userID, raw); err == nil {
			known[c.ID] = c
		}
	}

	for _, raw := range crops {
		if taken[raw.ID] {
			if err := reject(duplicate("crop", raw.ID)); err != nil {
				return out, nil, err
			}
			continue
		}
		c, err := normalize.NormalizeCrop(userID, raw)
		if err != nil {
			if err := reject(err); err != nil {
				return out, nil, err
			}
			continue
		}
		taken[raw.ID] = true
		known[c.ID] = c
		out.crops = append(out.crops, raw)
	}

	seen := make(map[int64]bool, len(existingHarvests)+len(harvests))
	for _, h := range existingHarvests {
		seen[h.ID] = true
	}
	for _, raw := range harvests {
		if seen[raw.ID] {
			if err := reject(duplicate("harvest", raw.ID)); err != nil {
				return out, nil, err
			}
			continue
		}
		crop, ok := known[raw.CropID]
		if !ok {
			err := &models.ValidationError{Record: "harvest", ID: raw.ID, Field: "cropId", Value: strconv.FormatInt(raw.CropID, 10), Reason: normalize.ReasonUnknownCrop}
			if err := reject(err); err != nil {
				return out, nil, err
			}
			continue
		}
		if _, err := normalize.NormalizeHarvest(crop, raw); err != nil {
			if err := reject(err); err != nil {
				return out, nil, err
			}
			continue
		}
		seen[raw.ID] = true
		out.harvests = append(out.harvests, raw)
	}

	return out, rejected, nil
}

func recordKind(err error) string {
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		return ve.Record
	}
	var ce *models.ChronologyError
	if errors.As(err, &ce) {
		return "harvest"
	}
	return "unknown"
}

func duplicate(record string, id int64) error {
	return &models.ValidationError{Record: record, ID: id, Field: "id", Value: strconv.FormatInt(id, 10), Reason: normalize.ReasonDuplicateID}
}
