package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/lox/harvestcast/internal/models"
)

// ErrDuplicateImport is returned when the same file was already imported for
// the user.
var ErrDuplicateImport = errors.New("file already imported")

// ImportBatch records one imported file. The original bytes are kept
// compressed so a batch can be re-read later.
type ImportBatch struct {
	ID         string
	UserID     int64
	ImportedAt time.Time
	Source     string
	Format     string
	Crops      int
	Harvests   int
	Rejected   int
	Hash       string
}

func PayloadHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// SaveImport writes the batch record and its crops and harvests in one
// transaction.
func (s *Store) SaveImport(ctx context.Context, batch ImportBatch, payload []byte, crops []models.RawCrop, harvests []models.RawHarvest) error {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return fmt.Errorf("compress payload: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("close gzip: %w", err)
	}
	if batch.Hash == "" {
		batch.Hash = PayloadHash(payload)
	}
	if batch.ImportedAt.IsZero() {
		batch.ImportedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT id FROM import_batches WHERE user_id = ? AND payload_hash = ?`,
		batch.UserID, batch.Hash).Scan(&existing)
	if err == nil {
		return fmt.Errorf("%w as batch %s", ErrDuplicateImport, existing)
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("check duplicate import: %w", err)
	}

	for _, c := range crops {
		if _, err := insertCrop(ctx, tx, c); err != nil {
			return fmt.Errorf("crop %d: %w", c.ID, err)
		}
	}
	for _, h := range harvests {
		if _, err := insertHarvest(ctx, tx, h); err != nil {
			return fmt.Errorf("harvest %d: %w", h.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO import_batches
		(id, user_id, imported_at, source, format, crops, harvests, rejected, payload_compressed, payload_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, batch.ID, batch.UserID, batch.ImportedAt, batch.Source, batch.Format,
		batch.Crops, batch.Harvests, batch.Rejected, buf.Bytes(), batch.Hash); err != nil {
		return fmt.Errorf("insert import batch: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	s.log.Info("import saved", "batch", batch.ID, "user", batch.UserID, "crops", batch.Crops, "harvests", batch.Harvests)
	return nil
}

// ImportPayload returns the decompressed bytes of an imported file.
func (s *Store) ImportPayload(ctx context.Context, batchID string) ([]byte, error) {
	var compressed []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload_compressed FROM import_batches WHERE id = ?`, batchID).
		Scan(&compressed)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gz.Close()

	return io.ReadAll(gz)
}

// ImportBatches lists a user's imports, newest first.
func (s *Store) ImportBatches(ctx context.Context, userID int64) ([]ImportBatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, imported_at, source, format, crops, harvests, rejected, payload_hash
		FROM import_batches
		WHERE user_id = ?
		ORDER BY imported_at DESC, id ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []ImportBatch
	for rows.Next() {
		var b ImportBatch
		if err := rows.Scan(&b.ID, &b.UserID, &b.ImportedAt, &b.Source, &b.Format,
			&b.Crops, &b.Harvests, &b.Rejected, &b.Hash); err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}
