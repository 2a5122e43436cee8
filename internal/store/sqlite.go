// Package store is the SQLite event store holding each grower's crops and
// harvests. Values are kept exactly as entered; validation happens when the
// records are normalized for the engines.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lox/harvestcast/internal/logger"
	"github.com/lox/harvestcast/internal/models"
)

// ErrNotFound is returned when a record to delete does not exist for the user.
var ErrNotFound = errors.New("record not found")

type Store struct {
	db  *sql.DB
	log *logger.Logger
}

func New(db *sql.DB, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{db: db, log: log.With("component", "store")}
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Record ids are unique per user. A zero id takes the user's next free one.
func nextID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func insertCrop(ctx context.Context, q querier, c models.RawCrop) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO crops (user_id, id, name, area, planting_date)
		VALUES (?, COALESCE(?, (SELECT COALESCE(MAX(id), 0) + 1 FROM crops WHERE user_id = ?)), ?, ?, ?)
		RETURNING id
	`, c.UserID, nextID(c.ID), c.UserID, c.Name, c.Area, c.PlantingDate).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert crop: %w", err)
	}
	return id, nil
}

func insertHarvest(ctx context.Context, q querier, h models.RawHarvest) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO harvests (user_id, id, crop_id, date, yield_amount)
		VALUES (?, COALESCE(?, (SELECT COALESCE(MAX(id), 0) + 1 FROM harvests WHERE user_id = ?)), ?, ?, ?)
		RETURNING id
	`, h.UserID, nextID(h.ID), h.UserID, h.CropID, h.Date, h.YieldAmount).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert harvest: %w", err)
	}
	return id, nil
}

// InsertCrop stores a crop and returns its id.
func (s *Store) InsertCrop(ctx context.Context, c models.RawCrop) (int64, error) {
	return insertCrop(ctx, s.db, c)
}

// InsertHarvest stores a harvest. The referenced crop must belong to the same
// user.
func (s *Store) InsertHarvest(ctx context.Context, h models.RawHarvest) (int64, error) {
	var found int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM crops WHERE user_id = ? AND id = ?`, h.UserID, h.CropID).Scan(&found)
	if err == sql.ErrNoRows {
		return 0, &models.ValidationError{Record: "harvest", ID: h.ID, Field: "cropId", Value: fmt.Sprint(h.CropID), Reason: "crop not found for user"}
	}
	if err != nil {
		return 0, fmt.Errorf("lookup crop: %w", err)
	}
	return insertHarvest(ctx, s.db, h)
}

// DeleteCrop removes a crop and its harvests.
func (s *Store) DeleteCrop(ctx context.Context, userID, cropID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM harvests WHERE crop_id = ? AND user_id = ?`, cropID, userID); err != nil {
		return fmt.Errorf("delete harvests of crop %d: %w", cropID, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM crops WHERE id = ? AND user_id = ?`, cropID, userID)
	if err != nil {
		return fmt.Errorf("delete crop %d: %w", cropID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func (s *Store) DeleteHarvest(ctx context.Context, userID, harvestID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM harvests WHERE id = ? AND user_id = ?`, harvestID, userID)
	if err != nil {
		return fmt.Errorf("delete harvest %d: %w", harvestID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// LoadRaw returns every crop and harvest owned by userID, ordered by id.
func (s *Store) LoadRaw(ctx context.Context, userID int64) ([]models.RawCrop, []models.RawHarvest, error) {
	crops, err := s.loadCrops(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	harvests, err := s.loadHarvests(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return crops, harvests, nil
}

func (s *Store) loadCrops(ctx context.Context, userID int64) ([]models.RawCrop, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, area, planting_date
		FROM crops
		WHERE user_id = ?
		ORDER BY id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query crops: %w", err)
	}
	defer rows.Close()

	var crops []models.RawCrop
	for rows.Next() {
		var c models.RawCrop
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Area, &c.PlantingDate); err != nil {
			return nil, fmt.Errorf("scan crop: %w", err)
		}
		crops = append(crops, c)
	}
	return crops, rows.Err()
}

func (s *Store) loadHarvests(ctx context.Context, userID int64) ([]models.RawHarvest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, crop_id, date, yield_amount
		FROM harvests
		WHERE user_id = ?
		ORDER BY id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query harvests: %w", err)
	}
	defer rows.Close()

	var harvests []models.RawHarvest
	for rows.Next() {
		var h models.RawHarvest
		if err := rows.Scan(&h.ID, &h.UserID, &h.CropID, &h.Date, &h.YieldAmount); err != nil {
			return nil, fmt.Errorf("scan harvest: %w", err)
		}
		harvests = append(harvests, h)
	}
	return harvests, rows.Err()
}

// DataVersion is bumped by triggers on every change to a user's crops or
// harvests. Zero means the user has never written anything.
func (s *Store) DataVersion(ctx context.Context, userID int64) (int64, error) {
	var version int64
	err := s.db.QueryRowContext(ctx, `SELECT version FROM user_versions WHERE user_id = ?`, userID).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query data version: %w", err)
	}
	return version, nil
}

// Users lists every user with at least one crop.
func (s *Store) Users(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM crops ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}
