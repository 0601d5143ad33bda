package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/JLsquare/voxplace/internal/place"
)

// SavePlaceUsers upserts the latest painter of every cell in the batch.
func (s *SQLite) SavePlaceUsers(ctx context.Context, events []place.PaintEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrPersistence, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO PlaceUser (place_id, user_id, x, y, z) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: prepare: %v", ErrPersistence, err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx, ev.PlaceID, ev.UserID, ev.X, ev.Y, ev.Z); err != nil {
			return fmt.Errorf("%w: place user: %v", ErrPersistence, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrPersistence, err)
	}
	return nil
}

// PlaceUser returns the user who last painted a cell.
func (s *SQLite) PlaceUser(ctx context.Context, placeID int64, x, y, z int) (int64, error) {
	var userID int64
	err := s.db.QueryRowContext(ctx, `SELECT user_id FROM PlaceUser WHERE place_id = ? AND x = ? AND y = ? AND z = ?`,
		placeID, x, y, z).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return userID, err
}

func (s *SQLite) NextAllowed(ctx context.Context, placeID, userID int64) (time.Time, error) {
	var sec int64
	err := s.db.QueryRowContext(ctx, `SELECT cooldown FROM PlaceUserCooldown WHERE place_id = ? AND user_id = ?`,
		placeID, userID).Scan(&sec)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return unixOrZero(sec), nil
}

func (s *SQLite) SetNextAllowed(ctx context.Context, placeID, userID int64, next time.Time) error {
	// Round up so a stored cooldown never expires early.
	sec := next.Unix()
	if next.Nanosecond() > 0 {
		sec++
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO PlaceUserCooldown (place_id, user_id, cooldown) VALUES (?, ?, ?)`,
		placeID, userID, sec)
	return err
}
