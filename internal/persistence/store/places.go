package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/JLsquare/voxplace/internal/canvas"
)

type PlaceRow struct {
	PlaceID  int64
	Online   bool
	Cooldown time.Duration
	VoxelID  int64
}

type VoxelRow struct {
	VoxelID        int64
	Name           string
	PaletteID      int64
	Size           canvas.Size
	CreatedAt      time.Time
	LastModifiedAt time.Time
	// Grid is the gzip-compressed flattened grid.
	Grid []byte
}

func (s *SQLite) ListPlaces(ctx context.Context) ([]PlaceRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT place_id, online, cooldown, voxel_id FROM Place ORDER BY place_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PlaceRow
	for rows.Next() {
		var r PlaceRow
		var online int
		var cooldown int64
		if err := rows.Scan(&r.PlaceID, &online, &cooldown, &r.VoxelID); err != nil {
			return nil, err
		}
		r.Online = online != 0
		r.Cooldown = time.Duration(cooldown) * time.Second
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) Place(ctx context.Context, placeID int64) (PlaceRow, error) {
	r := PlaceRow{PlaceID: placeID}
	var online int
	var cooldown int64
	err := s.db.QueryRowContext(ctx, `SELECT online, cooldown, voxel_id FROM Place WHERE place_id = ?`, placeID).
		Scan(&online, &cooldown, &r.VoxelID)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("place %d: %w", placeID, ErrNotFound)
	}
	if err != nil {
		return r, err
	}
	r.Online = online != 0
	r.Cooldown = time.Duration(cooldown) * time.Second
	return r, nil
}

func (s *SQLite) LoadVoxel(ctx context.Context, voxelID int64) (VoxelRow, error) {
	r := VoxelRow{VoxelID: voxelID}
	var created, modified int64
	err := s.db.QueryRowContext(ctx, `SELECT name, palette_id, size_x, size_y, size_z, created_at, last_modified_at, grid
		FROM Voxel WHERE voxel_id = ?`, voxelID).
		Scan(&r.Name, &r.PaletteID, &r.Size.X, &r.Size.Y, &r.Size.Z, &created, &modified, &r.Grid)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("voxel %d: %w", voxelID, ErrNotFound)
	}
	if err != nil {
		return r, err
	}
	r.CreatedAt = unixOrZero(created)
	r.LastModifiedAt = unixOrZero(modified)
	return r, nil
}

// CreatePlace inserts the canvas row and the place row in one transaction.
func (s *SQLite) CreatePlace(ctx context.Context, p PlaceRow, v VoxelRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO Voxel (voxel_id, name, palette_id, size_x, size_y, size_z, created_at, last_modified_at, grid)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.VoxelID, v.Name, v.PaletteID, v.Size.X, v.Size.Y, v.Size.Z,
		v.CreatedAt.Unix(), v.LastModifiedAt.Unix(), v.Grid); err != nil {
		return fmt.Errorf("insert voxel: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO Place (place_id, online, cooldown, voxel_id) VALUES (?, ?, ?, ?)`,
		p.PlaceID, boolInt(p.Online), int64(p.Cooldown/time.Second), v.VoxelID); err != nil {
		return fmt.Errorf("insert place: %w", err)
	}
	return tx.Commit()
}

func (s *SQLite) SetPlaceOnline(ctx context.Context, placeID int64, online bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE Place SET online = ? WHERE place_id = ?`, boolInt(online), placeID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("place %d: %w", placeID, ErrNotFound)
	}
	return nil
}

// SaveVoxelGrid replaces the stored grid blob of a canvas.
func (s *SQLite) SaveVoxelGrid(ctx context.Context, voxelID int64, grid []byte, modifiedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE Voxel SET grid = ?, last_modified_at = ? WHERE voxel_id = ?`,
		grid, modifiedAt.Unix(), voxelID)
	if err != nil {
		return fmt.Errorf("%w: save grid voxel=%d: %v", ErrPersistence, voxelID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: save grid voxel=%d: %w", ErrPersistence, voxelID, ErrNotFound)
	}
	return nil
}

func (s *SQLite) Palette(ctx context.Context, paletteID int64) (canvas.Palette, error) {
	var colors []byte
	err := s.db.QueryRowContext(ctx, `SELECT colors FROM Palette WHERE palette_id = ?`, paletteID).Scan(&colors)
	if errors.Is(err, sql.ErrNoRows) {
		return canvas.Palette{}, fmt.Errorf("palette %d: %w", paletteID, ErrNotFound)
	}
	if err != nil {
		return canvas.Palette{}, err
	}
	return canvas.UnpackPalette(paletteID, colors)
}

func (s *SQLite) SavePalette(ctx context.Context, p canvas.Palette) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO Palette (palette_id, colors) VALUES (?, ?)`, p.ID, p.Pack())
	return err
}

// EnsurePalette stores p unless its id is already present.
func (s *SQLite) EnsurePalette(ctx context.Context, p canvas.Palette) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO Palette (palette_id, colors) VALUES (?, ?)`, p.ID, p.Pack())
	return err
}
