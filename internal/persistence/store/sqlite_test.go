package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/JLsquare/voxplace/internal/canvas"
	"github.com/JLsquare/voxplace/internal/place"
)

func openTest(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "voxplace.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLite_CreateAndLoadPlace(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	if err := s.EnsurePalette(ctx, canvas.DefaultPalette()); err != nil {
		t.Fatalf("palette: %v", err)
	}
	created := time.Unix(1_700_000_000, 0).UTC()
	v := VoxelRow{
		VoxelID: 11, Name: "plaza", PaletteID: 0,
		Size:      canvas.Size{X: 2, Y: 3, Z: 4},
		CreatedAt: created, LastModifiedAt: created,
		Grid: []byte{1, 2, 3},
	}
	if err := s.CreatePlace(ctx, PlaceRow{PlaceID: 7, Online: true, Cooldown: 10 * time.Second}, v); err != nil {
		t.Fatalf("create: %v", err)
	}

	places, err := s.ListPlaces(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(places) != 1 || places[0] != (PlaceRow{PlaceID: 7, Online: true, Cooldown: 10 * time.Second, VoxelID: 11}) {
		t.Fatalf("places=%+v", places)
	}

	got, err := s.LoadVoxel(ctx, 11)
	if err != nil {
		t.Fatalf("load voxel: %v", err)
	}
	if got.Name != "plaza" || got.Size != v.Size || string(got.Grid) != string(v.Grid) || !got.CreatedAt.Equal(created) {
		t.Fatalf("voxel=%+v", got)
	}

	mod := created.Add(time.Minute)
	if err := s.SaveVoxelGrid(ctx, 11, []byte{9}, mod); err != nil {
		t.Fatalf("save grid: %v", err)
	}
	got, _ = s.LoadVoxel(ctx, 11)
	if string(got.Grid) != "\x09" || !got.LastModifiedAt.Equal(mod) {
		t.Fatalf("grid not updated: %+v", got)
	}
	if err := s.SaveVoxelGrid(ctx, 999, []byte{9}, mod); !errors.Is(err, ErrPersistence) || !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing voxel err=%v", err)
	}

	if err := s.SetPlaceOnline(ctx, 7, false); err != nil {
		t.Fatalf("offline: %v", err)
	}
	if p, _ := s.Place(ctx, 7); p.Online {
		t.Fatalf("place still online")
	}
	if err := s.SetPlaceOnline(ctx, 8, false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown place err=%v", err)
	}
	if _, err := s.LoadVoxel(ctx, 12); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown voxel err=%v", err)
	}
}

func TestSQLite_Palette(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	p := canvas.Palette{ID: 3, Colors: []canvas.Color{{R: 1, G: 2, B: 3}, {R: 4, G: 5, B: 6}}}
	if err := s.SavePalette(ctx, p); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Palette(ctx, 3)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.ID != 3 || got.Len() != 2 || got.Colors[1] != p.Colors[1] {
		t.Fatalf("palette=%+v", got)
	}
	// EnsurePalette keeps the existing row.
	if err := s.EnsurePalette(ctx, canvas.Palette{ID: 3}); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if got, _ := s.Palette(ctx, 3); got.Len() != 2 {
		t.Fatalf("EnsurePalette overwrote palette")
	}
	if _, err := s.Palette(ctx, 4); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
}

func TestSQLite_PlaceUsersUpsert(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	batch := []place.PaintEvent{
		{PlaceID: 1, UserID: 10, X: 1, Y: 0, Z: 1},
		{PlaceID: 1, UserID: 11, X: 1, Y: 0, Z: 1},
		{PlaceID: 1, UserID: 12, X: 2, Y: 0, Z: 1},
	}
	if err := s.SavePlaceUsers(ctx, batch); err != nil {
		t.Fatalf("save: %v", err)
	}
	if u, err := s.PlaceUser(ctx, 1, 1, 0, 1); err != nil || u != 11 {
		t.Fatalf("cell (1,0,1) user=%d err=%v want 11", u, err)
	}
	if u, _ := s.PlaceUser(ctx, 1, 2, 0, 1); u != 12 {
		t.Fatalf("cell (2,0,1) user=%d want 12", u)
	}
	if _, err := s.PlaceUser(ctx, 1, 3, 3, 3); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty cell err=%v", err)
	}
	if err := s.SavePlaceUsers(ctx, nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
}

func TestSQLite_Cooldowns(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	var _ place.CooldownStore = s

	if got, err := s.NextAllowed(ctx, 1, 2); err != nil || !got.IsZero() {
		t.Fatalf("fresh cooldown=%v err=%v", got, err)
	}
	next := time.Unix(1_010, 0)
	if err := s.SetNextAllowed(ctx, 1, 2, next); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, _ := s.NextAllowed(ctx, 1, 2); !got.Equal(next) {
		t.Fatalf("got=%v want=%v", got, next)
	}
	if err := s.SetNextAllowed(ctx, 1, 2, time.Unix(1_020, 500)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, _ := s.NextAllowed(ctx, 1, 2); !got.Equal(time.Unix(1_021, 0)) {
		t.Fatalf("sub-second cooldown not rounded up: %v", got)
	}
}

func TestSQLite_Users(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	if err := s.UpsertUser(ctx, User{UserID: 5, Username: "ada"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.UpsertUser(ctx, User{UserID: 5, Username: "ada", IsAdmin: true}); err != nil {
		t.Fatalf("upsert admin: %v", err)
	}
	u, err := s.User(ctx, 5)
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	if u.Username != "ada" || !u.IsAdmin {
		t.Fatalf("user=%+v", u)
	}
	if _, err := s.User(ctx, 6); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
	users, _ := s.ListUsers(ctx)
	if len(users) != 1 {
		t.Fatalf("users=%d", len(users))
	}
}
