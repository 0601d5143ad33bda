// Package registry tracks the places that are online in this process.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/JLsquare/voxplace/internal/canvas"
	"github.com/JLsquare/voxplace/internal/persistence/store"
	"github.com/JLsquare/voxplace/internal/persistence/vxl"
	"github.com/JLsquare/voxplace/internal/place"
)

var (
	ErrPlaceNotFound       = errors.New("place not found")
	ErrRegistryUnavailable = errors.New("registry unavailable")
)

type Store interface {
	ListPlaces(ctx context.Context) ([]store.PlaceRow, error)
	Place(ctx context.Context, placeID int64) (store.PlaceRow, error)
	LoadVoxel(ctx context.Context, voxelID int64) (store.VoxelRow, error)
	Palette(ctx context.Context, paletteID int64) (canvas.Palette, error)
	CreatePlace(ctx context.Context, p store.PlaceRow, v store.VoxelRow) error
	SetPlaceOnline(ctx context.Context, placeID int64, online bool) error
}

type Registry struct {
	store  Store
	mode   canvas.IndexMode
	logger *log.Logger

	mu     sync.RWMutex
	places map[int64]*place.Place
	closed bool

	onOffline func(context.Context, *place.Place)
}

func New(st Store, mode canvas.IndexMode, logger *log.Logger) *Registry {
	return &Registry{
		store:  st,
		mode:   mode,
		logger: logger,
		places: make(map[int64]*place.Place),
	}
}

// Boot loads every online place from storage. A place whose canvas cannot be
// decoded is logged and skipped; the others still load.
func Boot(ctx context.Context, st Store, mode canvas.IndexMode, logger *log.Logger) (*Registry, error) {
	r := New(st, mode, logger)
	rows, err := st.ListPlaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("list places: %w", err)
	}
	for _, row := range rows {
		if !row.Online {
			continue
		}
		p, err := r.load(ctx, row)
		if err != nil {
			r.printf("skip place=%d voxel=%d err=%v", row.PlaceID, row.VoxelID, err)
			continue
		}
		r.places[p.ID] = p
	}
	r.printf("booted places=%d of=%d", len(r.places), len(rows))
	return r, nil
}

func (r *Registry) load(ctx context.Context, row store.PlaceRow) (*place.Place, error) {
	v, err := r.store.LoadVoxel(ctx, row.VoxelID)
	if err != nil {
		return nil, err
	}
	pal, err := r.store.Palette(ctx, v.PaletteID)
	if err != nil {
		return nil, err
	}
	if err := v.Size.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", vxl.ErrCorruptFormat, err)
	}
	grid, err := vxl.DecompressGrid(v.Grid, v.Size.Volume())
	if err != nil {
		return nil, err
	}
	c, err := canvas.FromGrid(v.VoxelID, v.Name, v.Size, pal, r.mode, grid)
	if err != nil {
		return nil, err
	}
	c.SetTimes(v.CreatedAt, v.LastModifiedAt)
	return place.New(row.PlaceID, true, row.Cooldown, c), nil
}

func (r *Registry) Get(placeID int64) (*place.Place, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrRegistryUnavailable
	}
	p, ok := r.places[placeID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrPlaceNotFound, placeID)
	}
	return p, nil
}

// All returns the active places ordered by id.
func (r *Registry) All() []*place.Place {
	r.mu.RLock()
	out := make([]*place.Place, 0, len(r.places))
	for _, p := range r.places {
		out = append(out, p)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) Add(p *place.Place) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRegistryUnavailable
	}
	r.places[p.ID] = p
	return nil
}

type CreateOptions struct {
	Name     string
	Size     canvas.Size
	Palette  int64
	Cooldown time.Duration
	// Seed fills the new canvas with a random floor-biased grid.
	Seed bool
	// PlaceID and VoxelID are chosen at random when zero.
	PlaceID int64
	VoxelID int64
}

// Create stores a new online place and activates it.
func (r *Registry) Create(ctx context.Context, opt CreateOptions) (*place.Place, error) {
	if opt.PlaceID == 0 {
		opt.PlaceID = randomID()
	}
	if opt.VoxelID == 0 {
		opt.VoxelID = randomID()
	}
	pal, err := r.store.Palette(ctx, opt.Palette)
	if err != nil {
		return nil, err
	}
	c, err := canvas.New(opt.VoxelID, opt.Name, opt.Size, pal, r.mode)
	if err != nil {
		return nil, err
	}
	if opt.Seed {
		grid := canvas.RandomGrid(opt.Size, r.mode, pal.Len(), rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
		if c, err = canvas.FromGrid(opt.VoxelID, opt.Name, opt.Size, pal, r.mode, grid); err != nil {
			return nil, err
		}
	}
	blob, err := vxl.CompressGrid(c.Snapshot())
	if err != nil {
		return nil, err
	}
	err = r.store.CreatePlace(ctx,
		store.PlaceRow{PlaceID: opt.PlaceID, Online: true, Cooldown: opt.Cooldown, VoxelID: opt.VoxelID},
		store.VoxelRow{
			VoxelID: opt.VoxelID, Name: opt.Name, PaletteID: opt.Palette, Size: opt.Size,
			CreatedAt: c.CreatedAt(), LastModifiedAt: c.LastModified(), Grid: blob,
		})
	if err != nil {
		return nil, err
	}
	p := place.New(opt.PlaceID, true, opt.Cooldown, c)
	if err := r.Add(p); err != nil {
		return nil, err
	}
	r.printf("created place=%d voxel=%d size=%dx%dx%d", p.ID, c.ID(), opt.Size.X, opt.Size.Y, opt.Size.Z)
	return p, nil
}

// SetOnline flips a place's online flag in storage. Going offline drops the
// place from the active set; going online reloads it from storage.
func (r *Registry) SetOnline(ctx context.Context, placeID int64, online bool) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	if err := r.store.SetPlaceOnline(ctx, placeID, online); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %d", ErrPlaceNotFound, placeID)
		}
		return err
	}
	if !online {
		r.mu.RLock()
		p, ok := r.places[placeID]
		r.mu.RUnlock()
		if !ok {
			return nil
		}
		// Retire waits for in-flight paints, which may still look the place
		// up to record their event, so r.mu must not be held here.
		p.Retire()
		r.mu.Lock()
		if r.places[placeID] == p {
			delete(r.places, placeID)
		}
		hook := r.onOffline
		r.mu.Unlock()
		if hook != nil {
			hook(ctx, p)
		}
		return nil
	}
	if _, err := r.Get(placeID); err == nil {
		return nil
	}
	row, err := r.store.Place(ctx, placeID)
	if err != nil {
		return err
	}
	p, err := r.load(ctx, row)
	if err != nil {
		return err
	}
	return r.Add(p)
}

// OnOffline registers fn to run after a place leaves the active set, so its
// pending writes can still be flushed.
func (r *Registry) OnOffline(fn func(context.Context, *place.Place)) {
	r.mu.Lock()
	r.onOffline = fn
	r.mu.Unlock()
}

func (r *Registry) checkOpen() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrRegistryUnavailable
	}
	return nil
}

// Close marks the registry unavailable. Places already handed out stay
// usable so a final flush can still read them.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

func (r *Registry) printf(format string, args ...any) {
	if r.logger == nil {
		return
	}
	r.logger.Printf(format, args...)
}

// randomID returns a positive id that fits a JS-safe integer.
func randomID() int64 {
	return rand.Int64N(1<<53-1) + 1
}
