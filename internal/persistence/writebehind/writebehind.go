// Package writebehind moves accepted paints and canvas snapshots into
// durable storage off the paint path.
package writebehind

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JLsquare/voxplace/internal/persistence/vxl"
	"github.com/JLsquare/voxplace/internal/place"
)

const (
	DefaultFlushInterval = 5 * time.Second
	DefaultGridFlushAge  = 5 * time.Second
)

type Store interface {
	SavePlaceUsers(ctx context.Context, events []place.PaintEvent) error
	SaveVoxelGrid(ctx context.Context, voxelID int64, grid []byte, modifiedAt time.Time) error
}

// Places resolves the active places. The registry implements it.
type Places interface {
	Get(placeID int64) (*place.Place, error)
	All() []*place.Place
}

type Config struct {
	FlushInterval time.Duration
	GridFlushAge  time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

type Stats struct {
	RecordedEvents  uint64
	DroppedEvents   uint64
	FlushedEvents   uint64
	FailedBatches   uint64
	FlushedGrids    uint64
	FailedSnapshots uint64
}

// WriteBehind queues paint events on their place and periodically writes
// them, plus a snapshot of every changed canvas, to the store. Failed writes
// are logged and dropped; the in-memory canvas stays authoritative.
type WriteBehind struct {
	store  Store
	places Places
	cfg    Config
	logger *log.Logger

	flushMu sync.Mutex

	recorded        atomic.Uint64
	dropped         atomic.Uint64
	flushedEvents   atomic.Uint64
	failedBatches   atomic.Uint64
	flushedGrids    atomic.Uint64
	failedSnapshots atomic.Uint64
}

func New(store Store, places Places, cfg Config, logger *log.Logger) *WriteBehind {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.GridFlushAge <= 0 {
		cfg.GridFlushAge = DefaultGridFlushAge
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &WriteBehind{store: store, places: places, cfg: cfg, logger: logger}
}

// Record queues ev on its place. Events for places that are no longer
// active are dropped.
func (w *WriteBehind) Record(ev place.PaintEvent) {
	p, err := w.places.Get(ev.PlaceID)
	if err != nil {
		w.dropped.Add(1)
		return
	}
	p.Enqueue(ev)
	w.recorded.Add(1)
}

// FlushTick writes pending events of every place, then snapshots the places
// whose grid is due. The returned error joins every failure of the tick.
func (w *WriteBehind) FlushTick(ctx context.Context) error {
	return w.flush(ctx, w.cfg.GridFlushAge)
}

func (w *WriteBehind) flush(ctx context.Context, gridAge time.Duration) error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	var errs []error
	for _, p := range w.places.All() {
		if err := w.flushEvents(ctx, p); err != nil {
			errs = append(errs, err)
		}
		if err := w.flushGrid(ctx, p, gridAge); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *WriteBehind) flushEvents(ctx context.Context, p *place.Place) error {
	batch := dedupe(p.Drain())
	if len(batch) == 0 {
		return nil
	}
	if err := w.store.SavePlaceUsers(ctx, batch); err != nil {
		w.failedBatches.Add(1)
		w.printf("flush events place=%d events=%d err=%v", p.ID, len(batch), err)
		return fmt.Errorf("place %d events: %w", p.ID, err)
	}
	w.flushedEvents.Add(uint64(len(batch)))
	return nil
}

func (w *WriteBehind) flushGrid(ctx context.Context, p *place.Place, age time.Duration) error {
	now := w.cfg.Now()
	if !p.GridFlushDue(now, age) {
		return nil
	}
	p.BeginGridFlush(now)
	blob, err := vxl.CompressGrid(p.Canvas.Snapshot())
	if err == nil {
		err = w.store.SaveVoxelGrid(ctx, p.Canvas.ID(), blob, p.Canvas.LastModified())
	}
	if err != nil {
		w.failedSnapshots.Add(1)
		w.printf("flush grid place=%d voxel=%d err=%v", p.ID, p.Canvas.ID(), err)
		return fmt.Errorf("place %d grid: %w", p.ID, err)
	}
	w.flushedGrids.Add(1)
	return nil
}

// dedupe keeps the last event per cell, in first-seen order.
func dedupe(events []place.PaintEvent) []place.PaintEvent {
	if len(events) < 2 {
		return events
	}
	type cell struct{ x, y, z int }
	pos := make(map[cell]int, len(events))
	out := make([]place.PaintEvent, 0, len(events))
	for _, ev := range events {
		k := cell{ev.X, ev.Y, ev.Z}
		if i, ok := pos[k]; ok {
			out[i] = ev
			continue
		}
		pos[k] = len(out)
		out = append(out, ev)
	}
	return out
}

// Run flushes every FlushInterval until ctx is done.
func (w *WriteBehind) Run(ctx context.Context) error {
	t := time.NewTicker(w.cfg.FlushInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			_ = w.FlushTick(ctx)
		}
	}
}

// FlushPlace writes everything pending for one place, snapshotting its grid
// regardless of age. The registry calls it when a place goes offline.
func (w *WriteBehind) FlushPlace(ctx context.Context, p *place.Place) error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()
	return errors.Join(w.flushEvents(ctx, p), w.flushGrid(ctx, p, 0))
}

// Close performs a final flush that snapshots every changed canvas
// regardless of age.
func (w *WriteBehind) Close(ctx context.Context) error {
	return w.flush(ctx, 0)
}

func (w *WriteBehind) Stats() Stats {
	return Stats{
		RecordedEvents:  w.recorded.Load(),
		DroppedEvents:   w.dropped.Load(),
		FlushedEvents:   w.flushedEvents.Load(),
		FailedBatches:   w.failedBatches.Load(),
		FlushedGrids:    w.flushedGrids.Load(),
		FailedSnapshots: w.failedSnapshots.Load(),
	}
}

func (w *WriteBehind) printf(format string, args ...any) {
	if w.logger == nil {
		return
	}
	w.logger.Printf(format, args...)
}
