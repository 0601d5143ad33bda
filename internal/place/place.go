package place

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/JLsquare/voxplace/internal/canvas"
)

// PaintEvent is one accepted paint, queued for durable storage.
type PaintEvent struct {
	PlaceID int64     `json:"place_id"`
	UserID  int64     `json:"user_id"`
	X       int       `json:"x"`
	Y       int       `json:"y"`
	Z       int       `json:"z"`
	Color   uint8     `json:"color"`
	At      time.Time `json:"at"`
}

// Place binds a canvas to its cooldown and online state.
type Place struct {
	ID       int64
	Cooldown time.Duration
	Canvas   *canvas.Canvas

	online        atomic.Bool
	dirty         atomic.Bool
	lastGridFlush atomic.Int64 // unix nanos

	// commitMu orders canvas writes with their broadcast and their recorded
	// event.
	commitMu sync.Mutex

	pendingMu sync.Mutex
	pending   []PaintEvent
}

func New(id int64, online bool, cooldown time.Duration, c *canvas.Canvas) *Place {
	p := &Place{ID: id, Cooldown: cooldown, Canvas: c}
	p.online.Store(online)
	p.lastGridFlush.Store(time.Now().UnixNano())
	return p
}

func (p *Place) Online() bool      { return p.online.Load() }
func (p *Place) SetOnline(on bool) { p.online.Store(on) }
func (p *Place) Dirty() bool       { return p.dirty.Load() }
func (p *Place) MarkDirty()        { p.dirty.Store(true) }

// Retire takes the place offline once any in-flight commit has finished.
// After it returns no further paint is applied, and every applied paint has
// been recorded and marked the place dirty.
func (p *Place) Retire() {
	p.commitMu.Lock()
	p.online.Store(false)
	p.commitMu.Unlock()
}

// GridFlushDue reports whether the grid changed since the last flush and that
// flush is older than age.
func (p *Place) GridFlushDue(now time.Time, age time.Duration) bool {
	if !p.dirty.Load() {
		return false
	}
	return now.Sub(time.Unix(0, p.lastGridFlush.Load())) >= age
}

// BeginGridFlush clears the dirty flag before the snapshot is taken, so a
// paint racing the snapshot marks the place dirty again.
func (p *Place) BeginGridFlush(now time.Time) {
	p.dirty.Store(false)
	p.lastGridFlush.Store(now.UnixNano())
}

func (p *Place) Enqueue(ev PaintEvent) {
	p.pendingMu.Lock()
	p.pending = append(p.pending, ev)
	p.pendingMu.Unlock()
}

// Drain swaps out the pending queue.
func (p *Place) Drain() []PaintEvent {
	p.pendingMu.Lock()
	out := p.pending
	p.pending = nil
	p.pendingMu.Unlock()
	return out
}

func (p *Place) PendingLen() int {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	return len(p.pending)
}

// LatestPending returns the newest queued painter of a cell that has not
// reached storage yet.
func (p *Place) LatestPending(x, y, z int) (int64, bool) {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	for i := len(p.pending) - 1; i >= 0; i-- {
		ev := p.pending[i]
		if ev.X == x && ev.Y == y && ev.Z == z {
			return ev.UserID, true
		}
	}
	return 0, false
}
