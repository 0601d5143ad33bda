package place

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Publisher delivers an applied paint to live viewers of a place.
type Publisher interface {
	Broadcast(placeID int64, x, y, z int, color uint8)
}

// EventSink receives accepted paints in apply order. Record runs under the
// place's commit lock and must not block on I/O.
type EventSink interface {
	Record(ev PaintEvent)
}

type GateConfig struct {
	Cooldowns CooldownStore
	Publisher Publisher
	Sinks     []EventSink
	Logger    *log.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Gate validates and applies paint requests.
//
// Validation runs without any lock held, so two requests can both pass the
// adjacency check against a state that one of them is about to change. The
// commit step orders Set with its broadcast and its recorded event, so
// viewers and sinks see paints of a place in apply order.
type Gate struct {
	cooldowns CooldownStore
	pub       Publisher
	sinks     []EventSink
	logger    *log.Logger
	now       func() time.Time
}

func NewGate(cfg GateConfig) *Gate {
	g := &Gate{
		cooldowns: cfg.Cooldowns,
		pub:       cfg.Publisher,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	for _, s := range cfg.Sinks {
		if s != nil {
			g.sinks = append(g.sinks, s)
		}
	}
	if g.cooldowns == nil {
		g.cooldowns = NewMemoryCooldowns()
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

// Apply paints one cell and returns when the user may paint again.
func (g *Gate) Apply(ctx context.Context, p *Place, x, y, z int, color uint8, userID int64) (time.Time, error) {
	if p == nil || !p.Online() {
		return time.Time{}, ErrPlaceOffline
	}
	c := p.Canvas
	cur, err := c.Get(x, y, z)
	if err != nil {
		return time.Time{}, err
	}
	if !c.Palette().Valid(color) {
		return time.Time{}, fmt.Errorf("%w: %d not in 1..%d", ErrInvalidColor, color, c.Palette().Len())
	}

	now := g.now()
	next, err := g.cooldowns.NextAllowed(ctx, p.ID, userID)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrCooldownStore, err)
	}
	if now.Before(next) {
		return time.Time{}, &CooldownError{Remaining: next.Sub(now)}
	}

	if y != 0 && cur == 0 && !c.HasPaintedNeighbor(x, y, z) {
		return time.Time{}, ErrNoAdjacency
	}

	p.commitMu.Lock()
	if !p.Online() {
		p.commitMu.Unlock()
		return time.Time{}, ErrPlaceOffline
	}
	if err := c.Set(x, y, z, color); err != nil {
		p.commitMu.Unlock()
		return time.Time{}, err
	}
	if g.pub != nil {
		g.pub.Broadcast(p.ID, x, y, z, color)
	}
	p.MarkDirty()
	ev := PaintEvent{PlaceID: p.ID, UserID: userID, X: x, Y: y, Z: z, Color: color, At: g.now()}
	for _, s := range g.sinks {
		s.Record(ev)
	}
	p.commitMu.Unlock()

	expiry := now.Add(p.Cooldown)
	if err := g.cooldowns.SetNextAllowed(ctx, p.ID, userID, expiry); err != nil {
		g.printf("cooldown write failed place=%d user=%d err=%v", p.ID, userID, err)
	}
	return expiry, nil
}

func (g *Gate) printf(format string, args ...any) {
	if g.logger == nil {
		return
	}
	g.logger.Printf(format, args...)
}
