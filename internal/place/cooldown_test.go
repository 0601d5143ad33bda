package place

import (
	"context"
	"testing"
	"time"
)

type countingCooldowns struct {
	*MemoryCooldowns
	reads int
}

func (c *countingCooldowns) NextAllowed(ctx context.Context, placeID, userID int64) (time.Time, error) {
	c.reads++
	return c.MemoryCooldowns.NextAllowed(ctx, placeID, userID)
}

func TestCachedCooldowns_ReadsBackingOnce(t *testing.T) {
	ctx := context.Background()
	backing := &countingCooldowns{MemoryCooldowns: NewMemoryCooldowns()}
	want := time.Unix(500, 0)
	_ = backing.SetNextAllowed(ctx, 1, 2, want)

	c := NewCachedCooldowns(backing)
	for i := 0; i < 3; i++ {
		got, err := c.NextAllowed(ctx, 1, 2)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if !got.Equal(want) {
			t.Fatalf("got=%v want=%v", got, want)
		}
	}
	if backing.reads != 1 {
		t.Fatalf("backing reads=%d want 1", backing.reads)
	}

	next := time.Unix(900, 0)
	if err := c.SetNextAllowed(ctx, 1, 2, next); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got, _ := backing.MemoryCooldowns.NextAllowed(ctx, 1, 2); !got.Equal(next) {
		t.Fatalf("write-through missing: %v", got)
	}
}

func TestPlace_PendingQueue(t *testing.T) {
	p := New(1, true, 0, nil)
	p.Enqueue(PaintEvent{X: 1, UserID: 10})
	p.Enqueue(PaintEvent{X: 1, UserID: 11})
	if u, ok := p.LatestPending(1, 0, 0); !ok || u != 11 {
		t.Fatalf("latest=%d ok=%v", u, ok)
	}
	if got := p.Drain(); len(got) != 2 {
		t.Fatalf("drain=%d want 2", len(got))
	}
	if p.PendingLen() != 0 {
		t.Fatalf("queue not empty after drain")
	}
}

func TestPlace_GridFlushDue(t *testing.T) {
	p := New(1, true, 0, nil)
	now := time.Now()
	if p.GridFlushDue(now.Add(time.Hour), 5*time.Second) {
		t.Fatalf("clean place due")
	}
	p.MarkDirty()
	if p.GridFlushDue(now, 5*time.Second) {
		t.Fatalf("recently flushed place due")
	}
	if !p.GridFlushDue(now.Add(6*time.Second), 5*time.Second) {
		t.Fatalf("dirty stale place not due")
	}
	p.BeginGridFlush(now.Add(6 * time.Second))
	if p.Dirty() {
		t.Fatalf("dirty after BeginGridFlush")
	}
}
