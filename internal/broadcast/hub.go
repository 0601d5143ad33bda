package broadcast

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"sync/atomic"

	"github.com/JLsquare/voxplace/internal/protocol"
)

const DefaultQueueSize = 256

var ErrHubClosed = errors.New("broadcast hub closed")

// Sink is one live viewer connection.
type Sink interface {
	Send(msg []byte) error
	Close() error
}

type Stats struct {
	Subscribers  int
	Delivered    uint64
	Evicted      uint64
	SendFailures uint64
}

// Hub fans applied paints out to the viewers of each place.
//
// Every subscriber owns a bounded queue and a goroutine draining it, so a
// slow viewer never holds up a paint or another viewer. A viewer whose queue
// fills up is evicted and has to resync from a fresh snapshot.
type Hub struct {
	queueSize int
	logger    *log.Logger

	mu     sync.RWMutex // guards places and closed
	places map[int64]*room
	closed bool

	delivered    atomic.Uint64
	evicted      atomic.Uint64
	sendFailures atomic.Uint64
}

type room struct {
	mu   sync.RWMutex
	subs map[Sink]*Subscription
}

// Subscription is the hub's handle on one registered sink.
type Subscription struct {
	PlaceID int64

	sink     Sink
	out      chan []byte
	quit     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// Done is closed once the subscription's writer goroutine has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) stop() {
	s.stopOnce.Do(func() { close(s.quit) })
}

func NewHub(queueSize int, logger *log.Logger) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Hub{
		queueSize: queueSize,
		logger:    logger,
		places:    make(map[int64]*room),
	}
}

func (h *Hub) room(placeID int64, create bool) *room {
	h.mu.RLock()
	r := h.places[placeID]
	closed := h.closed
	h.mu.RUnlock()
	if r != nil || !create || closed {
		return r
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	if r = h.places[placeID]; r == nil {
		r = &room{subs: make(map[Sink]*Subscription)}
		h.places[placeID] = r
	}
	return r
}

func (h *Hub) Register(placeID int64, sink Sink) (*Subscription, error) {
	r := h.room(placeID, true)
	if r == nil {
		return nil, ErrHubClosed
	}
	s := &Subscription{
		PlaceID: placeID,
		sink:    sink,
		out:     make(chan []byte, h.queueSize),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	r.mu.Lock()
	if old := r.subs[sink]; old != nil {
		old.stop()
	}
	r.subs[sink] = s
	r.mu.Unlock()

	go h.writeLoop(s)
	return s, nil
}

// Unregister drops a sink without closing it. Unknown sinks are ignored.
func (h *Hub) Unregister(placeID int64, sink Sink) {
	if s := h.detach(placeID, sink, nil); s != nil {
		s.stop()
	}
}

// detach removes sink from the place. When want is non-nil the entry is only
// removed if it is still that subscription.
func (h *Hub) detach(placeID int64, sink Sink, want *Subscription) *Subscription {
	r := h.room(placeID, false)
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.subs[sink]
	if s == nil || (want != nil && s != want) {
		return nil
	}
	delete(r.subs, sink)
	return s
}

func (h *Hub) evict(s *Subscription, reason string) {
	if h.detach(s.PlaceID, s.sink, s) == nil {
		return
	}
	s.stop()
	_ = s.sink.Close()
	h.printf("evict place=%d reason=%s", s.PlaceID, reason)
}

func (h *Hub) writeLoop(s *Subscription) {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			return
		case msg := <-s.out:
			if err := s.sink.Send(msg); err != nil {
				h.sendFailures.Add(1)
				h.evict(s, "send: "+err.Error())
				return
			}
			h.delivered.Add(1)
		}
	}
}

// Broadcast queues one update frame for every viewer of the place. It never
// blocks on a viewer.
func (h *Hub) Broadcast(placeID int64, x, y, z int, color uint8) {
	r := h.room(placeID, false)
	if r == nil {
		return
	}
	msg, err := json.Marshal(protocol.NewUpdate(x, y, z, color))
	if err != nil {
		h.printf("marshal update place=%d err=%v", placeID, err)
		return
	}

	var full []*Subscription
	r.mu.RLock()
	for _, s := range r.subs {
		select {
		case s.out <- msg:
		default:
			full = append(full, s)
		}
	}
	r.mu.RUnlock()

	for _, s := range full {
		h.evicted.Add(1)
		h.evict(s, "queue full")
	}
}

// Count returns the number of viewers of a place.
func (h *Hub) Count(placeID int64) int {
	r := h.room(placeID, false)
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	rooms := make([]*room, 0, len(h.places))
	for _, r := range h.places {
		rooms = append(rooms, r)
	}
	h.mu.RUnlock()
	n := 0
	for _, r := range rooms {
		r.mu.RLock()
		n += len(r.subs)
		r.mu.RUnlock()
	}
	return Stats{
		Subscribers:  n,
		Delivered:    h.delivered.Load(),
		Evicted:      h.evicted.Load(),
		SendFailures: h.sendFailures.Load(),
	}
}

// Close stops every subscriber and closes its sink. Later Register calls
// fail with ErrHubClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	rooms := h.places
	h.places = make(map[int64]*room)
	h.mu.Unlock()

	for _, r := range rooms {
		r.mu.Lock()
		subs := r.subs
		r.subs = make(map[Sink]*Subscription)
		r.mu.Unlock()
		for _, s := range subs {
			s.stop()
			_ = s.sink.Close()
		}
	}
}

func (h *Hub) printf(format string, args ...any) {
	if h.logger == nil {
		return
	}
	h.logger.Printf(format, args...)
}
