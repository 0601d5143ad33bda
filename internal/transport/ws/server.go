// Package ws streams applied paints of one place to viewers over WebSocket.
package ws

import (
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/JLsquare/voxplace/internal/broadcast"
	"github.com/JLsquare/voxplace/internal/place"
	"github.com/JLsquare/voxplace/internal/protocol"
)

const (
	writeWait  = 5 * time.Second
	readWait   = 60 * time.Second
	pingPeriod = 25 * time.Second
)

// Places resolves a place id.
type Places interface {
	Get(placeID int64) (*place.Place, error)
}

type Server struct {
	places Places
	hub    *broadcast.Hub
	log    *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(places Places, hub *broadcast.Hub, logger *log.Logger) *Server {
	return &Server{
		places: places,
		hub:    hub,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // viewers are served from any origin
		},
	}
}

// Handler serves GET /api/place/ws/{id}. The place is resolved before the
// upgrade so unknown ids get a plain 404.
func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		placeID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(rw, "Invalid place", http.StatusBadRequest)
			return
		}
		if _, err := s.places.Get(placeID); err != nil {
			http.Error(rw, "Invalid place", http.StatusNotFound)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, http.Header{"X-Voxplace-Protocol": {protocol.Version}})
		if err != nil {
			return
		}
		sink := newConnSink(conn)
		defer sink.Close()

		sub, err := s.hub.Register(placeID, sink)
		if err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server shutting down"), time.Now().Add(time.Second))
			return
		}
		defer s.hub.Unregister(placeID, sink)
		s.printf("viewer join place=%d session=%s remote=%s", placeID, sink.id, r.RemoteAddr)

		go sink.pingLoop(sub.Done())

		// Viewers only listen. Inbound frames are read to service control
		// messages and detect disconnects; anything that is not a typed JSON
		// frame ends the session.
		conn.SetReadLimit(4 * 1024)
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(readWait))
		})
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, net.ErrClosed) {
					s.printf("viewer read place=%d session=%s err=%v", placeID, sink.id, err)
				}
				break
			}
			if base, err := protocol.DecodeBase(msg); err != nil || base.Type == "" {
				s.printf("viewer bad frame place=%d session=%s", placeID, sink.id)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseUnsupportedData, protocol.ErrBadRequest), time.Now().Add(time.Second))
				break
			}
			_ = conn.SetReadDeadline(time.Now().Add(readWait))
		}
		s.printf("viewer leave place=%d session=%s", placeID, sink.id)
	}
}

func (s *Server) printf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

// connSink adapts a websocket connection to broadcast.Sink. The hub's writer
// goroutine is the only caller of Send.
type connSink struct {
	id        string
	conn      *websocket.Conn
	closeOnce sync.Once
	closed    chan struct{}
}

func newConnSink(conn *websocket.Conn) *connSink {
	return &connSink{id: uuid.NewString(), conn: conn, closed: make(chan struct{})}
}

func (c *connSink) Send(msg []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

func (c *connSink) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}

func (c *connSink) pingLoop(done <-chan struct{}) {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-c.closed:
			return
		case <-t.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
