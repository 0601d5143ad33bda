package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/JLsquare/voxplace/internal/broadcast"
	"github.com/JLsquare/voxplace/internal/canvas"
	"github.com/JLsquare/voxplace/internal/place"
	"github.com/JLsquare/voxplace/internal/protocol"
)

type placeMap map[int64]*place.Place

func (m placeMap) Get(id int64) (*place.Place, error) {
	if p, ok := m[id]; ok {
		return p, nil
	}
	return nil, errors.New("not found")
}

func newTestServer(t *testing.T) (*httptest.Server, *broadcast.Hub) {
	t.Helper()
	c, err := canvas.New(1, "test", canvas.Size{X: 4, Y: 4, Z: 4}, canvas.DefaultPalette(), canvas.IndexLinear)
	if err != nil {
		t.Fatalf("canvas: %v", err)
	}
	hub := broadcast.NewHub(8, nil)
	r := chi.NewRouter()
	r.Get("/api/place/ws/{id}", NewServer(placeMap{7: place.New(7, true, time.Second, c)}, hub, nil).Handler())
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return srv, hub
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func waitCount(t *testing.T, hub *broadcast.Hub, placeID int64, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Count(placeID) != want {
		if time.Now().After(deadline) {
			t.Fatalf("viewer count=%d want %d", hub.Count(placeID), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandler_StreamsUpdates(t *testing.T) {
	srv, hub := newTestServer(t)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/api/place/ws/7"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitCount(t, hub, 7, 1)

	hub.Broadcast(7, 1, 0, 2, 5)
	hub.Broadcast(7, 1, 1, 2, 6)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i, want := range []uint8{5, 6} {
		_, b, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		var msg protocol.UpdateMsg
		if err := json.Unmarshal(b, &msg); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if msg.Type != protocol.TypeUpdate || msg.X != 1 || msg.Y != i || msg.Z != 2 || msg.Color != want {
			t.Fatalf("frame %d: %+v", i, msg)
		}
	}
}

func TestHandler_DisconnectUnregisters(t *testing.T) {
	srv, hub := newTestServer(t)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/api/place/ws/7"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitCount(t, hub, 7, 1)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	_ = conn.Close()
	waitCount(t, hub, 7, 0)
}

func TestHandler_UnknownPlace(t *testing.T) {
	srv, _ := newTestServer(t)
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/api/place/ws/99"), nil)
	if err == nil {
		t.Fatalf("expected dial failure")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("resp=%v", resp)
	}

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, "/api/place/ws/abc"), nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad id: err=%v resp=%v", err, resp)
	}
}

func TestHandler_RejectsUntypedFrames(t *testing.T) {
	srv, hub := newTestServer(t)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/api/place/ws/7"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if got := resp.Header.Get("X-Voxplace-Protocol"); got != protocol.Version {
		t.Fatalf("protocol header=%q want %q", got, protocol.Version)
	}
	waitCount(t, hub, 7, 1)

	// A typed frame is tolerated.
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"hello"}`)); err != nil {
		t.Fatalf("write typed: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseUnsupportedData) {
		t.Fatalf("read err=%v want close %d", err, websocket.CloseUnsupportedData)
	}
	waitCount(t, hub, 7, 0)
}
