package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JLsquare/voxplace/internal/metrics"
	"github.com/JLsquare/voxplace/internal/persistence/store"
	"github.com/JLsquare/voxplace/internal/persistence/vxl"
	"github.com/JLsquare/voxplace/internal/place"
	"github.com/JLsquare/voxplace/internal/protocol"
	"github.com/JLsquare/voxplace/internal/registry"
)

const maxBodyBytes = 16 * 1024

type placeHandler struct {
	d Deps
}

func (h *placeHandler) printf(format string, args ...any) {
	if h.d.Logger != nil {
		h.d.Logger.Printf(format, args...)
	}
}

func (h *placeHandler) lookup(raw string) (*place.Place, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", registry.ErrPlaceNotFound, raw)
	}
	return h.d.Places.Get(id)
}

// All serves the gzip-compressed flattened grid of a place.
func (h *placeHandler) All(w http.ResponseWriter, r *http.Request) {
	p, err := h.lookup(chi.URLParam(r, "id"))
	if err != nil {
		f := classify(err)
		writeText(w, f.status, f.code, f.msg)
		return
	}
	blob, err := vxl.CompressGrid(p.Canvas.Snapshot())
	if err != nil {
		h.printf("compress grid place=%d err=%v", p.ID, err)
		writeText(w, http.StatusInternalServerError, protocol.ErrInternal, msgInternal)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Encoding", "gzip")
	w.Header().Set("Content-Length", strconv.Itoa(len(blob)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(blob)
}

func (h *placeHandler) Palette(w http.ResponseWriter, r *http.Request) {
	p, err := h.lookup(chi.URLParam(r, "id"))
	if err != nil {
		f := classify(err)
		writeText(w, f.status, f.code, f.msg)
		return
	}
	writeJSON(w, http.StatusOK, p.Canvas.Palette().Hex())
}

func (h *placeHandler) Infos(w http.ResponseWriter, r *http.Request) {
	places := h.d.Places.All()
	out := make([]protocol.PlaceInfo, 0, len(places))
	for _, p := range places {
		sz := p.Canvas.Size()
		viewers := 0
		if h.d.Viewers != nil {
			viewers = h.d.Viewers.Count(p.ID)
		}
		out = append(out, protocol.PlaceInfo{
			ID:          strconv.FormatInt(p.ID, 10),
			Name:        p.Canvas.Name(),
			Size:        [3]int{sz.X, sz.Y, sz.Z},
			Palette:     strconv.FormatInt(p.Canvas.Palette().ID, 10),
			Online:      p.Online(),
			OnlineUsers: viewers,
			Cooldown:    int64(p.Cooldown.Seconds()),
			Painted:     p.Canvas.CountPainted(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// Draw applies one paint on behalf of the authenticated user.
func (h *placeHandler) Draw(w http.ResponseWriter, r *http.Request) {
	var req protocol.DrawRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeText(w, http.StatusBadRequest, protocol.ErrBadRequest, msgBadRequest)
		return
	}
	userID, err := h.d.Auth.UserID(r)
	if err != nil {
		writeText(w, http.StatusUnauthorized, protocol.ErrUnauthorized, msgUnauthorized)
		return
	}
	p, err := h.lookup(req.ID)
	if err != nil {
		h.drawFailed(w, err)
		return
	}
	// Colors outside a byte become 0, which no palette accepts, so bounds
	// are still checked first.
	var color uint8
	if req.Color >= 0 && req.Color <= 255 {
		color = uint8(req.Color)
	}

	expiry, err := h.d.Gate.Apply(r.Context(), p, req.X, req.Y, req.Z, color, userID)
	if err != nil {
		h.drawFailed(w, err)
		return
	}
	metrics.ObserveDraw(metrics.DrawOK)

	username := ""
	if u, err := h.d.Users.User(r.Context(), userID); err == nil {
		username = u.Username
	} else if !errors.Is(err, store.ErrNotFound) {
		h.printf("draw username lookup user=%d err=%v", userID, err)
	}
	writeJSON(w, http.StatusOK, protocol.DrawResponse{Username: username, CooldownExpiry: expiry.Unix()})
}

func (h *placeHandler) drawFailed(w http.ResponseWriter, err error) {
	f := classify(err)
	metrics.ObserveDraw(f.result)
	if f.status >= http.StatusInternalServerError {
		h.printf("draw failed err=%v", err)
	}
	if s, ok := retryAfter(err); ok {
		w.Header().Set("Retry-After", s)
	}
	writeText(w, f.status, f.code, f.msg)
}

// Username returns the latest painter of a cell. Paints still waiting for
// the write-behind flush win over the stored row.
func (h *placeHandler) Username(w http.ResponseWriter, r *http.Request) {
	var req protocol.CellRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeText(w, http.StatusBadRequest, protocol.ErrBadRequest, msgBadRequest)
		return
	}
	p, err := h.lookup(req.ID)
	if err != nil {
		f := classify(err)
		writeText(w, f.status, f.code, f.msg)
		return
	}
	if _, err := p.Canvas.Get(req.X, req.Y, req.Z); err != nil {
		f := classify(err)
		writeText(w, f.status, f.code, f.msg)
		return
	}

	userID, ok := p.LatestPending(req.X, req.Y, req.Z)
	if !ok {
		userID, err = h.d.Users.PlaceUser(r.Context(), p.ID, req.X, req.Y, req.Z)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				h.printf("painter lookup place=%d err=%v", p.ID, err)
			}
			writeJSON(w, http.StatusOK, emptyPainter)
			return
		}
	}
	u, err := h.d.Users.User(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusOK, emptyPainter)
		return
	}
	writeJSON(w, http.StatusOK, u.Username)
}
