package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JLsquare/voxplace/internal/canvas"
	"github.com/JLsquare/voxplace/internal/persistence/store"
	"github.com/JLsquare/voxplace/internal/protocol"
	"github.com/JLsquare/voxplace/internal/registry"
)

type adminHandler struct {
	d Deps
}

// authorize writes the rejection itself and reports whether to continue.
func (h *adminHandler) authorize(w http.ResponseWriter, r *http.Request) bool {
	userID, err := h.d.Auth.UserID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, protocol.ErrUnauthorized, "missing or invalid token")
		return false
	}
	u, err := h.d.Users.User(r.Context(), userID)
	if err != nil || !u.IsAdmin {
		writeError(w, http.StatusForbidden, protocol.ErrForbidden, "admin only")
		return false
	}
	return true
}

func (h *adminHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}
	var req protocol.CreatePlaceRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, protocol.ErrBadRequest, "invalid JSON body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, protocol.ErrBadRequest, "name is required")
		return
	}
	size := canvas.Size{X: req.Size[0], Y: req.Size[1], Z: req.Size[2]}
	if err := size.Validate(); err != nil || size.X > h.d.MaxCanvasSide || size.Y > h.d.MaxCanvasSide || size.Z > h.d.MaxCanvasSide {
		writeError(w, http.StatusBadRequest, protocol.ErrBadRequest, "size must be 1.."+strconv.Itoa(h.d.MaxCanvasSide)+" per axis")
		return
	}
	cooldown := h.d.DefaultCooldown
	if req.Cooldown != nil {
		if *req.Cooldown < 0 {
			writeError(w, http.StatusBadRequest, protocol.ErrBadRequest, "cooldown must be >= 0")
			return
		}
		cooldown = time.Duration(*req.Cooldown) * time.Second
	}

	p, err := h.d.Places.Create(r.Context(), registry.CreateOptions{
		Name:     req.Name,
		Size:     size,
		Palette:  req.Palette,
		Cooldown: cooldown,
		Seed:     req.Seed,
	})
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusBadRequest, protocol.ErrBadRequest, "unknown palette")
		return
	case errors.Is(err, canvas.ErrInvalidSize), errors.Is(err, canvas.ErrLegacyIndexNonCubic):
		writeError(w, http.StatusBadRequest, protocol.ErrBadRequest, err.Error())
		return
	default:
		if h.d.Logger != nil {
			h.d.Logger.Printf("create place err=%v", err)
		}
		writeError(w, http.StatusInternalServerError, protocol.ErrInternal, "create failed")
		return
	}
	writeJSON(w, http.StatusOK, protocol.CreatePlaceResponse{
		ID:      strconv.FormatInt(p.ID, 10),
		VoxelID: strconv.FormatInt(p.Canvas.ID(), 10),
	})
}

func (h *adminHandler) Online(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}
	var req protocol.OnlineRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, protocol.ErrBadRequest, "invalid JSON body")
		return
	}
	id, err := strconv.ParseInt(req.ID, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, protocol.ErrPlaceNotFound, msgInvalidPlace)
		return
	}
	if err := h.d.Places.SetOnline(r.Context(), id, req.Online); err != nil {
		if errors.Is(err, registry.ErrPlaceNotFound) {
			writeError(w, http.StatusNotFound, protocol.ErrPlaceNotFound, msgInvalidPlace)
			return
		}
		if h.d.Logger != nil {
			h.d.Logger.Printf("set online place=%d err=%v", id, err)
		}
		writeError(w, http.StatusInternalServerError, protocol.ErrInternal, "update failed")
		return
	}
	writeJSON(w, http.StatusOK, req)
}
