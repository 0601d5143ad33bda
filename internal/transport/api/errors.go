package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/JLsquare/voxplace/internal/canvas"
	"github.com/JLsquare/voxplace/internal/metrics"
	"github.com/JLsquare/voxplace/internal/place"
	"github.com/JLsquare/voxplace/internal/protocol"
	"github.com/JLsquare/voxplace/internal/registry"
)

const (
	msgOutOfBounds  = "Out of bounds"
	msgInvalidColor = "Invalid color"
	msgCooldown     = "Cooldown not finished"
	msgNoNeighbor   = "Voxel has no neighbors"
	msgInvalidPlace = "Invalid place"
	msgBadRequest   = "Bad request"
	msgUnauthorized = "Unauthorized"
	msgInternal     = "Internal server error"

	emptyPainter = "Empty / Server"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeText sends a plain-text reason; the machine-readable code rides in
// X-Error-Code.
func writeText(w http.ResponseWriter, status int, code, msg string) {
	code = knownCode(code)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	code = knownCode(code)
	w.Header().Set("X-Error-Code", code)
	writeJSON(w, status, protocol.ErrorResponse{Code: code, Message: msg})
}

// knownCode maps codes outside the protocol's list to E_INTERNAL.
func knownCode(code string) string {
	if code == "" || !protocol.IsKnownCode(code) {
		return protocol.ErrInternal
	}
	return code
}

type failure struct {
	status int
	code   string
	msg    string
	result string
}

// classify maps a paint or lookup error to its HTTP rendering.
func classify(err error) failure {
	switch {
	case errors.Is(err, canvas.ErrInvalidCoordinate):
		return failure{http.StatusBadRequest, protocol.ErrOutOfBounds, msgOutOfBounds, metrics.DrawOutOfBounds}
	case errors.Is(err, place.ErrInvalidColor):
		return failure{http.StatusBadRequest, protocol.ErrInvalidColor, msgInvalidColor, metrics.DrawBadColor}
	case errors.Is(err, place.ErrCooldownActive):
		return failure{http.StatusBadRequest, protocol.ErrCooldown, msgCooldown, metrics.DrawCooldown}
	case errors.Is(err, place.ErrNoAdjacency):
		return failure{http.StatusBadRequest, protocol.ErrNoNeighbor, msgNoNeighbor, metrics.DrawNoNeighbor}
	case errors.Is(err, registry.ErrPlaceNotFound), errors.Is(err, place.ErrPlaceOffline):
		return failure{http.StatusBadRequest, protocol.ErrPlaceNotFound, msgInvalidPlace, metrics.DrawNoPlace}
	default:
		return failure{http.StatusInternalServerError, protocol.ErrInternal, msgInternal, metrics.DrawError}
	}
}

// retryAfter is the cooldown left, rounded up to whole seconds.
func retryAfter(err error) (string, bool) {
	var ce *place.CooldownError
	if !errors.As(err, &ce) {
		return "", false
	}
	return strconv.FormatInt(int64(math.Ceil(ce.Remaining.Seconds())), 10), true
}
