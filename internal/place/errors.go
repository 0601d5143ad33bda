package place

import (
	"errors"
	"fmt"
	"time"

	"github.com/JLsquare/voxplace/internal/canvas"
)

var (
	ErrInvalidCoordinate = canvas.ErrInvalidCoordinate
	ErrInvalidColor      = errors.New("invalid color")
	ErrCooldownActive    = errors.New("cooldown not finished")
	ErrNoAdjacency       = errors.New("voxel has no neighbors")
	ErrPlaceOffline      = errors.New("place offline")
	ErrCooldownStore     = errors.New("cooldown store unavailable")
)

// CooldownError carries the time left before the user may paint again.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("cooldown not finished: %s remaining", e.Remaining)
}

func (e *CooldownError) Is(target error) bool { return target == ErrCooldownActive }
