package protocol

const (
	// Request decoding.
	ErrBadRequest = "E_BAD_REQUEST"

	// Paint validation.
	ErrOutOfBounds  = "E_OUT_OF_BOUNDS"
	ErrInvalidColor = "E_INVALID_COLOR"
	ErrCooldown     = "E_COOLDOWN"
	ErrNoNeighbor   = "E_NO_NEIGHBOR"

	// Place routing.
	ErrPlaceNotFound = "E_PLACE_NOT_FOUND"

	// Caller identity.
	ErrUnauthorized = "E_UNAUTHORIZED"
	ErrForbidden    = "E_FORBIDDEN"

	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest:    {},
	ErrOutOfBounds:   {},
	ErrInvalidColor:  {},
	ErrCooldown:      {},
	ErrNoNeighbor:    {},
	ErrPlaceNotFound: {},
	ErrUnauthorized:  {},
	ErrForbidden:     {},
	ErrInternal:      {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
