package protocol

import "testing"

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrBadRequest,
		ErrOutOfBounds,
		ErrInvalidColor,
		ErrCooldown,
		ErrNoNeighbor,
		ErrPlaceNotFound,
		ErrUnauthorized,
		ErrForbidden,
		ErrInternal,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("E_NOT_DEFINED") {
		t.Fatalf("expected unknown code rejected")
	}
}

func TestDecodeBase(t *testing.T) {
	m, err := DecodeBase([]byte(`{"type":"update","x":1}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Type != TypeUpdate {
		t.Fatalf("type=%q", m.Type)
	}
}
