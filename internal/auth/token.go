// Package auth issues and verifies the bearer tokens that identify painters.
//
// A token is "<user id>.<expiry unix seconds>.<hex hmac-sha256>" signed with
// a server secret.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNoSecret     = errors.New("auth secret is empty")
)

type Signer struct {
	secret []byte
	now    func() time.Time
}

func NewSigner(secret string) (*Signer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrNoSecret
	}
	return &Signer{secret: []byte(secret), now: time.Now}, nil
}

func canonical(userID, expiry int64) string {
	return "v1\n" + strconv.FormatInt(userID, 10) + "\n" + strconv.FormatInt(expiry, 10)
}

func signHMAC(secret []byte, canonical string) string {
	h := hmac.New(sha256.New, secret)
	_, _ = h.Write([]byte(canonical))
	return hex.EncodeToString(h.Sum(nil))
}

// Issue returns a token for userID valid for ttl.
func (s *Signer) Issue(userID int64, ttl time.Duration) string {
	exp := s.now().Add(ttl).Unix()
	return strconv.FormatInt(userID, 10) + "." + strconv.FormatInt(exp, 10) + "." + signHMAC(s.secret, canonical(userID, exp))
}

// Verify returns the user id a token was issued for.
func (s *Signer) Verify(token string) (int64, error) {
	token = strings.TrimSpace(token)
	token = strings.TrimPrefix(token, "Bearer ")
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return 0, ErrUnauthorized
	}
	userID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || userID <= 0 {
		return 0, ErrUnauthorized
	}
	exp, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, ErrUnauthorized
	}
	want := signHMAC(s.secret, canonical(userID, exp))
	if !hmac.Equal([]byte(strings.ToLower(parts[2])), []byte(want)) {
		return 0, ErrUnauthorized
	}
	if s.now().Unix() >= exp {
		return 0, ErrUnauthorized
	}
	return userID, nil
}

// UserID authenticates a request from its Authorization header.
func (s *Signer) UserID(r *http.Request) (int64, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return 0, ErrUnauthorized
	}
	return s.Verify(h)
}
