// Package token issues and verifies the signed bearer tokens editors use to
// reach the /api endpoints.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalid = errors.New("invalid token")
	ErrExpired = errors.New("token expired")
)

// Roles understood by the auth gate.
const (
	RoleEditor = "editor"
	RoleAdmin  = "admin"
)

// MaxSubjectLength keeps tokens short enough for headers.
const MaxSubjectLength = 128

// Identity is the authenticated caller attached to a request.
type Identity struct {
	Subject string `json:"subject"`
	Role    string `json:"role"`
}

// CanEdit reports whether the identity may change banners.
func (id Identity) CanEdit() bool {
	return id.Role == RoleEditor || id.Role == RoleAdmin
}

type payload struct {
	Sub  string `json:"s"`
	Role string `json:"r"`
	TS   int64  `json:"t"`
}

// Generate creates a signed token for id issued at now.
func Generate(id Identity, secret []byte, now time.Time) (string, error) {
	if id.Subject == "" {
		return "", fmt.Errorf("subject: %w", ErrInvalid)
	}
	if len(id.Subject) > MaxSubjectLength {
		return "", fmt.Errorf("subject too long: %d chars (max %d)", len(id.Subject), MaxSubjectLength)
	}
	data, err := json.Marshal(payload{Sub: id.Subject, Role: id.Role, TS: now.Unix()})
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	sig := mac.Sum(nil)

	enc := base64.RawURLEncoding
	return enc.EncodeToString(data) + "." + enc.EncodeToString(sig), nil
}

// Verify checks the token signature and, when ttl is positive, its age
// relative to now.
func Verify(token string, secret []byte, ttl time.Duration, now time.Time) (Identity, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return Identity{}, ErrInvalid
	}
	enc := base64.RawURLEncoding
	data, err := enc.DecodeString(parts[0])
	if err != nil {
		return Identity{}, ErrInvalid
	}
	sig, err := enc.DecodeString(parts[1])
	if err != nil {
		return Identity{}, ErrInvalid
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	if !hmac.Equal(mac.Sum(nil), sig) {
		return Identity{}, ErrInvalid
	}

	var pl payload
	if err := json.Unmarshal(data, &pl); err != nil || pl.Sub == "" {
		return Identity{}, ErrInvalid
	}
	if ttl > 0 && now.Sub(time.Unix(pl.TS, 0)) > ttl {
		return Identity{}, ErrExpired
	}
	return Identity{Subject: pl.Sub, Role: pl.Role}, nil
}
