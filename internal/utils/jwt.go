// Package utils issues and verifies credentials: HS256 access tokens,
// opaque refresh tokens and bcrypt password hashes.
package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessToken is a signed JWT and its expiry.
type AccessToken struct {
	Token string
	Exp   time.Time
}

// RefreshToken is the raw value handed to the client.  Only its SHA-256
// hash is stored.
type RefreshToken struct {
	Raw string
	Exp time.Time
}

// AccessClaims are the claims carried by access tokens.  Subject holds the
// decimal user ID.
type AccessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ErrInvalidSubject is returned when a verified token has no usable
// subject.
var ErrInvalidSubject = errors.New("token subject is not a user id")

// NewAccessToken signs an HS256 token for the user, valid for ttl.
func NewAccessToken(secret string, userID uint64, role string, ttl time.Duration) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := AccessClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies raw and returns the user ID and role.
func ParseAccessToken(secret, raw string) (uint64, string, error) {
	var claims AccessClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return 0, "", err
	}
	uid, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || uid == 0 {
		return 0, "", ErrInvalidSubject
	}
	return uid, claims.Role, nil
}

// NewRefreshToken returns 48 random bytes, hex encoded, valid for ttl.
func NewRefreshToken(ttl time.Duration) (RefreshToken, error) {
	buf := make([]byte, 48)
	if _, err := rand.Read(buf); err != nil {
		return RefreshToken{}, err
	}
	return RefreshToken{Raw: hex.EncodeToString(buf), Exp: time.Now().UTC().Add(ttl)}, nil
}

// HashRefreshRaw returns the hex SHA-256 of a raw refresh token.
func HashRefreshRaw(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
