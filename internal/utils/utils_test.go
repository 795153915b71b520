package utils

import (
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	tok, err := NewAccessToken("s3cret", 42, "STAFF", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	uid, role, err := ParseAccessToken("s3cret", tok.Token)
	if err != nil || uid != 42 || role != "STAFF" {
		t.Fatalf("parse = %d %q %v", uid, role, err)
	}
	if _, _, err := ParseAccessToken("other", tok.Token); err == nil {
		t.Fatal("wrong secret accepted")
	}
}

func TestAccessTokenExpired(t *testing.T) {
	tok, err := NewAccessToken("s3cret", 1, "USER", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := ParseAccessToken("s3cret", tok.Token); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestRefreshToken(t *testing.T) {
	a, _ := NewRefreshToken(time.Hour)
	b, _ := NewRefreshToken(time.Hour)
	if len(a.Raw) != 96 || a.Raw == b.Raw {
		t.Fatalf("raw tokens %q %q", a.Raw, b.Raw)
	}
	if h := HashRefreshRaw(a.Raw); len(h) != 64 || h == a.Raw {
		t.Fatalf("hash %q", h)
	}
}

func TestPassword(t *testing.T) {
	h, err := HashPassword("hunter2", bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	if !VerifyPassword(h, "hunter2") || VerifyPassword(h, "hunter3") {
		t.Fatal("verify mismatch")
	}
}

func TestPassword_Limits(t *testing.T) {
	if _, err := HashPassword(strings.Repeat("x", 73), bcrypt.MinCost); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("long password err = %v", err)
	}
	h, err := HashPassword("hunter2", 1)
	if err != nil {
		t.Fatal(err)
	}
	if cost, _ := bcrypt.Cost([]byte(h)); cost != bcrypt.MinCost {
		t.Fatalf("cost = %d, want %d", cost, bcrypt.MinCost)
	}
}
