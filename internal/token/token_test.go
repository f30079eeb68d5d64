package token

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var issued = time.Unix(1_750_000_000, 0)

func TestGenerateVerify(t *testing.T) {
	secret := []byte("secret")
	tok, err := Generate(Identity{Subject: "alice", Role: RoleEditor}, secret, issued)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	id, err := Verify(tok, secret, time.Hour, issued.Add(time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id.Subject != "alice" || id.Role != RoleEditor || !id.CanEdit() {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestVerifyExpired(t *testing.T) {
	secret := []byte("s")
	tok, err := Generate(Identity{Subject: "bob"}, secret, issued)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := Verify(tok, secret, time.Minute, issued.Add(2*time.Minute)); err != ErrExpired {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if _, err := Verify(tok, secret, 0, issued.Add(24*time.Hour)); err != nil {
		t.Fatalf("zero ttl should never expire: %v", err)
	}
}

func TestVerifyInvalid(t *testing.T) {
	secret := []byte("s")
	tok, _ := Generate(Identity{Subject: "bob"}, secret, issued)

	cases := map[string]string{
		"tampered":   tok + "x",
		"no dot":     strings.ReplaceAll(tok, ".", ""),
		"bad base64": "!!!.???",
		"empty":      "",
	}
	for name, in := range cases {
		if _, err := Verify(in, secret, time.Minute, issued); err != ErrInvalid {
			t.Errorf("%s: expected ErrInvalid, got %v", name, err)
		}
	}
	if _, err := Verify(tok, []byte("other"), time.Minute, issued); err != ErrInvalid {
		t.Fatalf("wrong secret: expected ErrInvalid, got %v", err)
	}
}

func TestGenerateRejectsBadSubject(t *testing.T) {
	if _, err := Generate(Identity{}, []byte("s"), issued); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for empty subject, got %v", err)
	}
	long := Identity{Subject: strings.Repeat("a", MaxSubjectLength+1)}
	if _, err := Generate(long, []byte("s"), issued); err == nil {
		t.Fatal("expected error for long subject")
	}
}

func TestViewerCannotEdit(t *testing.T) {
	if (Identity{Subject: "v", Role: "viewer"}).CanEdit() {
		t.Fatal("viewer must not edit")
	}
}
