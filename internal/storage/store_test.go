package storage

import (
	"context"
	"errors"
	"testing"
)

func newStore(t *testing.T) *FSStore {
	t.Helper()
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	return s
}

func TestPutGetDelete_RoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "k1", []byte(`{"invoiceNumber":"INV-1"}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `{"invoiceNumber":"INV-1"}` {
		t.Fatalf("round-trip mismatch: %q", got)
	}

	if err := s.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "k1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestPut_ReplacesExisting(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "k1", []byte("v1")); err != nil {
		t.Fatalf("Put v1: %v", err)
	}
	if err := s.Put(ctx, "k1", []byte("v2")); err != nil {
		t.Fatalf("Put v2: %v", err)
	}
	got, err := s.Get(ctx, "k1")
	if err != nil || string(got) != "v2" {
		t.Fatalf("expected v2, got %q / %v", got, err)
	}
}

func TestDelete_AbsentKeyIsNoError(t *testing.T) {
	s := newStore(t)
	if err := s.Delete(context.Background(), "ghost"); err != nil {
		t.Fatalf("Delete absent: %v", err)
	}
}

func TestInvalidKeysRejected(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for _, key := range []string{"", "a/b", `a\b`, "..", "a..b"} {
		if err := s.Put(ctx, key, []byte("x")); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("Put(%q): expected ErrInvalidKey, got %v", key, err)
		}
		if _, err := s.Get(ctx, key); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("Get(%q): expected ErrInvalidKey, got %v", key, err)
		}
		if err := s.Delete(ctx, key); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("Delete(%q): expected ErrInvalidKey, got %v", key, err)
		}
	}
}
