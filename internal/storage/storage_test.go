package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMemoryStoreCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Set(ctx, "a", []byte("not json")); err == nil {
		t.Fatal("expected invalid JSON to be rejected")
	}

	for _, k := range []string{"incident:u2:1", "incident:u1:2", "incident:u1:1", "quota:u1:2026-10"} {
		if err := SetJSON(ctx, s, k, map[string]string{"k": k}); err != nil {
			t.Fatalf("SetJSON(%s) failed: %v", k, err)
		}
	}

	keys, err := s.List(ctx, "incident:u1:")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if diff := cmp.Diff([]string{"incident:u1:1", "incident:u1:2"}, keys); diff != "" {
		t.Fatalf("List mismatch (-want +got):\n%s", diff)
	}

	var got map[string]string
	if err := GetJSON(ctx, s, "incident:u2:1", &got); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if got["k"] != "incident:u2:1" {
		t.Fatalf("unexpected value: %v", got)
	}

	if err := s.Delete(ctx, "incident:u2:1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if s.Len() != 3 {
		t.Fatalf("expected 3 keys after delete, got %d", s.Len())
	}
}

func TestMemoryStoreIncr(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for i := 1; i <= 3; i++ {
		n, err := s.Incr(ctx, "quota:u1:2026-10", 1)
		if err != nil {
			t.Fatalf("Incr failed: %v", err)
		}
		if n != int64(i) {
			t.Fatalf("Incr returned %d, want %d", n, i)
		}
	}
	var n int
	if err := GetJSON(ctx, s, "quota:u1:2026-10", &n); err != nil || n != 3 {
		t.Fatalf("stored counter = %d (err %v), want 3", n, err)
	}

	_ = SetJSON(ctx, s, "text", "hello")
	if _, err := s.Incr(ctx, "text", 1); err == nil {
		t.Fatal("expected Incr on non-integer value to fail")
	}
}
