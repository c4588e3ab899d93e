package quota

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"tokasu/internal/domain"
	"tokasu/internal/storage"
)

// plainStore hides the Incrementer so the read-then-write path is exercised.
type plainStore struct {
	storage.Store
}

type brokenStore struct {
	storage.Store
	failGet bool
	failSet bool
}

func (b *brokenStore) Get(ctx context.Context, key string) ([]byte, error) {
	if b.failGet {
		return nil, fmt.Errorf("disk on fire")
	}
	return b.Store.Get(ctx, key)
}

func (b *brokenStore) Set(ctx context.Context, key string, value []byte) error {
	if b.failSet {
		return fmt.Errorf("disk on fire")
	}
	return b.Store.Set(ctx, key, value)
}

var october = time.Date(2026, time.October, 18, 9, 0, 0, 0, time.UTC)

func TestRemainingDefaultsToLimit(t *testing.T) {
	g := NewGuard(storage.NewMemoryStore(), 100, time.UTC)
	remaining, err := g.Remaining(context.Background(), "u1", october)
	if err != nil {
		t.Fatalf("Remaining failed: %v", err)
	}
	if remaining != 100 {
		t.Fatalf("remaining = %d, want 100", remaining)
	}
}

func TestChargeBothPaths(t *testing.T) {
	for name, store := range map[string]storage.Store{
		"atomic":     storage.NewMemoryStore(),
		"read-write": plainStore{storage.NewMemoryStore()},
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			g := NewGuard(store, 3, time.UTC)
			for i := 1; i <= 2; i++ {
				n, err := g.Charge(ctx, "u1", october)
				if err != nil {
					t.Fatalf("Charge failed: %v", err)
				}
				if n != i {
					t.Fatalf("Charge returned %d, want %d", n, i)
				}
			}
			remaining, _ := g.Remaining(ctx, "u1", october)
			if remaining != 1 {
				t.Fatalf("remaining = %d, want 1", remaining)
			}
		})
	}
}

func TestTryConsumeStopsAtCeiling(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	g := NewGuard(store, 2, time.UTC)

	for i := 0; i < 2; i++ {
		ok, err := g.TryConsume(ctx, "u1", october)
		if err != nil || !ok {
			t.Fatalf("TryConsume #%d = %v, %v; want true", i, ok, err)
		}
	}
	ok, err := g.TryConsume(ctx, "u1", october)
	if err != nil {
		t.Fatalf("TryConsume failed: %v", err)
	}
	if ok {
		t.Fatal("expected TryConsume to refuse at the ceiling")
	}
	used, _ := g.Usage(ctx, "u1", october)
	if used != 2 {
		t.Fatalf("refused TryConsume must not mutate, used = %d", used)
	}

	ok, err = g.TryConsume(ctx, "u1", october.AddDate(0, 1, 0))
	if err != nil || !ok {
		t.Fatalf("expected a fresh allowance next month, got %v, %v", ok, err)
	}
}

func TestMonthUsesConfiguredLocation(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 2026-10-31 20:00 UTC is already November in Tokyo.
	at := time.Date(2026, time.October, 31, 20, 0, 0, 0, time.UTC)
	if got := NewGuard(storage.NewMemoryStore(), 1, tokyo).Key("u1", at); got != "quota:u1:2026-11" {
		t.Fatalf("tokyo key = %s", got)
	}
	if got := NewGuard(storage.NewMemoryStore(), 1, nil).Key("u1", at); got != "quota:u1:2026-10" {
		t.Fatalf("utc key = %s", got)
	}
}

func TestStorageFailuresMapToUnavailable(t *testing.T) {
	ctx := context.Background()

	g := NewGuard(&brokenStore{Store: storage.NewMemoryStore(), failGet: true}, 10, time.UTC)
	if _, err := g.Remaining(ctx, "u1", october); !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable on read, got %v", err)
	}

	g = NewGuard(&brokenStore{Store: storage.NewMemoryStore(), failSet: true}, 10, time.UTC)
	if _, err := g.Charge(ctx, "u1", october); !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable on write, got %v", err)
	}
}

func TestPruneKeepsRetentionWindow(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	for _, k := range []string{"quota:u1:2025-09", "quota:u1:2025-11", "quota:u2:2026-10", "quota:u2:2026-09", "quota:u3:garbage"} {
		_ = storage.SetJSON(ctx, store, k, 1)
	}
	g := NewGuard(store, 100, time.UTC)

	deleted, err := g.Prune(ctx, october, 12)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}
	if _, err := store.Get(ctx, "quota:u1:2025-09"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatal("expected 2025-09 counter to be pruned")
	}
	if _, err := store.Get(ctx, "quota:u1:2025-11"); err != nil {
		t.Fatalf("expected 2025-11 counter to survive: %v", err)
	}
}
