// Package quota enforces the per-user monthly ceiling on AI classifications.
//
// Counters live under quota:<userID>:<YYYY-MM> and roll over implicitly when
// the month changes. When the store cannot increment atomically, Charge falls
// back to read-then-write: two near-simultaneous charges from the same user
// may both pass a Remaining check before either write lands. That race is
// accepted; the cost is at most a few extra classifications in a month.
package quota

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"tokasu/internal/domain"
	"tokasu/internal/storage"
)

const keyPrefix = "quota:"

type Guard struct {
	store storage.Store
	limit int
	loc   *time.Location
}

func NewGuard(store storage.Store, limit int, loc *time.Location) *Guard {
	if loc == nil {
		loc = time.UTC
	}
	return &Guard{store: store, limit: limit, loc: loc}
}

func (g *Guard) Limit() int {
	return g.limit
}

func (g *Guard) monthOf(now time.Time) string {
	return now.In(g.loc).Format("2006-01")
}

// Key returns the counter key for userID in the calendar month containing now.
func (g *Guard) Key(userID string, now time.Time) string {
	return keyPrefix + userID + ":" + g.monthOf(now)
}

// Usage reads the number of classifications charged this month.
func (g *Guard) Usage(ctx context.Context, userID string, now time.Time) (int, error) {
	var used int
	err := storage.GetJSON(ctx, g.store, g.Key(userID, now), &used)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: read quota for %s: %w", domain.ErrStorageUnavailable, userID, err)
	}
	return used, nil
}

// Remaining may be zero or negative once the ceiling is reached.
func (g *Guard) Remaining(ctx context.Context, userID string, now time.Time) (int, error) {
	used, err := g.Usage(ctx, userID, now)
	if err != nil {
		return 0, err
	}
	return g.limit - used, nil
}

// TryConsume charges one unit if any remain and reports whether it did.
func (g *Guard) TryConsume(ctx context.Context, userID string, now time.Time) (bool, error) {
	remaining, err := g.Remaining(ctx, userID, now)
	if err != nil {
		return false, err
	}
	if remaining <= 0 {
		return false, nil
	}
	if _, err := g.Charge(ctx, userID, now); err != nil {
		return false, err
	}
	return true, nil
}

// Charge unconditionally adds one to this month's counter and returns the new count.
func (g *Guard) Charge(ctx context.Context, userID string, now time.Time) (int, error) {
	key := g.Key(userID, now)
	if inc, ok := g.store.(storage.Incrementer); ok {
		n, err := inc.Incr(ctx, key, 1)
		if err != nil {
			return 0, fmt.Errorf("%w: increment quota for %s: %w", domain.ErrStorageUnavailable, userID, err)
		}
		return int(n), nil
	}

	used, err := g.Usage(ctx, userID, now)
	if err != nil {
		return 0, err
	}
	used++
	if err := storage.SetJSON(ctx, g.store, key, used); err != nil {
		return 0, fmt.Errorf("%w: write quota for %s: %w", domain.ErrStorageUnavailable, userID, err)
	}
	return used, nil
}

// Prune deletes counters for months older than keepMonths before now's month.
func (g *Guard) Prune(ctx context.Context, now time.Time, keepMonths int) (int, error) {
	if keepMonths < 1 {
		keepMonths = 1
	}
	local := now.In(g.loc)
	cutoff := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, g.loc).AddDate(0, -(keepMonths - 1), 0).Format("2006-01")

	keys, err := g.store.List(ctx, keyPrefix)
	if err != nil {
		return 0, fmt.Errorf("%w: list quota keys: %w", domain.ErrStorageUnavailable, err)
	}
	deleted := 0
	for _, key := range keys {
		idx := strings.LastIndex(key, ":")
		if idx < 0 {
			continue
		}
		month := key[idx+1:]
		if _, err := time.Parse("2006-01", month); err != nil {
			log.Printf("quota prune skipped unparseable key=%s", key)
			continue
		}
		if month >= cutoff {
			continue
		}
		if err := g.store.Delete(ctx, key); err != nil {
			return deleted, fmt.Errorf("%w: delete %s: %w", domain.ErrStorageUnavailable, key, err)
		}
		deleted++
	}
	return deleted, nil
}
