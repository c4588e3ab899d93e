// Package incident persists finalized incident records through the
// key-value storage collaborator. Records are append-only.
package incident

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"tokasu/internal/domain"
	"tokasu/internal/storage"
)

const keyPrefix = "incident:"

type Store struct {
	kv storage.Store
}

func NewStore(kv storage.Store) *Store {
	return &Store{kv: kv}
}

// NewID returns a fresh record identifier.
func NewID() string {
	return uuid.New().String()
}

// recordKey ends in a version 7 UUID minted at append time. Those are
// monotonic within the process, so keys sort in append order even when
// records share a timestamp or the clock steps back.
func recordKey(reporterID string) (string, error) {
	seq, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return keyPrefix + reporterID + ":" + seq.String(), nil
}

// Append writes rec under a fresh key. A failed write is probed once: if the
// key turns out to exist the append succeeded; if the probe itself fails the
// outcome is ambiguous and ErrPersistenceFailed is returned.
func (s *Store) Append(ctx context.Context, rec domain.IncidentRecord) error {
	if !rec.Complete() {
		return fmt.Errorf("%w: id=%q reporter=%q", domain.ErrIncompleteRecord, rec.ID, rec.ReporterID)
	}
	key, err := recordKey(rec.ReporterID)
	if err != nil {
		return fmt.Errorf("%w: record key: %w", domain.ErrStorageUnavailable, err)
	}
	err = storage.SetJSON(ctx, s.kv, key, rec)
	if err == nil {
		return nil
	}

	_, probeErr := s.kv.Get(ctx, key)
	switch {
	case probeErr == nil:
		log.Printf("incident append reported error but record landed key=%s err=%v", key, err)
		return nil
	case errors.Is(probeErr, storage.ErrNotFound):
		return fmt.Errorf("%w: append %s: %w", domain.ErrStorageUnavailable, key, err)
	default:
		log.Printf("incident append ambiguous key=%s err=%v probe_err=%v", key, err, probeErr)
		return fmt.Errorf("%w: append %s left an ambiguous state: %w", domain.ErrPersistenceFailed, key, err)
	}
}

// ListByReporter returns every record the user submitted in append order.
// It returns either the full list or an error, never a partial list.
func (s *Store) ListByReporter(ctx context.Context, userID string) ([]domain.IncidentRecord, error) {
	records, err := s.list(ctx, keyPrefix+userID+":")
	if err != nil {
		return nil, err
	}
	// Reporter IDs containing ':' can share a key prefix with another reporter.
	out := records[:0]
	for _, rec := range records {
		if rec.ReporterID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ListAll returns every record across reporters, ordered by reporter then append order.
func (s *Store) ListAll(ctx context.Context) ([]domain.IncidentRecord, error) {
	return s.list(ctx, keyPrefix)
}

func (s *Store) Get(ctx context.Context, userID, id string) (domain.IncidentRecord, error) {
	records, err := s.ListByReporter(ctx, userID)
	if err != nil {
		return domain.IncidentRecord{}, err
	}
	for _, rec := range records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return domain.IncidentRecord{}, fmt.Errorf("%w: %s", domain.ErrIncidentNotFound, id)
}

// ListByDateRange returns records with from <= date < to.
func (s *Store) ListByDateRange(ctx context.Context, from, to time.Time) ([]domain.IncidentRecord, error) {
	all, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.IncidentRecord
	for _, rec := range all {
		if !rec.Date.Before(from) && rec.Date.Before(to) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *Store) list(ctx context.Context, prefix string) ([]domain.IncidentRecord, error) {
	keys, err := s.kv.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %w", domain.ErrStorageUnavailable, prefix, err)
	}
	records := make([]domain.IncidentRecord, 0, len(keys))
	for _, key := range keys {
		var rec domain.IncidentRecord
		if err := storage.GetJSON(ctx, s.kv, key, &rec); err != nil {
			return nil, fmt.Errorf("%w: read %s: %w", domain.ErrStorageUnavailable, key, err)
		}
		records = append(records, rec)
	}
	return records, nil
}
