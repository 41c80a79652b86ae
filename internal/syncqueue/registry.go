package syncqueue

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/bissquit/inspection-sync/internal/kv"
)

// ProcessingRecord marks an item as being uploaded by some engine instance.
type ProcessingRecord struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
}

// ProcessingRegistry is the durable, cross-instance claim list. Claims older
// than the TTL are stale and pruned on every read.
type ProcessingRegistry struct {
	store kv.Store
	key   string
	ttl   time.Duration
	now   func() time.Time
}

// NewProcessingRegistry creates a registry persisted under key.
func NewProcessingRegistry(store kv.Store, key string, ttl time.Duration, now func() time.Time) *ProcessingRegistry {
	if now == nil {
		now = time.Now
	}
	return &ProcessingRegistry{store: store, key: key, ttl: ttl, now: now}
}

// prune drops stale claims and reports whether anything was dropped.
func (r *ProcessingRegistry) prune(records []ProcessingRecord, now time.Time) ([]ProcessingRecord, bool) {
	valid := make([]ProcessingRecord, 0, len(records))
	for _, rec := range records {
		if olderThan(rec.Timestamp, r.ttl, now) {
			slog.Debug("stale processing claim removed", "item_id", rec.ID)
			continue
		}
		valid = append(valid, rec)
	}
	return valid, len(valid) != len(records)
}

// TryClaim claims itemID unless a valid claim already exists.
func (r *ProcessingRegistry) TryClaim(ctx context.Context, itemID string) (bool, error) {
	now := r.now()
	claimed := false

	err := r.update(ctx, func(records []ProcessingRecord) ([]ProcessingRecord, bool) {
		valid, pruned := r.prune(records, now)
		for _, rec := range valid {
			if rec.ID == itemID {
				return valid, pruned
			}
		}
		claimed = true
		return append(valid, ProcessingRecord{ID: itemID, Timestamp: now.UnixMilli()}), true
	})
	if err != nil {
		return false, fmt.Errorf("claim item: %w", err)
	}
	return claimed, nil
}

// Release drops every claim on itemID.
func (r *ProcessingRegistry) Release(ctx context.Context, itemID string) error {
	err := r.update(ctx, func(records []ProcessingRecord) ([]ProcessingRecord, bool) {
		kept := slices.DeleteFunc(records, func(rec ProcessingRecord) bool { return rec.ID == itemID })
		return kept, len(kept) != len(records)
	})
	if err != nil {
		return fmt.Errorf("release item: %w", err)
	}
	return nil
}

// Claimed returns the ids with a valid claim.
func (r *ProcessingRegistry) Claimed(ctx context.Context) ([]string, error) {
	now := r.now()
	var ids []string

	err := r.update(ctx, func(records []ProcessingRecord) ([]ProcessingRecord, bool) {
		valid, pruned := r.prune(records, now)
		ids = make([]string, 0, len(valid))
		for _, rec := range valid {
			ids = append(ids, rec.ID)
		}
		return valid, pruned
	})
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	return ids, nil
}

// IsClaimed reports whether itemID has a valid claim.
func (r *ProcessingRegistry) IsClaimed(ctx context.Context, itemID string) (bool, error) {
	ids, err := r.Claimed(ctx)
	if err != nil {
		return false, err
	}
	return slices.Contains(ids, itemID), nil
}

// Reset removes the whole registry.
func (r *ProcessingRegistry) Reset(ctx context.Context) error {
	if err := r.store.Remove(ctx, r.key); err != nil {
		return fmt.Errorf("reset registry: %w", err)
	}
	return nil
}

func (r *ProcessingRegistry) update(ctx context.Context, fn func([]ProcessingRecord) ([]ProcessingRecord, bool)) error {
	return kv.Update(ctx, r.store, r.key, func(current string, found bool) (string, bool, error) {
		next, changed := fn(decodeRecords[ProcessingRecord](r.key, current, found))
		if !changed {
			return "", false, nil
		}
		return encodeRecords(next)
	})
}
