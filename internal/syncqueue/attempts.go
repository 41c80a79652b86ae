package syncqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/inspection-sync/internal/kv"
)

type AttemptStatus string

const (
	AttemptPending    AttemptStatus = "pending"
	AttemptProcessing AttemptStatus = "processing"
	AttemptCompleted  AttemptStatus = "completed"
	AttemptFailed     AttemptStatus = "failed"
)

// IsActive reports whether the attempt still owns its item.
func (s AttemptStatus) IsActive() bool {
	return s == AttemptPending || s == AttemptProcessing
}

// AttemptRecord is one claimed submission attempt. Timestamp is unix millis
// of creation or of the last status change.
type AttemptRecord struct {
	ItemID    string        `json:"itemId"`
	AttemptID string        `json:"attemptId"`
	Timestamp int64         `json:"timestamp"`
	Status    AttemptStatus `json:"status"`
}

// DefaultCompletedRetention bounds how long completed attempts are kept.
const DefaultCompletedRetention = 24 * time.Hour

// AttemptLedger grants at most one active attempt per item. Active records
// older than the TTL are treated as abandoned.
type AttemptLedger struct {
	store kv.Store
	key   string
	ttl   time.Duration
	now   func() time.Time

	// Completed records are exempt from the TTL and pruned after this.
	completedRetention time.Duration
}

// NewAttemptLedger creates a ledger persisted under key.
func NewAttemptLedger(store kv.Store, key string, ttl time.Duration, now func() time.Time) *AttemptLedger {
	if now == nil {
		now = time.Now
	}
	return &AttemptLedger{
		store:              store,
		key:                key,
		ttl:                ttl,
		now:                now,
		completedRetention: DefaultCompletedRetention,
	}
}

func olderThan(ts int64, d time.Duration, now time.Time) bool {
	return now.UnixMilli()-ts > d.Milliseconds()
}

// Create admits a new pending attempt for itemID. It returns ok=false when an
// unexpired active attempt already exists. Expired active attempts for the
// item are deleted as part of the check. The whole check-and-insert is a
// single atomic store update.
func (l *AttemptLedger) Create(ctx context.Context, itemID string) (string, bool, error) {
	now := l.now()
	attemptID := newID("attempt", now)
	admitted := false

	err := l.update(ctx, func(records []AttemptRecord) ([]AttemptRecord, bool) {
		admitted = false
		kept := make([]AttemptRecord, 0, len(records)+1)
		denied, pruned := false, false
		for _, r := range records {
			if r.ItemID == itemID && r.Status.IsActive() {
				if olderThan(r.Timestamp, l.ttl, now) {
					slog.Debug("expired attempt removed", "item_id", itemID, "attempt_id", r.AttemptID)
					pruned = true
					continue
				}
				denied = true
			}
			kept = append(kept, r)
		}

		if !denied {
			kept = append(kept, AttemptRecord{
				ItemID:    itemID,
				AttemptID: attemptID,
				Timestamp: now.UnixMilli(),
				Status:    AttemptPending,
			})
			admitted = true
		}
		// Pruning and admitting in one call leaves the length unchanged.
		return kept, admitted || pruned
	})
	if err != nil {
		return "", false, fmt.Errorf("create attempt: %w", err)
	}
	if !admitted {
		return "", false, nil
	}
	return attemptID, true, nil
}

// UpdateStatus sets the status of attemptID and refreshes its timestamp.
func (l *AttemptLedger) UpdateStatus(ctx context.Context, attemptID string, status AttemptStatus) error {
	now := l.now()
	err := l.update(ctx, func(records []AttemptRecord) ([]AttemptRecord, bool) {
		for i := range records {
			if records[i].AttemptID == attemptID {
				records[i].Status = status
				records[i].Timestamp = now.UnixMilli()
				return records, true
			}
		}
		return records, false
	})
	if err != nil {
		return fmt.Errorf("update attempt status: %w", err)
	}
	return nil
}

// Remove deletes attemptID.
func (l *AttemptLedger) Remove(ctx context.Context, attemptID string) error {
	err := l.update(ctx, func(records []AttemptRecord) ([]AttemptRecord, bool) {
		kept := make([]AttemptRecord, 0, len(records))
		for _, r := range records {
			if r.AttemptID != attemptID {
				kept = append(kept, r)
			}
		}
		return kept, len(kept) != len(records)
	})
	if err != nil {
		return fmt.Errorf("remove attempt: %w", err)
	}
	return nil
}

// Get returns the record for attemptID, or nil.
func (l *AttemptLedger) Get(ctx context.Context, attemptID string) (*AttemptRecord, error) {
	records, err := l.list(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.AttemptID == attemptID {
			return &r, nil
		}
	}
	return nil, nil
}

// Active returns the unexpired active attempt for itemID, or nil.
// An expired active attempt found on the way is deleted.
func (l *AttemptLedger) Active(ctx context.Context, itemID string) (*AttemptRecord, error) {
	now := l.now()
	var active *AttemptRecord

	err := l.update(ctx, func(records []AttemptRecord) ([]AttemptRecord, bool) {
		kept := make([]AttemptRecord, 0, len(records))
		for _, r := range records {
			if r.ItemID == itemID && r.Status.IsActive() {
				if olderThan(r.Timestamp, l.ttl, now) {
					continue
				}
				if active == nil {
					rec := r
					active = &rec
				}
			}
			kept = append(kept, r)
		}
		return kept, len(kept) != len(records)
	})
	if err != nil {
		return nil, fmt.Errorf("get active attempt: %w", err)
	}
	return active, nil
}

// CleanupExpired drops every non-completed record older than the TTL and
// returns how many were dropped. The ledger is only written when something
// changed.
func (l *AttemptLedger) CleanupExpired(ctx context.Context) (int, error) {
	now := l.now()
	removed := 0

	err := l.update(ctx, func(records []AttemptRecord) ([]AttemptRecord, bool) {
		kept := make([]AttemptRecord, 0, len(records))
		for _, r := range records {
			limit := l.ttl
			if r.Status == AttemptCompleted {
				limit = l.completedRetention
			}
			if olderThan(r.Timestamp, limit, now) {
				slog.Debug("expired attempt removed", "item_id", r.ItemID, "attempt_id", r.AttemptID, "status", r.Status)
				continue
			}
			kept = append(kept, r)
		}
		removed = len(records) - len(kept)
		return kept, removed > 0
	})
	if err != nil {
		return 0, fmt.Errorf("cleanup attempts: %w", err)
	}
	return removed, nil
}

// Reset removes the whole ledger.
func (l *AttemptLedger) Reset(ctx context.Context) error {
	if err := l.store.Remove(ctx, l.key); err != nil {
		return fmt.Errorf("reset attempts: %w", err)
	}
	return nil
}

func (l *AttemptLedger) list(ctx context.Context) ([]AttemptRecord, error) {
	raw, found, err := l.store.Get(ctx, l.key)
	if err != nil {
		return nil, fmt.Errorf("read attempts: %w", err)
	}
	return decodeRecords[AttemptRecord](l.key, raw, found), nil
}

func (l *AttemptLedger) update(ctx context.Context, fn func([]AttemptRecord) ([]AttemptRecord, bool)) error {
	return kv.Update(ctx, l.store, l.key, func(current string, found bool) (string, bool, error) {
		next, changed := fn(decodeRecords[AttemptRecord](l.key, current, found))
		if !changed {
			return "", false, nil
		}
		return encodeRecords(next)
	})
}

// decodeRecords parses a persisted JSON array. Absent or corrupt data reads
// as empty.
func decodeRecords[T any](key, raw string, found bool) []T {
	if !found || raw == "" {
		return []T{}
	}
	var out []T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		slog.Warn("stored records are corrupt, treating as empty", "key", key, "error", err)
		return []T{}
	}
	if out == nil {
		out = []T{}
	}
	return out
}

func encodeRecords[T any](records []T) (string, bool, error) {
	data, err := json.Marshal(records)
	if err != nil {
		return "", false, fmt.Errorf("encode records: %w", err)
	}
	return string(data), true, nil
}
