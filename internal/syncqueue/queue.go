package syncqueue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/inspection-sync/internal/domain"
	"github.com/bissquit/inspection-sync/internal/kv"
)

// QueueItem is one inspection waiting for remote submission.
// Timestamps are unix milliseconds; LastAttempt is 0 until the first failure.
type QueueItem struct {
	ID          string             `json:"id"`
	Data        *domain.Inspection `json:"data"`
	Attempts    int                `json:"attempts"`
	LastAttempt int64              `json:"lastAttempt"`
	CreatedAt   int64              `json:"createdAt"`
}

// Queue is the durable, insertion-ordered list of pending items.
type Queue struct {
	store kv.Store
	keys  Keys
	now   func() time.Time
}

// NewQueue creates a queue over store.
func NewQueue(store kv.Store, keys Keys, now func() time.Time) *Queue {
	if now == nil {
		now = time.Now
	}
	return &Queue{store: store, keys: keys, now: now}
}

// Append adds a fresh item for insp and returns it.
func (q *Queue) Append(ctx context.Context, insp *domain.Inspection) (QueueItem, error) {
	if insp == nil {
		return QueueItem{}, ErrNoInspection
	}

	now := q.now()
	item := QueueItem{
		ID:        newID("sync", now),
		Data:      insp.Clone(),
		CreatedAt: now.UnixMilli(),
	}

	err := kv.Update(ctx, q.store, q.keys.Queue, func(current string, found bool) (string, bool, error) {
		items := q.decode(current, found)
		items = append(items, item)
		return q.encode(items)
	})
	if err != nil {
		return QueueItem{}, fmt.Errorf("append item: %w", err)
	}

	slog.Info("item queued", "item_id", item.ID, "nome", insp.DisplayName())
	return item, nil
}

// List returns all items in insertion order. A missing or corrupt queue
// reads as empty; only store failures are returned.
func (q *Queue) List(ctx context.Context) ([]QueueItem, error) {
	raw, found, err := q.store.Get(ctx, q.keys.Queue)
	if err != nil {
		return nil, fmt.Errorf("read queue: %w", err)
	}
	return q.decode(raw, found), nil
}

// Remove deletes the item with id. Missing ids are ignored.
func (q *Queue) Remove(ctx context.Context, id string) error {
	err := kv.Update(ctx, q.store, q.keys.Queue, func(current string, found bool) (string, bool, error) {
		items := q.decode(current, found)
		kept := items[:0]
		for _, it := range items {
			if it.ID != id {
				kept = append(kept, it)
			}
		}
		if len(kept) == len(items) {
			return "", false, nil
		}
		return q.encode(kept)
	})
	if err != nil {
		return fmt.Errorf("remove item: %w", err)
	}
	return nil
}

// Replace overwrites the stored item with the same id. It is a no-op when
// the item is no longer queued.
func (q *Queue) Replace(ctx context.Context, item QueueItem) error {
	err := kv.Update(ctx, q.store, q.keys.Queue, func(current string, found bool) (string, bool, error) {
		items := q.decode(current, found)
		for i := range items {
			if items[i].ID == item.ID {
				items[i] = item
				return q.encode(items)
			}
		}
		return "", false, nil
	})
	if err != nil {
		return fmt.Errorf("replace item: %w", err)
	}
	return nil
}

// Clear removes the queue together with the attempt ledger and the
// processing registry in one store call.
func (q *Queue) Clear(ctx context.Context) error {
	if err := q.store.RemoveMany(ctx, q.keys.All()); err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}
	return nil
}

func (q *Queue) decode(raw string, found bool) []QueueItem {
	return decodeRecords[QueueItem](q.keys.Queue, raw, found)
}

func (q *Queue) encode(items []QueueItem) (string, bool, error) {
	return encodeRecords(items)
}
