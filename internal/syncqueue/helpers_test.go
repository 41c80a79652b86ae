package syncqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bissquit/inspection-sync/internal/domain"
	"github.com/bissquit/inspection-sync/internal/kv"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeTransport records calls and replays configured errors in order.
// Once an error list is exhausted, calls succeed.
type fakeTransport struct {
	mu         sync.Mutex
	uploadErrs []error
	submitErrs []error
	urls       map[string]string
	serverID   *int64
	block      chan struct{}
	entered    chan struct{}

	uploads   [][]domain.LocalPhoto
	submitted []*domain.Inspection
}

func (f *fakeTransport) UploadBatch(_ context.Context, _ *int64, photos []domain.LocalPhoto) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.uploads = append(f.uploads, photos)
	if len(f.uploadErrs) > 0 {
		err := f.uploadErrs[0]
		f.uploadErrs = f.uploadErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	out := make(map[string]string)
	for _, p := range photos {
		if u, ok := f.urls[p.Key]; ok {
			out[p.Key] = u
		}
	}
	return out, nil
}

func (f *fakeTransport) SubmitInspection(_ context.Context, insp *domain.Inspection) (*int64, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.submitted = append(f.submitted, insp.Clone())
	if len(f.submitErrs) > 0 {
		err := f.submitErrs[0]
		f.submitErrs = f.submitErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.serverID, nil
}

func (f *fakeTransport) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

func (f *fakeTransport) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

// alwaysFailing returns n copies of err.
func alwaysFailing(err error, n int) []error {
	errs := make([]error, n)
	for i := range errs {
		errs[i] = err
	}
	return errs
}

// brokenStore fails every operation.
type brokenStore struct {
	err error
}

func (s brokenStore) Get(context.Context, string) (string, bool, error) { return "", false, s.err }
func (s brokenStore) Set(context.Context, string, string) error { return s.err }
func (s brokenStore) Remove(context.Context, string) error { return s.err }
func (s brokenStore) RemoveMany(context.Context, []string) error { return s.err }
func (s brokenStore) ListKeys(context.Context) ([]string, error) { return nil, s.err }

var errStoreDown = errors.New("store down")

// queueWriteFailStore rejects writes to the queue key while failing is set.
type queueWriteFailStore struct {
	*kv.MemoryStore
	failing atomic.Bool
}

func (s *queueWriteFailStore) Update(ctx context.Context, key string, fn kv.UpdateFunc) error {
	if s.failing.Load() && key == KeysFor("").Queue {
		return errStoreDown
	}
	return s.MemoryStore.Update(ctx, key, fn)
}

// eventRecorder collects events from a notifier.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func recordEvents(n *Notifier) *eventRecorder {
	r := &eventRecorder{}
	n.OnAny(func(e Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, e)
	})
	return r
}

func (r *eventRecorder) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func testConfig() EngineConfig {
	cfg := DefaultEngineConfig()
	cfg.Interval = time.Hour
	return cfg
}

func newTestEngine(t *testing.T, store kv.Store, transport Transport, clock *fakeClock, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	e := NewEngine(store, transport, testConfig(), opts...)
	t.Cleanup(e.Close)
	return e
}

func sampleInspection(name string) *domain.Inspection {
	return &domain.Inspection{
		Name:      name,
		Fleet:     "F-" + name,
		Mileage:   100,
		Checklist: map[string]domain.ChecklistResult{"pneus": domain.ChecklistConforming},
		Ratings:   map[string]int{"limpeza": 4},
		Status:    domain.InspectionStatusCompleted,
	}
}

func mustList(t *testing.T, q *Queue) []QueueItem {
	t.Helper()
	items, err := q.List(context.Background())
	require.NoError(t, err)
	return items
}
