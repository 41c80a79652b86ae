package syncqueue

import (
	"sync"

	"github.com/bissquit/inspection-sync/internal/domain"
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusError   Status = "error"
)

type EventType string

const (
	EventSyncStart    EventType = "sync_start"
	EventSyncSuccess  EventType = "sync_success"
	EventSyncError    EventType = "sync_error"
	EventSyncComplete EventType = "sync_complete"
	EventQueueEmpty   EventType = "queue_empty"
	EventItemDeferred EventType = "item_deferred"
)

// Event describes progress of the engine. Fields not relevant to Type are
// left zero.
type Event struct {
	Type   EventType
	ItemID string

	// Inspection is the record as submitted, set on EventSyncSuccess.
	Inspection *domain.Inspection

	Err      error
	Kind     ErrorKind
	Attempts int
	CanRetry bool

	NoErrors  bool
	Processed int

	Reason DeferReason

	// Message is a user-facing summary.
	Message string
}

// Notifier fans status changes and events out to subscribers. Listeners are
// called synchronously, in subscription order, without the lock held.
type Notifier struct {
	mu     sync.Mutex
	status Status
	nextID int

	statusSubs []statusSub
	eventSubs  []eventSub
}

type statusSub struct {
	id int
	fn func(Status)
}

type eventSub struct {
	id  int
	typ EventType // empty matches every type
	fn  func(Event)
}

func NewNotifier() *Notifier {
	return &Notifier{status: StatusIdle}
}

// Status returns the last published status.
func (n *Notifier) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status
}

// Subscribe registers fn for status changes. The returned func removes
// exactly this subscription and is safe to call more than once.
func (n *Notifier) Subscribe(fn func(Status)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	id := n.nextID
	n.statusSubs = append(n.statusSubs, statusSub{id: id, fn: fn})

	return n.unsubscriber(func() {
		for i, s := range n.statusSubs {
			if s.id == id {
				n.statusSubs = append(n.statusSubs[:i:i], n.statusSubs[i+1:]...)
				return
			}
		}
	})
}

// On registers fn for events of type t.
func (n *Notifier) On(t EventType, fn func(Event)) func() {
	return n.addEventSub(t, fn)
}

// OnAny registers fn for every event.
func (n *Notifier) OnAny(fn func(Event)) func() {
	return n.addEventSub("", fn)
}

func (n *Notifier) addEventSub(t EventType, fn func(Event)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	id := n.nextID
	n.eventSubs = append(n.eventSubs, eventSub{id: id, typ: t, fn: fn})

	return n.unsubscriber(func() {
		for i, s := range n.eventSubs {
			if s.id == id {
				n.eventSubs = append(n.eventSubs[:i:i], n.eventSubs[i+1:]...)
				return
			}
		}
	})
}

func (n *Notifier) unsubscriber(remove func()) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			remove()
		})
	}
}

func (n *Notifier) publish(s Status) {
	n.mu.Lock()
	n.status = s
	fns := make([]func(Status), len(n.statusSubs))
	for i, sub := range n.statusSubs {
		fns[i] = sub.fn
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

func (n *Notifier) emit(e Event) {
	n.mu.Lock()
	fns := make([]func(Event), 0, len(n.eventSubs))
	for _, sub := range n.eventSubs {
		if sub.typ == "" || sub.typ == e.Type {
			fns = append(fns, sub.fn)
		}
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(e)
	}
}
