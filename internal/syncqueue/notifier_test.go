package syncqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotifier_StatusSubscribers(t *testing.T) {
	n := NewNotifier()
	assert.Equal(t, StatusIdle, n.Status())

	var a, b []Status
	unsubA := n.Subscribe(func(s Status) { a = append(a, s) })
	n.Subscribe(func(s Status) { b = append(b, s) })

	n.publish(StatusSyncing)
	unsubA()
	unsubA()
	n.publish(StatusIdle)

	assert.Equal(t, []Status{StatusSyncing}, a)
	assert.Equal(t, []Status{StatusSyncing, StatusIdle}, b)
	assert.Equal(t, StatusIdle, n.Status())
}

func TestNotifier_UnsubscribeRemovesOnlyThatListener(t *testing.T) {
	n := NewNotifier()

	var calls []string
	n.Subscribe(func(Status) { calls = append(calls, "first") })
	unsub := n.Subscribe(func(Status) { calls = append(calls, "second") })
	n.Subscribe(func(Status) { calls = append(calls, "third") })

	unsub()
	n.publish(StatusError)

	assert.Equal(t, []string{"first", "third"}, calls)
}

func TestNotifier_EventsByType(t *testing.T) {
	n := NewNotifier()

	var successes, all []EventType
	n.On(EventSyncSuccess, func(e Event) { successes = append(successes, e.Type) })
	unsubAll := n.OnAny(func(e Event) { all = append(all, e.Type) })

	n.emit(Event{Type: EventSyncStart})
	n.emit(Event{Type: EventSyncSuccess, ItemID: "x"})
	unsubAll()
	n.emit(Event{Type: EventSyncSuccess})

	assert.Equal(t, []EventType{EventSyncSuccess, EventSyncSuccess}, successes)
	assert.Equal(t, []EventType{EventSyncStart, EventSyncSuccess}, all)
}

func TestNotifier_ListenerMayUnsubscribeItself(t *testing.T) {
	n := NewNotifier()

	calls := 0
	var unsub func()
	unsub = n.On(EventQueueEmpty, func(Event) {
		calls++
		unsub()
	})

	n.emit(Event{Type: EventQueueEmpty})
	n.emit(Event{Type: EventQueueEmpty})

	assert.Equal(t, 1, calls)
}
