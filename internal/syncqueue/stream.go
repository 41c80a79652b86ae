package syncqueue

import (
	"net/http"
	"time"

	"github.com/bissquit/inspection-sync/internal/pkg/ctxlog"
	"github.com/gorilla/websocket"
)

const (
	streamBuffer     = 64
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
)

// StreamMessage is one frame of the sync stream.
type StreamMessage struct {
	Type      string       `json:"type"` // "status" or "event"
	Status    Status       `json:"status,omitempty"`
	Event     *StreamEvent `json:"event,omitempty"`
	Timestamp int64        `json:"timestamp"`
}

// StreamEvent is the wire form of Event.
type StreamEvent struct {
	Type      EventType   `json:"type"`
	ItemID    string      `json:"item_id,omitempty"`
	Kind      ErrorKind   `json:"kind,omitempty"`
	Attempts  int         `json:"attempts,omitempty"`
	CanRetry  bool        `json:"can_retry"`
	NoErrors  bool        `json:"no_errors"`
	Processed int         `json:"processed,omitempty"`
	Reason    DeferReason `json:"reason,omitempty"`
	Message   string      `json:"message,omitempty"`
	Error     string      `json:"error,omitempty"`
}

func newStreamEvent(e Event) *StreamEvent {
	se := &StreamEvent{
		Type:      e.Type,
		ItemID:    e.ItemID,
		Kind:      e.Kind,
		Attempts:  e.Attempts,
		CanRetry:  e.CanRetry,
		NoErrors:  e.NoErrors,
		Processed: e.Processed,
		Reason:    e.Reason,
		Message:   e.Message,
	}
	if e.Err != nil {
		se.Error = e.Err.Error()
	}
	return se
}

// Stream handles GET /sync/stream request. It upgrades to a websocket and
// pushes the current status followed by every status change and event.
// Frames are dropped for a client that cannot keep up.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	log := ctxlog.FromContext(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	notifier := h.engine.Notifier()
	out := make(chan StreamMessage, streamBuffer)
	send := func(m StreamMessage) {
		m.Timestamp = time.Now().UnixMilli()
		select {
		case out <- m:
		default:
			log.Debug("stream client is slow, frame dropped", "type", m.Type)
		}
	}

	unsubStatus := notifier.Subscribe(func(s Status) {
		send(StreamMessage{Type: "status", Status: s})
	})
	defer unsubStatus()
	unsubEvents := notifier.OnAny(func(e Event) {
		send(StreamMessage{Type: "event", Event: newStreamEvent(e)})
	})
	defer unsubEvents()

	// Sent after subscribing so a client that has seen it misses nothing.
	send(StreamMessage{Type: "status", Status: notifier.Status()})

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log.Info("sync stream client connected")
	defer log.Info("sync stream client disconnected")

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case m := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(m); err != nil {
				log.Debug("stream write failed", "error", err)
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
