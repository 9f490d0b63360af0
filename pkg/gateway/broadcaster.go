package gateway

import (
	"sync/atomic"
	"time"

	"github.com/aksel/sage/pkg/orchestrator"
	"github.com/rs/zerolog"
)

// Broadcaster fans frames out to every connected client and stamps them
// with a monotonically increasing sequence. It implements
// orchestrator.Observer, so it can be handed to the orchestrator as the
// event sink and to the server as the client-facing side.
type Broadcaster struct {
	clients *ClientRegistry
	logger  zerolog.Logger
	seq     atomic.Int64
}

// NewBroadcaster creates a broadcaster with its own client registry.
func NewBroadcaster(logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		clients: NewClientRegistry(),
		logger:  logger,
	}
}

// Notify converts an orchestrator event into an event frame and broadcasts
// it.
func (b *Broadcaster) Notify(event orchestrator.Event) {
	b.broadcast(StreamMessage{
		Type:  frameEvent,
		Event: eventName(event.Type),
		Data:  event,
	})
}

// Broadcast sends a named event with arbitrary data to every client.
func (b *Broadcaster) Broadcast(event string, data interface{}) {
	b.broadcast(StreamMessage{
		Type:  frameEvent,
		Event: event,
		Data:  data,
	})
}

// SendTo delivers one frame to a single client, stamped like broadcast
// frames so a client sees one total order.
func (b *Broadcaster) SendTo(client *Client, msg StreamMessage) error {
	b.stamp(&msg)
	return client.WriteJSON(msg)
}

func (b *Broadcaster) broadcast(msg StreamMessage) {
	b.stamp(&msg)

	clients := b.clients.All()
	if len(clients) == 0 {
		return
	}

	for _, client := range clients {
		if err := client.WriteJSON(msg); err != nil {
			b.logger.Warn().
				Err(err).
				Str("client_id", client.ID).
				Str("event", msg.Event).
				Int64("seq", msg.Seq).
				Msg("Failed to broadcast to client")
		}
	}
}

func (b *Broadcaster) stamp(msg *StreamMessage) {
	if msg.Seq == 0 {
		msg.Seq = b.seq.Add(1)
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}
}

func eventName(t orchestrator.EventType) string {
	switch t {
	case orchestrator.EventRouteDecided:
		return eventRoute
	case orchestrator.EventStepExecuted:
		return eventStep
	case orchestrator.EventAnswerReady:
		return eventFinal
	default:
		return string(t)
	}
}
