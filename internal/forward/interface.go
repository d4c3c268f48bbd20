package forward

import (
	"encoding/json"
	"time"

	"github.com/timchenkailiang/bilibili-live-bot/internal/domain"
)

// Envelope is the wire form every forwarded domain event travels in.
type Envelope struct {
	EventID   string           `json:"event_id"`
	Type      domain.EventType `json:"type"`
	RoomID    string           `json:"room_id"`
	Payload   json.RawMessage  `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
}

// EventSink delivers envelopes to an external system. Produce must not
// block: implementations enqueue and report delivery asynchronously.
type EventSink interface {
	Produce(env Envelope) error
	Close() error
}
