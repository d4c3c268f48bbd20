package forward

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/timchenkailiang/bilibili-live-bot/internal/domain"
	"github.com/timchenkailiang/bilibili-live-bot/internal/livestream"
	"github.com/timchenkailiang/bilibili-live-bot/pkg/log"
)

// Forwarder is an event handler that wraps every domain event in an
// Envelope and hands it to a sink. Sink failures are logged, never
// propagated: forwarding must not disturb the dispatch path.
type Forwarder struct {
	sink EventSink
}

var _ livestream.EventHandler = (*Forwarder)(nil)

// New creates a Forwarder over the given sink.
func New(sink EventSink) *Forwarder {
	return &Forwarder{sink: sink}
}

func (f *Forwarder) OnChat(m domain.ChatMessage) {
	f.forward(domain.EventChat, m.RoomID, m.Timestamp, m)
}

func (f *Forwarder) OnGift(e domain.GiftEvent) {
	f.forward(domain.EventGift, e.RoomID, e.Timestamp, e)
}

func (f *Forwarder) OnSuperChat(e domain.SuperChatEvent) {
	f.forward(domain.EventSuperChat, e.RoomID, e.Timestamp, e)
}

func (f *Forwarder) OnGuardPurchase(e domain.GuardPurchaseEvent) {
	f.forward(domain.EventGuardPurchase, e.RoomID, e.Timestamp, e)
}

func (f *Forwarder) forward(t domain.EventType, roomID string, ts time.Time, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.L().Error().Err(err).Str(log.FieldEvent, string(t)).Msg("failed to marshal event for forwarding")
		return
	}

	env := Envelope{
		EventID:   uuid.New().String(),
		Type:      t,
		RoomID:    roomID,
		Payload:   raw,
		Timestamp: ts,
	}
	if err := f.sink.Produce(env); err != nil {
		log.L().Error().Err(err).
			Str(log.FieldEvent, string(t)).
			Str(log.FieldRoomID, roomID).
			Msg("failed to enqueue event for forwarding")
	}
}
