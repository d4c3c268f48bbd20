package forward_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/timchenkailiang/bilibili-live-bot/internal/domain"
	"github.com/timchenkailiang/bilibili-live-bot/internal/forward"
)

type fakeSink struct {
	envs []forward.Envelope
	err  error
}

func (s *fakeSink) Produce(env forward.Envelope) error {
	if s.err != nil {
		return s.err
	}
	s.envs = append(s.envs, env)
	return nil
}

func (s *fakeSink) Close() error { return nil }

func TestForwarderWrapsGiftInEnvelope(t *testing.T) {
	sink := &fakeSink{}
	fwd := forward.New(sink)
	ts := time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)

	fwd.OnGift(domain.GiftEvent{
		UserID: 42, Username: "fan", RoomID: "23058",
		GiftName: "rocket", GiftCount: 2,
		ValueCNY: decimal.NewFromInt(1), CoinType: domain.CoinGold,
		Timestamp: ts,
	})

	require.Len(t, sink.envs, 1)
	env := sink.envs[0]
	require.Equal(t, domain.EventGift, env.Type)
	require.Equal(t, "23058", env.RoomID)
	require.Equal(t, ts, env.Timestamp)
	require.NotEmpty(t, env.EventID)

	var e domain.GiftEvent
	require.NoError(t, json.Unmarshal(env.Payload, &e))
	require.Equal(t, "rocket", e.GiftName)
	require.Equal(t, 2, e.GiftCount)
}

func TestForwarderCoversEveryEventKind(t *testing.T) {
	sink := &fakeSink{}
	fwd := forward.New(sink)
	ts := time.Now()

	fwd.OnChat(domain.ChatMessage{UserID: 1, Username: "a", RoomID: "23058", Text: "hi", Timestamp: ts})
	fwd.OnSuperChat(domain.SuperChatEvent{UserID: 2, Username: "b", RoomID: "23058", Message: "x", PriceCNY: decimal.NewFromInt(30), Timestamp: ts})
	fwd.OnGuardPurchase(domain.GuardPurchaseEvent{UserID: 3, Username: "c", RoomID: "23058", Level: domain.GuardCaptain, Count: 1, Timestamp: ts})

	require.Len(t, sink.envs, 3)
	require.Equal(t, domain.EventChat, sink.envs[0].Type)
	require.Equal(t, domain.EventSuperChat, sink.envs[1].Type)
	require.Equal(t, domain.EventGuardPurchase, sink.envs[2].Type)
}

func TestForwarderSwallowsSinkErrors(t *testing.T) {
	sink := &fakeSink{err: errors.New("queue full")}
	fwd := forward.New(sink)

	require.NotPanics(t, func() {
		fwd.OnChat(domain.ChatMessage{UserID: 1, Username: "a", RoomID: "23058", Text: "hi", Timestamp: time.Now()})
	})
	require.Empty(t, sink.envs)
}
