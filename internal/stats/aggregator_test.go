package stats_test

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/timchenkailiang/bilibili-live-bot/internal/domain"
	"github.com/timchenkailiang/bilibili-live-bot/internal/stats"
)

var ts = time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)

func chat(userID int64, name string) domain.ChatMessage {
	return domain.ChatMessage{UserID: userID, Username: name, RoomID: "23058", Text: "hi", Timestamp: ts}
}

func gift(userID int64, count int, cny int64) domain.GiftEvent {
	return domain.GiftEvent{
		UserID: userID, Username: "fan", RoomID: "23058",
		GiftName: "rocket", GiftCount: count,
		ValueCNY: decimal.NewFromInt(cny), CoinType: domain.CoinGold,
		Timestamp: ts,
	}
}

func TestAggregatorLazyRowCreation(t *testing.T) {
	agg := stats.NewAggregator()

	_, ok := agg.User(42)
	require.False(t, ok)

	agg.OnChat(chat(42, "viewer"))

	u, ok := agg.User(42)
	require.True(t, ok)
	require.Equal(t, "viewer", u.Username)
	require.Equal(t, 1, u.ChatCount)
	require.Equal(t, ts, u.LastSeen)
}

func TestAggregatorAccumulatesGifts(t *testing.T) {
	agg := stats.NewAggregator()

	agg.OnGift(gift(42, 2, 1))
	agg.OnGift(gift(42, 3, 5))

	u, ok := agg.User(42)
	require.True(t, ok)
	require.Equal(t, 5, u.GiftCount)
	require.True(t, u.GiftValueCNY.Equal(decimal.NewFromInt(6)), "got %s", u.GiftValueCNY)
}

func TestAggregatorCountsReplayedEventTwice(t *testing.T) {
	agg := stats.NewAggregator()
	e := gift(42, 2, 1)

	agg.OnGift(e)
	agg.OnGift(e)

	u, _ := agg.User(42)
	require.Equal(t, 4, u.GiftCount)
	require.True(t, u.GiftValueCNY.Equal(decimal.NewFromInt(2)))
}

func TestAggregatorTracksSuperChatsAndGuards(t *testing.T) {
	agg := stats.NewAggregator()

	agg.OnSuperChat(domain.SuperChatEvent{
		UserID: 7, Username: "whale", RoomID: "23058",
		Message: "hi", PriceCNY: decimal.NewFromInt(30), Timestamp: ts,
	})
	agg.OnGuardPurchase(domain.GuardPurchaseEvent{
		UserID: 7, Username: "whale", RoomID: "23058",
		Level: domain.GuardCaptain, Count: 1,
		PriceCNY: decimal.NewFromInt(198), Timestamp: ts,
	})

	u, ok := agg.User(7)
	require.True(t, ok)
	require.True(t, u.SuperChatValueCNY.Equal(decimal.NewFromInt(30)))
	require.Len(t, u.GuardPurchases, 1)
	require.Equal(t, domain.GuardCaptain, u.GuardPurchases[0].Level)
}

func TestAggregatorSnapshotsAreIsolated(t *testing.T) {
	agg := stats.NewAggregator()
	agg.OnGuardPurchase(domain.GuardPurchaseEvent{
		UserID: 7, Username: "whale", RoomID: "23058",
		Level: domain.GuardCaptain, Count: 1, Timestamp: ts,
	})

	u, _ := agg.User(7)
	u.GuardPurchases[0].Count = 99
	u.ChatCount = 1000

	fresh, _ := agg.User(7)
	require.Equal(t, 1, fresh.GuardPurchases[0].Count)
	require.Equal(t, 0, fresh.ChatCount)
}

func TestAggregatorAllOrderedByUserID(t *testing.T) {
	agg := stats.NewAggregator()
	agg.OnChat(chat(9, "c"))
	agg.OnChat(chat(1, "a"))
	agg.OnChat(chat(5, "b"))

	all := agg.All()
	require.Len(t, all, 3)
	require.Equal(t, int64(1), all[0].UserID)
	require.Equal(t, int64(5), all[1].UserID)
	require.Equal(t, int64(9), all[2].UserID)
}

func TestAggregatorSummary(t *testing.T) {
	agg := stats.NewAggregator()
	agg.OnChat(chat(1, "a"))
	agg.OnChat(chat(1, "a"))
	agg.OnGift(gift(2, 2, 1))
	agg.OnSuperChat(domain.SuperChatEvent{
		UserID: 3, Username: "whale", RoomID: "23058",
		Message: "hi", PriceCNY: decimal.NewFromInt(30), Timestamp: ts,
	})

	s := agg.Summary()
	require.Equal(t, 3, s.Users)
	require.Equal(t, 2, s.Chats)
	require.Equal(t, 2, s.Gifts)
	require.True(t, s.GiftValueCNY.Equal(decimal.NewFromInt(1)))
	require.True(t, s.SuperChatValueCNY.Equal(decimal.NewFromInt(30)))
}

func TestAggregatorConcurrentWritesAndReads(t *testing.T) {
	agg := stats.NewAggregator()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				agg.OnChat(chat(userID, "viewer"))
				agg.All()
				agg.Summary()
			}
		}(int64(g % 4))
	}
	wg.Wait()

	require.Equal(t, 8*200, agg.Summary().Chats)
	require.Equal(t, 4, agg.Summary().Users)
}
