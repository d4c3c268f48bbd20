package bilibili

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/timchenkailiang/bilibili-live-bot/internal/domain"
)

const danmakuInfoFixture = `[
	[0, 1, 25, 16777215, 1718000000000, 1718000000, 0, "hash", 0, 0, 0],
	"hello room",
	[42, "viewer", 1, 0, 1, 10000, 1, ""],
	[21, "fans", "streamer", 23058, 6126494, ""],
	[30, 0, 9868950, ">50000"],
	["title", "title"],
	0, 0, null, {"ts": 1718000000}
]`

func TestTranslateChatFromInfoArray(t *testing.T) {
	msg, err := translateChat("23058", json.RawMessage(danmakuInfoFixture))
	require.NoError(t, err)

	require.Equal(t, int64(42), msg.UserID)
	require.Equal(t, "viewer", msg.Username)
	require.Equal(t, "23058", msg.RoomID)
	require.Equal(t, "hello room", msg.Text)
	require.Equal(t, time.UnixMilli(1718000000000), msg.Timestamp)
	require.Equal(t, 30, msg.UserLevel)
	require.Equal(t, "fans", msg.MedalName)
	require.True(t, msg.IsAdmin)
	require.True(t, msg.IsVIP)
}

func TestTranslateChatWithoutMedal(t *testing.T) {
	info := `[[0,1,25,16777215,1718000000000],"plain",[7,"nobody",0,0,0],[],[5,0,0,""]]`
	msg, err := translateChat("23058", json.RawMessage(info))
	require.NoError(t, err)
	require.Empty(t, msg.MedalName)
	require.False(t, msg.IsAdmin)
	require.Equal(t, 5, msg.UserLevel)
}

func TestTranslateChatRejectsMalformedInfo(t *testing.T) {
	cases := map[string]string{
		"not an array":  `{"cmd":"DANMU_MSG"}`,
		"too short":     `[[0],"hi"]`,
		"user missing":  `[[0,1,25,0,1718000000000],"hi",[],[],[5]]`,
		"empty text":    `[[0,1,25,0,1718000000000],"   ",[42,"viewer"],[],[5]]`,
		"text not json": `[[0,1,25,0,1718000000000],42,[42,"viewer"],[],[5]]`,
	}
	for name, info := range cases {
		_, err := translateChat("23058", json.RawMessage(info))
		require.Error(t, err, name)
	}
}

func TestTranslateGiftDerivesValueFromTotalCoin(t *testing.T) {
	data := `{"giftName":"rocket","num":1,"uid":42,"uname":"fan","timestamp":1718000000,"coin_type":"gold","total_coin":1000,"price":1000}`

	e, err := translateGift("23058", json.RawMessage(data), DefaultCoinRates())
	require.NoError(t, err)
	require.Equal(t, domain.CoinGold, e.CoinType)
	require.True(t, e.ValueCNY.Equal(decimal.NewFromInt(1)), "got %s", e.ValueCNY)
}

func TestTranslateGiftFallsBackToCountTimesUnitPrice(t *testing.T) {
	data := `{"giftName":"rocket","num":2,"uid":42,"uname":"fan","timestamp":1718000000,"coin_type":"gold","price":500}`

	e, err := translateGift("23058", json.RawMessage(data), DefaultCoinRates())
	require.NoError(t, err)
	require.Equal(t, int64(42), e.UserID)
	require.Equal(t, "rocket", e.GiftName)
	require.Equal(t, 2, e.GiftCount)
	require.True(t, e.ValueCNY.Equal(decimal.NewFromInt(1)), "2 x 500 gold should be 1 CNY, got %s", e.ValueCNY)
}

func TestTranslateGiftSilverIsWorthNothing(t *testing.T) {
	data := `{"giftName":"辣条","num":10,"uid":7,"uname":"fan","timestamp":1718000000,"coin_type":"silver","total_coin":1000,"price":100}`

	e, err := translateGift("23058", json.RawMessage(data), DefaultCoinRates())
	require.NoError(t, err)
	require.Equal(t, domain.CoinSilver, e.CoinType)
	require.True(t, e.ValueCNY.IsZero(), "got %s", e.ValueCNY)
}

func TestTranslateGiftRejectsUnknownCoin(t *testing.T) {
	data := `{"giftName":"rocket","num":1,"uid":42,"uname":"fan","coin_type":"bronze","total_coin":100}`

	_, err := translateGift("23058", json.RawMessage(data), DefaultCoinRates())
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestTranslateGiftRejectsMissingFields(t *testing.T) {
	cases := map[string]string{
		"no name":  `{"num":1,"uid":42,"uname":"fan","coin_type":"gold"}`,
		"no uname": `{"giftName":"rocket","num":1,"uid":42,"coin_type":"gold"}`,
		"no count": `{"giftName":"rocket","uid":42,"uname":"fan","coin_type":"gold"}`,
		"bad json": `{"giftName":`,
	}
	for name, data := range cases {
		_, err := translateGift("23058", json.RawMessage(data), DefaultCoinRates())
		require.Error(t, err, name)
	}
}

func TestTranslateSuperChat(t *testing.T) {
	data := `{"id":991,"uid":7,"message":"great stream","price":30,"time":60,"start_time":1718000000,"user_info":{"uname":"whale"}}`

	e, err := translateSuperChat("23058", json.RawMessage(data))
	require.NoError(t, err)
	require.Equal(t, int64(7), e.UserID)
	require.Equal(t, "whale", e.Username)
	require.True(t, e.PriceCNY.Equal(decimal.NewFromInt(30)))
	require.Equal(t, int64(991), e.MessageID)
	require.Equal(t, time.Minute, e.Duration)
	require.Equal(t, time.Unix(1718000000, 0), e.Timestamp)
}

func TestTranslateSuperChatRejectsZeroPrice(t *testing.T) {
	data := `{"id":991,"uid":7,"message":"free?","price":0,"time":60,"user_info":{"uname":"whale"}}`

	_, err := translateSuperChat("23058", json.RawMessage(data))
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "price_cny", verr.Field)
}

func TestTranslateGuard(t *testing.T) {
	data := `{"uid":9,"username":"sailor","guard_level":3,"num":1,"price":198000,"start_time":1718000000}`

	e, err := translateGuard("23058", json.RawMessage(data), DefaultCoinRates())
	require.NoError(t, err)
	require.Equal(t, domain.GuardCaptain, e.Level)
	require.Equal(t, 1, e.Count)
	require.True(t, e.PriceCNY.Equal(decimal.NewFromInt(198)), "got %s", e.PriceCNY)
}

func TestTranslateGuardRejectsUnknownLevel(t *testing.T) {
	data := `{"uid":9,"username":"sailor","guard_level":5,"num":1,"price":198000}`

	_, err := translateGuard("23058", json.RawMessage(data), DefaultCoinRates())
	require.Error(t, err)
}

func TestEventKeysBucketBySecond(t *testing.T) {
	base := time.Unix(1718000000, 0)
	m1 := domain.ChatMessage{UserID: 42, RoomID: "23058", Text: "hi", Timestamp: base}
	m2 := domain.ChatMessage{UserID: 42, RoomID: "23058", Text: "hi", Timestamp: base.Add(300 * time.Millisecond)}
	m3 := domain.ChatMessage{UserID: 42, RoomID: "23058", Text: "hi", Timestamp: base.Add(time.Second)}

	require.Equal(t, chatKey(m1), chatKey(m2))
	require.NotEqual(t, chatKey(m1), chatKey(m3))
}

func TestSuperChatKeyPrefersMessageID(t *testing.T) {
	base := time.Unix(1718000000, 0)
	a := domain.SuperChatEvent{UserID: 7, RoomID: "23058", Message: "one", MessageID: 991, Timestamp: base}
	b := domain.SuperChatEvent{UserID: 7, RoomID: "23058", Message: "two", MessageID: 991, Timestamp: base}
	c := domain.SuperChatEvent{UserID: 7, RoomID: "23058", Message: "two", Timestamp: base}

	require.Equal(t, superChatKey(a), superChatKey(b))
	require.NotEqual(t, superChatKey(a), superChatKey(c))
}
