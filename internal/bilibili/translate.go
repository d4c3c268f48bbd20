package bilibili

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/timchenkailiang/bilibili-live-bot/internal/domain"
)

// translateChat maps a DANMU_MSG info array to a domain ChatMessage.
func translateChat(roomID string, info json.RawMessage) (domain.ChatMessage, error) {
	d, err := parseDanmaku(info)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	return domain.NewChatMessage(domain.ChatMessage{
		UserID:    d.UID,
		Username:  d.Uname,
		RoomID:    roomID,
		Text:      d.Text,
		Timestamp: d.Timestamp,
		UserLevel: d.UserLevel,
		MedalName: d.MedalName,
		IsAdmin:   d.IsAdmin,
		IsVIP:     d.IsVIP,
	})
}

// translateGift maps a SEND_GIFT data payload to a domain GiftEvent.
// The CNY value is always derived here: total coins (falling back to
// count times unit price) divided by the coin rate. Coin types absent
// from the rate table are worth nothing.
func translateGift(roomID string, data json.RawMessage, rates map[string]int64) (domain.GiftEvent, error) {
	var g sendGiftData
	if err := json.Unmarshal(data, &g); err != nil {
		return domain.GiftEvent{}, fmt.Errorf("gift data: %w", err)
	}

	coin, err := domain.ParseCoinType(g.CoinType)
	if err != nil {
		return domain.GiftEvent{}, err
	}

	totalCoin := g.TotalCoin
	if totalCoin == 0 {
		totalCoin = int64(g.Num) * g.Price
	}

	value := decimal.Zero
	if rate, ok := rates[string(coin)]; ok && rate > 0 {
		value = decimal.NewFromInt(totalCoin).Div(decimal.NewFromInt(rate))
	}

	return domain.NewGiftEvent(domain.GiftEvent{
		UserID:    g.UID,
		Username:  g.Uname,
		RoomID:    roomID,
		GiftName:  g.GiftName,
		GiftCount: g.Num,
		ValueCNY:  value,
		CoinType:  coin,
		Timestamp: unixTime(g.Timestamp),
	})
}

// translateSuperChat maps a SUPER_CHAT_MESSAGE data payload to a
// domain SuperChatEvent. Upstream prices super chats in whole CNY.
func translateSuperChat(roomID string, data json.RawMessage) (domain.SuperChatEvent, error) {
	var sc superChatData
	if err := json.Unmarshal(data, &sc); err != nil {
		return domain.SuperChatEvent{}, fmt.Errorf("super chat data: %w", err)
	}

	return domain.NewSuperChatEvent(domain.SuperChatEvent{
		UserID:    sc.UID,
		Username:  sc.UserInfo.Uname,
		RoomID:    roomID,
		Message:   sc.Message,
		PriceCNY:  decimal.NewFromInt(sc.Price),
		MessageID: sc.ID,
		Duration:  time.Duration(sc.Time) * time.Second,
		Timestamp: unixTime(sc.StartTime),
	})
}

// translateGuard maps a GUARD_BUY data payload to a domain
// GuardPurchaseEvent. The raw price is in gold coins.
func translateGuard(roomID string, data json.RawMessage, rates map[string]int64) (domain.GuardPurchaseEvent, error) {
	var gb guardBuyData
	if err := json.Unmarshal(data, &gb); err != nil {
		return domain.GuardPurchaseEvent{}, fmt.Errorf("guard data: %w", err)
	}

	level, err := domain.GuardLevelFromCode(gb.GuardLevel)
	if err != nil {
		return domain.GuardPurchaseEvent{}, err
	}

	price := decimal.Zero
	if rate, ok := rates[string(domain.CoinGold)]; ok && rate > 0 {
		price = decimal.NewFromInt(gb.Price).Div(decimal.NewFromInt(rate))
	}

	return domain.NewGuardPurchaseEvent(domain.GuardPurchaseEvent{
		UserID:    gb.UID,
		Username:  gb.Username,
		RoomID:    roomID,
		Level:     level,
		Count:     gb.Num,
		PriceCNY:  price,
		Timestamp: unixTime(gb.StartTime),
	})
}

// eventKey builds the dedup key: kind, user, room, a content
// fingerprint, and the second the event happened in.
func eventKey(kind domain.EventType, userID int64, roomID, fingerprint string, ts time.Time) string {
	return fmt.Sprintf("%s:%d:%s:%s:%d", kind, userID, roomID, fingerprint, ts.Unix())
}

func chatKey(m domain.ChatMessage) string {
	return eventKey(domain.EventChat, m.UserID, m.RoomID, textFingerprint(m.Text), m.Timestamp)
}

func giftKey(e domain.GiftEvent) string {
	return eventKey(domain.EventGift, e.UserID, e.RoomID,
		fmt.Sprintf("%s:%d", e.GiftName, e.GiftCount), e.Timestamp)
}

func superChatKey(e domain.SuperChatEvent) string {
	fp := textFingerprint(e.Message)
	if e.MessageID > 0 {
		fp = strconv.FormatInt(e.MessageID, 10)
	}
	return eventKey(domain.EventSuperChat, e.UserID, e.RoomID, fp, e.Timestamp)
}

func guardKey(e domain.GuardPurchaseEvent) string {
	return eventKey(domain.EventGuardPurchase, e.UserID, e.RoomID,
		fmt.Sprintf("%d:%d", int(e.Level), e.Count), e.Timestamp)
}

// textFingerprint bounds free-text dedup key segments.
func textFingerprint(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
