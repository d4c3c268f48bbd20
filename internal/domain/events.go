package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EventType identifies a domain event kind on the wire and in dedup keys.
type EventType string

const (
	EventChat          EventType = "chat"
	EventGift          EventType = "gift"
	EventSuperChat     EventType = "super_chat"
	EventGuardPurchase EventType = "guard_purchase"
)

// CoinType represents the currency a gift was paid with.
type CoinType string

const (
	CoinGold   CoinType = "gold"
	CoinSilver CoinType = "silver"
)

// ParseCoinType maps an upstream coin type string to a CoinType.
func ParseCoinType(s string) (CoinType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gold":
		return CoinGold, nil
	case "silver":
		return CoinSilver, nil
	default:
		return "", invalid("coin_type", fmt.Sprintf("unknown coin type %q", s))
	}
}

// GuardLevel represents a paid guard membership tier.
type GuardLevel int

const (
	GuardGovernor GuardLevel = 1 // 总督
	GuardAdmiral  GuardLevel = 2 // 提督
	GuardCaptain  GuardLevel = 3 // 舰长
)

// GuardLevelFromCode maps the raw upstream guard code to a GuardLevel.
func GuardLevelFromCode(code int) (GuardLevel, error) {
	switch code {
	case 1:
		return GuardGovernor, nil
	case 2:
		return GuardAdmiral, nil
	case 3:
		return GuardCaptain, nil
	default:
		return 0, invalid("guard_level", fmt.Sprintf("unknown guard code %d", code))
	}
}

func (l GuardLevel) String() string {
	switch l {
	case GuardGovernor:
		return "governor"
	case GuardAdmiral:
		return "admiral"
	case GuardCaptain:
		return "captain"
	default:
		return fmt.Sprintf("guard(%d)", int(l))
	}
}

// ChatMessage represents a chat (danmaku) message in a live room.
// Events are values; once constructed they are never mutated.
type ChatMessage struct {
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	RoomID    string    `json:"room_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	UserLevel int       `json:"user_level,omitempty"`
	MedalName string    `json:"medal_name,omitempty"`
	IsAdmin   bool      `json:"is_admin,omitempty"`
	IsVIP     bool      `json:"is_vip,omitempty"`
}

// GiftEvent represents a gift sent to a live room. ValueCNY is always
// derived by the translation layer, never copied from upstream verbatim.
type GiftEvent struct {
	UserID    int64           `json:"user_id"`
	Username  string          `json:"username"`
	RoomID    string          `json:"room_id"`
	GiftName  string          `json:"gift_name"`
	GiftCount int             `json:"gift_count"`
	ValueCNY  decimal.Decimal `json:"value_cny"`
	CoinType  CoinType        `json:"coin_type"`
	Timestamp time.Time       `json:"timestamp"`
}

// SuperChatEvent represents a paid highlighted message.
type SuperChatEvent struct {
	UserID    int64           `json:"user_id"`
	Username  string          `json:"username"`
	RoomID    string          `json:"room_id"`
	Message   string          `json:"message"`
	PriceCNY  decimal.Decimal `json:"price_cny"`
	MessageID int64           `json:"message_id,omitempty"`
	Duration  time.Duration   `json:"duration,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// GuardPurchaseEvent represents a guard membership purchase.
type GuardPurchaseEvent struct {
	UserID    int64           `json:"user_id"`
	Username  string          `json:"username"`
	RoomID    string          `json:"room_id"`
	Level     GuardLevel      `json:"level"`
	Count     int             `json:"count"`
	PriceCNY  decimal.Decimal `json:"price_cny"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewChatMessage validates and normalises a ChatMessage. The text is
// trimmed; a zero timestamp falls back to the receipt time.
func NewChatMessage(m ChatMessage) (ChatMessage, error) {
	m.Text = strings.TrimSpace(m.Text)
	if err := validateActor(m.UserID, m.Username, m.RoomID); err != nil {
		return ChatMessage{}, err
	}
	if m.Text == "" {
		return ChatMessage{}, invalid("text", "empty message text")
	}
	m.Timestamp = normaliseTime(m.Timestamp)
	return m, nil
}

// NewGiftEvent validates and normalises a GiftEvent.
func NewGiftEvent(e GiftEvent) (GiftEvent, error) {
	if err := validateActor(e.UserID, e.Username, e.RoomID); err != nil {
		return GiftEvent{}, err
	}
	if strings.TrimSpace(e.GiftName) == "" {
		return GiftEvent{}, invalid("gift_name", "empty gift name")
	}
	if e.GiftCount < 1 {
		return GiftEvent{}, invalid("gift_count", fmt.Sprintf("must be >= 1, got %d", e.GiftCount))
	}
	if e.CoinType != CoinGold && e.CoinType != CoinSilver {
		return GiftEvent{}, invalid("coin_type", fmt.Sprintf("unknown coin type %q", string(e.CoinType)))
	}
	if e.ValueCNY.IsNegative() {
		return GiftEvent{}, invalid("value_cny", "negative value")
	}
	e.Timestamp = normaliseTime(e.Timestamp)
	return e, nil
}

// NewSuperChatEvent validates and normalises a SuperChatEvent.
// A non-positive price is invalid: free super chats do not exist.
func NewSuperChatEvent(e SuperChatEvent) (SuperChatEvent, error) {
	if err := validateActor(e.UserID, e.Username, e.RoomID); err != nil {
		return SuperChatEvent{}, err
	}
	e.Message = strings.TrimSpace(e.Message)
	if e.Message == "" {
		return SuperChatEvent{}, invalid("message", "empty super chat message")
	}
	if !e.PriceCNY.IsPositive() {
		return SuperChatEvent{}, invalid("price_cny", fmt.Sprintf("must be > 0, got %s", e.PriceCNY))
	}
	if e.Duration < 0 {
		return SuperChatEvent{}, invalid("duration", "negative duration")
	}
	e.Timestamp = normaliseTime(e.Timestamp)
	return e, nil
}

// NewGuardPurchaseEvent validates and normalises a GuardPurchaseEvent.
func NewGuardPurchaseEvent(e GuardPurchaseEvent) (GuardPurchaseEvent, error) {
	if err := validateActor(e.UserID, e.Username, e.RoomID); err != nil {
		return GuardPurchaseEvent{}, err
	}
	switch e.Level {
	case GuardGovernor, GuardAdmiral, GuardCaptain:
	default:
		return GuardPurchaseEvent{}, invalid("level", fmt.Sprintf("unknown guard level %d", int(e.Level)))
	}
	if e.Count < 1 {
		return GuardPurchaseEvent{}, invalid("count", fmt.Sprintf("must be >= 1, got %d", e.Count))
	}
	if e.PriceCNY.IsNegative() {
		return GuardPurchaseEvent{}, invalid("price_cny", "negative price")
	}
	e.Timestamp = normaliseTime(e.Timestamp)
	return e, nil
}

func validateActor(userID int64, username, roomID string) error {
	if userID < 0 {
		return invalid("user_id", fmt.Sprintf("must be >= 0, got %d", userID))
	}
	if strings.TrimSpace(username) == "" {
		return invalid("username", "empty username")
	}
	if strings.TrimSpace(roomID) == "" {
		return invalid("room_id", "empty room id")
	}
	return nil
}

func normaliseTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
