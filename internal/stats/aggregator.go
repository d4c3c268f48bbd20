package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/timchenkailiang/bilibili-live-bot/internal/domain"
	"github.com/timchenkailiang/bilibili-live-bot/internal/livestream"
)

// GuardPurchase is one recorded guard membership purchase.
type GuardPurchase struct {
	Level domain.GuardLevel `json:"level"`
	Count int               `json:"count"`
	At    time.Time         `json:"at"`
}

// UserStats accumulates one user's activity in a room.
type UserStats struct {
	UserID            int64           `json:"user_id"`
	Username          string          `json:"username"`
	ChatCount         int             `json:"chat_count"`
	GiftCount         int             `json:"gift_count"`
	GiftValueCNY      decimal.Decimal `json:"gift_value_cny"`
	SuperChatValueCNY decimal.Decimal `json:"super_chat_value_cny"`
	GuardPurchases    []GuardPurchase `json:"guard_purchases,omitempty"`
	LastSeen          time.Time       `json:"last_seen"`
}

// Summary totals the aggregator state across users.
type Summary struct {
	Users             int             `json:"users"`
	Chats             int             `json:"chats"`
	Gifts             int             `json:"gifts"`
	GiftValueCNY      decimal.Decimal `json:"gift_value_cny"`
	SuperChatValueCNY decimal.Decimal `json:"super_chat_value_cny"`
}

// Aggregator tracks per-user statistics. It holds no references to the
// adapter and performs no I/O, so it can be registered on several
// adapters at once; all access is internally synchronised. It does not
// deduplicate: the same event value delivered twice counts twice.
type Aggregator struct {
	mu    sync.RWMutex
	users map[int64]*UserStats
}

var _ livestream.EventHandler = (*Aggregator)(nil)

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{users: make(map[int64]*UserStats)}
}

func (a *Aggregator) OnChat(m domain.ChatMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	u := a.row(m.UserID, m.Username, m.Timestamp)
	u.ChatCount++
}

func (a *Aggregator) OnGift(e domain.GiftEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	u := a.row(e.UserID, e.Username, e.Timestamp)
	u.GiftCount += e.GiftCount
	u.GiftValueCNY = u.GiftValueCNY.Add(e.ValueCNY)
}

func (a *Aggregator) OnSuperChat(e domain.SuperChatEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	u := a.row(e.UserID, e.Username, e.Timestamp)
	u.SuperChatValueCNY = u.SuperChatValueCNY.Add(e.PriceCNY)
}

func (a *Aggregator) OnGuardPurchase(e domain.GuardPurchaseEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	u := a.row(e.UserID, e.Username, e.Timestamp)
	u.GuardPurchases = append(u.GuardPurchases, GuardPurchase{
		Level: e.Level,
		Count: e.Count,
		At:    e.Timestamp,
	})
}

// row returns the stats row for a user, creating it on first sight.
// Callers hold the write lock.
func (a *Aggregator) row(userID int64, username string, ts time.Time) *UserStats {
	u, ok := a.users[userID]
	if !ok {
		u = &UserStats{UserID: userID}
		a.users[userID] = u
	}
	if username != "" {
		u.Username = username
	}
	if ts.After(u.LastSeen) {
		u.LastSeen = ts
	}
	return u
}

// User returns a snapshot of one user's stats.
func (a *Aggregator) User(userID int64) (UserStats, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	u, ok := a.users[userID]
	if !ok {
		return UserStats{}, false
	}
	return u.clone(), true
}

// All returns snapshots of every user's stats, ordered by user id.
func (a *Aggregator) All() []UserStats {
	a.mu.RLock()
	out := make([]UserStats, 0, len(a.users))
	for _, u := range a.users {
		out = append(out, u.clone())
	}
	a.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Summary returns totals across all users.
func (a *Aggregator) Summary() Summary {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := Summary{Users: len(a.users)}
	for _, u := range a.users {
		s.Chats += u.ChatCount
		s.Gifts += u.GiftCount
		s.GiftValueCNY = s.GiftValueCNY.Add(u.GiftValueCNY)
		s.SuperChatValueCNY = s.SuperChatValueCNY.Add(u.SuperChatValueCNY)
	}
	return s
}

func (u *UserStats) clone() UserStats {
	out := *u
	if len(u.GuardPurchases) > 0 {
		out.GuardPurchases = append([]GuardPurchase(nil), u.GuardPurchases...)
	}
	return out
}
