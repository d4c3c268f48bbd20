package bilibili

import (
	"encoding/json"
	"fmt"
	"time"
)

// Native command names this adapter translates.
const (
	cmdDanmaku   = "DANMU_MSG"
	cmdSendGift  = "SEND_GIFT"
	cmdSuperChat = "SUPER_CHAT_MESSAGE"
	cmdGuardBuy  = "GUARD_BUY"
)

// sendGiftData is the data payload of a SEND_GIFT command.
type sendGiftData struct {
	GiftName  string `json:"giftName"`
	Num       int    `json:"num"`
	UID       int64  `json:"uid"`
	Uname     string `json:"uname"`
	Timestamp int64  `json:"timestamp"` // seconds
	CoinType  string `json:"coin_type"`
	TotalCoin int64  `json:"total_coin"`
	Price     int64  `json:"price"` // unit price in coins
}

// superChatData is the data payload of a SUPER_CHAT_MESSAGE command.
type superChatData struct {
	ID        int64  `json:"id"`
	UID       int64  `json:"uid"`
	Message   string `json:"message"`
	Price     int64  `json:"price"` // whole CNY
	Time      int    `json:"time"`  // display duration, seconds
	StartTime int64  `json:"start_time"`
	UserInfo  struct {
		Uname string `json:"uname"`
	} `json:"user_info"`
}

// guardBuyData is the data payload of a GUARD_BUY command.
type guardBuyData struct {
	UID        int64  `json:"uid"`
	Username   string `json:"username"`
	GuardLevel int    `json:"guard_level"`
	Num        int    `json:"num"`
	Price      int64  `json:"price"` // gold coins
	StartTime  int64  `json:"start_time"`
}

// danmakuInfo is the flattened form of the positional DANMU_MSG info
// array:
//
//	info[0][4]  timestamp (ms)
//	info[1]     message text
//	info[2]     [uid, uname, admin, vip, svip, ...]
//	info[3]     [medal level, medal name, ...] (empty without a medal)
//	info[4][0]  user level
type danmakuInfo struct {
	Text       string
	UID        int64
	Uname      string
	IsAdmin    bool
	IsVIP      bool
	UserLevel  int
	MedalName  string
	MedalLevel int
	Timestamp  time.Time
}

func parseDanmaku(info json.RawMessage) (danmakuInfo, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(info, &parts); err != nil {
		return danmakuInfo{}, fmt.Errorf("info is not an array: %w", err)
	}
	if len(parts) < 5 {
		return danmakuInfo{}, fmt.Errorf("info has %d entries, want at least 5", len(parts))
	}

	var d danmakuInfo

	var meta []json.RawMessage
	if err := json.Unmarshal(parts[0], &meta); err != nil {
		return danmakuInfo{}, fmt.Errorf("info[0]: %w", err)
	}
	if len(meta) > 4 {
		var ms int64
		if err := json.Unmarshal(meta[4], &ms); err == nil && ms > 0 {
			d.Timestamp = time.UnixMilli(ms)
		}
	}

	if err := json.Unmarshal(parts[1], &d.Text); err != nil {
		return danmakuInfo{}, fmt.Errorf("info[1]: %w", err)
	}

	var user []json.RawMessage
	if err := json.Unmarshal(parts[2], &user); err != nil {
		return danmakuInfo{}, fmt.Errorf("info[2]: %w", err)
	}
	if len(user) < 2 {
		return danmakuInfo{}, fmt.Errorf("info[2] has %d entries, want at least 2", len(user))
	}
	if err := json.Unmarshal(user[0], &d.UID); err != nil {
		return danmakuInfo{}, fmt.Errorf("info[2][0]: %w", err)
	}
	if err := json.Unmarshal(user[1], &d.Uname); err != nil {
		return danmakuInfo{}, fmt.Errorf("info[2][1]: %w", err)
	}
	if len(user) > 2 {
		d.IsAdmin = jsonFlag(user[2])
	}
	if len(user) > 3 {
		d.IsVIP = jsonFlag(user[3])
	}
	if len(user) > 4 {
		d.IsVIP = d.IsVIP || jsonFlag(user[4])
	}

	var medal []json.RawMessage
	if err := json.Unmarshal(parts[3], &medal); err == nil && len(medal) > 1 {
		json.Unmarshal(medal[0], &d.MedalLevel)
		json.Unmarshal(medal[1], &d.MedalName)
	}

	var lvl []json.RawMessage
	if err := json.Unmarshal(parts[4], &lvl); err == nil && len(lvl) > 0 {
		json.Unmarshal(lvl[0], &d.UserLevel)
	}

	return d, nil
}

// jsonFlag reads the 0/1 flags the danmaku array uses for booleans.
func jsonFlag(raw json.RawMessage) bool {
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return false
	}
	return n != 0
}
