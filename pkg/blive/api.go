package blive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	roomInitURL  = "https://api.live.bilibili.com/room/v1/Room/room_init?id=%d"
	danmuInfoURL = "https://api.live.bilibili.com/xlive/web-room/v1/index/getDanmuInfo?id=%d&type=0"

	// Default danmaku endpoint used when the info API returns no hosts.
	defaultHost = "broadcastlv.chat.bilibili.com"

	// The API rejects the Go default agent.
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	referer   = "https://live.bilibili.com/"
)

// roomInfo is the subset of the room_init response the client needs.
type roomInfo struct {
	RoomID     int64 // real room id (short ids resolve to this)
	OwnerUID   int64
	LiveStatus int
}

type roomInitResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		RoomID     int64 `json:"room_id"`
		ShortID    int64 `json:"short_id"`
		UID        int64 `json:"uid"`
		LiveStatus int   `json:"live_status"`
	} `json:"data"`
}

// danmuHost is one danmaku server candidate.
type danmuHost struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	WssPort int    `json:"wss_port"`
	WsPort  int    `json:"ws_port"`
}

type danmuInfoResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Token    string      `json:"token"`
		HostList []danmuHost `json:"host_list"`
	} `json:"data"`
}

// resolveRoom resolves a possibly-short room id to the real id.
func (c *Client) resolveRoom(ctx context.Context, roomID int64) (roomInfo, error) {
	var resp roomInitResponse
	if err := c.getJSON(ctx, fmt.Sprintf(roomInitURL, roomID), &resp); err != nil {
		return roomInfo{}, fmt.Errorf("room init: %w", err)
	}
	if resp.Code != 0 {
		return roomInfo{}, fmt.Errorf("room init: api code %d: %s", resp.Code, resp.Message)
	}
	return roomInfo{
		RoomID:     resp.Data.RoomID,
		OwnerUID:   resp.Data.UID,
		LiveStatus: resp.Data.LiveStatus,
	}, nil
}

// fetchDanmuInfo fetches the auth token and danmaku host list for a room.
func (c *Client) fetchDanmuInfo(ctx context.Context, roomID int64) (string, []danmuHost, error) {
	var resp danmuInfoResponse
	if err := c.getJSON(ctx, fmt.Sprintf(danmuInfoURL, roomID), &resp); err != nil {
		return "", nil, fmt.Errorf("danmu info: %w", err)
	}
	if resp.Code != 0 {
		return "", nil, fmt.Errorf("danmu info: api code %d: %s", resp.Code, resp.Message)
	}
	hosts := resp.Data.HostList
	if len(hosts) == 0 {
		hosts = []danmuHost{{Host: defaultHost, WssPort: 443}}
	}
	return resp.Data.Token, hosts, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", referer)
	if c.cfg.SessData != "" {
		req.AddCookie(&http.Cookie{Name: "SESSDATA", Value: c.cfg.SessData})
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", res.Status)
	}
	return json.NewDecoder(res.Body).Decode(out)
}
