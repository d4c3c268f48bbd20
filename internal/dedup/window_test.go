package dedup

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWindowReportsReplay(t *testing.T) {
	w := NewWindow(3 * time.Second)
	ctx := context.Background()

	require.False(t, w.Seen(ctx, "gift:42:23058:rocket:2:100"))
	require.True(t, w.Seen(ctx, "gift:42:23058:rocket:2:100"))
	require.False(t, w.Seen(ctx, "gift:42:23058:rocket:3:100"))
}

func TestWindowExpiryReadmitsKey(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	w := NewWindow(3 * time.Second)
	w.now = func() time.Time { return now }

	require.False(t, w.Seen(context.Background(), "chat:1:23058:hi:0"))
	require.True(t, w.Seen(context.Background(), "chat:1:23058:hi:0"))

	now = now.Add(4 * time.Second)
	require.False(t, w.Seen(context.Background(), "chat:1:23058:hi:0"))
}

func TestWindowReplayDoesNotExtendExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	w := NewWindow(3 * time.Second)
	w.now = func() time.Time { return now }

	require.False(t, w.Seen(context.Background(), "k"))

	now = now.Add(2 * time.Second)
	require.True(t, w.Seen(context.Background(), "k"))

	// 2s after the replay but 4s after first sight: expired.
	now = now.Add(2 * time.Second)
	require.False(t, w.Seen(context.Background(), "k"))
}

func TestWindowSweepDropsExpiredEntries(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	w := NewWindow(time.Second)
	w.now = func() time.Time { return now }

	for i := 0; i < 100; i++ {
		w.Seen(context.Background(), fmt.Sprintf("k%d", i))
	}
	require.Equal(t, 100, w.Len())

	now = now.Add(2 * time.Second)
	w.Seen(context.Background(), "fresh")
	require.Equal(t, 1, w.Len())
}

func TestWindowClearsAtCapacity(t *testing.T) {
	w := NewWindow(time.Hour)
	w.entries = make(map[string]time.Time, maxEntries)
	exp := time.Now().Add(time.Hour)
	for i := 0; i < maxEntries; i++ {
		w.entries[fmt.Sprintf("k%d", i)] = exp
	}

	require.False(t, w.Seen(context.Background(), "overflow"))
	require.Equal(t, 1, w.Len())
}
