package dedup

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRedisKeyCarriesPrefix(t *testing.T) {
	require.Equal(t,
		"dedup:gift:42:23058:rocket:2:1718000000",
		dedupKey("gift:42:23058:rocket:2:1718000000"))
}
