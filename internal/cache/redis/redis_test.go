package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeySchema(t *testing.T) {
	assert.Equal(t, "project:7", projectKey(7))
	assert.Equal(t, "project:7:orders", projectOrdersKey(7))
	assert.Equal(t, "order:12", orderKey(12))
	assert.Equal(t, "lock:ledger-writer", lockKey("ledger-writer"))
	assert.Equal(t, "ratelimit:1.2.3.4", rateLimitKey("1.2.3.4"))
}

func TestParseIDsSorted(t *testing.T) {
	ids, err := parseIDs([]string{"10", "2", "33"})
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 10, 33}, ids)

	_, err = parseIDs([]string{"x"})
	assert.Error(t, err)
}

func TestHasPattern(t *testing.T) {
	assert.True(t, hasPattern("ch:project:*"))
	assert.False(t, hasPattern("ch:ledger"))
}

func TestStreamRangeStart(t *testing.T) {
	assert.Equal(t, "-", rangeStart(""))
	assert.Equal(t, "-", rangeStart("0"))
	assert.Equal(t, "(1700000000000-3", rangeStart("1700000000000-3"))
}

func TestStreamPayloadOf(t *testing.T) {
	data, ok := payloadOf(map[string]any{"payload": `{"seq":1}`})
	require.True(t, ok)
	assert.JSONEq(t, `{"seq":1}`, string(data))

	_, ok = payloadOf(map[string]any{"other": "x"})
	assert.False(t, ok)
}

func TestRedisOptions(t *testing.T) {
	opts, err := options(ClientConfig{Addr: "localhost:6379", DB: 2, TLSEnabled: true})
	require.NoError(t, err)
	assert.Equal(t, 2, opts.DB)
	assert.NotNil(t, opts.TLSConfig)

	opts, err = options(ClientConfig{Addr: "redis://:pw@cache:6380/4", PoolSize: 20})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 4, opts.DB)
	assert.Equal(t, 20, opts.PoolSize)
}

func TestPendingMarkerIsNotJSON(t *testing.T) {
	assert.Len(t, pendingMarker, 1)
	assert.NotEqual(t, byte('{'), pendingMarker[0])
}

func TestSlidingWindowScriptEmbedded(t *testing.T) {
	assert.Contains(t, slidingWindowLua, "ZREMRANGEBYSCORE")
	assert.Contains(t, slidingWindowLua, "WITHSCORES")
}

func TestParseAdmission(t *testing.T) {
	a, err := parseAdmission([]int64{0, 5, 250000})
	require.NoError(t, err)
	assert.False(t, a.allowed)
	assert.EqualValues(t, 5, a.count)
	assert.Equal(t, 250*time.Millisecond, a.retryAfter)

	a, err = parseAdmission([]int64{1, 1, 0})
	require.NoError(t, err)
	assert.True(t, a.allowed)

	_, err = parseAdmission([]int64{1})
	assert.Error(t, err)
}
