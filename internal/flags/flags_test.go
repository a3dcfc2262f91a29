package flags

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	f := Parse([]byte(`{"enabled":true,"hour":8}`))
	assert.True(t, f.Enabled)
	h, ok := f.HourValue()
	assert.True(t, ok)
	assert.Equal(t, 8, h)

	f = Parse([]byte(`{"enabled":true,"interval_min":120}`))
	d, ok := f.Interval()
	assert.True(t, ok)
	assert.Equal(t, 2*time.Hour, d)

	for _, raw := range []string{``, `nope`, `{"enabled":"yes"}`, `[1,2]`} {
		assert.False(t, Parse([]byte(raw)).Enabled, raw)
	}

	_, ok = Parse([]byte(`{"enabled":true,"hour":24}`)).HourValue()
	assert.False(t, ok)
	_, ok = Parse([]byte(`{"enabled":true,"interval_min":0}`)).Interval()
	assert.False(t, ok)
}

type failingSource struct{}

func (failingSource) Lookup(context.Context, string) (Flag, error) {
	return Flag{}, errors.New("connection refused")
}

func TestLoad(t *testing.T) {
	hour := 9
	src := Set{Global: {Enabled: true}, DailyCheckin: {Enabled: true, Hour: &hour}}

	set, err := Load(context.Background(), src, Global, DailyCheckin, TaskNag)
	require.NoError(t, err)
	assert.True(t, set.Get(Global).Enabled)
	assert.False(t, set.Get(TaskNag).Enabled)

	_, err = Load(context.Background(), failingSource{}, Global)
	assert.Error(t, err)
}

func TestRedisSource(t *testing.T) {
	addr := os.Getenv("NUDGE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("NUDGE_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	src := &RedisSource{Client: client, Prefix: "nudge-test:flag:"}
	require.NoError(t, client.Set(ctx, src.Prefix+TaskNag, `{"enabled":true,"interval_min":60}`, time.Minute).Err())
	defer client.Del(ctx, src.Prefix+TaskNag)

	f, err := src.Lookup(ctx, TaskNag)
	require.NoError(t, err)
	assert.True(t, f.Enabled)

	f, err = src.Lookup(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, f.Enabled)
}
