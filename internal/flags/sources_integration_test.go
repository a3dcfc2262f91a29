package flags_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nudge/internal/db/dbtest"
	"nudge/internal/flags"
)

func TestDBSource(t *testing.T) {
	gdb := dbtest.Open(t)
	ctx := context.Background()

	require.NoError(t, gdb.Create(&flags.FeatureFlag{Key: flags.DailyCheckin, Value: json.RawMessage(`{"enabled":true,"hour":8}`)}).Error)
	require.NoError(t, gdb.Create(&flags.FeatureFlag{Key: flags.TaskNag, Value: json.RawMessage(`{"enabled":"maybe"}`)}).Error)

	src := &flags.DBSource{DB: gdb}
	set, err := flags.Load(ctx, src, flags.Global, flags.DailyCheckin, flags.TaskNag)
	require.NoError(t, err)

	assert.False(t, set.Get(flags.Global).Enabled, "missing row")
	assert.False(t, set.Get(flags.TaskNag).Enabled, "malformed value")
	h, ok := set.Get(flags.DailyCheckin).HourValue()
	require.True(t, ok)
	assert.Equal(t, 8, h)
}
