package outbox_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nudge/internal/channel"
	"nudge/internal/db/dbtest"
	"nudge/internal/outbox"
)

func TestRepoClaimIsExclusive(t *testing.T) {
	gdb := dbtest.Open(t)
	repo := &outbox.Repo{DB: gdb}
	ctx := context.Background()

	m := &outbox.Message{UserID: 1, Channel: channel.SMS, Destination: "+15550001", Body: "hello"}
	require.NoError(t, repo.Enqueue(ctx, m))

	due, err := repo.Due(ctx, time.Now().Add(time.Second), 50)
	require.NoError(t, err)
	require.Len(t, due, 1)

	var wg sync.WaitGroup
	claims := make(chan *outbox.Message, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := repo.Claim(ctx, m.ID, time.Now())
			assert.NoError(t, err)
			if c != nil {
				claims <- c
			}
		}()
	}
	wg.Wait()
	close(claims)

	var won []*outbox.Message
	for c := range claims {
		won = append(won, c)
	}
	require.Len(t, won, 1)
	assert.Equal(t, outbox.StatusSending, won[0].Status)
	assert.Equal(t, 1, won[0].AttemptCount)
}

func TestRepoRetryThenSend(t *testing.T) {
	gdb := dbtest.Open(t)
	repo := &outbox.Repo{DB: gdb}
	ctx := context.Background()

	m := &outbox.Message{UserID: 1, Channel: channel.SMS, Destination: "+15550001", Body: "hello"}
	require.NoError(t, repo.Enqueue(ctx, m))

	_, err := repo.Claim(ctx, m.ID, time.Now())
	require.NoError(t, err)
	next := time.Now().Add(outbox.Backoff(1))
	require.NoError(t, repo.RetryLater(ctx, m.ID, next, "gateway 500"))

	due, err := repo.Due(ctx, time.Now(), 50)
	require.NoError(t, err)
	assert.Empty(t, due, "backoff hides the row")

	due, err = repo.Due(ctx, next.Add(time.Second), 50)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.NotNil(t, due[0].LastError)

	_, err = repo.Claim(ctx, m.ID, time.Now())
	require.NoError(t, err)
	require.NoError(t, repo.MarkSent(ctx, m.ID, "SM123", time.Now()))

	var got outbox.Message
	require.NoError(t, gdb.First(&got, m.ID).Error)
	assert.Equal(t, outbox.StatusSent, got.Status)
	assert.Equal(t, 2, got.AttemptCount)
	assert.Nil(t, got.LastError)
	require.NotNil(t, got.ProviderID)
	assert.Equal(t, "SM123", *got.ProviderID)
}

func TestRepoRequeueStale(t *testing.T) {
	gdb := dbtest.Open(t)
	repo := &outbox.Repo{DB: gdb}
	ctx := context.Background()

	fresh := &outbox.Message{UserID: 1, Channel: channel.SMS, Destination: "+1", Body: "a"}
	spent := &outbox.Message{UserID: 1, Channel: channel.SMS, Destination: "+1", Body: "b", MaxAttempts: 1}
	require.NoError(t, repo.Enqueue(ctx, fresh))
	require.NoError(t, repo.Enqueue(ctx, spent))

	old := time.Now().Add(-time.Hour)
	_, err := repo.Claim(ctx, fresh.ID, old)
	require.NoError(t, err)
	_, err = repo.Claim(ctx, spent.ID, old)
	require.NoError(t, err)

	n, err := repo.RequeueStale(ctx, time.Now().Add(-15*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	var a, b outbox.Message
	require.NoError(t, gdb.First(&a, fresh.ID).Error)
	require.NoError(t, gdb.First(&b, spent.ID).Error)
	assert.Equal(t, outbox.StatusQueued, a.Status)
	assert.Equal(t, outbox.StatusFailed, b.Status)
}
