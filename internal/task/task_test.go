package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nudge/internal/channel"
	"nudge/internal/contact"
	"nudge/internal/outbox"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusWaitingApproval))
	assert.True(t, CanTransition(StatusWaitingApproval, StatusQueued))
	assert.True(t, CanTransition(StatusWaitingApproval, StatusCancelled))
	assert.False(t, CanTransition(StatusCancelled, StatusQueued))
	assert.False(t, CanTransition(StatusDone, StatusPending))
	assert.False(t, CanTransition(StatusPending, StatusQueued))
}

type memStore struct {
	rows []*Task
}

func (m *memStore) Create(_ context.Context, t *Task) error {
	t.ID = uint64(len(m.rows) + 1)
	t.CreatedAt = time.Now()
	cp := *t
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *memStore) Get(_ context.Context, userID, id uint64) (*Task, error) {
	for _, r := range m.rows {
		if r.ID == id && r.UserID == userID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) List(_ context.Context, userID uint64, status Status, limit int) ([]Task, error) {
	var out []Task
	for _, r := range m.rows {
		if r.UserID == userID && (status == "" || r.Status == status) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memStore) Transition(_ context.Context, id uint64, from, to Status, at *time.Time) (bool, error) {
	for _, r := range m.rows {
		if r.ID == id && r.Status == from {
			r.Status = to
			return true, nil
		}
	}
	return false, nil
}

type contacts struct {
	b *contact.Binding
}

func (c contacts) Primary(context.Context, uint64) (*contact.Binding, error) {
	if c.b == nil {
		return nil, contact.ErrNoChannel
	}
	return c.b, nil
}

type captureOutbox struct {
	msgs []*outbox.Message
	err  error
}

func (c *captureOutbox) Enqueue(_ context.Context, m *outbox.Message) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, m)
	return nil
}

// memTx restores task statuses when fn fails.
type memTx struct {
	store *memStore
	out   *captureOutbox
}

func (x memTx) Atomic(_ context.Context, fn func(Store, Outbox) error) error {
	statuses := make([]Status, len(x.store.rows))
	for i, r := range x.store.rows {
		statuses[i] = r.Status
	}
	err := fn(x.store, x.out)
	if err != nil {
		for i, r := range x.store.rows {
			r.Status = statuses[i]
		}
	}
	return err
}

func TestRequestApproval(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	out := &captureOutbox{}
	svc := &Service{
		Store:    store,
		Contacts: contacts{b: &contact.Binding{UserID: 3, Channel: channel.SMS, Address: "+15550001"}},
		Tx:       memTx{store: store, out: out},
	}

	created, err := svc.Create(ctx, 3, CreateInput{Title: "  Call vendor "})
	require.NoError(t, err)
	assert.Equal(t, "Call vendor", created.Title)

	got, err := svc.RequestApproval(ctx, 3, created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusWaitingApproval, got.Status)

	require.Len(t, out.msgs, 1)
	assert.Equal(t, channel.SMS, out.msgs[0].Channel)
	assert.Equal(t, "+15550001", out.msgs[0].Destination)
	assert.Contains(t, out.msgs[0].Body, `"Call vendor"`)

	_, err = svc.RequestApproval(ctx, 3, created.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.RequestApproval(ctx, 4, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRequestApprovalWithoutChannelLeavesTaskPending(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	svc := &Service{Store: store, Contacts: contacts{}, Tx: memTx{store: store, out: &captureOutbox{}}}

	created, err := svc.Create(ctx, 3, CreateInput{Title: "Book flights"})
	require.NoError(t, err)

	_, err = svc.RequestApproval(ctx, 3, created.ID)
	assert.ErrorIs(t, err, contact.ErrNoChannel)
	assert.Equal(t, StatusPending, store.rows[0].Status)
}

func TestRequestApprovalRollsBackWhenPromptFails(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	out := &captureOutbox{err: errors.New("db blip")}
	svc := &Service{
		Store:    store,
		Contacts: contacts{b: &contact.Binding{UserID: 3, Channel: channel.SMS, Address: "+15550001"}},
		Tx:       memTx{store: store, out: out},
	}

	created, err := svc.Create(ctx, 3, CreateInput{Title: "Call vendor"})
	require.NoError(t, err)

	_, err = svc.RequestApproval(ctx, 3, created.ID)
	require.Error(t, err)
	assert.Equal(t, StatusPending, store.rows[0].Status)

	out.err = nil
	got, err := svc.RequestApproval(ctx, 3, created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusWaitingApproval, got.Status)
	assert.Len(t, out.msgs, 1)
}

func TestCreateRequiresTitle(t *testing.T) {
	svc := &Service{Store: &memStore{}}
	_, err := svc.Create(context.Background(), 1, CreateInput{Title: "  "})
	assert.ErrorIs(t, err, ErrTitleRequired)
}
