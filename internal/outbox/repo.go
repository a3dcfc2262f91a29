package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

type Repo struct {
	DB *gorm.DB
}

// Enqueue inserts a queued message, filling in defaults.
func (r *Repo) Enqueue(ctx context.Context, m *Message) error {
	Prepare(m, time.Now())
	return r.DB.WithContext(ctx).Create(m).Error
}

// Prepare sets the defaults every newly enqueued message needs.
func Prepare(m *Message, now time.Time) {
	m.Status = StatusQueued
	m.AttemptCount = 0
	if m.MaxAttempts <= 0 {
		m.MaxAttempts = DefaultMaxAttempts
	}
	if m.ScheduledAt.IsZero() {
		m.ScheduledAt = now
	}
	if len(m.Payload) == 0 {
		m.Payload = json.RawMessage(`{}`)
	}
	if m.Attachments == nil {
		m.Attachments = pq.StringArray{}
	}
}

// Due lists queued messages whose not-before time has passed.
func (r *Repo) Due(ctx context.Context, now time.Time, limit int) ([]Message, error) {
	var out []Message
	err := r.DB.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", StatusQueued, now).
		Order("scheduled_at asc, id asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// Claim moves one message from queued to sending and counts the attempt.
// It returns nil when the row is no longer queued (another worker has it).
func (r *Repo) Claim(ctx context.Context, id uint64, now time.Time) (*Message, error) {
	var m Message
	res := r.DB.WithContext(ctx).Raw(`
update outbox_messages
set status = 'sending',
    attempt_count = attempt_count + 1,
    claimed_at = ?,
    updated_at = now()
where id = ? and status = 'queued'
returning *`, now, id).Scan(&m)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &m, nil
}

func (r *Repo) MarkSent(ctx context.Context, id uint64, providerID string, at time.Time) error {
	var pid *string
	if providerID != "" {
		pid = &providerID
	}
	return r.DB.WithContext(ctx).Exec(`
update outbox_messages
set status = 'sent', sent_at = ?, provider_id = ?, last_error = null, claimed_at = null, updated_at = now()
where id = ? and status = 'sending'`, at, pid, id).Error
}

func (r *Repo) RetryLater(ctx context.Context, id uint64, runAt time.Time, errMsg string) error {
	return r.DB.WithContext(ctx).Exec(`
update outbox_messages
set status = 'queued', scheduled_at = ?, last_error = ?, claimed_at = null, updated_at = now()
where id = ? and status = 'sending'`, runAt, errMsg, id).Error
}

func (r *Repo) MarkFailed(ctx context.Context, id uint64, errMsg string) error {
	return r.DB.WithContext(ctx).Exec(`
update outbox_messages
set status = 'failed', last_error = ?, claimed_at = null, updated_at = now()
where id = ? and status = 'sending'`, errMsg, id).Error
}

// RequeueStale recovers rows left in sending by a crashed pass. Rows with
// attempts left go back to queued, the rest are dead-lettered.
func (r *Repo) RequeueStale(ctx context.Context, claimedBefore time.Time) (int64, error) {
	var total int64
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(`
update outbox_messages
set status = 'failed', last_error = coalesce(last_error, 'claim expired'), claimed_at = null, updated_at = now()
where status = 'sending' and claimed_at < ? and attempt_count >= max_attempts`, claimedBefore)
		if res.Error != nil {
			return res.Error
		}
		total += res.RowsAffected

		res = tx.Exec(`
update outbox_messages
set status = 'queued', claimed_at = null, updated_at = now()
where status = 'sending' and claimed_at < ?`, claimedBefore)
		if res.Error != nil {
			return res.Error
		}
		total += res.RowsAffected
		return nil
	})
	return total, err
}

func (r *Repo) ListForUser(ctx context.Context, userID uint64, limit int) ([]Message, error) {
	var out []Message
	err := r.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}
