package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var (
	ErrNotFound          = errors.New("task not found")
	ErrInvalidTransition = errors.New("invalid task transition")
	ErrTitleRequired     = errors.New("title required")
)

type Repo struct {
	DB *gorm.DB
}

func (r *Repo) Create(ctx context.Context, t *Task) error {
	if t.Status == "" {
		t.Status = StatusPending
	}
	return r.DB.WithContext(ctx).Create(t).Error
}

func (r *Repo) Get(ctx context.Context, userID, id uint64) (*Task, error) {
	var t Task
	err := r.DB.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *Repo) List(ctx context.Context, userID uint64, status Status, limit int) ([]Task, error) {
	q := r.DB.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []Task
	err := q.Order("created_at desc, id desc").Limit(limit).Find(&out).Error
	return out, err
}

// NewestAwaitingApproval returns the most recently created task waiting for
// approval, or nil when there is none.
func (r *Repo) NewestAwaitingApproval(ctx context.Context, userID uint64) (*Task, error) {
	var t Task
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, StatusWaitingApproval).
		Order("created_at desc, id desc").
		First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// Transition moves a task from one status to another only if it is still in
// `from`. It reports false when the row was already moved by someone else.
func (r *Repo) Transition(ctx context.Context, id uint64, from, to Status, scheduledFor *time.Time) (bool, error) {
	if !CanTransition(from, to) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	res := r.DB.WithContext(ctx).Exec(`
update tasks
set status = ?,
    scheduled_for = coalesce(?, scheduled_for),
    updated_at = now()
where id = ? and status = ?`, to, scheduledFor, id, from)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// OverduePending lists pending tasks whose due time has passed, oldest due
// first.
func (r *Repo) OverduePending(ctx context.Context, userID uint64, now time.Time, limit int) ([]Task, error) {
	var out []Task
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND status = ? AND due_at IS NOT NULL AND due_at < ?", userID, StatusPending, now).
		Order("due_at asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *Repo) MarkNudged(ctx context.Context, ids []uint64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Exec(`update tasks set nudged_at = ?, updated_at = now() where id in ?`, at, ids).Error
}
