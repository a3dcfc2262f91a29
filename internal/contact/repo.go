package contact

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"nudge/internal/channel"
)

var (
	ErrNotFound     = errors.New("contact binding not found")
	ErrAlreadyBound = errors.New("address already bound")
	ErrBadCode      = errors.New("invalid or expired verification code")
	ErrNoChannel    = errors.New("no verified channel")
	ErrBadAddress   = errors.New("invalid address")
)

type Repo struct {
	DB *gorm.DB
}

// Resolve maps a verified (channel, address) pair to its user.
func (r *Repo) Resolve(ctx context.Context, ch channel.Name, address string) (uint64, bool, error) {
	var b Binding
	err := r.DB.WithContext(ctx).
		Where("channel = ? AND address = ? AND verified_at IS NOT NULL", ch, NormalizeAddress(ch, address)).
		First(&b).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return b.UserID, true, nil
}

func (r *Repo) ListVerified(ctx context.Context) ([]Binding, error) {
	var out []Binding
	err := r.DB.WithContext(ctx).Where("verified_at IS NOT NULL").Order("user_id asc, id asc").Find(&out).Error
	return out, err
}

func (r *Repo) ListForUser(ctx context.Context, userID uint64) ([]Binding, error) {
	var out []Binding
	err := r.DB.WithContext(ctx).Where("user_id = ?", userID).Order("id asc").Find(&out).Error
	return out, err
}

func (r *Repo) Get(ctx context.Context, userID, id uint64) (*Binding, error) {
	var b Binding
	err := r.DB.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&b).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *Repo) Create(ctx context.Context, b *Binding) error {
	err := r.DB.WithContext(ctx).Create(b).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyBound
	}
	return err
}

func (r *Repo) MarkVerified(ctx context.Context, id uint64, at time.Time) error {
	return r.DB.WithContext(ctx).Exec(`
update contact_bindings
set verified_at = ?, code_hash = null, code_expires_at = null, updated_at = now()
where id = ?`, at, id).Error
}
