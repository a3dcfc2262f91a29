package scheduler

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DailySend guards a once-per-day feature for one user. The unique index on
// (user_id, feature, day) is what makes ClaimDaily an insert-if-absent.
type DailySend struct {
	ID        uint64    `gorm:"primaryKey"`
	UserID    uint64    `gorm:"not null;uniqueIndex:ux_daily_sends_user_feature_day"`
	Feature   string    `gorm:"type:text;not null;uniqueIndex:ux_daily_sends_user_feature_day"`
	Day       time.Time `gorm:"type:date;not null;uniqueIndex:ux_daily_sends_user_feature_day"`
	CreatedAt time.Time `gorm:"not null;default:now()"`
}

func (DailySend) TableName() string { return "daily_sends" }

type NudgeThrottle struct {
	ID        uint64    `gorm:"primaryKey"`
	UserID    uint64    `gorm:"not null;index:ix_nudge_throttles_user_type_sent,priority:1"`
	TaskID    uint64    `gorm:"not null;index"`
	NudgeType string    `gorm:"type:text;not null;index:ix_nudge_throttles_user_type_sent,priority:2"`
	SentAt    time.Time `gorm:"type:timestamptz;not null;index:ix_nudge_throttles_user_type_sent,priority:3"`
}

func (NudgeThrottle) TableName() string { return "nudge_throttles" }

// GuardRepo stores dedup and throttle records.
type GuardRepo struct {
	DB *gorm.DB
}

// ClaimDaily records that feature was sent to userID on day. It reports
// false if a record already exists.
func (r *GuardRepo) ClaimDaily(ctx context.Context, userID uint64, feature string, day time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&DailySend{UserID: userID, Feature: feature, Day: day})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *GuardRepo) ReleaseDaily(ctx context.Context, userID uint64, feature string, day time.Time) error {
	return r.DB.WithContext(ctx).
		Where("user_id = ? AND feature = ? AND day = ?", userID, feature, day).
		Delete(&DailySend{}).Error
}

// RecentNudge reports whether userID got a nudge of nudgeType after since.
func (r *GuardRepo) RecentNudge(ctx context.Context, userID uint64, nudgeType string, since time.Time) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&NudgeThrottle{}).
		Where("user_id = ? AND nudge_type = ? AND sent_at > ?", userID, nudgeType, since).
		Count(&n).Error
	return n > 0, err
}

func (r *GuardRepo) RecordNudges(ctx context.Context, userID uint64, taskIDs []uint64, nudgeType string, at time.Time) error {
	if len(taskIDs) == 0 {
		return nil
	}
	rows := make([]NudgeThrottle, 0, len(taskIDs))
	for _, id := range taskIDs {
		rows = append(rows, NudgeThrottle{UserID: userID, TaskID: id, NudgeType: nudgeType, SentAt: at})
	}
	return r.DB.WithContext(ctx).Create(&rows).Error
}
