package inbound

import (
	"context"
	"time"

	"gorm.io/gorm"

	"nudge/internal/channel"
)

// Message is the audit record of every reply from a linked sender.
type Message struct {
	ID        uint64       `gorm:"primaryKey"`
	UserID    uint64       `gorm:"index;not null"`
	Channel   channel.Name `gorm:"type:text;not null"`
	Sender    string       `gorm:"type:text;not null"`
	Body      string       `gorm:"type:text;not null"`
	Intent    Intent       `gorm:"type:text;not null"`
	CreatedAt time.Time    `gorm:"not null;default:now()"`
}

func (Message) TableName() string { return "inbound_messages" }

type InboxRepo struct {
	DB *gorm.DB
}

func (r *InboxRepo) Record(ctx context.Context, m *Message) error {
	return r.DB.WithContext(ctx).Create(m).Error
}
