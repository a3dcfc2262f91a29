package channel

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// ChatMessage is a row in the in-app inbox.
type ChatMessage struct {
	ID          uint64         `gorm:"primaryKey"`
	UserID      uint64         `gorm:"index;not null"`
	Ref         string         `gorm:"type:text;uniqueIndex;not null"`
	Subject     string         `gorm:"type:text;not null;default:''"`
	Body        string         `gorm:"type:text;not null"`
	Attachments pq.StringArray `gorm:"type:text[];not null;default:'{}'"`
	ReadAt      *time.Time     `gorm:"type:timestamptz"`
	CreatedAt   time.Time      `gorm:"not null;default:now()"`
}

// ChatInbox delivers by writing straight into the in-app inbox table. It only
// fails when the store does.
type ChatInbox struct {
	DB *gorm.DB
}

func (c *ChatInbox) Send(ctx context.Context, env Envelope) (string, error) {
	if env.UserID == 0 {
		return "", Permanent(fmt.Errorf("chat: message has no owner"))
	}
	attachments := env.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	m := ChatMessage{
		UserID:      env.UserID,
		Ref:         uuid.NewString(),
		Subject:     env.Subject,
		Body:        env.Body,
		Attachments: pq.StringArray(attachments),
	}
	if err := c.DB.WithContext(ctx).Create(&m).Error; err != nil {
		return "", fmt.Errorf("chat: %w", err)
	}
	return m.Ref, nil
}
