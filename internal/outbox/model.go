package outbox

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"

	"nudge/internal/channel"
)

type Status string

const (
	StatusQueued  Status = "queued"
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

const DefaultMaxAttempts = 3

// Message is one durable outbound message. Status only moves
// queued -> sending -> sent | queued (retry) | failed, and a failed row is
// never picked up again.
type Message struct {
	ID     uint64 `gorm:"primaryKey"`
	UserID uint64 `gorm:"index;not null;default:0"` // 0: reply to an unlinked sender

	Channel     channel.Name    `gorm:"type:text;not null"`
	Destination string          `gorm:"type:text;not null"`
	Subject     *string         `gorm:"type:text"`
	Body        string          `gorm:"type:text;not null"`
	Payload     json.RawMessage `gorm:"type:jsonb;not null;default:'{}'::jsonb"`
	Attachments pq.StringArray  `gorm:"type:text[];not null;default:'{}'"`

	Status       Status    `gorm:"type:text;not null;default:'queued'"`
	AttemptCount int       `gorm:"not null;default:0"`
	MaxAttempts  int       `gorm:"not null;default:3"`
	ScheduledAt  time.Time `gorm:"type:timestamptz;not null;default:now()"`

	ClaimedAt  *time.Time `gorm:"type:timestamptz"`
	SentAt     *time.Time `gorm:"type:timestamptz"`
	ProviderID *string    `gorm:"type:text"`
	LastError  *string    `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (Message) TableName() string { return "outbox_messages" }

func (m *Message) Envelope() channel.Envelope {
	env := channel.Envelope{
		UserID:      m.UserID,
		Destination: m.Destination,
		Body:        m.Body,
		Attachments: []string(m.Attachments),
	}
	if m.Subject != nil {
		env.Subject = *m.Subject
	}
	return env
}

// Payload encodes v for the payload column; it falls back to an empty object.
func Payload(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil || len(b) == 0 || string(b) == "null" {
		return json.RawMessage(`{}`)
	}
	return b
}

// Backoff is the delay before the next attempt after `attempt` failed ones:
// 2^attempt * 5min, so 10, 20, 40 minutes.
func Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 16 {
		attempt = 16
	}
	return time.Duration(1<<attempt) * 5 * time.Minute
}
