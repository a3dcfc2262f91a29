package task

import "time"

type Status string

const (
	StatusPending         Status = "pending"
	StatusWaitingApproval Status = "waiting_approval"
	StatusQueued          Status = "queued"
	StatusCancelled       Status = "cancelled"
	StatusDone            Status = "done"
)

// Task is the unit a user approves, defers or skips. NudgedAt is only a
// marker for the last overdue reminder; it never changes Status.
type Task struct {
	ID     uint64 `gorm:"primaryKey"`
	UserID uint64 `gorm:"index;not null"`
	Title  string `gorm:"type:text;not null"`
	Status Status `gorm:"type:text;not null;default:'pending'"`

	DueAt        *time.Time `gorm:"type:timestamptz"`
	ScheduledFor *time.Time `gorm:"type:timestamptz"`
	NudgedAt     *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

var transitions = map[Status][]Status{
	StatusPending:         {StatusWaitingApproval, StatusCancelled, StatusDone},
	StatusWaitingApproval: {StatusQueued, StatusCancelled},
	StatusQueued:          {StatusDone, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusWaitingApproval, StatusQueued, StatusCancelled, StatusDone:
		return true
	}
	return false
}
