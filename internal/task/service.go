package task

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"nudge/internal/contact"
	"nudge/internal/outbox"
)

type Store interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, userID, id uint64) (*Task, error)
	List(ctx context.Context, userID uint64, status Status, limit int) ([]Task, error)
	Transition(ctx context.Context, id uint64, from, to Status, scheduledFor *time.Time) (bool, error)
}

type Contacts interface {
	Primary(ctx context.Context, userID uint64) (*contact.Binding, error)
}

type Outbox interface {
	Enqueue(ctx context.Context, m *outbox.Message) error
}

// Tx runs fn with a task store and an outbox that commit together.
type Tx interface {
	Atomic(ctx context.Context, fn func(Store, Outbox) error) error
}

type GormTx struct {
	DB *gorm.DB
}

func (g GormTx) Atomic(ctx context.Context, fn func(Store, Outbox) error) error {
	return g.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repo{DB: tx}, &outbox.Repo{DB: tx})
	})
}

type Service struct {
	Store    Store
	Contacts Contacts
	Tx       Tx
}

type CreateInput struct {
	Title string
	DueAt *time.Time
}

func (s *Service) Create(ctx context.Context, userID uint64, in CreateInput) (*Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	t := &Task{UserID: userID, Title: title, Status: StatusPending, DueAt: in.DueAt}
	if err := s.Store.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) List(ctx context.Context, userID uint64, status Status) ([]Task, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}
	return s.Store.List(ctx, userID, status, 100)
}

// RequestApproval moves a pending task to waiting_approval and asks the user,
// on their primary channel, for a one-word decision. The move and the prompt
// are written in one transaction.
func (s *Service) RequestApproval(ctx context.Context, userID, id uint64) (*Task, error) {
	t, err := s.Store.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusPending {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, StatusWaitingApproval)
	}

	b, err := s.Contacts.Primary(ctx, userID)
	if err != nil {
		return nil, err
	}

	err = s.Tx.Atomic(ctx, func(store Store, out Outbox) error {
		ok, err := store.Transition(ctx, t.ID, StatusPending, StatusWaitingApproval, nil)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: task changed concurrently", ErrInvalidTransition)
		}

		msg := &outbox.Message{
			UserID:      userID,
			Channel:     b.Channel,
			Destination: b.Address,
			Body:        ApprovalPrompt(t.Title),
			Payload:     outbox.Payload(map[string]any{"kind": "approval_request", "task_id": t.ID}),
		}
		if err := out.Enqueue(ctx, msg); err != nil {
			return fmt.Errorf("enqueue approval prompt: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.Status = StatusWaitingApproval
	return t, nil
}

func ApprovalPrompt(title string) string {
	return fmt.Sprintf("Ready to go: %q. Reply Y to approve, Later 3pm to schedule it, or Skip.", title)
}
