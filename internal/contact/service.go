package contact

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"

	"nudge/internal/channel"
	"nudge/internal/outbox"
)

type Store interface {
	Create(ctx context.Context, b *Binding) error
	Get(ctx context.Context, userID, id uint64) (*Binding, error)
	ListForUser(ctx context.Context, userID uint64) ([]Binding, error)
	MarkVerified(ctx context.Context, id uint64, at time.Time) error
}

type Outbox interface {
	Enqueue(ctx context.Context, m *outbox.Message) error
}

const codeTTL = 15 * time.Minute

type Service struct {
	Store      Store
	Outbox     Outbox
	Preference []channel.Name
	Now        func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Bind registers an unverified binding and sends it a verification code
// through the outbox.
func (s *Service) Bind(ctx context.Context, userID uint64, ch channel.Name, address string) (*Binding, error) {
	if !ch.Valid() {
		return nil, fmt.Errorf("%w: %s", channel.ErrUnsupported, ch)
	}
	addr := NormalizeAddress(ch, address)
	if addr == "" {
		return nil, ErrBadAddress
	}

	code, err := newCode()
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	h := string(hash)
	exp := s.now().Add(codeTTL)

	b := &Binding{UserID: userID, Channel: ch, Address: addr, CodeHash: &h, CodeExpiresAt: &exp}
	if err := s.Store.Create(ctx, b); err != nil {
		return nil, err
	}

	msg := &outbox.Message{
		UserID:      userID,
		Channel:     ch,
		Destination: addr,
		Body:        fmt.Sprintf("Your verification code is %s. It expires in 15 minutes.", code),
		Payload:     outbox.Payload(map[string]any{"kind": "contact_verification", "binding_id": b.ID}),
	}
	if err := s.Outbox.Enqueue(ctx, msg); err != nil {
		return nil, fmt.Errorf("enqueue verification: %w", err)
	}
	return b, nil
}

func (s *Service) Verify(ctx context.Context, userID, id uint64, code string) error {
	b, err := s.Store.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if b.Verified() {
		return nil
	}
	if b.CodeHash == nil || b.CodeExpiresAt == nil || s.now().After(*b.CodeExpiresAt) {
		return ErrBadCode
	}
	if bcrypt.CompareHashAndPassword([]byte(*b.CodeHash), []byte(code)) != nil {
		return ErrBadCode
	}
	return s.Store.MarkVerified(ctx, b.ID, s.now())
}

// Primary returns the user's preferred verified binding.
func (s *Service) Primary(ctx context.Context, userID uint64) (*Binding, error) {
	all, err := s.Store.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	b, ok := PickPrimary(all, s.Preference)[userID]
	if !ok {
		return nil, ErrNoChannel
	}
	return &b, nil
}

func newCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
