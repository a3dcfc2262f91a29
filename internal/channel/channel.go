package channel

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Name identifies a delivery channel. It is stored as-is on outbox rows and
// contact bindings.
type Name string

const (
	SMS      Name = "sms"
	Email    Name = "email"
	Chat     Name = "chat"
	Push     Name = "push"
	Voice    Name = "voice"
	WhatsApp Name = "whatsapp"
)

var known = map[Name]struct{}{
	SMS: {}, Email: {}, Chat: {}, Push: {}, Voice: {}, WhatsApp: {},
}

func (n Name) Valid() bool {
	_, ok := known[n]
	return ok
}

func Parse(s string) (Name, error) {
	n := Name(strings.ToLower(strings.TrimSpace(s)))
	if !n.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupported, s)
	}
	return n, nil
}

// ParseList parses a comma separated preference list, dropping unknown names.
func ParseList(s string) []Name {
	var out []Name
	for _, part := range strings.Split(s, ",") {
		n, err := Parse(part)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

// Envelope is what every adapter gets to deliver.
type Envelope struct {
	UserID      uint64
	Destination string
	Subject     string
	Body        string
	Attachments []string
}

// Adapter delivers one envelope and returns the provider's message id.
type Adapter interface {
	Send(ctx context.Context, env Envelope) (string, error)
}

type AdapterFunc func(ctx context.Context, env Envelope) (string, error)

func (f AdapterFunc) Send(ctx context.Context, env Envelope) (string, error) {
	return f(ctx, env)
}

// Registry maps channel names to adapters. Channels without an adapter are
// treated as unsupported by the delivery worker.
type Registry struct {
	mu       sync.RWMutex
	adapters map[Name]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[Name]Adapter)}
}

func (r *Registry) Register(name Name, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[name] = a
}

func (r *Registry) Get(name Name) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// Send dispatches env through the adapter registered for name. A missing
// adapter is a permanent failure.
func (r *Registry) Send(ctx context.Context, name Name, env Envelope) (string, error) {
	a, ok := r.Get(name)
	if !ok {
		return "", Permanent(fmt.Errorf("%w: %s", ErrUnsupported, name))
	}
	return a.Send(ctx, env)
}
