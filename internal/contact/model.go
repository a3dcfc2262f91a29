package contact

import (
	"sort"
	"strings"
	"time"

	"nudge/internal/channel"
)

// Binding ties an external channel address to a user. Only verified
// bindings attribute inbound replies or receive proactive messages.
type Binding struct {
	ID      uint64       `gorm:"primaryKey"`
	UserID  uint64       `gorm:"index;not null"`
	Channel channel.Name `gorm:"type:text;not null"`
	Address string       `gorm:"type:text;not null"`

	CodeHash      *string    `gorm:"type:text"`
	CodeExpiresAt *time.Time `gorm:"type:timestamptz"`
	VerifiedAt    *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (Binding) TableName() string { return "contact_bindings" }

func (b Binding) Verified() bool { return b.VerifiedAt != nil }

// NormalizeAddress canonicalises an address so webhook senders match stored
// bindings: phone numbers lose punctuation and any "whatsapp:" prefix,
// emails are lower-cased.
func NormalizeAddress(ch channel.Name, addr string) string {
	addr = strings.TrimSpace(addr)
	switch ch {
	case channel.SMS, channel.WhatsApp, channel.Voice:
		addr = strings.TrimPrefix(strings.ToLower(addr), "whatsapp:")
		var b strings.Builder
		for i, r := range addr {
			if r >= '0' && r <= '9' || (r == '+' && i == 0) {
				b.WriteRune(r)
			}
		}
		return b.String()
	case channel.Email:
		return strings.ToLower(addr)
	}
	return addr
}

// PickPrimary chooses one verified binding per user, preferring channels
// earlier in pref and then the oldest binding.
func PickPrimary(bindings []Binding, pref []channel.Name) map[uint64]Binding {
	rank := make(map[channel.Name]int, len(pref))
	for i, n := range pref {
		if _, seen := rank[n]; !seen {
			rank[n] = i
		}
	}
	rankOf := func(n channel.Name) int {
		if r, ok := rank[n]; ok {
			return r
		}
		return len(pref)
	}

	sorted := make([]Binding, 0, len(bindings))
	for _, b := range bindings {
		if b.Verified() {
			sorted = append(sorted, b)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := rankOf(sorted[i].Channel), rankOf(sorted[j].Channel)
		if ri != rj {
			return ri < rj
		}
		return sorted[i].ID < sorted[j].ID
	})

	out := make(map[uint64]Binding)
	for _, b := range sorted {
		if _, ok := out[b.UserID]; !ok {
			out[b.UserID] = b
		}
	}
	return out
}
