package video

import (
	"strings"
	"time"

	"github.com/vidasaude/telehealth-core/internal/auth"
)

// ProvisionState is the terminal state of an EnsureRoom call.
type ProvisionState string

const (
	StateCached           ProvisionState = "cached"
	StateExists           ProvisionState = "exists"
	StateConfirmedVisible ProvisionState = "confirmed_visible"
	StateAssumedVisible   ProvisionState = "assumed_visible"
)

// Room is a connection descriptor for a provider room.
type Room struct {
	Name      string         `json:"name"`
	URL       string         `json:"url"`
	ExpiresAt time.Time      `json:"expiresAt"`
	State     ProvisionState `json:"-"`
}

// SessionKind selects token lifetimes.
type SessionKind int

const (
	SessionStandard SessionKind = iota
	SessionEmergency
)

// TokenTTL is how long a participant token stays valid.
func (k SessionKind) TokenTTL() time.Duration {
	if k == SessionEmergency {
		return 6 * time.Hour
	}
	return 2 * time.Hour
}

// Participant is the person a token is minted for.
type Participant struct {
	UserID int64
	Name   string
	Role   auth.Role
}

// AccessToken is a short-lived, room-scoped credential. It is never stored.
type AccessToken struct {
	Token     string    `json:"token"`
	RoomName  string    `json:"roomName"`
	ExpiresAt time.Time `json:"expiresAt"`
	IsOwner   bool      `json:"isOwner"`
}

// SanitizeRoomName lowercases name and replaces every character outside
// [a-z0-9-] with a hyphen.
func SanitizeRoomName(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "", ErrInvalidRoomName
	}
	return out, nil
}

// RoomURL returns the canonical join URL for a room on domain. A bare
// tenant name is expanded to <tenant>.daily.co.
func RoomURL(domain, name string) string {
	host := strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(domain, "https://"), "http://"), "/")
	if !strings.Contains(host, ".") {
		host += ".daily.co"
	}
	return "https://" + host + "/" + name
}
