// Package video provisions conference rooms and participant tokens at the
// external video provider.
package video

import (
	"context"
	"errors"
	"time"

	"github.com/vidasaude/telehealth-core/internal/apperr"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomExists   = errors.New("room already exists")

	// ErrMissingAPIKey is a configuration error and is never retried.
	ErrMissingAPIKey = apperr.New(apperr.KindInternal, "video provider API key is not configured")

	ErrInvalidRoomName = apperr.Validation("invalid room name")
)

// CreateRoomRequest describes a room to create at the provider.
type CreateRoomRequest struct {
	Name              string
	ExpiresAt         time.Time
	EnableChat        bool
	EnableScreenshare bool
	EnableKnocking    bool
}

// TokenRequest describes a meeting token to mint at the provider.
type TokenRequest struct {
	RoomName  string
	UserID    string
	UserName  string
	ExpiresAt time.Time
	IsOwner   bool
}

// Provider is the subset of the video provider API used here.
//
// GetRoom returns ErrRoomNotFound for unknown rooms and CreateRoom returns
// ErrRoomExists when the name is taken.
type Provider interface {
	GetRoom(ctx context.Context, name string) (*Room, error)
	CreateRoom(ctx context.Context, req CreateRoomRequest) (*Room, error)
	CreateMeetingToken(ctx context.Context, req TokenRequest) (string, error)
	DeleteRoom(ctx context.Context, name string) error
}
