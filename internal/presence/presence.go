// Package presence records which users hold live connections and who is
// typing in which chat. Typing entries expire on their own after the TTL.
package presence

import (
	"context"
	"errors"
	"time"
)

// DefaultTypingTTL is how long a typing entry survives without a refresh.
const DefaultTypingTTL = 5 * time.Second

// ErrClosed is returned by a store after Close.
var ErrClosed = errors.New("presence store closed")

// Status is the online flag of a user.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Record is the presence state of one user.
type Record struct {
	UserID       string    `json:"userId"`
	Status       Status    `json:"status"`
	ConnectionID string    `json:"connectionId,omitempty"`
	Connections  int       `json:"connections"`
	LastSeenAt   time.Time `json:"lastSeenAt"`
}

// Store is the fast key-value store behind presence and typing state.
//
// A user is online while at least one connection is registered.
// SetOnline reports true only for the first connection and SetOffline
// only when the last one goes away.
type Store interface {
	SetOnline(ctx context.Context, userID, connID string) (becameOnline bool, err error)
	SetOffline(ctx context.Context, userID, connID string) (becameOffline bool, err error)
	IsOnline(ctx context.Context, userID string) (bool, error)
	Get(ctx context.Context, userID string) (Record, error)
	OnlineUsers(ctx context.Context) ([]string, error)

	AddTyping(ctx context.Context, chatID, userID string) error
	RemoveTyping(ctx context.Context, chatID, userID string) error
	ListTyping(ctx context.Context, chatID string) ([]string, error)

	// TypingTTL is the expiry applied by AddTyping.
	TypingTTL() time.Duration
	Close() error
}

// Option tunes a store.
type Option func(*options)

type options struct {
	now       func() time.Time
	typingTTL time.Duration
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithTypingTTL overrides DefaultTypingTTL.
func WithTypingTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.typingTTL = ttl
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, typingTTL: DefaultTypingTTL}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
