// Package history stores per-session conversation context for the model
// endpoints. Three backends share one interface: an in-process map for
// single-instance deployments, Redis for shared ephemeral state, and
// PostgreSQL when conversations must survive restarts.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/codedesk/codedesk/pkg/types"
)

// Store is the conversation history backend.
type Store interface {
	// Append records one message at the end of a session's history.
	Append(ctx context.Context, sessionID string, msg types.ChatMessage) error
	// Context returns up to limit of the most recent messages, oldest first.
	Context(ctx context.Context, sessionID string, limit int) ([]types.ChatMessage, error)
	// Clear drops a session's history.
	Clear(ctx context.Context, sessionID string) error
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend     string // memory, redis or postgres
	RedisURL    string
	DatabaseURL string
	MaxMessages int           // per-session cap on stored messages
	TTL         time.Duration // idle expiry, memory and redis backends
	MaxSessions int           // session cap, memory backend only
}

// New creates the configured history backend.
func New(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", "memory":
		return NewMemoryStore(opts.MaxMessages, opts.MaxSessions, opts.TTL), nil
	case "redis":
		return NewRedisStore(ctx, opts.RedisURL, opts.MaxMessages, opts.TTL)
	case "postgres":
		return NewPostgresStore(ctx, opts.DatabaseURL, opts.MaxMessages)
	default:
		return nil, fmt.Errorf("unknown history backend: %s", opts.Backend)
	}
}
