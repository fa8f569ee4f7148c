// Package session stores per-conversation selection state keyed by
// (chat_id, user_id).
package session

import (
	"context"

	"tg_payment_link_bot/internal/domain"
)

// Store is the session-store contract consumed by the conversation handlers.
// Implementations must be safe for concurrent use across session keys; events
// for a single key are serialized by the transport.
type Store interface {
	// Get returns the session for the key and whether one exists.
	Get(ctx context.Context, key domain.SessionKey) (domain.Session, bool, error)
	// Put stores the session, replacing any previous state for its key.
	Put(ctx context.Context, session domain.Session) error
	// Clear removes the session for the key. Clearing an absent session is
	// a no-op.
	Clear(ctx context.Context, key domain.SessionKey) error
}
