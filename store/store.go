// Package store provides the session store: a keyed archive of opaque
// session envelopes with most-recent-first listing. Implementations cover
// an embedded Badger database, a plain directory, a remote HTTP backend
// and an in-memory store for tests.
package store

import (
	"context"
	"time"

	"whatsapp-session-keeper/types"
)

// PutResult describes a stored blob.
type PutResult struct {
	ID        string
	CreatedAt time.Time
}

// SessionStore accepts opaque session envelopes keyed by bot identity.
// List returns metadata most-recent first. Get and Delete return
// types.ErrNotFound for unknown IDs. Implementations report reachability
// problems as types.ErrStoreUnavailable and refusals as
// types.ErrStoreRejected.
type SessionStore interface {
	Put(ctx context.Context, identity types.BotIdentity, data []byte) (PutResult, error)
	List(ctx context.Context, identity types.BotIdentity) ([]types.BlobInfo, error)
	Get(ctx context.Context, identity types.BotIdentity, id string) ([]byte, error)
	Delete(ctx context.Context, identity types.BotIdentity, id string) error
}
