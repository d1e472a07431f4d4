// Package backup moves session blobs between the supervisor and the
// session store. Upload failures are reported but never treated as fatal;
// the caller decides what to do with a failed restore.
package backup

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"whatsapp-session-keeper/session"
	"whatsapp-session-keeper/store"
	"whatsapp-session-keeper/types"
	"whatsapp-session-keeper/utils"
)

// Gateway wraps a SessionStore with the envelope codec.
type Gateway struct {
	store store.SessionStore
	log   zerolog.Logger
}

// NewGateway creates a backup gateway over the given store.
func NewGateway(s store.SessionStore, logger zerolog.Logger) *Gateway {
	return &Gateway{
		store: s,
		log:   logger.With().Str("component", "backup").Logger(),
	}
}

// Backup encodes the blob and uploads it. Returns ErrStoreUnavailable or
// ErrStoreRejected; callers log and continue.
func (g *Gateway) Backup(ctx context.Context, blob types.SessionBlob) error {
	env, err := session.Encode(blob)
	if err != nil {
		utils.BackupOutcomes.WithLabelValues("encode_error").Inc()
		return fmt.Errorf("%w: %v", types.ErrStoreRejected, err)
	}

	res, err := g.store.Put(ctx, blob.Identity, env)
	if err != nil {
		utils.BackupOutcomes.WithLabelValues("store_error").Inc()
		return err
	}

	utils.BackupOutcomes.WithLabelValues("ok").Inc()
	g.log.Info().
		Str("identity", string(blob.Identity)).
		Str("blob_id", res.ID).
		Int("size", blob.Size()).
		Msg("session backed up")
	return nil
}

// RestoreLatest fetches and decodes the most recent blob for identity.
// Returns ErrNoSessionAvailable when the store simply has nothing, and the
// underlying store error when the attempt itself failed, so the caller can
// tell first-run apart from a broken store.
func (g *Gateway) RestoreLatest(ctx context.Context, identity types.BotIdentity) (types.SessionBlob, error) {
	infos, err := g.store.List(ctx, identity)
	if err != nil {
		return types.SessionBlob{}, fmt.Errorf("list sessions for restore: %w", err)
	}
	if len(infos) == 0 {
		return types.SessionBlob{}, types.ErrNoSessionAvailable
	}

	latest := infos[0]
	env, err := g.store.Get(ctx, identity, latest.ID)
	if err != nil {
		// A blob listed but gone is a store inconsistency, not first-run.
		if errors.Is(err, types.ErrNotFound) {
			return types.SessionBlob{}, fmt.Errorf("latest session %s vanished from store: %w", latest.ID, err)
		}
		return types.SessionBlob{}, fmt.Errorf("fetch session %s: %w", latest.ID, err)
	}

	blob, err := session.Decode(env)
	if err != nil {
		return types.SessionBlob{}, fmt.Errorf("decode session %s: %w", latest.ID, err)
	}

	g.log.Info().
		Str("identity", string(identity)).
		Str("blob_id", latest.ID).
		Time("created_at", blob.CreatedAt).
		Msg("session restored from store")
	return blob, nil
}
