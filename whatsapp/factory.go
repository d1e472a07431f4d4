// Package whatsapp adapts go.mau.fi/whatsmeow to the supervisor's
// connection-object contract: construction with optional restored
// session material, lifecycle event translation and whole-session
// export for backup.
package whatsapp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"
	_ "modernc.org/sqlite"

	"whatsapp-session-keeper/supervisor"
	"whatsapp-session-keeper/types"
)

// Factory builds whatsmeow-backed connection objects. Each identity gets
// its own sqlite device store under DataDir; a restored session blob is
// materialized as that store before the container opens it.
type Factory struct {
	dataDir  string
	renderQR bool
	log      zerolog.Logger
}

// NewFactory returns a factory writing device stores under dataDir.
// When renderQR is set, pairing codes are also drawn on the terminal.
func NewFactory(dataDir string, renderQR bool, logger zerolog.Logger) *Factory {
	return &Factory{
		dataDir:  dataDir,
		renderQR: renderQR,
		log:      logger.With().Str("component", "whatsapp").Logger(),
	}
}

// New materializes the restored blob (if any) as the identity's device
// store, opens the sqlstore container and wraps a whatsmeow client
// around its first device.
func (f *Factory) New(ctx context.Context, identity types.BotIdentity, restored *types.SessionBlob) (supervisor.NetworkClient, error) {
	if err := os.MkdirAll(f.dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dbPath := filepath.Join(f.dataDir, string(identity)+".db")

	if restored != nil {
		if err := renameio.WriteFile(dbPath, restored.Data, 0o600); err != nil {
			return nil, fmt.Errorf("materialize restored session: %w", err)
		}
	}

	log := f.log.With().Str("identity", string(identity)).Logger()

	// journal_mode DELETE keeps the session in a single file so exports
	// are one read.
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(DELETE)", dbPath)
	container, err := sqlstore.New(ctx, "sqlite", dsn, waLog.Zerolog(log))
	if err != nil {
		return nil, fmt.Errorf("open device store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("load device: %w", err)
	}
	if device == nil {
		device = container.NewDevice()
	}

	c := &Client{
		identity:  identity,
		wa:        whatsmeow.NewClient(device, waLog.Zerolog(log)),
		container: container,
		dbPath:    dbPath,
		renderQR:  f.renderQR,
		log:       log,
		events:    make(chan supervisor.Event, 16),
	}
	c.wa.AddEventHandler(c.translate)
	return c, nil
}
