// Package status decouples the connection supervisor from whoever wants
// to display its state. The publisher keeps exactly one pending snapshot
// per instance: newer snapshots overwrite older undelivered ones, so a
// slow sink sees the latest state instead of a growing backlog.
package status

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"whatsapp-session-keeper/types"
	"whatsapp-session-keeper/utils"
)

// Sink accepts status snapshots. Push errors are logged, never retried
// synchronously.
type Sink interface {
	Push(ctx context.Context, snap types.StatusSnapshot) error
}

const defaultPushTimeout = 10 * time.Second

// Publisher is a one-slot latest-value channel in front of a Sink.
type Publisher struct {
	sink        Sink
	log         zerolog.Logger
	pushTimeout time.Duration

	mu         sync.Mutex
	pending    *types.StatusSnapshot
	delivering bool
	wg         sync.WaitGroup
}

// NewPublisher creates a publisher delivering to sink.
func NewPublisher(sink Sink, logger zerolog.Logger) *Publisher {
	return &Publisher{
		sink:        sink,
		log:         logger.With().Str("component", "status").Logger(),
		pushTimeout: defaultPushTimeout,
	}
}

// Publish records snap as the latest pending snapshot, replacing any
// undelivered one, and wakes the delivery goroutine if idle. Never blocks.
func (p *Publisher) Publish(snap types.StatusSnapshot) {
	utils.SnapshotsPublished.Inc()

	p.mu.Lock()
	p.pending = &snap
	if p.delivering {
		p.mu.Unlock()
		return
	}
	p.delivering = true
	p.mu.Unlock()

	p.wg.Add(1)
	go p.deliver()
}

// deliver drains the pending cell until it is empty, then goes idle.
func (p *Publisher) deliver() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		snap := p.pending
		p.pending = nil
		if snap == nil {
			p.delivering = false
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), p.pushTimeout)
		err := p.sink.Push(ctx, *snap)
		cancel()
		if err != nil {
			utils.SnapshotPushErrors.Inc()
			p.log.Warn().Err(err).
				Str("identity", string(snap.Identity)).
				Str("state", snap.State.String()).
				Msg("status push failed")
			continue
		}
		utils.SnapshotsDelivered.Inc()
	}
}

// Close waits for in-flight deliveries to finish. Publish must not be
// called after Close.
func (p *Publisher) Close() {
	p.wg.Wait()
}
