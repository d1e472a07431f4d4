// Package supervisor owns the connection lifecycle for one bot identity:
// it drives the connection object through its states, persists fresh
// authentication material through the backup gateway, publishes status
// transitions and applies the reconnect policy. All transitions for an
// identity run on a single goroutine, one event at a time.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"whatsapp-session-keeper/backup"
	"whatsapp-session-keeper/status"
	"whatsapp-session-keeper/types"
	"whatsapp-session-keeper/utils"
)

// Config tunes the supervisor's failure handling.
type Config struct {
	// BaseRetryDelay is the first reconnect delay after an unplanned
	// disconnect.
	BaseRetryDelay time.Duration
	// MaxRetryDelay caps the exponential schedule.
	MaxRetryDelay time.Duration
	// InitFailureLimit is the number of consecutive connection-object
	// construction failures within InitFailureWindow that escalates to
	// the terminal Failed state.
	InitFailureLimit  int
	InitFailureWindow time.Duration
	// ShutdownBackupTimeout bounds the best-effort final backup on
	// shutdown so it cannot stall process exit.
	ShutdownBackupTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseRetryDelay <= 0 {
		c.BaseRetryDelay = 2 * time.Second
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = time.Minute
	}
	if c.InitFailureLimit <= 0 {
		c.InitFailureLimit = 5
	}
	if c.InitFailureWindow <= 0 {
		c.InitFailureWindow = time.Minute
	}
	if c.ShutdownBackupTimeout <= 0 {
		c.ShutdownBackupTimeout = 5 * time.Second
	}
	return c
}

// Supervisor runs the connection state machine for one identity.
type Supervisor struct {
	identity  types.BotIdentity
	factory   ClientFactory
	gateway   *backup.Gateway
	publisher *status.Publisher
	log       zerolog.Logger
	cfg       Config

	started atomic.Bool
	stopped atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
	ctrl    chan ctrlRequest
	initc   chan initResult
	notes   chan string
	latest  atomic.Value // types.StatusSnapshot

	// Everything below is owned by the run goroutine.
	state         types.ConnectionState
	client        NetworkClient
	clientEvents  <-chan Event
	challenge     string
	phone         string
	restored      bool
	warning       string
	retry         *retryPolicy
	reconnect     *time.Timer
	gen           int
	attemptCancel context.CancelFunc
	initFailures  []time.Time
}

type ctrlKind int

const (
	ctrlSend ctrlKind = iota
	ctrlManualConnect
	ctrlChallenge
	ctrlRestart
	ctrlShutdown
)

type ctrlRequest struct {
	kind  ctrlKind
	reply chan ctrlReply
}

type ctrlReply struct {
	err       error
	challenge string
	client    NetworkClient
}

type initResult struct {
	gen    int
	client NetworkClient
	err    error
}

// ErrStopped is returned by operations invoked after Shutdown.
var ErrStopped = errors.New("supervisor stopped")

// New creates a supervisor for identity. Call Start to begin connecting.
func New(identity types.BotIdentity, factory ClientFactory, gateway *backup.Gateway, publisher *status.Publisher, logger zerolog.Logger, cfg Config) *Supervisor {
	return &Supervisor{
		identity:  identity,
		factory:   factory,
		gateway:   gateway,
		publisher: publisher,
		log: logger.With().
			Str("component", "supervisor").
			Str("identity", string(identity)).
			Logger(),
		cfg:   cfg.withDefaults(),
		done:  make(chan struct{}),
		ctrl:  make(chan ctrlRequest),
		initc: make(chan initResult),
		notes: make(chan string, 4),
	}
}

// Identity returns the bot identity this supervisor owns.
func (s *Supervisor) Identity() types.BotIdentity {
	return s.identity
}

// Start launches the supervision loop: a restore attempt, then the first
// handshake. Idempotent no-op if already running.
func (s *Supervisor) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.run(ctx)
}

// CurrentSnapshot returns the latest published snapshot. Non-blocking and
// always available once Start has been called.
func (s *Supervisor) CurrentSnapshot() types.StatusSnapshot {
	if snap, ok := s.latest.Load().(types.StatusSnapshot); ok {
		return snap
	}
	return types.StatusSnapshot{
		Identity: s.identity,
		State:    types.StateUninitialized,
		LastSeen: time.Now().UTC(),
	}
}

// Send dispatches a text payload through the live connection. Fails with
// ErrNotConnected unless the connection is Ready. Delivery retries are the
// caller's business.
func (s *Supervisor) Send(ctx context.Context, destination, payload string) error {
	if !s.started.Load() {
		return types.ErrNotConnected
	}
	rep, err := s.request(ctx, ctrlSend)
	if err != nil {
		return err
	}
	return rep.client.Send(ctx, destination, payload)
}

// RequestChallenge returns the pending challenge payload. Fails with
// ErrInvalidStateTransition unless a challenge has been issued and not yet
// consumed.
func (s *Supervisor) RequestChallenge(ctx context.Context) (string, error) {
	if !s.started.Load() {
		return "", types.ErrInvalidStateTransition
	}
	rep, err := s.request(ctx, ctrlChallenge)
	if err != nil {
		return "", err
	}
	return rep.challenge, nil
}

// RequestManualConnect confirms the pending challenge without waiting for
// the network layer, walking the Authenticated and Ready transitions.
// Valid only while a challenge is pending.
func (s *Supervisor) RequestManualConnect(ctx context.Context) error {
	if !s.started.Load() {
		return types.ErrInvalidStateTransition
	}
	_, err := s.request(ctx, ctrlManualConnect)
	return err
}

// Restart disposes the current connection object, cancels any in-flight
// handshake or backoff wait, and re-enters the start sequence (restore,
// then handshake). Always safe to call; also clears a terminal Failed
// state as an explicit operator intervention.
func (s *Supervisor) Restart(ctx context.Context) error {
	if !s.started.Load() {
		s.Start()
		return nil
	}
	_, err := s.request(ctx, ctrlRestart)
	return err
}

// Shutdown stops the loop. If the connection is Ready or Authenticated it
// first performs a best-effort final backup bounded by the configured
// timeout.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	if !s.started.Load() || !s.stopped.CompareAndSwap(false, true) {
		return nil
	}
	if _, err := s.request(ctx, ctrlShutdown); err != nil {
		// The loop is stuck or the caller gave up waiting; force it.
		s.cancel()
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}

func (s *Supervisor) request(ctx context.Context, kind ctrlKind) (ctrlReply, error) {
	req := ctrlRequest{kind: kind, reply: make(chan ctrlReply, 1)}
	select {
	case s.ctrl <- req:
	case <-s.done:
		return ctrlReply{}, ErrStopped
	case <-ctx.Done():
		return ctrlReply{}, ctx.Err()
	}
	select {
	case rep := <-req.reply:
		return rep, rep.err
	case <-ctx.Done():
		return ctrlReply{}, ctx.Err()
	}
}

// run is the serialized transition loop. It is the only goroutine that
// touches the state machine.
func (s *Supervisor) run(ctx context.Context) {
	defer close(s.done)

	s.state = types.StateUninitialized
	s.retry = newRetryPolicy(s.cfg.BaseRetryDelay, s.cfg.MaxRetryDelay)
	s.publish()
	s.bootstrap(ctx)

	for {
		var timerC <-chan time.Time
		if s.reconnect != nil {
			timerC = s.reconnect.C
		}
		var evC <-chan Event
		if s.client != nil {
			evC = s.clientEvents
		}

		select {
		case <-ctx.Done():
			s.teardown()
			return
		case res := <-s.initc:
			s.finishConnect(ctx, res)
		case ev, ok := <-evC:
			if !ok {
				s.clientEvents = nil
				s.handleDisconnect(ctx, "event stream closed")
				continue
			}
			s.handleEvent(ctx, ev)
		case req := <-s.ctrl:
			if s.handleCtrl(ctx, req) {
				return
			}
		case <-timerC:
			s.reconnect = nil
			utils.ReconnectAttempts.Inc()
			s.beginConnect(ctx, nil)
		case warning := <-s.notes:
			// Async side-effect failure: annotate and republish the
			// current state so operators see it without waiting for the
			// next transition.
			s.warning = warning
			s.publish()
		}
	}
}

// bootstrap attempts a restore, then begins the first handshake. The
// restore attempt completes before any handshake starts.
func (s *Supervisor) bootstrap(ctx context.Context) {
	blob, err := s.gateway.RestoreLatest(ctx, s.identity)
	switch {
	case err == nil:
		s.restored = true
		s.beginConnect(ctx, &blob)
	case errors.Is(err, types.ErrNoSessionAvailable):
		s.log.Info().Msg("no stored session, starting fresh handshake")
		s.beginConnect(ctx, nil)
	default:
		// A failed restore attempt is not first-run; say so, then
		// proceed with a fresh handshake anyway.
		s.log.Warn().Err(err).Msg("session restore attempt failed")
		s.warning = fmt.Sprintf("session restore failed: %v", err)
		s.beginConnect(ctx, nil)
	}
}

// beginConnect constructs and connects a new client off-loop so restart
// and shutdown can interrupt a slow handshake.
func (s *Supervisor) beginConnect(ctx context.Context, blob *types.SessionBlob) {
	s.gen++
	gen := s.gen
	attemptCtx, cancel := context.WithCancel(ctx)
	s.attemptCancel = cancel

	s.state = types.StateAwaitingChallenge
	s.publish()

	factory, identity := s.factory, s.identity
	go func() {
		client, err := factory.New(attemptCtx, identity, blob)
		if err == nil {
			if cerr := client.Connect(attemptCtx); cerr != nil {
				_ = client.Close(context.Background())
				client, err = nil, cerr
			}
		}
		select {
		case s.initc <- initResult{gen: gen, client: client, err: err}:
		case <-ctx.Done():
			if client != nil {
				_ = client.Close(context.Background())
			}
		}
	}()
}

func (s *Supervisor) finishConnect(ctx context.Context, res initResult) {
	if res.gen != s.gen {
		// Result of an attempt cancelled by restart; the replacement
		// attempt is already running.
		if res.client != nil {
			_ = res.client.Close(context.Background())
		}
		return
	}
	if res.err != nil {
		s.cancelAttempt()
		if ctx.Err() != nil {
			return
		}
		s.recordInitFailure(res.err)
		return
	}

	// The attempt context stays with the live client; disposeClient
	// releases it.
	s.client = res.client
	s.clientEvents = res.client.Events()
	s.log.Debug().Msg("connection object constructed, handshake in progress")
}

// recordInitFailure tracks consecutive construction failures and
// escalates to terminal Failed once they exceed the limit within the
// window. Anything short of that schedules a normal retry.
func (s *Supervisor) recordInitFailure(err error) {
	now := time.Now()
	recent := s.initFailures[:0]
	for _, t := range s.initFailures {
		if now.Sub(t) < s.cfg.InitFailureWindow {
			recent = append(recent, t)
		}
	}
	s.initFailures = append(recent, now)

	if len(s.initFailures) >= s.cfg.InitFailureLimit {
		s.enterFailed(err)
		return
	}

	s.log.Warn().Err(err).
		Int("consecutive_failures", len(s.initFailures)).
		Msg("connection initialization failed")
	s.state = types.StateDisconnected
	s.challenge, s.phone = "", ""
	s.warning = fmt.Sprintf("connection initialization failed: %v", err)
	s.publish()
	s.scheduleReconnect()
}

// enterFailed is terminal for the process lifetime: the environment
// itself is broken and silently retrying forever would hide it from
// operators. Restart clears it explicitly.
func (s *Supervisor) enterFailed(err error) {
	s.log.Error().Err(err).
		Int("consecutive_failures", len(s.initFailures)).
		Msg("giving up: connection object cannot be initialized")
	s.disposeClient()
	s.cancelAttempt()
	s.stopReconnectTimer()
	s.state = types.StateFailed
	s.challenge, s.phone = "", ""
	s.warning = fmt.Sprintf("connection failed permanently: %v", err)
	s.publish()
}

func (s *Supervisor) handleEvent(ctx context.Context, ev Event) {
	switch ev := ev.(type) {
	case ChallengeIssued:
		s.state = types.StateAwaitingChallenge
		s.challenge = ev.Code
		s.publish()
	case Authenticated:
		s.state = types.StateAuthenticated
		s.challenge = ""
		s.publish()
		s.backupAsync()
	case Ready:
		s.state = types.StateReady
		s.challenge = ""
		s.phone = ev.PhoneNumber
		s.retry.Reset()
		s.initFailures = nil
		s.publish()
		s.log.Info().Str("phone", ev.PhoneNumber).Msg("connection ready")
	case Disconnected:
		s.handleDisconnect(ctx, ev.Reason)
	}
}

func (s *Supervisor) handleDisconnect(_ context.Context, reason string) {
	if s.state == types.StateFailed {
		return
	}
	s.log.Warn().Str("reason", reason).Msg("connection lost")
	s.disposeClient()
	s.state = types.StateDisconnected
	s.challenge, s.phone = "", ""
	s.publish()
	s.scheduleReconnect()
}

func (s *Supervisor) scheduleReconnect() {
	delay := s.retry.Next()
	s.log.Info().
		Dur("delay", delay).
		Int("attempt", s.retry.Attempts()).
		Msg("reconnect scheduled")
	s.stopReconnectTimer()
	s.reconnect = time.NewTimer(delay)
}

// backupAsync pushes the freshly authenticated session to the store
// without blocking the transition. Failure is annotated into the next
// snapshot, never fed back into the state machine.
func (s *Supervisor) backupAsync() {
	client := s.client
	if client == nil {
		return
	}
	identity := s.identity
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		data, err := client.ExportSession(ctx)
		if err == nil {
			err = s.gateway.Backup(ctx, types.SessionBlob{
				Identity:  identity,
				Data:      data,
				CreatedAt: time.Now().UTC(),
			})
		}
		if err != nil {
			s.log.Warn().Err(err).Msg("session backup failed")
			select {
			case s.notes <- fmt.Sprintf("session backup failed: %v", err):
			default:
			}
		}
	}()
}

// handleCtrl processes one caller operation. Returns true when the loop
// should exit.
func (s *Supervisor) handleCtrl(ctx context.Context, req ctrlRequest) bool {
	switch req.kind {
	case ctrlSend:
		if s.state != types.StateReady || s.client == nil {
			req.reply <- ctrlReply{err: types.ErrNotConnected}
			return false
		}
		// The transport call runs on the caller's goroutine so a slow
		// send never stalls the transition loop.
		req.reply <- ctrlReply{client: s.client}

	case ctrlChallenge:
		if s.state != types.StateAwaitingChallenge || s.challenge == "" {
			req.reply <- ctrlReply{err: types.ErrInvalidStateTransition}
			return false
		}
		req.reply <- ctrlReply{challenge: s.challenge}

	case ctrlManualConnect:
		if s.state != types.StateAwaitingChallenge || s.challenge == "" {
			req.reply <- ctrlReply{err: types.ErrInvalidStateTransition}
			return false
		}
		s.log.Info().Msg("manual connect confirmation")
		s.state = types.StateAuthenticated
		s.challenge = ""
		s.publish()
		s.backupAsync()
		s.state = types.StateReady
		s.retry.Reset()
		s.initFailures = nil
		s.publish()
		req.reply <- ctrlReply{}

	case ctrlRestart:
		s.log.Info().Msg("restarting connection")
		s.cancelAttempt()
		s.disposeClient()
		s.stopReconnectTimer()
		s.state = types.StateUninitialized
		s.challenge, s.phone = "", ""
		s.restored = false
		s.retry.Reset()
		s.initFailures = nil
		req.reply <- ctrlReply{}
		s.bootstrap(ctx)

	case ctrlShutdown:
		s.finalBackup()
		s.teardown()
		req.reply <- ctrlReply{}
		return true
	}
	return false
}

// finalBackup saves the live session one last time if there is one worth
// saving. Bounded; must not block process exit.
func (s *Supervisor) finalBackup() {
	if s.client == nil || (s.state != types.StateReady && s.state != types.StateAuthenticated) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownBackupTimeout)
	defer cancel()

	data, err := s.client.ExportSession(ctx)
	if err == nil {
		err = s.gateway.Backup(ctx, types.SessionBlob{
			Identity:  s.identity,
			Data:      data,
			CreatedAt: time.Now().UTC(),
		})
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("final session backup failed")
	}
}

func (s *Supervisor) teardown() {
	s.cancelAttempt()
	s.disposeClient()
	s.stopReconnectTimer()
}

func (s *Supervisor) cancelAttempt() {
	if s.attemptCancel != nil {
		s.attemptCancel()
		s.attemptCancel = nil
	}
	// Stale init results are filtered by generation in finishConnect.
	s.gen++
}

func (s *Supervisor) disposeClient() {
	if s.client == nil {
		return
	}
	if s.attemptCancel != nil {
		s.attemptCancel()
		s.attemptCancel = nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = s.client.Close(ctx)
	cancel()
	s.client = nil
	s.clientEvents = nil
}

func (s *Supervisor) stopReconnectTimer() {
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
}

// publish produces an immutable snapshot of the current state and hands
// it to the status publisher. A pending warning rides along exactly once.
func (s *Supervisor) publish() {
	snap := types.StatusSnapshot{
		Identity:        s.identity,
		State:           s.state,
		IsConnected:     s.state == types.StateReady,
		PhoneNumber:     s.phone,
		Challenge:       s.challenge,
		SessionRestored: s.restored,
		Warning:         s.warning,
		LastSeen:        time.Now().UTC(),
	}
	s.warning = ""
	s.latest.Store(snap)
	s.publisher.Publish(snap)

	utils.StateTransitions.WithLabelValues(snap.State.String()).Inc()
	if snap.IsConnected {
		utils.ConnectedGauge.Set(1)
	} else {
		utils.ConnectedGauge.Set(0)
	}
}
