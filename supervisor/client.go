package supervisor

import (
	"context"

	"whatsapp-session-keeper/types"
)

// NetworkClient is the supervisor's view of one live connection object.
// Exactly one exists per identity at a time; the supervisor fully disposes
// a client before constructing the next one.
type NetworkClient interface {
	// Connect starts the external handshake. It returns once the
	// transport is up; lifecycle progress arrives on Events.
	Connect(ctx context.Context) error
	// Send dispatches a text payload to destination. Transport failures
	// are returned, not retried.
	Send(ctx context.Context, destination, payload string) error
	// ExportSession returns the opaque authentication material needed to
	// resume this session later.
	ExportSession(ctx context.Context) ([]byte, error)
	// Events returns the lifecycle event stream. The channel is closed
	// when the client is closed.
	Events() <-chan Event
	// Close tears the connection down and releases all resources.
	Close(ctx context.Context) error
}

// ClientFactory constructs connection objects. A non-nil restored blob
// seeds the client with previously saved authentication material.
type ClientFactory interface {
	New(ctx context.Context, identity types.BotIdentity, restored *types.SessionBlob) (NetworkClient, error)
}

// Event is a lifecycle signal from the network layer. Every external
// callback becomes one typed variant on a single channel so the
// supervisor can process them strictly in arrival order.
type Event interface{ isEvent() }

// ChallengeIssued carries a fresh QR challenge payload. Reissues strictly
// supersede earlier codes.
type ChallengeIssued struct {
	Code string
}

// Authenticated signals that handshake material was received; the session
// can now be exported and backed up.
type Authenticated struct{}

// Ready signals the connection is fully usable and reports the account
// identity.
type Ready struct {
	PhoneNumber string
	PushName    string
}

// Disconnected signals loss of connectivity, voluntary logout, or a
// conflict (same identity opened elsewhere).
type Disconnected struct {
	Reason string
}

func (ChallengeIssued) isEvent() {}
func (Authenticated) isEvent()   {}
func (Ready) isEvent()           {}
func (Disconnected) isEvent()    {}
