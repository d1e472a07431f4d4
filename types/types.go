package types

import (
	"errors"
	"fmt"
	"time"
)

// BotIdentity identifies which connection a session or status belongs to.
// The daemon normally runs a single identity but everything downstream is
// keyed by it so multiple bots can share one process.
type BotIdentity string

// ConnectionState is the lifecycle state of a bot connection. It is owned
// exclusively by the supervisor; everyone else sees it through snapshots.
type ConnectionState int

const (
	StateUninitialized ConnectionState = iota
	StateAwaitingChallenge
	StateAuthenticated
	StateReady
	StateDisconnected
	StateFailed
)

var stateNames = map[ConnectionState]string{
	StateUninitialized:     "uninitialized",
	StateAwaitingChallenge: "awaiting_challenge",
	StateAuthenticated:     "authenticated",
	StateReady:             "ready",
	StateDisconnected:      "disconnected",
	StateFailed:            "failed",
}

func (s ConnectionState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// MarshalText renders the state as its snake_case name so snapshots
// serialize readably.
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name produced by MarshalText.
func (s *ConnectionState) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown connection state %q", text)
}

// SessionBlob is the opaque authentication material a client needs to
// resume without a new QR challenge. Immutable once created; a fresh
// authentication always produces a new blob.
type SessionBlob struct {
	Identity  BotIdentity
	Data      []byte
	CreatedAt time.Time
}

// Size returns the payload length in bytes.
func (b SessionBlob) Size() int { return len(b.Data) }

// BlobInfo is session store metadata for one stored blob.
type BlobInfo struct {
	ID        string      `json:"id"`
	Identity  BotIdentity `json:"identity"`
	Filename  string      `json:"filename,omitempty"`
	Size      int64       `json:"file_size"`
	CreatedAt time.Time   `json:"created_at"`
}

// StatusSnapshot is the immutable status value published on every state
// transition. Field names mirror the dashboard backend's bot_status
// document.
type StatusSnapshot struct {
	Identity        BotIdentity     `json:"identity"`
	State           ConnectionState `json:"state"`
	IsConnected     bool            `json:"is_connected"`
	PhoneNumber     string          `json:"phone_number,omitempty"`
	Challenge       string          `json:"qr_code,omitempty"`
	SessionRestored bool            `json:"session_restored"`
	Warning         string          `json:"warning,omitempty"`
	LastSeen        time.Time       `json:"last_seen"`
}

// Sentinel errors shared across packages. Callers match them with
// errors.Is; wrapping with context is fine.
var (
	// ErrNotConnected is returned for operations that require a Ready
	// connection.
	ErrNotConnected = errors.New("bot is not connected")

	// ErrInvalidStateTransition is returned for operations invoked from a
	// state that does not permit them.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrNoSessionAvailable means the store holds no blob for the
	// identity. Distinct from a failed restore attempt.
	ErrNoSessionAvailable = errors.New("no session available")

	// ErrStoreUnavailable means the session store could not be reached.
	ErrStoreUnavailable = errors.New("session store unavailable")

	// ErrStoreRejected means the session store refused the blob.
	ErrStoreRejected = errors.New("session store rejected request")

	// ErrNotFound is returned by store lookups for unknown blob IDs.
	ErrNotFound = errors.New("not found")
)
