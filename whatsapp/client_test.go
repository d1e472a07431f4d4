package whatsapp

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	watypes "go.mau.fi/whatsmeow/types"

	"whatsapp-session-keeper/supervisor"
)

func TestParseDestination(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want watypes.JID
	}{
		{"bare number", "15551234567", watypes.NewJID("15551234567", watypes.DefaultUserServer)},
		{"plus prefix", "+15551234567", watypes.NewJID("15551234567", watypes.DefaultUserServer)},
		{"full jid", "15551234567@s.whatsapp.net", watypes.NewJID("15551234567", watypes.DefaultUserServer)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDestination(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDestinationRejectsEmpty(t *testing.T) {
	_, err := ParseDestination("")
	assert.Error(t, err)

	_, err = ParseDestination("+")
	assert.Error(t, err)
}

func drainEvents(c *Client) []supervisor.Event {
	var out []supervisor.Event
	for {
		select {
		case ev := <-c.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestEmitDropsChallengeWhenFull(t *testing.T) {
	c := &Client{events: make(chan supervisor.Event, 2), log: zerolog.Nop()}

	c.emit(supervisor.ChallengeIssued{Code: "qr-1"})
	c.emit(supervisor.ChallengeIssued{Code: "qr-2"})
	c.emit(supervisor.ChallengeIssued{Code: "qr-3"}) // buffer full, dropped

	got := drainEvents(c)
	require.Len(t, got, 2)
	assert.Equal(t, supervisor.ChallengeIssued{Code: "qr-1"}, got[0])
	assert.Equal(t, supervisor.ChallengeIssued{Code: "qr-2"}, got[1])
}

func TestEmitNeverDropsDisconnect(t *testing.T) {
	c := &Client{events: make(chan supervisor.Event, 2), log: zerolog.Nop()}

	c.emit(supervisor.ChallengeIssued{Code: "qr-1"})
	c.emit(supervisor.ChallengeIssued{Code: "qr-2"})
	c.emit(supervisor.Disconnected{Reason: "stream error"})

	got := drainEvents(c)
	require.Len(t, got, 2)
	// The oldest queued event gives way; the disconnect survives.
	assert.Equal(t, supervisor.ChallengeIssued{Code: "qr-2"}, got[0])
	assert.Equal(t, supervisor.Disconnected{Reason: "stream error"}, got[1])
}
