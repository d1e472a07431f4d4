package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsapp-session-keeper/types"
)

// gatedSink blocks each Push until released, recording what it saw.
type gatedSink struct {
	mu      sync.Mutex
	got     []types.StatusSnapshot
	gate    chan struct{}
	entered chan struct{}
}

func newGatedSink() *gatedSink {
	return &gatedSink{
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 16),
	}
}

func (s *gatedSink) Push(_ context.Context, snap types.StatusSnapshot) error {
	s.entered <- struct{}{}
	<-s.gate
	s.mu.Lock()
	s.got = append(s.got, snap)
	s.mu.Unlock()
	return nil
}

func (s *gatedSink) snapshots() []types.StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.StatusSnapshot, len(s.got))
	copy(out, s.got)
	return out
}

func snap(state types.ConnectionState, phone string) types.StatusSnapshot {
	return types.StatusSnapshot{
		Identity:    "primary",
		State:       state,
		IsConnected: state == types.StateReady,
		PhoneNumber: phone,
		LastSeen:    time.Now().UTC(),
	}
}

func TestPublisherDeliversLatestOnly(t *testing.T) {
	sink := newGatedSink()
	p := NewPublisher(sink, zerolog.Nop())

	// First snapshot enters the sink and blocks there.
	p.Publish(snap(types.StateAwaitingChallenge, ""))
	<-sink.entered

	// Three more arrive while the sink is busy; only the last survives.
	p.Publish(snap(types.StateAuthenticated, ""))
	p.Publish(snap(types.StateDisconnected, ""))
	p.Publish(snap(types.StateReady, "+15551234"))

	close(sink.gate)
	p.Close()

	got := sink.snapshots()
	require.Len(t, got, 2)
	assert.Equal(t, types.StateAwaitingChallenge, got[0].State)
	assert.Equal(t, types.StateReady, got[1].State)
	assert.Equal(t, "+15551234", got[1].PhoneNumber)
}

func TestPublisherGoesIdleAndWakesAgain(t *testing.T) {
	sink := newGatedSink()
	close(sink.gate) // never block
	p := NewPublisher(sink, zerolog.Nop())

	p.Publish(snap(types.StateAwaitingChallenge, ""))
	p.Close()

	p.Publish(snap(types.StateReady, "+1"))
	p.Close()

	got := sink.snapshots()
	require.Len(t, got, 2)
	assert.Equal(t, types.StateReady, got[1].State)
}

type errSink struct{ calls int }

func (s *errSink) Push(context.Context, types.StatusSnapshot) error {
	s.calls++
	return errors.New("sink down")
}

func TestPublisherAbsorbsSinkErrors(t *testing.T) {
	sink := &errSink{}
	p := NewPublisher(sink, zerolog.Nop())

	p.Publish(snap(types.StateReady, ""))
	p.Close()

	// The failed snapshot is dropped, not retried.
	assert.Equal(t, 1, sink.calls)
}

func TestRemoteSinkPush(t *testing.T) {
	var received types.StatusSnapshot
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/bot/status", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
	}))
	defer srv.Close()

	s := NewRemoteSink(srv.URL)
	err := s.Push(context.Background(), snap(types.StateReady, "+15551234"))
	require.NoError(t, err)
	assert.Equal(t, types.StateReady, received.State)
	assert.True(t, received.IsConnected)
}

func TestRemoteSinkErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewRemoteSink(srv.URL).Push(context.Background(), snap(types.StateReady, ""))
	assert.Error(t, err)
}
