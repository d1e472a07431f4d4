package status

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"whatsapp-session-keeper/types"
)

// RemoteSink POSTs snapshots to a dashboard backend, matching the
// /api/bot/status document shape.
type RemoteSink struct {
	url    string
	client *http.Client
}

// NewRemoteSink creates a sink posting to baseURL's bot status endpoint.
func NewRemoteSink(baseURL string) *RemoteSink {
	return &RemoteSink{
		url:    baseURL + "/api/bot/status",
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *RemoteSink) Push(ctx context.Context, snap types.StatusSnapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("status sink returned %d", resp.StatusCode)
	}
	return nil
}

// LogSink writes snapshots to the log. Default when no backend URL is
// configured.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a logging status sink.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{log: logger.With().Str("component", "status-sink").Logger()}
}

func (s *LogSink) Push(_ context.Context, snap types.StatusSnapshot) error {
	s.log.Info().
		Str("identity", string(snap.Identity)).
		Str("state", snap.State.String()).
		Bool("is_connected", snap.IsConnected).
		Bool("session_restored", snap.SessionRestored).
		Str("warning", snap.Warning).
		Msg("bot status")
	return nil
}
