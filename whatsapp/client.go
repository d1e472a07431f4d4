package whatsapp

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	watypes "go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"whatsapp-session-keeper/supervisor"
	"whatsapp-session-keeper/types"
	"whatsapp-session-keeper/utils"
)

// Client is one live whatsmeow connection. It translates whatsmeow's
// event stream into the supervisor's lifecycle events and exposes the
// device store file as the exportable session.
type Client struct {
	identity  types.BotIdentity
	wa        *whatsmeow.Client
	container *sqlstore.Container
	dbPath    string
	renderQR  bool
	log       zerolog.Logger

	mu     sync.Mutex
	closed bool
	events chan supervisor.Event
}

// Connect starts the handshake. For an unpaired device the QR channel is
// opened first so pairing codes flow out as challenge events; a paired
// device reconnects with its stored credentials and no challenge.
func (c *Client) Connect(ctx context.Context) error {
	if c.wa.Store.ID == nil {
		qr, err := c.wa.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("open qr channel: %w", err)
		}
		go c.pumpQR(qr)
	}
	if err := c.wa.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

func (c *Client) pumpQR(qr <-chan whatsmeow.QRChannelItem) {
	for item := range qr {
		switch item.Event {
		case "code":
			if c.renderQR {
				renderTerminalQR(item.Code)
			}
			c.emit(supervisor.ChallengeIssued{Code: item.Code})
		case "success":
			return
		case "timeout":
			c.log.Warn().Msg("pairing code expired before it was scanned")
		default:
			c.log.Warn().Str("event", item.Event).Msg("qr channel closed")
		}
	}
}

// translate maps whatsmeow events onto the supervisor's lifecycle.
func (c *Client) translate(evt interface{}) {
	switch v := evt.(type) {
	case *events.PairSuccess:
		c.log.Info().Str("jid", v.ID.String()).Msg("device paired")
		c.emit(supervisor.Authenticated{})
	case *events.Connected:
		c.emit(supervisor.Ready{
			PhoneNumber: c.phoneNumber(),
			PushName:    c.wa.Store.PushName,
		})
	case *events.Disconnected:
		c.emit(supervisor.Disconnected{Reason: "connection closed"})
	case *events.StreamReplaced:
		c.emit(supervisor.Disconnected{Reason: "stream replaced by another client"})
	case *events.LoggedOut:
		c.emit(supervisor.Disconnected{Reason: fmt.Sprintf("logged out: %v", v.Reason)})
	case *events.ConnectFailure:
		c.emit(supervisor.Disconnected{Reason: fmt.Sprintf("connect failure: %v", v.Reason)})
	}
}

func (c *Client) phoneNumber() string {
	if id := c.wa.Store.ID; id != nil {
		return "+" + id.User
	}
	return ""
}

func (c *Client) emit(ev supervisor.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
		return
	default:
	}
	if _, isDisconnect := ev.(supervisor.Disconnected); !isDisconnect {
		c.log.Warn().Msg("event buffer full, dropping lifecycle event")
		return
	}
	// A disconnect supersedes whatever is queued ahead of it; evict the
	// oldest event to guarantee the supervisor sees the connection die.
	// The mutex serializes producers, so the freed slot cannot be taken
	// by another emit.
	select {
	case <-c.events:
	default:
	}
	select {
	case c.events <- ev:
	default:
	}
}

// Send delivers a text payload to destination, which is either a full
// JID or a bare phone number.
func (c *Client) Send(ctx context.Context, destination, payload string) error {
	jid, err := ParseDestination(destination)
	if err != nil {
		return err
	}
	_, err = c.wa.SendMessage(ctx, jid, utils.CreateTextMessage(payload))
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// ExportSession returns the device store file as an opaque blob. The
// store runs with journal_mode DELETE, so the file is self-contained
// between transactions.
func (c *Client) ExportSession(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(c.dbPath)
	if err != nil {
		return nil, fmt.Errorf("read device store: %w", err)
	}
	return data, nil
}

// Events returns the lifecycle event stream. Closed when the client is
// closed.
func (c *Client) Events() <-chan supervisor.Event {
	return c.events
}

// Close disconnects and releases the device store. Idempotent.
func (c *Client) Close(_ context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.events)
	c.mu.Unlock()

	c.wa.Disconnect()
	return c.container.Close()
}

// ParseDestination resolves a recipient: anything with an @ is parsed as
// a JID, a bare number (with or without +) becomes a user JID.
func ParseDestination(destination string) (watypes.JID, error) {
	if strings.ContainsRune(destination, '@') {
		jid, err := watypes.ParseJID(destination)
		if err != nil {
			return watypes.EmptyJID, fmt.Errorf("parse destination %q: %w", destination, err)
		}
		return jid, nil
	}
	user := strings.TrimPrefix(destination, "+")
	if user == "" {
		return watypes.EmptyJID, fmt.Errorf("empty destination")
	}
	return watypes.NewJID(user, watypes.DefaultUserServer), nil
}
