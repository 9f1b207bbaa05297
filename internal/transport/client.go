package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/gorilla/websocket"
)

// Client is the connecting side of the reliable channel: one upstream peer
// at a time. Losing the upstream returns the client to StateIdle so it can
// dial again; only Close is final.
type Client struct {
	endpoint

	dialer *websocket.Dialer
}

// NewClient creates an idle client.
func NewClient(opts Options, logger *slog.Logger) *Client {
	c := &Client{dialer: websocket.DefaultDialer}
	c.endpoint.init(opts, logger)
	c.onPeerClosed = func(string) {
		if !c.isClosed() {
			c.setState(StateIdle)
		}
	}
	return c
}

// Connect dials the upstream URL and returns the upstream peer ID. Use Gone
// with that ID to learn when the connection drops.
func (c *Client) Connect(ctx context.Context, rawURL string) (string, error) {
	if c.isClosed() {
		return "", ErrClosed
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("transport: parsing upstream url: %w", err)
	}

	c.setState(StateConnecting)
	conn, _, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if !c.isClosed() {
			c.setState(StateIdle)
		}
		return "", fmt.Errorf("transport: dialing %s: %w", u.Redacted(), err)
	}
	if c.isClosed() {
		_ = conn.Close()
		return "", ErrClosed
	}
	c.setState(StateOpen)
	p := c.addPeer(conn, u.Hostname())
	return p.id, nil
}

// Close drops the upstream connection and the telemetry socket.
func (c *Client) Close() error {
	c.shutdown()
	return nil
}
