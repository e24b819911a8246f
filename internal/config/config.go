// Package config loads defectd and defectctl settings from TOML files.
//
// Files only override what they define; everything else keeps the values
// from DefaultServer and DefaultClient.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/danmuck/defectctl/internal/faces"
	"github.com/danmuck/defectctl/internal/logging"
	"github.com/danmuck/defectctl/internal/protocol/session"
	"github.com/danmuck/defectctl/internal/segment"
)

var ErrInvalid = errors.New("config: invalid")

// Server is the effective defectd configuration.
type Server struct {
	Addr      string
	Path      string
	AuthToken string
	// AllowedOrigins lists browser origins accepted by the websocket upgrader.
	// Empty allows requests without an Origin header and same-host origins.
	AllowedOrigins []string
	Session        session.Config
	Faces          faces.Config
	Segment        segment.Config
	Log            logging.Overrides
}

func DefaultServer() Server {
	return Server{
		Addr:    "127.0.0.1:9001",
		Path:    "/ws",
		Session: session.DefaultConfig(),
		Faces:   faces.DefaultConfig(),
		Segment: segment.DefaultConfig(),
	}
}

func (c Server) Validate() error {
	if _, _, err := net.SplitHostPort(strings.TrimSpace(c.Addr)); err != nil {
		return fmt.Errorf("%w: server.addr %q: %v", ErrInvalid, c.Addr, err)
	}
	if !strings.HasPrefix(c.Path, "/") || c.Path == "/health" || c.Path == "/metrics" {
		return fmt.Errorf("%w: server.path %q must start with / and not shadow /health or /metrics", ErrInvalid, c.Path)
	}
	if strings.TrimSpace(c.Faces.Extension) == "" {
		return fmt.Errorf("%w: faces.extension must not be empty", ErrInvalid)
	}
	if c.Session.MaxMessageBytes < 16 {
		return fmt.Errorf("%w: server.max_message_bytes must hold an envelope", ErrInvalid)
	}
	if err := c.Segment.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := c.Session.ValidateServerTransport(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Scheme returns ws or wss depending on TLS.
func (c Server) Scheme() string {
	if c.Session.TLS.Enabled {
		return "wss"
	}
	return "ws"
}

// Client is the effective defectctl configuration.
type Client struct {
	URL       string
	AuthToken string
	Session   session.Config
	Log       logging.Overrides
}

func DefaultClient() Client {
	return Client{
		URL:     "ws://127.0.0.1:9001/ws",
		Session: session.DefaultConfig(),
	}
}

func (c Client) Validate() error {
	u, err := url.Parse(strings.TrimSpace(c.URL))
	if err != nil {
		return fmt.Errorf("%w: client.url: %v", ErrInvalid, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: client.url scheme %q must be ws or wss", ErrInvalid, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: client.url %q has no host", ErrInvalid, c.URL)
	}
	if u.Scheme == "wss" != c.Session.TLS.Enabled {
		return fmt.Errorf("%w: client.url scheme %q disagrees with tls.enabled=%t", ErrInvalid, u.Scheme, c.Session.TLS.Enabled)
	}
	if err := c.Session.ValidateClientTransport(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}
