package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/danmuck/defectctl/internal/auth"
	"github.com/danmuck/defectctl/internal/logs"
	"github.com/danmuck/defectctl/internal/protocol"
	"github.com/danmuck/defectctl/internal/protocol/session"
	"github.com/gorilla/websocket"
)

var (
	ErrClosed = errors.New("client: connection closed")
	// ErrNoReply means the server dropped the request. It answers illegal or
	// failed requests with silence.
	ErrNoReply = errors.New("client: no reply")
)

type Options struct {
	URL       string
	AuthToken string
	Session   session.Config
	Renderer  Renderer
}

// Update is one server message after it was applied to the view, or the
// error that ended the connection.
type Update struct {
	Msg protocol.ServerMessage
	Err error
}

// Client owns the websocket to defectd and feeds server messages into its
// Session.
type Client struct {
	opts Options
	sess *Session
	rng  *rand.Rand

	writeMu sync.Mutex
	mu      sync.Mutex
	ws      *websocket.Conn
	updates chan Update
	done    chan struct{}
}

func New(opts Options) *Client {
	opts.Session = opts.Session.WithDefaults()
	return &Client{
		opts: opts,
		sess: NewSession(opts.Renderer),
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *Client) Session() *Session {
	return c.sess
}

// Connect dials with exponential backoff until it succeeds, the attempt
// budget is spent or ctx ends.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.opts.Session.ValidateClientTransport(); err != nil {
		return err
	}
	var lastErr error
	for attempt := 1; c.opts.Session.ShouldRetry(attempt - 1); attempt++ {
		ws, err := c.dial(ctx)
		if err == nil {
			c.attach(ws)
			logs.Infof("client.Client.Connect connected url=%q attempt=%d", c.opts.URL, attempt)
			return nil
		}
		lastErr = err
		logs.Warnf("client.Client.Connect attempt=%d url=%q err=%v", attempt, c.opts.URL, err)
		if !c.opts.Session.ShouldRetry(attempt) {
			break
		}
		if err := session.SleepBackoff(ctx, c.opts.Session.Backoff, attempt, c.rng); err != nil {
			return fmt.Errorf("client: connect %s: %w (last error: %v)", c.opts.URL, err, lastErr)
		}
	}
	c.sess.Fail(lastErr)
	return fmt.Errorf("client: connect %s: giving up: %w", c.opts.URL, lastErr)
}

// Reconnect drops the connection and all client state, then dials again.
func (c *Client) Reconnect(ctx context.Context) error {
	c.Close()
	c.sess.Reset()
	return c.Connect(ctx)
}

// Close closes the websocket. Pending updates are discarded.
func (c *Client) Close() error {
	c.mu.Lock()
	ws, done := c.ws, c.done
	c.ws = nil
	c.mu.Unlock()
	if ws == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()
	err := ws.Close()
	<-done
	return err
}

// Updates delivers applied server messages in arrival order. The channel is
// replaced on every connect.
func (c *Client) Updates() <-chan Update {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updates
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	tlsCfg, err := c.opts.Session.ClientTLSConfig(c.opts.URL)
	if err != nil {
		return nil, err
	}
	d := websocket.Dialer{
		HandshakeTimeout: c.opts.Session.HandshakeTimeout,
		TLSClientConfig:  tlsCfg,
	}
	header := http.Header{}
	auth.SetBearer(header, c.opts.AuthToken)

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.Session.ConnectTimeout)
	defer cancel()
	ws, resp, err := d.DialContext(dialCtx, c.opts.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		return nil, err
	}
	ws.SetReadLimit(c.opts.Session.MaxMessageBytes)
	return ws, nil
}

func (c *Client) attach(ws *websocket.Conn) {
	updates := make(chan Update, 16)
	done := make(chan struct{})
	c.mu.Lock()
	c.ws, c.updates, c.done = ws, updates, done
	c.mu.Unlock()
	c.sess.Opened()
	go c.readLoop(ws, updates, done)
}

func (c *Client) readLoop(ws *websocket.Conn, updates chan<- Update, done chan<- struct{}) {
	defer close(done)
	defer close(updates)
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			c.sess.Fail(err)
			c.publish(updates, Update{Err: err})
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		msg, err := protocol.DecodeServer(data)
		if err == nil {
			err = c.sess.Apply(msg)
		}
		if err != nil {
			c.sess.Fail(err)
			c.publish(updates, Update{Err: err})
			_ = ws.Close()
			return
		}
		c.publish(updates, Update{Msg: msg})
	}
}

func (c *Client) publish(updates chan<- Update, u Update) {
	select {
	case updates <- u:
	default:
		logs.Warnf("client.readLoop update dropped msg=%T err=%v", u.Msg, u.Err)
	}
}

// Send encodes msg and writes it as one binary message.
func (c *Client) Send(msg protocol.ClientMessage) error {
	b, err := protocol.Marshal(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(c.opts.Session.WriteTimeout))
	if err := ws.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return fmt.Errorf("client: send %s: %w", protocol.KindName(msg.Kind()), err)
	}
	return nil
}

// Do runs one gesture against the session and sends the resulting message.
func (c *Client) Do(gesture func(*Session) (protocol.ClientMessage, error)) error {
	msg, err := gesture(c.sess)
	if err != nil {
		return err
	}
	return c.Send(msg)
}

// Request sends the gesture's message and waits for its reply. A request the
// server drops ends in ErrNoReply after Session.ReplyTimeout.
func (c *Client) Request(ctx context.Context, gesture func(*Session) (protocol.ClientMessage, error)) (protocol.ServerMessage, error) {
	updates := c.Updates()
	if updates == nil {
		return nil, ErrClosed
	}
	msg, err := gesture(c.sess)
	if err != nil {
		return nil, err
	}
	want := replyKind(msg.Kind())
	if err := c.Send(msg); err != nil {
		return nil, err
	}

	timer := time.NewTimer(c.opts.Session.ReplyTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			expired := c.sess.ExpirePending(time.Now(), c.opts.Session.ReplyTimeout)
			return nil, fmt.Errorf("%w: %s after %s (%d expired)", ErrNoReply, protocol.KindName(msg.Kind()), c.opts.Session.ReplyTimeout, len(expired))
		case u, ok := <-updates:
			if !ok {
				return nil, ErrClosed
			}
			if u.Err != nil {
				return nil, u.Err
			}
			if u.Msg.Kind() == want {
				return u.Msg, nil
			}
		}
	}
}
