package client

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/danmuck/edgerpc/internal/auth"
	"github.com/danmuck/edgerpc/internal/observability"
	"github.com/danmuck/edgerpc/internal/protocol"
	"github.com/danmuck/edgerpc/internal/protocol/frame"
	"github.com/danmuck/edgerpc/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

const (
	NetworkTCP       = "tcp"
	NetworkUnix      = "unix"
	NetworkWebSocket = "ws"
)

// maxIDAttempts bounds regeneration when a fresh id collides with a pending one.
const maxIDAttempts = 4

type Config struct {
	// Network is tcp (default), unix, or ws. For ws, Address is a ws:// or
	// wss:// URL.
	Network string
	Address string
	Session session.Config
	Hooks   Hooks
	// Rand feeds request id generation. Defaults to crypto/rand.
	Rand io.Reader
	// Token is sent as a bearer token on the ws upgrade request.
	Token string
}

func DefaultConfig() Config {
	return Config{
		Network: NetworkTCP,
		Session: session.DefaultConfig(),
	}
}

// Client owns at most one live connection at a time. It is safe for
// concurrent use.
type Client struct {
	cfg   Config
	hooks Hooks

	idMu sync.Mutex
	mu   sync.Mutex
	link *link
}

func New(cfg Config) (*Client, error) {
	cfg.Network = strings.ToLower(strings.TrimSpace(cfg.Network))
	if cfg.Network == "" {
		cfg.Network = NetworkTCP
	}
	switch cfg.Network {
	case NetworkTCP, "tcp4", "tcp6", NetworkUnix, NetworkWebSocket:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedNetwork, cfg.Network)
	}
	cfg.Address = strings.TrimSpace(cfg.Address)
	if cfg.Address == "" {
		return nil, ErrAddressRequired
	}
	cfg.Session = cfg.Session.WithDefaults()
	if err := cfg.Session.Validate(); err != nil {
		return nil, err
	}
	if cfg.Hooks == nil {
		cfg.Hooks = NopHooks{}
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Reader
	}
	return &Client{cfg: cfg, hooks: cfg.Hooks}, nil
}

func (c *Client) Network() string {
	return c.cfg.Network
}

func (c *Client) Address() string {
	return c.cfg.Address
}

// Connect dials the configured address. It is a no-op while a connection
// is already live.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.link != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		log.Warn().Str("network", c.cfg.Network).Str("addr", c.cfg.Address).Err(err).Msg("client connect failed")
		c.hooks.ConnectionFailed(c, err)
		return fmt.Errorf("client: connect %s %s: %w", c.cfg.Network, c.cfg.Address, err)
	}

	l := newLink(c, conn)
	c.mu.Lock()
	if c.link != nil {
		// Lost a race with a concurrent Connect.
		c.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	c.link = l
	c.mu.Unlock()

	go l.readLoop()
	log.Debug().Str("network", c.cfg.Network).Str("addr", c.cfg.Address).Msg("client connected")
	c.hooks.Ready(c)
	return nil
}

// Reconnect drops the current connection, canceling its pending calls, and
// dials the original address once.
func (c *Client) Reconnect(ctx context.Context) error {
	if l := c.currentLink(); l != nil {
		l.teardown(nil, ReasonConnectionClosed)
	}
	return c.Connect(ctx)
}

// Close terminates the connection and cancels every pending call.
func (c *Client) Close() error {
	if l := c.currentLink(); l != nil {
		l.teardown(nil, ReasonConnectionClosed)
	}
	return nil
}

func (c *Client) Connected() bool {
	return c.currentLink() != nil
}

func (c *Client) Pending() []PendingRequest {
	l := c.currentLink()
	if l == nil {
		return []PendingRequest{}
	}
	return l.pending.snapshot()
}

func (c *Client) PendingCount() int {
	l := c.currentLink()
	if l == nil {
		return 0
	}
	return l.pending.len()
}

// SendRequest writes one request and returns its handle. The handle is
// always non-nil; failures before the request reaches the wire resolve it
// immediately.
func (c *Client) SendRequest(method string, params any) *Call {
	timeout := c.cfg.Session.RequestTimeout

	l := c.currentLink()
	if l == nil {
		call := newCall("", method, timeout)
		c.finish(call, nil, ErrNotConnected)
		return call
	}

	call, err := c.register(l, method, timeout)
	if err != nil {
		call = newCall("", method, timeout)
		c.finish(call, nil, err)
		return call
	}

	payload, err := protocol.EncodeRequest(call.id, method, params)
	if err != nil {
		if taken, ok := l.takePending(call.id); ok {
			c.finish(taken, nil, err)
		}
		return call
	}

	call.armTimer(func() {
		if taken, ok := l.takePending(call.id); ok {
			log.Debug().Str("id", taken.id).Str("method", taken.method).Dur("timeout", taken.timeout).Msg("client request timed out")
			c.finish(taken, nil, fmt.Errorf("%w: id=%s method=%s", ErrRequestTimeout, taken.id, taken.method))
		}
	})

	if err := l.write(payload); err != nil {
		if taken, ok := l.takePending(call.id); ok {
			c.finish(taken, nil, fmt.Errorf("client: write request: %w", err))
		}
		l.teardown(err, ReasonConnectionClosed)
	}
	return call
}

// Notify writes a notification. No response is expected.
func (c *Client) Notify(method string, params any) error {
	l := c.currentLink()
	if l == nil {
		return ErrNotConnected
	}
	payload, err := protocol.EncodeNotification(method, params)
	if err != nil {
		return err
	}
	if err := l.write(payload); err != nil {
		l.teardown(err, ReasonConnectionClosed)
		return fmt.Errorf("client: write notification: %w", err)
	}
	return nil
}

// Call sends a request and waits for it. On success the result is decoded
// into out when out is non-nil.
func (c *Client) Call(ctx context.Context, method string, params any, out any) error {
	result, err := c.SendRequest(method, params).Wait(ctx)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("client: re-encode result: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("client: decode result: %w", err)
	}
	return nil
}

func (c *Client) currentLink() *link {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link
}

func (c *Client) register(l *link, method string, timeout time.Duration) (*Call, error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := c.newID()
		if err != nil {
			return nil, err
		}
		call := newCall(id, method, timeout)
		if l.addPending(call) {
			return call, nil
		}
	}
	return nil, ErrIDExhausted
}

func (c *Client) newID() (string, error) {
	c.idMu.Lock()
	defer c.idMu.Unlock()
	return protocol.NewRequestID(c.cfg.Rand)
}

// finish resolves call and records its outcome.
func (c *Client) finish(call *Call, value any, err error) {
	if !call.resolve(value, err) {
		return
	}
	observability.RecordClientCall(outcomeOf(err), time.Since(call.createdAt))
}

func outcomeOf(err error) string {
	var rpcErr *protocol.ErrorObject
	switch {
	case err == nil:
		return observability.OutcomeSuccess
	case errors.As(err, &rpcErr):
		return observability.OutcomeRPCError
	case errors.Is(err, ErrInvalidResponse):
		return observability.OutcomeInvalidResponse
	case errors.Is(err, ErrRequestTimeout):
		return observability.OutcomeTimeout
	case errors.Is(err, ErrCanceled):
		return observability.OutcomeCanceled
	default:
		return observability.OutcomeSendError
	}
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.Session.ConnectTimeout)
	defer cancel()

	if c.cfg.Network == NetworkWebSocket {
		opts := &websocket.DialOptions{HTTPHeader: auth.BearerHeader(c.cfg.Token)}
		ws, _, err := websocket.Dial(dialCtx, c.cfg.Address, opts)
		if err != nil {
			return nil, err
		}
		ws.SetReadLimit(int64(c.cfg.Session.Limits.MaxValueBytes))
		return websocket.NetConn(context.Background(), ws, websocket.MessageText), nil
	}

	dialer := net.Dialer{}
	return dialer.DialContext(dialCtx, c.cfg.Network, c.cfg.Address)
}

// link is one live connection and the state it owns.
type link struct {
	client  *Client
	conn    net.Conn
	pending *pendingTable
	decoder *frame.Decoder

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func newLink(c *Client, conn net.Conn) *link {
	l := &link{
		client:  c,
		conn:    conn,
		pending: newPendingTable(),
		done:    make(chan struct{}),
	}
	l.decoder = frame.NewDecoder(c.cfg.Session.Limits, l.handleValue, l.handleParseError)
	return l
}

func (l *link) addPending(call *Call) bool {
	if !l.pending.add(call) {
		return false
	}
	observability.AddClientPending(1)
	return true
}

func (l *link) takePending(id string) (*Call, bool) {
	call, ok := l.pending.take(id)
	if ok {
		observability.AddClientPending(-1)
	}
	return call, ok
}

func (l *link) write(payload []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	select {
	case <-l.done:
		return fmt.Errorf("%w: %s", ErrCanceled, ReasonConnectionClosed)
	default:
	}
	if err := l.conn.SetWriteDeadline(time.Now().Add(l.client.cfg.Session.WriteTimeout)); err != nil {
		return err
	}
	_, err := l.conn.Write(payload)
	return err
}

func (l *link) readLoop() {
	buf := make([]byte, l.client.cfg.Session.ReadBufferSize)
	for {
		n, err := l.conn.Read(buf)
		if n > 0 {
			l.decoder.Feed(buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				err = nil
			}
			l.teardown(err, ReasonConnectionClosed)
			return
		}
	}
}

// handleValue matches one response against the pending table. Anything that
// cannot belong to a request issued here is dropped.
func (l *link) handleValue(v any) {
	msg, ok := v.(map[string]any)
	if !ok {
		log.Debug().Str("addr", l.client.cfg.Address).Msg("client ignored non-object value")
		return
	}
	id, ok := msg[protocol.KeyID].(string)
	if !ok {
		return
	}
	call, ok := l.takePending(id)
	if !ok {
		log.Debug().Str("id", id).Msg("client ignored response for unknown id")
		return
	}
	value, err := interpretResponse(msg)
	l.client.finish(call, value, err)
}

func (l *link) handleParseError(raw []byte, err error) {
	log.Warn().Str("addr", l.client.cfg.Address).Err(err).Msg("client response parsing error")
	l.client.hooks.ParsingError(l.client, raw, err)
	l.teardown(err, ReasonParsingError)
}

// teardown closes the connection and cancels every pending call. It runs
// once per connection no matter how many paths reach it.
func (l *link) teardown(cause error, reason string) {
	l.closeOnce.Do(func() {
		close(l.done)
		_ = l.conn.Close()

		c := l.client
		c.mu.Lock()
		if c.link == l {
			c.link = nil
		}
		c.mu.Unlock()

		calls := l.pending.drain()
		if len(calls) > 0 {
			observability.AddClientPending(-len(calls))
		}
		cancelErr := fmt.Errorf("%w: %s", ErrCanceled, reason)
		for _, call := range calls {
			c.finish(call, nil, cancelErr)
		}

		log.Debug().
			Str("addr", c.cfg.Address).
			Str("reason", reason).
			Int("canceled", len(calls)).
			AnErr("cause", cause).
			Msg("client connection terminated")
		c.hooks.ConnectionTerminated(c, cause)
	})
}

// interpretResponse classifies a matched response envelope.
func interpretResponse(msg map[string]any) (any, error) {
	if version, _ := msg[protocol.KeyJSONRPC].(string); version != protocol.Version {
		return nil, fmt.Errorf(`%w: doesn't include "jsonrpc": "2.0"`, ErrInvalidResponse)
	}
	if result, ok := msg[protocol.KeyResult]; ok {
		return result, nil
	}
	raw, ok := msg[protocol.KeyError]
	if !ok {
		return nil, fmt.Errorf(`%w: not valid "result" or "error"`, ErrInvalidResponse)
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf(`%w: "error" is not a valid object`, ErrInvalidResponse)
	}
	code, codeOK := errorCode(obj[protocol.KeyCode])
	message, msgOK := obj[protocol.KeyMessage].(string)
	if !codeOK || !msgOK {
		return nil, fmt.Errorf(`%w: "error" is not a valid object`, ErrInvalidResponse)
	}
	return nil, &protocol.ErrorObject{
		Code:    code,
		Message: message,
		Data:    obj["data"],
	}
}

func errorCode(v any) (int, bool) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	code, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return int(code), true
}
