package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/edgerpc/internal/observability"
	"github.com/danmuck/edgerpc/internal/protocol"
	"github.com/danmuck/edgerpc/internal/protocol/frame"
	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
)

// ConnState is the dispatch state of one connection.
type ConnState int32

const (
	StateAccepting ConnState = iota
	// StateIgnoring follows a fatal stream error; input is discarded and no
	// replies are written while the connection drains.
	StateIgnoring
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateAccepting:
		return "accepting"
	case StateIgnoring:
		return "ignoring"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type closeWriter interface {
	CloseWrite() error
}

// Conn is one served connection. Its read loop owns the decoder; replies
// may be written from any goroutine.
type Conn struct {
	id        string
	server    *Server
	nc        net.Conn
	transport string
	decoder   *frame.Decoder
	openedAt  time.Time

	state     atomic.Int32
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newConn(s *Server, nc net.Conn) *Conn {
	c := &Conn{
		id:        xid.New().String(),
		server:    s,
		nc:        nc,
		transport: transportOf(nc),
		openedAt:  time.Now(),
	}
	c.decoder = frame.NewDecoder(s.cfg.Session.Limits, c.handleValue, c.handleParseError)
	return c
}

func transportOf(nc net.Conn) string {
	if addr := nc.LocalAddr(); addr != nil {
		return addr.Network()
	}
	return "unknown"
}

func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) Transport() string {
	return c.transport
}

func (c *Conn) RemoteAddr() string {
	if addr := c.nc.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

func (c *Conn) State() ConnState {
	return ConnState(c.state.Load())
}

// Accepting reports whether replies can still be written.
func (c *Conn) Accepting() bool {
	return c.State() == StateAccepting
}

// Close closes the underlying connection immediately.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		err = c.nc.Close()
	})
	return err
}

// serve runs the read loop until the peer goes away, the idle timeout
// fires, or the connection is closed locally.
func (c *Conn) serve() {
	defer c.Close()
	cfg := c.server.cfg.Session
	buf := make([]byte, cfg.ReadBufferSize)
	for {
		if cfg.IdleTimeout > 0 && c.Accepting() {
			_ = c.nc.SetReadDeadline(time.Now().Add(cfg.IdleTimeout))
		}
		n, err := c.nc.Read(buf)
		if n > 0 {
			c.decoder.Feed(buf[:n])
		}
		if err != nil {
			c.logReadEnd(err)
			return
		}
	}
}

func (c *Conn) logReadEnd(err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		return
	case errors.As(err, &netErr) && netErr.Timeout():
		if c.State() == StateAccepting {
			log.Debug().Str("conn", c.id).Str("remote", c.RemoteAddr()).Msg("rpc connection idle timeout")
		}
		return
	default:
		if c.State() == StateAccepting {
			log.Warn().Str("conn", c.id).Str("remote", c.RemoteAddr()).Err(err).Msg("rpc connection read failed")
		}
	}
}

// handleValue classifies one top-level value. It runs on the read loop.
func (c *Conn) handleValue(v any) {
	switch msg := v.(type) {
	case []any:
		observability.RecordServerMessage(c.transport, observability.KindBatchRejected)
		c.writeFatal(protocol.BatchNotSupportedResponse)
		c.decoder.Ignore()
		c.server.hooks.BatchNotSupported(c, v)
	case map[string]any:
		c.dispatch(msg)
	default:
		c.rejectInvalid(v, nil, protocol.MsgInvalidRequest)
	}
}

func (c *Conn) dispatch(msg map[string]any) {
	rawID, isRequest := msg[protocol.KeyID]
	if isRequest && !protocol.IsValidID(rawID) {
		c.rejectInvalid(msg, nil, protocol.MsgInvalidReqID)
		return
	}
	if version, _ := msg[protocol.KeyJSONRPC].(string); version != protocol.Version {
		c.rejectInvalid(msg, rawID, protocol.MsgInvalidReqJSONRPC)
		return
	}
	method, ok := msg[protocol.KeyMethod].(string)
	if !ok {
		c.rejectInvalid(msg, rawID, protocol.MsgInvalidReqMethod)
		return
	}
	params := msg[protocol.KeyParams]
	if !protocol.IsValidParams(params) {
		c.rejectInvalid(msg, rawID, protocol.MsgInvalidReqParams)
		return
	}

	if !isRequest {
		observability.RecordServerMessage(c.transport, observability.KindNotification)
		c.server.handler.ReceiveNotification(Notification{Conn: c, Method: method, Params: params})
		return
	}
	observability.RecordServerMessage(c.transport, observability.KindRequest)
	c.server.handler.ReceiveRequest(&Request{Conn: c, ID: rawID, Method: method, Params: params})
}

// rejectInvalid answers a malformed envelope. The connection stays open.
func (c *Conn) rejectInvalid(raw any, id any, message string) {
	observability.RecordServerMessage(c.transport, observability.KindInvalidRequest)
	payload, err := protocol.EncodeError(id, protocol.CodeInvalidRequest, message)
	if err == nil {
		if err := c.writeReply(payload); err != nil && !errors.Is(err, ErrConnClosed) {
			log.Warn().Str("conn", c.id).Err(err).Msg("rpc invalid request reply failed")
		}
	}
	c.server.hooks.InvalidRequest(c, raw, protocol.CodeInvalidRequest, message)
}

func (c *Conn) handleParseError(raw []byte, err error) {
	observability.RecordServerMessage(c.transport, observability.KindParseError)
	c.writeFatal(protocol.ParseErrorResponse)
	c.server.hooks.ParsingError(c, raw, err)
}

// writeReply writes payload in chunks while the connection is accepting.
func (c *Conn) writeReply(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if !c.Accepting() {
		return ErrConnClosed
	}
	if err := c.writeChunks(payload); err != nil {
		log.Warn().Str("conn", c.id).Err(err).Msg("rpc write failed")
		_ = c.Close()
		return fmt.Errorf("%w: %v", ErrConnClosed, err)
	}
	return nil
}

// writeFatal switches to ignoring, writes the final envelope and closes the
// connection once it has been flushed.
func (c *Conn) writeFatal(payload []byte) {
	c.writeMu.Lock()
	if !c.state.CompareAndSwap(int32(StateAccepting), int32(StateIgnoring)) {
		c.writeMu.Unlock()
		return
	}
	err := c.writeChunks(payload)
	c.writeMu.Unlock()
	if err != nil {
		_ = c.Close()
		return
	}
	c.closeAfterFlush()
}

func (c *Conn) writeChunks(payload []byte) error {
	cfg := c.server.cfg.Session
	chunk := cfg.ReplyChunkSize
	if chunk <= 0 {
		chunk = len(payload)
	}
	for len(payload) > 0 {
		n := min(chunk, len(payload))
		if err := c.nc.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout)); err != nil {
			return err
		}
		if _, err := c.nc.Write(payload[:n]); err != nil {
			return err
		}
		payload = payload[n:]
	}
	return nil
}

// closeAfterFlush half-closes the write side where the transport allows it
// and lets the read loop drain the peer until EOF or the linger deadline.
// Other transports are closed right away.
func (c *Conn) closeAfterFlush() {
	cw, ok := c.nc.(closeWriter)
	if !ok {
		_ = c.Close()
		return
	}
	if err := cw.CloseWrite(); err != nil {
		_ = c.Close()
		return
	}
	_ = c.nc.SetReadDeadline(time.Now().Add(c.server.cfg.Session.LingerTimeout))
}
