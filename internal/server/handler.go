package server

import (
	"github.com/rs/zerolog/log"
)

// Handler receives validated envelopes. Both methods run on the
// connection's read goroutine; a Request may be replied to later from any
// goroutine.
type Handler interface {
	ReceiveRequest(req *Request)
	ReceiveNotification(n Notification)
}

// Notification is a validated envelope without an id.
type Notification struct {
	Conn   *Conn
	Method string
	Params any
}

// Hooks observes rejected input. A Handler that also implements Hooks is
// used as the hooks when Config.Hooks is nil.
type Hooks interface {
	// ParsingError fires after the parse error response was written and
	// the connection was scheduled to close.
	ParsingError(conn *Conn, raw []byte, err error)
	// BatchNotSupported fires after an array was rejected.
	BatchNotSupported(conn *Conn, raw any)
	// InvalidRequest fires for envelopes that failed validation. The
	// connection stays open.
	InvalidRequest(conn *Conn, raw any, code int, message string)
}

// LogHooks is the default Hooks implementation.
type LogHooks struct{}

func (LogHooks) ParsingError(conn *Conn, raw []byte, err error) {
	log.Warn().
		Str("conn", conn.ID()).
		Str("remote", conn.RemoteAddr()).
		Int("bytes", len(raw)).
		Err(err).
		Msg("rpc parsing error")
}

func (LogHooks) BatchNotSupported(conn *Conn, _ any) {
	log.Warn().
		Str("conn", conn.ID()).
		Str("remote", conn.RemoteAddr()).
		Msg("rpc batch request rejected")
}

func (LogHooks) InvalidRequest(conn *Conn, _ any, code int, message string) {
	log.Debug().
		Str("conn", conn.ID()).
		Int("code", code).
		Str("message", message).
		Msg("rpc invalid request")
}
