package server

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler upgrades HTTP requests and serves each socket as a byte
// stream of text messages. Envelopes may span messages. Sockets are closed
// when ctx ends; http.Server.Shutdown does not track hijacked connections.
func (s *Server) WebSocketHandler(ctx context.Context, opts *websocket.AcceptOptions) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, opts)
		if err != nil {
			log.Warn().Str("remote", r.RemoteAddr).Err(err).Msg("rpc websocket upgrade failed")
			return
		}
		ws.SetReadLimit(int64(s.cfg.Session.Limits.MaxValueBytes))
		nc := websocket.NetConn(ctx, ws, websocket.MessageText)
		s.ServeConn(ctx, nc)
	})
}
