package main

import (
	"context"
	"net/http"

	"github.com/danmuck/edgerpc/internal/arith"
	"github.com/danmuck/edgerpc/internal/auth"
	"github.com/danmuck/edgerpc/internal/config"
	"github.com/danmuck/edgerpc/internal/observability"
	"github.com/danmuck/edgerpc/internal/server"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func endpoints(cfg config.ServerConfig) []server.Endpoint {
	var out []server.Endpoint
	if cfg.TCPAddr != "" {
		out = append(out, server.Endpoint{Network: "tcp", Address: cfg.TCPAddr})
	}
	if cfg.UnixSocket != "" {
		out = append(out, server.Endpoint{Network: "unix", Address: cfg.UnixSocket})
	}
	return out
}

// adminRouter guards /status and /rpc when token is non-empty. WebSocket
// sessions on /rpc end with ctx.
func adminRouter(ctx context.Context, cfg config.ServerConfig, srv *server.Server, token string) http.Handler {
	admin := observability.AdminConfig{
		Node:   cfg.Name,
		Status: func() any { return srv.Status() },
	}
	if token != "" {
		admin.Auth = auth.StaticToken{Token: token}
	}
	if cfg.WebSocket {
		admin.RPC = srv.WebSocketHandler(ctx, nil)
	}
	return observability.NewAdminRouter(admin)
}

// run serves every configured listener until ctx ends or one of them fails.
func run(ctx context.Context, cfg config.ServerConfig, token string) error {
	srv, err := server.New(server.Config{
		Session: cfg.Session,
		Handler: arith.NewService(),
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("name", cfg.Name).
		Str("tcp", cfg.TCPAddr).
		Str("unix", cfg.UnixSocket).
		Str("admin", cfg.AdminAddr).
		Bool("websocket", cfg.WebSocket).
		Bool("admin_auth", token != "").
		Msg("rpcserverd starting")

	g, gctx := errgroup.WithContext(ctx)
	if eps := endpoints(cfg); len(eps) > 0 {
		g.Go(func() error {
			return srv.ListenAndServeAll(gctx, eps)
		})
	}
	if cfg.AdminAddr != "" {
		g.Go(func() error {
			return observability.ServeAdmin(gctx, cfg.AdminAddr, adminRouter(gctx, cfg, srv, token))
		})
	}
	return g.Wait()
}
