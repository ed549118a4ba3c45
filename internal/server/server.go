package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/edgerpc/internal/observability"
	"github.com/danmuck/edgerpc/internal/protocol/session"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	Session session.Config
	Handler Handler
	// Hooks defaults to the Handler when it implements Hooks, else LogHooks.
	Hooks Hooks
}

// Endpoint is one listen address.
type Endpoint struct {
	Network string
	Address string
}

func (e Endpoint) String() string {
	return e.Network + "://" + e.Address
}

type Server struct {
	cfg     Config
	handler Handler
	hooks   Hooks

	mu    sync.Mutex
	conns map[*Conn]struct{}
}

func New(cfg Config) (*Server, error) {
	if cfg.Handler == nil {
		return nil, ErrHandlerRequired
	}
	cfg.Session = cfg.Session.WithDefaults()
	if err := cfg.Session.Validate(); err != nil {
		return nil, err
	}
	hooks := cfg.Hooks
	if hooks == nil {
		if h, ok := cfg.Handler.(Hooks); ok {
			hooks = h
		} else {
			hooks = LogHooks{}
		}
	}
	return &Server{
		cfg:     cfg,
		handler: cfg.Handler,
		hooks:   hooks,
		conns:   make(map[*Conn]struct{}),
	}, nil
}

// Serve accepts connections on ln until ctx is canceled or Accept fails.
// Connections it accepted are closed before it returns.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	log.Info().Str("network", ln.Addr().Network()).Str("addr", ln.Addr().String()).Msg("rpc listening")

	connCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	go func() {
		<-connCtx.Done()
		_ = ln.Close()
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.ServeConn(connCtx, nc)
		}()
	}
}

// ListenAndServe listens on network/addr and serves it. A stale unix socket
// file at addr is removed first.
func (s *Server) ListenAndServe(ctx context.Context, network, addr string) error {
	network = strings.ToLower(strings.TrimSpace(network))
	addr = strings.TrimSpace(addr)
	if network == "unix" {
		if err := removeStaleSocket(addr); err != nil {
			return err
		}
	}
	ln, err := net.Listen(network, addr)
	if err != nil {
		return fmt.Errorf("server: listen %s %s: %w", network, addr, err)
	}
	return s.Serve(ctx, ln)
}

// ListenAndServeAll serves every endpoint concurrently. The first listener
// failure stops the others.
func (s *Server) ListenAndServeAll(ctx context.Context, endpoints []Endpoint) error {
	if len(endpoints) == 0 {
		return errors.New("server: no endpoints")
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, ep := range endpoints {
		g.Go(func() error {
			return s.ListenAndServe(gctx, ep.Network, ep.Address)
		})
	}
	return g.Wait()
}

// ServeConn serves one established connection and blocks until it ends.
func (s *Server) ServeConn(ctx context.Context, nc net.Conn) {
	c := newConn(s, nc)
	s.track(c)
	defer s.untrack(c)

	stop := context.AfterFunc(ctx, func() {
		_ = c.Close()
	})
	defer stop()

	log.Debug().Str("conn", c.id).Str("transport", c.transport).Str("remote", c.RemoteAddr()).Msg("rpc connection opened")
	c.serve()
	log.Debug().Str("conn", c.id).Str("remote", c.RemoteAddr()).Msg("rpc connection closed")
}

func (s *Server) track(c *Conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	observability.ServerConnOpened(c.transport)
}

func (s *Server) untrack(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	observability.ServerConnClosed(c.transport)
}

// ConnInfo describes one open connection.
type ConnInfo struct {
	ID        string `json:"id"`
	Transport string `json:"transport"`
	Remote    string `json:"remote"`
	State     string `json:"state"`
	OpenedAt  string `json:"opened_at"`
}

// Status is the admin view of a server.
type Status struct {
	Connections int        `json:"connections"`
	Conns       []ConnInfo `json:"conns"`
}

func (s *Server) Status() Status {
	s.mu.Lock()
	out := make([]ConnInfo, 0, len(s.conns))
	for c := range s.conns {
		out = append(out, ConnInfo{
			ID:        c.id,
			Transport: c.transport,
			Remote:    c.RemoteAddr(),
			State:     c.State().String(),
			OpenedAt:  c.openedAt.UTC().Format(time.RFC3339),
		})
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return Status{Connections: len(out), Conns: out}
}

func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func removeStaleSocket(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("server: %s exists and is not a socket", path)
	}
	return os.Remove(path)
}
