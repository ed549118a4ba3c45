package main

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/danmuck/edgerpc/internal/arith"
	"github.com/danmuck/edgerpc/internal/config"
	"github.com/danmuck/edgerpc/internal/server"
	"github.com/danmuck/edgerpc/internal/testutil/testlog"
)

func startArithServer(t *testing.T) string {
	t.Helper()
	srv, err := server.New(server.Config{Handler: arith.NewService()})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ln.Addr().String()
}

func TestRunCompletesCount(t *testing.T) {
	testlog.Start(t)
	cfg := config.DefaultClientConfig()
	cfg.Address = startArithServer(t)
	cfg.Count = 3
	cfg.Interval = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := run(ctx, cfg, "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if st.OK != 3 || st.Failures != 0 || st.RPCErrors != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestRunGivesUpAfterMaxReconnectAttempts(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	cfg := config.DefaultClientConfig()
	cfg.Address = addr
	cfg.Count = 1
	cfg.MaxReconnectAttempts = 2
	cfg.Session.Backoff.InitialDelay = time.Millisecond
	cfg.Session.Backoff.MaxDelay = 2 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := run(ctx, cfg, ""); !errors.Is(err, ErrReconnectExhausted) {
		t.Fatalf("expected ErrReconnectExhausted, got %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	testlog.Start(t)
	cfg := config.DefaultClientConfig()
	cfg.Address = startArithServer(t)
	cfg.Interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := run(ctx, cfg, "")
		done <- err
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop")
	}
}

func TestLoadExampleConfig(t *testing.T) {
	testlog.Start(t)
	cfg, err := loadConfig("ex.config.json5")
	if err != nil {
		t.Fatalf("load example: %v", err)
	}
	if cfg.Network != "unix" || cfg.Count != 10 || cfg.MaxReconnectAttempts != 5 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Interval != 500*time.Millisecond || cfg.Session.Backoff.InitialDelay != 250*time.Millisecond {
		t.Fatalf("unexpected timings %+v", cfg)
	}
}
