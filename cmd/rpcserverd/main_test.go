package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/edgerpc/internal/client"
	"github.com/danmuck/edgerpc/internal/config"
	"github.com/danmuck/edgerpc/internal/server"
	"github.com/danmuck/edgerpc/internal/testutil/testlog"
	"github.com/google/go-cmp/cmp"
)

func TestEndpointsFromConfig(t *testing.T) {
	testlog.Start(t)
	cfg := config.DefaultServerConfig()
	cfg.UnixSocket = "/tmp/rpc.sock"
	want := []server.Endpoint{
		{Network: "tcp", Address: "127.0.0.1:8888"},
		{Network: "unix", Address: "/tmp/rpc.sock"},
	}
	if diff := cmp.Diff(want, endpoints(cfg)); diff != "" {
		t.Fatalf("endpoints mismatch (-want +got):\n%s", diff)
	}

	cfg.TCPAddr = ""
	cfg.UnixSocket = ""
	if got := endpoints(cfg); len(got) != 0 {
		t.Fatalf("expected no endpoints, got %+v", got)
	}
}

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	testlog.Start(t)
	cfg, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatalf("load default: %v", err)
	}
	if cfg.Name == "" {
		t.Fatalf("expected default server config")
	}
	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("explicit missing path must fail")
	}
}

func TestAdminRouterMountsWebSocketRPC(t *testing.T) {
	testlog.Start(t)
	cfg := config.DefaultServerConfig()
	srv, err := server.New(server.Config{Handler: nopHandler{}})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(adminRouter(t.Context(), cfg, srv, ""))
	defer ts.Close()

	c, err := client.New(client.Config{
		Network: client.NetworkWebSocket,
		Address: "ws://" + strings.TrimPrefix(ts.URL, "http://") + "/rpc",
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()
	if err := c.Call(ctx, "anything", nil, nil); err == nil {
		t.Fatalf("expected method not found")
	}

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code %d", resp.StatusCode)
	}
}

func TestRunServesUnixSocketUntilCanceled(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "rpcserverd.sock")
	cfg := config.DefaultServerConfig()
	cfg.TCPAddr = ""
	cfg.UnixSocket = path
	cfg.AdminAddr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, cfg, "")
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(path); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("socket never appeared")
		}
		time.Sleep(10 * time.Millisecond)
	}

	c, err := client.New(client.Config{Network: client.NetworkUnix, Address: path})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	callCtx, callCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer callCancel()
	if err := c.Connect(callCtx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	var got int
	if err := c.Call(callCtx, "subtract", []int{42, 23}, &got); err != nil || got != 19 {
		t.Fatalf("subtract: got %d err %v", got, err)
	}
	_ = c.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("run did not stop")
	}
}

type nopHandler struct{}

func (nopHandler) ReceiveRequest(req *server.Request) { _ = req.ReplyMethodNotFound("") }

func (nopHandler) ReceiveNotification(server.Notification) {}

func TestLoadExampleConfig(t *testing.T) {
	testlog.Start(t)
	cfg, err := loadConfig("ex.config.toml")
	if err != nil {
		t.Fatalf("load example: %v", err)
	}
	if cfg.Name != "rpcserverd.local" || cfg.UnixSocket != "/tmp/edgerpc.sock" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Session.IdleTimeout != 5*time.Minute {
		t.Fatalf("unexpected idle timeout %v", cfg.Session.IdleTimeout)
	}
	if cfg.Session.RequestTimeout != 2*time.Second {
		t.Fatalf("expected default request timeout, got %v", cfg.Session.RequestTimeout)
	}
}

func TestAdminTokenGuardsWebSocketRPC(t *testing.T) {
	testlog.Start(t)
	srv, err := server.New(server.Config{Handler: nopHandler{}})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(adminRouter(t.Context(), config.DefaultServerConfig(), srv, "s3cret"))
	defer ts.Close()
	addr := "ws://" + strings.TrimPrefix(ts.URL, "http://") + "/rpc"

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, tc := range []struct {
		token string
		ok    bool
	}{
		{"", false},
		{"wrong", false},
		{"s3cret", true},
	} {
		c, err := client.New(client.Config{Network: client.NetworkWebSocket, Address: addr, Token: tc.token})
		if err != nil {
			t.Fatalf("new client: %v", err)
		}
		err = c.Connect(ctx)
		if (err == nil) != tc.ok {
			t.Fatalf("token %q: connect err=%v", tc.token, err)
		}
		_ = c.Close()
	}
}
