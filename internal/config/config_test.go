package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/edgerpc/internal/protocol/session"
	"github.com/danmuck/edgerpc/internal/testutil/testlog"
	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestTemplatesLoadInEveryFormat(t *testing.T) {
	testlog.Start(t)
	for _, kind := range []string{KindServer, KindClient} {
		for _, ext := range []string{".toml", ".yaml", ".yml"} {
			path := filepath.Join(t.TempDir(), kind+ext)
			if err := WriteTemplate(path, kind, false); err != nil {
				t.Fatalf("write %s%s: %v", kind, ext, err)
			}
			if err := Load(kind, path); err != nil {
				t.Fatalf("load %s%s: %v", kind, ext, err)
			}
			if err := WriteTemplate(path, kind, false); err == nil {
				t.Fatalf("expected refusal to overwrite %s", path)
			}
		}
	}
}

func TestTOMLAndYAMLTemplatesAgree(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	for _, kind := range []string{KindServer, KindClient} {
		tomlPath := filepath.Join(dir, kind+".toml")
		yamlPath := filepath.Join(dir, kind+".yaml")
		if err := WriteTemplate(tomlPath, kind, true); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := WriteTemplate(yamlPath, kind, true); err != nil {
			t.Fatalf("write: %v", err)
		}

		var a, b any
		var errA, errB error
		if kind == KindServer {
			a, errA = LoadServerConfig(tomlPath)
			b, errB = LoadServerConfig(yamlPath)
		} else {
			a, errA = LoadClientConfig(tomlPath)
			b, errB = LoadClientConfig(yamlPath)
		}
		if errA != nil || errB != nil {
			t.Fatalf("load %s: toml=%v yaml=%v", kind, errA, errB)
		}
		if diff := cmp.Diff(a, b); diff != "" {
			t.Fatalf("%s templates disagree (-toml +yaml):\n%s", kind, diff)
		}
	}
}

func TestLoadServerConfigOverlaysDefaults(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, "server.toml", `
tcp_addr = ""
unix_socket = "/tmp/x.sock"
websocket = false

[session]
idle_timeout = "3s"
reply_chunk_size = 128
`)
	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := DefaultServerConfig()
	want.TCPAddr = ""
	want.UnixSocket = "/tmp/x.sock"
	want.WebSocket = false
	want.Session.IdleTimeout = 3 * time.Second
	want.Session.ReplyChunkSize = 128
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadClientConfigJSON5(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, "client.json5", `{
  // local socket
  network: "unix",
  address: "/tmp/edgerpc.sock",
  count: 3,
  session: {
    request_timeout: "250ms",
    backoff: {initial_delay: "10ms", max_delay: "40ms", jitter: false}
  }
}`)
	cfg, err := LoadClientConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Network != "unix" || cfg.Address != "/tmp/edgerpc.sock" || cfg.Count != 3 {
		t.Fatalf("unexpected client config: %+v", cfg)
	}
	if cfg.Interval != time.Second {
		t.Fatalf("expected default interval, got %v", cfg.Interval)
	}
	if cfg.Session.RequestTimeout != 250*time.Millisecond {
		t.Fatalf("unexpected request timeout %v", cfg.Session.RequestTimeout)
	}
	wantBackoff := session.BackoffConfig{
		InitialDelay: 10 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     40 * time.Millisecond,
		Jitter:       false,
	}
	if diff := cmp.Diff(wantBackoff, cfg.Session.Backoff); diff != "" {
		t.Fatalf("backoff mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name    string
		file    string
		content string
		client  bool
	}{
		{"bad duration", "c.toml", `interval = "abc"`, true},
		{"unknown toml key", "s.toml", `listen = ":1"`, false},
		{"unknown yaml key", "s.yaml", "listen: \":1\"\n", false},
		{"bad network", "c.yaml", "network: udp\n", true},
		{"no listener", "s.toml", "tcp_addr = \"\"\nwebsocket = false\n", false},
		{"websocket without admin", "s.toml", "admin_addr = \"\"\n", false},
		{"backoff inverted", "c.toml", "[session.backoff]\ninitial_delay = \"5s\"\nmax_delay = \"1s\"\n", true},
	}
	for _, tc := range cases {
		path := writeConfig(t, tc.file, tc.content)
		var err error
		if tc.client {
			_, err = LoadClientConfig(path)
		} else {
			_, err = LoadServerConfig(path)
		}
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}

	if _, err := LoadServerConfig(writeConfig(t, "s.ini", "x=1")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if err := Load("proxy", "x.toml"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}
