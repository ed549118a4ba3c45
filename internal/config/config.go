package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/edgerpc/internal/protocol/session"
	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidConfig     = errors.New("config: invalid")
	ErrUnsupportedFormat = errors.New("config: unsupported file format")
)

// ServerConfig drives rpcserverd.
type ServerConfig struct {
	Name string
	// TCPAddr and UnixSocket are the RPC listeners; an empty value disables one.
	TCPAddr    string
	UnixSocket string
	// AdminAddr serves health, metrics, status and the /rpc WebSocket route.
	AdminAddr string
	WebSocket bool
	LogLevel  string
	Session   session.Config
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Name:      "rpcserverd",
		TCPAddr:   "127.0.0.1:8888",
		AdminAddr: "127.0.0.1:9090",
		WebSocket: true,
		Session:   session.DefaultConfig(),
	}
}

// ClientConfig drives rpcclient.
type ClientConfig struct {
	Network  string
	Address  string
	Interval time.Duration
	// Count bounds the number of calls; zero runs until interrupted.
	Count int
	// MaxReconnectAttempts bounds consecutive failed dials; zero retries forever.
	MaxReconnectAttempts int
	LogLevel             string
	Session              session.Config
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Network:  "tcp",
		Address:  "127.0.0.1:8888",
		Interval: time.Second,
		Session:  session.DefaultConfig(),
	}
}

type backoffFile struct {
	InitialDelay string  `toml:"initial_delay" yaml:"initial_delay" json:"initial_delay"`
	Multiplier   float64 `toml:"multiplier" yaml:"multiplier" json:"multiplier"`
	MaxDelay     string  `toml:"max_delay" yaml:"max_delay" json:"max_delay"`
	Jitter       bool    `toml:"jitter" yaml:"jitter" json:"jitter"`
}

type sessionFile struct {
	RequestTimeout string      `toml:"request_timeout" yaml:"request_timeout" json:"request_timeout"`
	ConnectTimeout string      `toml:"connect_timeout" yaml:"connect_timeout" json:"connect_timeout"`
	WriteTimeout   string      `toml:"write_timeout" yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout    string      `toml:"idle_timeout" yaml:"idle_timeout" json:"idle_timeout"`
	LingerTimeout  string      `toml:"linger_timeout" yaml:"linger_timeout" json:"linger_timeout"`
	ReplyChunkSize int         `toml:"reply_chunk_size" yaml:"reply_chunk_size" json:"reply_chunk_size"`
	ReadBufferSize int         `toml:"read_buffer_size" yaml:"read_buffer_size" json:"read_buffer_size"`
	MaxValueBytes  int         `toml:"max_value_bytes" yaml:"max_value_bytes" json:"max_value_bytes"`
	Backoff        backoffFile `toml:"backoff" yaml:"backoff" json:"backoff"`
}

type serverFile struct {
	Name       string      `toml:"name" yaml:"name" json:"name"`
	TCPAddr    string      `toml:"tcp_addr" yaml:"tcp_addr" json:"tcp_addr"`
	UnixSocket string      `toml:"unix_socket" yaml:"unix_socket" json:"unix_socket"`
	AdminAddr  string      `toml:"admin_addr" yaml:"admin_addr" json:"admin_addr"`
	WebSocket  bool        `toml:"websocket" yaml:"websocket" json:"websocket"`
	LogLevel   string      `toml:"log_level" yaml:"log_level" json:"log_level"`
	Session    sessionFile `toml:"session" yaml:"session" json:"session"`
}

type clientFile struct {
	Network              string      `toml:"network" yaml:"network" json:"network"`
	Address              string      `toml:"address" yaml:"address" json:"address"`
	Interval             string      `toml:"interval" yaml:"interval" json:"interval"`
	Count                int         `toml:"count" yaml:"count" json:"count"`
	MaxReconnectAttempts int         `toml:"max_reconnect_attempts" yaml:"max_reconnect_attempts" json:"max_reconnect_attempts"`
	LogLevel             string      `toml:"log_level" yaml:"log_level" json:"log_level"`
	Session              sessionFile `toml:"session" yaml:"session" json:"session"`
}

// definedFunc reports whether a (nested) key was present in the file.
type definedFunc func(keys ...string) bool

func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	var raw serverFile
	defined, err := decodeFile(path, &raw)
	if err != nil {
		return ServerConfig{}, err
	}

	if defined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if defined("tcp_addr") {
		cfg.TCPAddr = strings.TrimSpace(raw.TCPAddr)
	}
	if defined("unix_socket") {
		cfg.UnixSocket = strings.TrimSpace(raw.UnixSocket)
	}
	if defined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if defined("websocket") {
		cfg.WebSocket = raw.WebSocket
	}
	if defined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if cfg.Session, err = applySession(cfg.Session, raw.Session, defined); err != nil {
		return ServerConfig{}, err
	}

	if err := ValidateServerConfig(cfg); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()
	var raw clientFile
	defined, err := decodeFile(path, &raw)
	if err != nil {
		return ClientConfig{}, err
	}

	if defined("network") {
		cfg.Network = strings.ToLower(strings.TrimSpace(raw.Network))
	}
	if defined("address") {
		cfg.Address = strings.TrimSpace(raw.Address)
	}
	if defined("interval") {
		if cfg.Interval, err = parseDuration("interval", raw.Interval); err != nil {
			return ClientConfig{}, err
		}
	}
	if defined("count") {
		cfg.Count = raw.Count
	}
	if defined("max_reconnect_attempts") {
		cfg.MaxReconnectAttempts = raw.MaxReconnectAttempts
	}
	if defined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if cfg.Session, err = applySession(cfg.Session, raw.Session, defined); err != nil {
		return ClientConfig{}, err
	}

	if err := ValidateClientConfig(cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func ValidateServerConfig(cfg ServerConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("%w: server config missing name", ErrInvalidConfig)
	}
	if cfg.TCPAddr == "" && cfg.UnixSocket == "" && !(cfg.WebSocket && cfg.AdminAddr != "") {
		return fmt.Errorf("%w: server config has no listener", ErrInvalidConfig)
	}
	if cfg.WebSocket && cfg.AdminAddr == "" {
		return fmt.Errorf("%w: websocket requires admin_addr", ErrInvalidConfig)
	}
	return cfg.Session.Validate()
}

func ValidateClientConfig(cfg ClientConfig) error {
	switch cfg.Network {
	case "tcp", "tcp4", "tcp6", "unix", "ws":
	default:
		return fmt.Errorf("%w: unsupported network %q", ErrInvalidConfig, cfg.Network)
	}
	if strings.TrimSpace(cfg.Address) == "" {
		return fmt.Errorf("%w: client config missing address", ErrInvalidConfig)
	}
	if cfg.Interval < 0 || cfg.Count < 0 || cfg.MaxReconnectAttempts < 0 {
		return fmt.Errorf("%w: negative interval, count or reconnect attempts", ErrInvalidConfig)
	}
	return cfg.Session.Validate()
}

func applySession(cfg session.Config, raw sessionFile, defined definedFunc) (session.Config, error) {
	durations := []struct {
		key string
		val string
		dst *time.Duration
	}{
		{"request_timeout", raw.RequestTimeout, &cfg.RequestTimeout},
		{"connect_timeout", raw.ConnectTimeout, &cfg.ConnectTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.WriteTimeout},
		{"idle_timeout", raw.IdleTimeout, &cfg.IdleTimeout},
		{"linger_timeout", raw.LingerTimeout, &cfg.LingerTimeout},
	}
	for _, d := range durations {
		if !defined("session", d.key) {
			continue
		}
		v, err := parseDuration("session."+d.key, d.val)
		if err != nil {
			return session.Config{}, err
		}
		*d.dst = v
	}
	if defined("session", "reply_chunk_size") {
		cfg.ReplyChunkSize = raw.ReplyChunkSize
	}
	if defined("session", "read_buffer_size") {
		cfg.ReadBufferSize = raw.ReadBufferSize
	}
	if defined("session", "max_value_bytes") {
		cfg.Limits.MaxValueBytes = raw.MaxValueBytes
	}

	if defined("session", "backoff", "initial_delay") {
		v, err := parseDuration("session.backoff.initial_delay", raw.Backoff.InitialDelay)
		if err != nil {
			return session.Config{}, err
		}
		cfg.Backoff.InitialDelay = v
	}
	if defined("session", "backoff", "max_delay") {
		v, err := parseDuration("session.backoff.max_delay", raw.Backoff.MaxDelay)
		if err != nil {
			return session.Config{}, err
		}
		cfg.Backoff.MaxDelay = v
	}
	if defined("session", "backoff", "multiplier") {
		cfg.Backoff.Multiplier = raw.Backoff.Multiplier
	}
	if defined("session", "backoff", "jitter") {
		cfg.Backoff.Jitter = raw.Backoff.Jitter
	}
	return cfg.WithDefaults(), nil
}

func parseDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, key, err)
	}
	return d, nil
}

// decodeFile decodes path by extension: .toml, .yaml/.yml, .json/.json5.
func decodeFile(path string, out any) (definedFunc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load failed (%s): %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml", "":
		meta, err := toml.Decode(string(data), out)
		if err != nil {
			return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("%w: unknown keys in %s: %v", ErrInvalidConfig, path, undecoded)
		}
		return meta.IsDefined, nil

	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(out); err != nil {
			return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		var tree map[string]any
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		return treeDefined(tree), nil

	case ".json", ".json5":
		if err := json5.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		var tree map[string]any
		if err := json5.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		return treeDefined(tree), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

func treeDefined(tree map[string]any) definedFunc {
	return func(keys ...string) bool {
		node := tree
		for i, key := range keys {
			v, ok := node[key]
			if !ok {
				return false
			}
			if i == len(keys)-1 {
				return true
			}
			next, ok := v.(map[string]any)
			if !ok {
				return false
			}
			node = next
		}
		return false
	}
}
