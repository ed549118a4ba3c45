package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	KindServer = "server"
	KindClient = "client"
)

// Template returns the starter config for kind in the format implied by ext
// (".toml", ".yaml" or ".yml").
func Template(kind, ext string) (string, error) {
	format := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if format == "yml" {
		format = "yaml"
	}
	key := strings.ToLower(strings.TrimSpace(kind)) + "." + format
	switch key {
	case "server.toml":
		return serverTemplateTOML, nil
	case "server.yaml":
		return serverTemplateYAML, nil
	case "client.toml":
		return clientTemplateTOML, nil
	case "client.yaml":
		return clientTemplateYAML, nil
	default:
		return "", fmt.Errorf("unknown config kind/format: %s (%s)", kind, ext)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind, filepath.Ext(path))
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

// Load validates path as a config of the given kind.
func Load(kind, path string) error {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindServer:
		_, err := LoadServerConfig(path)
		return err
	case KindClient:
		_, err := LoadClientConfig(path)
		return err
	default:
		return fmt.Errorf("unknown config kind: %s", kind)
	}
}

const serverTemplateTOML = `name = "rpcserverd"
tcp_addr = "127.0.0.1:8888"
unix_socket = "/tmp/edgerpc.sock"
admin_addr = "127.0.0.1:9090"
websocket = true
log_level = "info"

[session]
idle_timeout = "30s"
linger_timeout = "2s"
write_timeout = "15s"
reply_chunk_size = 65536
read_buffer_size = 32768
max_value_bytes = 8388608
`

const serverTemplateYAML = `name: rpcserverd
tcp_addr: 127.0.0.1:8888
unix_socket: /tmp/edgerpc.sock
admin_addr: 127.0.0.1:9090
websocket: true
log_level: info
session:
  idle_timeout: 30s
  linger_timeout: 2s
  write_timeout: 15s
  reply_chunk_size: 65536
  read_buffer_size: 32768
  max_value_bytes: 8388608
`

const clientTemplateTOML = `network = "tcp"
address = "127.0.0.1:8888"
interval = "1s"
count = 0
max_reconnect_attempts = 0
log_level = "info"

[session]
request_timeout = "2s"
connect_timeout = "5s"

[session.backoff]
initial_delay = "500ms"
multiplier = 2.0
max_delay = "10s"
jitter = true
`

const clientTemplateYAML = `network: tcp
address: 127.0.0.1:8888
interval: 1s
count: 0
max_reconnect_attempts: 0
log_level: info
session:
  request_timeout: 2s
  connect_timeout: 5s
  backoff:
    initial_delay: 500ms
    multiplier: 2.0
    max_delay: 10s
    jitter: true
`
