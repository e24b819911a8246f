package config

import (
	"fmt"
	"os"
	"strings"
)

const (
	KindServer = "server"
	KindClient = "client"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindServer:
		return serverTemplate, nil
	case KindClient:
		return clientTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
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

const serverTemplate = `[server]
addr = "127.0.0.1:9001"
path = "/ws"
auth_token = ""
allowed_origins = []
handshake_timeout = "5s"
write_timeout = "30s"
ping_interval = "20s"
dead_after = "60s"
max_message_bytes = 268435472

[tls]
security_mode = "development"
enabled = false
mutual = false
cert_file = ""
key_file = ""
ca_file = ""

[faces]
extension = "tiff"
narrow = false
narrow_suffix = ""

[segment]
backend = "regiongrow"
workers = 1
timeout = "60s"
cache_size = 8
defect_class = "unclassified"
remote_url = ""
tolerance = 24.0
simplify = 1.5

[log]
level = "info"
timestamp = true
`

const clientTemplate = `[client]
url = "ws://127.0.0.1:9001/ws"
auth_token = ""
connect_timeout = "5s"
write_timeout = "30s"
reply_timeout = "90s"
max_attempts = 0
backoff_initial = "250ms"
backoff_max = "5s"

[tls]
security_mode = "development"
enabled = false
insecure_skip_verify = false
ca_file = ""
server_name = ""

[log]
level = "warn"
timestamp = false
`
