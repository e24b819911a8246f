package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/defectctl/internal/logging"
	"github.com/danmuck/defectctl/internal/protocol/session"
)

// serverFile is the on-disk layout of defectd.toml.
type serverFile struct {
	Server  serverSection  `toml:"server"`
	TLS     tlsSection     `toml:"tls"`
	Faces   facesSection   `toml:"faces"`
	Segment segmentSection `toml:"segment"`
	Log     logSection     `toml:"log"`
}

// clientFile is the on-disk layout of defectctl.toml.
type clientFile struct {
	Client clientSection `toml:"client"`
	TLS    tlsSection    `toml:"tls"`
	Log    logSection    `toml:"log"`
}

type serverSection struct {
	Addr             string   `toml:"addr"`
	Path             string   `toml:"path"`
	AuthToken        string   `toml:"auth_token"`
	AllowedOrigins   []string `toml:"allowed_origins"`
	HandshakeTimeout string   `toml:"handshake_timeout"`
	WriteTimeout     string   `toml:"write_timeout"`
	PingInterval     string   `toml:"ping_interval"`
	DeadAfter        string   `toml:"dead_after"`
	MaxMessageBytes  int64    `toml:"max_message_bytes"`
}

type clientSection struct {
	URL            string `toml:"url"`
	AuthToken      string `toml:"auth_token"`
	ConnectTimeout string `toml:"connect_timeout"`
	WriteTimeout   string `toml:"write_timeout"`
	ReplyTimeout   string `toml:"reply_timeout"`
	MaxAttempts    int    `toml:"max_attempts"`
	BackoffInitial string `toml:"backoff_initial"`
	BackoffMax     string `toml:"backoff_max"`
}

type tlsSection struct {
	SecurityMode       string `toml:"security_mode"`
	Enabled            bool   `toml:"enabled"`
	Mutual             bool   `toml:"mutual"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
	CertFile           string `toml:"cert_file"`
	KeyFile            string `toml:"key_file"`
	CAFile             string `toml:"ca_file"`
	ServerName         string `toml:"server_name"`
}

type facesSection struct {
	Extension    string `toml:"extension"`
	Narrow       bool   `toml:"narrow"`
	NarrowSuffix string `toml:"narrow_suffix"`
}

type segmentSection struct {
	Backend     string  `toml:"backend"`
	Workers     int     `toml:"workers"`
	Timeout     string  `toml:"timeout"`
	CacheSize   int     `toml:"cache_size"`
	DefectClass string  `toml:"defect_class"`
	RemoteURL   string  `toml:"remote_url"`
	Tolerance   float64 `toml:"tolerance"`
	Simplify    float64 `toml:"simplify"`
}

type logSection struct {
	Level     string `toml:"level"`
	Timestamp bool   `toml:"timestamp"`
	NoColor   bool   `toml:"no_color"`
}

// LoadServer reads path and overlays every defined key on DefaultServer.
// Unknown keys are an error.
func LoadServer(path string) (Server, error) {
	cfg := DefaultServer()
	var raw serverFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Server{}, fmt.Errorf("load server config: %w", err)
	}
	if err := undecoded(meta); err != nil {
		return Server{}, fmt.Errorf("load server config %s: %w", path, err)
	}

	o := overlay{meta: meta}
	o.str(&cfg.Addr, raw.Server.Addr, "server", "addr")
	o.str(&cfg.Path, raw.Server.Path, "server", "path")
	o.str(&cfg.AuthToken, raw.Server.AuthToken, "server", "auth_token")
	if meta.IsDefined("server", "allowed_origins") {
		cfg.AllowedOrigins = append([]string(nil), raw.Server.AllowedOrigins...)
	}
	o.dur(&cfg.Session.HandshakeTimeout, raw.Server.HandshakeTimeout, "server", "handshake_timeout")
	o.dur(&cfg.Session.WriteTimeout, raw.Server.WriteTimeout, "server", "write_timeout")
	o.dur(&cfg.Session.PingInterval, raw.Server.PingInterval, "server", "ping_interval")
	o.dur(&cfg.Session.DeadAfter, raw.Server.DeadAfter, "server", "dead_after")
	if meta.IsDefined("server", "max_message_bytes") {
		cfg.Session.MaxMessageBytes = raw.Server.MaxMessageBytes
	}

	o.tls(&cfg.Session, raw.TLS)

	o.str(&cfg.Faces.Extension, raw.Faces.Extension, "faces", "extension")
	o.flag(&cfg.Faces.Narrow, raw.Faces.Narrow, "faces", "narrow")
	o.str(&cfg.Faces.NarrowSuffix, raw.Faces.NarrowSuffix, "faces", "narrow_suffix")

	o.str(&cfg.Segment.Backend, raw.Segment.Backend, "segment", "backend")
	o.num(&cfg.Segment.Workers, raw.Segment.Workers, "segment", "workers")
	o.dur(&cfg.Segment.Timeout, raw.Segment.Timeout, "segment", "timeout")
	o.num(&cfg.Segment.CacheSize, raw.Segment.CacheSize, "segment", "cache_size")
	o.str(&cfg.Segment.DefectClass, raw.Segment.DefectClass, "segment", "defect_class")
	o.str(&cfg.Segment.RemoteURL, raw.Segment.RemoteURL, "segment", "remote_url")
	if meta.IsDefined("segment", "tolerance") {
		cfg.Segment.Tolerance = raw.Segment.Tolerance
	}
	if meta.IsDefined("segment", "simplify") {
		cfg.Segment.Simplify = raw.Segment.Simplify
	}

	o.log(&cfg.Log, raw.Log)

	if o.err != nil {
		return Server{}, fmt.Errorf("load server config %s: %w", path, o.err)
	}
	cfg.Session = cfg.Session.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Server{}, fmt.Errorf("load server config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadClient reads path and overlays every defined key on DefaultClient.
func LoadClient(path string) (Client, error) {
	cfg := DefaultClient()
	var raw clientFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Client{}, fmt.Errorf("load client config: %w", err)
	}
	if err := undecoded(meta); err != nil {
		return Client{}, fmt.Errorf("load client config %s: %w", path, err)
	}

	o := overlay{meta: meta}
	o.str(&cfg.URL, raw.Client.URL, "client", "url")
	o.str(&cfg.AuthToken, raw.Client.AuthToken, "client", "auth_token")
	o.dur(&cfg.Session.ConnectTimeout, raw.Client.ConnectTimeout, "client", "connect_timeout")
	o.dur(&cfg.Session.WriteTimeout, raw.Client.WriteTimeout, "client", "write_timeout")
	o.dur(&cfg.Session.ReplyTimeout, raw.Client.ReplyTimeout, "client", "reply_timeout")
	o.num(&cfg.Session.MaxAttempts, raw.Client.MaxAttempts, "client", "max_attempts")
	o.dur(&cfg.Session.Backoff.InitialDelay, raw.Client.BackoffInitial, "client", "backoff_initial")
	o.dur(&cfg.Session.Backoff.MaxDelay, raw.Client.BackoffMax, "client", "backoff_max")
	o.tls(&cfg.Session, raw.TLS)
	o.log(&cfg.Log, raw.Log)

	if o.err != nil {
		return Client{}, fmt.Errorf("load client config %s: %w", path, o.err)
	}
	cfg.Session = cfg.Session.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Client{}, fmt.Errorf("load client config %s: %w", path, err)
	}
	return cfg, nil
}

func undecoded(meta toml.MetaData) error {
	keys := meta.Undecoded()
	if len(keys) == 0 {
		return nil
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.String()
	}
	return fmt.Errorf("%w: unknown keys %s", ErrInvalid, strings.Join(names, ", "))
}

// overlay copies defined keys onto a config and keeps the first parse error.
type overlay struct {
	meta toml.MetaData
	err  error
}

func (o *overlay) str(dst *string, v string, key ...string) {
	if o.meta.IsDefined(key...) {
		*dst = strings.TrimSpace(v)
	}
}

func (o *overlay) flag(dst *bool, v bool, key ...string) {
	if o.meta.IsDefined(key...) {
		*dst = v
	}
}

func (o *overlay) num(dst *int, v int, key ...string) {
	if o.meta.IsDefined(key...) {
		*dst = v
	}
}

func (o *overlay) dur(dst *time.Duration, v string, key ...string) {
	if !o.meta.IsDefined(key...) || o.err != nil {
		return
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		o.err = fmt.Errorf("%w: %s: %v", ErrInvalid, strings.Join(key, "."), err)
		return
	}
	*dst = d
}

func (o *overlay) tls(dst *session.Config, raw tlsSection) {
	if o.meta.IsDefined("tls", "security_mode") {
		dst.SecurityMode = session.SecurityMode(strings.TrimSpace(raw.SecurityMode))
	}
	o.flag(&dst.TLS.Enabled, raw.Enabled, "tls", "enabled")
	o.flag(&dst.TLS.Mutual, raw.Mutual, "tls", "mutual")
	o.flag(&dst.TLS.InsecureSkipVerify, raw.InsecureSkipVerify, "tls", "insecure_skip_verify")
	o.str(&dst.TLS.CertFile, raw.CertFile, "tls", "cert_file")
	o.str(&dst.TLS.KeyFile, raw.KeyFile, "tls", "key_file")
	o.str(&dst.TLS.CAFile, raw.CAFile, "tls", "ca_file")
	o.str(&dst.TLS.ServerName, raw.ServerName, "tls", "server_name")
}

func (o *overlay) log(dst *logging.Overrides, raw logSection) {
	if o.meta.IsDefined("log", "level") && o.err == nil {
		lvl, ok := logging.ParseLevel(raw.Level)
		if !ok {
			o.err = fmt.Errorf("%w: log.level %q", ErrInvalid, raw.Level)
			return
		}
		dst.Level = &lvl
	}
	if o.meta.IsDefined("log", "timestamp") {
		v := raw.Timestamp
		dst.Timestamp = &v
	}
	if o.meta.IsDefined("log", "no_color") {
		v := raw.NoColor
		dst.NoColor = &v
	}
}
