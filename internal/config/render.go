package config

import (
	"bytes"
	"fmt"
	"time"

	"github.com/danmuck/defectctl/internal/logging"
	"github.com/danmuck/defectctl/internal/logs"
	"github.com/danmuck/defectctl/internal/protocol/session"
	gotoml "github.com/pelletier/go-toml/v2"
)

// RenderServer returns cfg as a complete defectd.toml.
func RenderServer(cfg Server) ([]byte, error) {
	file := serverFile{
		Server: serverSection{
			Addr:             cfg.Addr,
			Path:             cfg.Path,
			AuthToken:        cfg.AuthToken,
			AllowedOrigins:   nonNil(cfg.AllowedOrigins),
			HandshakeTimeout: duration(cfg.Session.HandshakeTimeout),
			WriteTimeout:     duration(cfg.Session.WriteTimeout),
			PingInterval:     duration(cfg.Session.PingInterval),
			DeadAfter:        duration(cfg.Session.DeadAfter),
			MaxMessageBytes:  cfg.Session.MaxMessageBytes,
		},
		TLS: renderTLS(cfg.Session),
		Faces: facesSection{
			Extension:    cfg.Faces.Extension,
			Narrow:       cfg.Faces.Narrow,
			NarrowSuffix: cfg.Faces.NarrowSuffix,
		},
		Segment: segmentSection{
			Backend:     cfg.Segment.Backend,
			Workers:     cfg.Segment.Workers,
			Timeout:     duration(cfg.Segment.Timeout),
			CacheSize:   cfg.Segment.CacheSize,
			DefectClass: cfg.Segment.DefectClass,
			RemoteURL:   cfg.Segment.RemoteURL,
			Tolerance:   cfg.Segment.Tolerance,
			Simplify:    cfg.Segment.Simplify,
		},
		Log: renderLog(cfg.Log),
	}
	return marshal(file)
}

// RenderClient returns cfg as a complete defectctl.toml.
func RenderClient(cfg Client) ([]byte, error) {
	file := clientFile{
		Client: clientSection{
			URL:            cfg.URL,
			AuthToken:      cfg.AuthToken,
			ConnectTimeout: duration(cfg.Session.ConnectTimeout),
			WriteTimeout:   duration(cfg.Session.WriteTimeout),
			ReplyTimeout:   duration(cfg.Session.ReplyTimeout),
			MaxAttempts:    cfg.Session.MaxAttempts,
			BackoffInitial: duration(cfg.Session.Backoff.InitialDelay),
			BackoffMax:     duration(cfg.Session.Backoff.MaxDelay),
		},
		TLS: renderTLS(cfg.Session),
		Log: renderLog(cfg.Log),
	}
	return marshal(file)
}

// CheckStrict decodes data for kind and fails on any key the file layout
// does not declare.
func CheckStrict(kind string, data []byte) error {
	var out any
	switch kind {
	case KindServer:
		out = &serverFile{}
	case KindClient:
		out = &clientFile{}
	default:
		return fmt.Errorf("%w: unknown config kind %q", ErrInvalid, kind)
	}
	dec := gotoml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %s config: %v", ErrInvalid, kind, err)
	}
	return nil
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := gotoml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("render config: %w", err)
	}
	return buf.Bytes(), nil
}

func renderTLS(c session.Config) tlsSection {
	return tlsSection{
		SecurityMode:       string(session.NormalizeSecurityMode(c.SecurityMode)),
		Enabled:            c.TLS.Enabled,
		Mutual:             c.TLS.Mutual,
		InsecureSkipVerify: c.TLS.InsecureSkipVerify,
		CertFile:           c.TLS.CertFile,
		KeyFile:            c.TLS.KeyFile,
		CAFile:             c.TLS.CAFile,
		ServerName:         c.TLS.ServerName,
	}
}

func renderLog(o logging.Overrides) logSection {
	d := logs.DefaultConfig()
	out := logSection{Level: logs.InfoLevel.String(), Timestamp: true, NoColor: d.NoColor}
	if o.Level != nil {
		out.Level = o.Level.String()
	}
	if o.Timestamp != nil {
		out.Timestamp = *o.Timestamp
	}
	if o.NoColor != nil {
		out.NoColor = *o.NoColor
	}
	return out
}

func duration(d time.Duration) string {
	return d.String()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
