package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/defectctl/internal/logging"
	"github.com/danmuck/defectctl/internal/logs"
	"github.com/danmuck/defectctl/internal/protocol/session"
	"github.com/danmuck/defectctl/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestServerTemplateMatchesDefaults(t *testing.T) {
	testlog.Start(t)
	tmpl, err := Template(KindServer)
	require.NoError(t, err)

	cfg, err := LoadServer(writeFile(t, "defectd.toml", tmpl))
	require.NoError(t, err)
	require.NotNil(t, cfg.Log.Level)
	require.Equal(t, logs.InfoLevel, *cfg.Log.Level)

	cfg.Log = logging.Overrides{}
	cfg.AllowedOrigins = nil
	require.Equal(t, DefaultServer(), cfg)
}

func TestClientTemplateMatchesDefaults(t *testing.T) {
	testlog.Start(t)
	tmpl, err := Template(KindClient)
	require.NoError(t, err)

	cfg, err := LoadClient(writeFile(t, "defectctl.toml", tmpl))
	require.NoError(t, err)
	cfg.Log = logging.Overrides{}
	require.Equal(t, DefaultClient(), cfg)
}

func TestLoadServerOverlaysOnlyDefinedKeys(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, "defectd.toml", `
[server]
addr = "0.0.0.0:7000"
ping_interval = "5s"

[faces]
extension = "png"
narrow_suffix = "-n"

[segment]
workers = 3
timeout = "2m"
defect_class = "void"
`)
	cfg, err := LoadServer(path)
	require.NoError(t, err)

	def := DefaultServer()
	require.Equal(t, "0.0.0.0:7000", cfg.Addr)
	require.Equal(t, def.Path, cfg.Path)
	require.Equal(t, 5*time.Second, cfg.Session.PingInterval)
	require.Equal(t, def.Session.DeadAfter, cfg.Session.DeadAfter)
	require.Equal(t, "png", cfg.Faces.Extension)
	require.Equal(t, "-n", cfg.Faces.NarrowSuffix)
	require.Equal(t, 3, cfg.Segment.Workers)
	require.Equal(t, 2*time.Minute, cfg.Segment.Timeout)
	require.Equal(t, "void", cfg.Segment.DefectClass)
	require.Equal(t, def.Segment.Backend, cfg.Segment.Backend)
	require.Nil(t, cfg.Log.Level)
}

func TestLoadServerRejectsBadInput(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "unknown key", body: "[server]\nadress = \"x\"\n", want: "unknown keys server.adress"},
		{name: "bad duration", body: "[server]\nping_interval = \"soon\"\n", want: "server.ping_interval"},
		{name: "bad level", body: "[log]\nlevel = \"loud\"\n", want: "log.level"},
		{name: "bad addr", body: "[server]\naddr = \"nohost\"\n", want: "server.addr"},
		{name: "shadowed path", body: "[server]\npath = \"/metrics\"\n", want: "server.path"},
		{name: "remote without url", body: "[segment]\nbackend = \"remote\"\n", want: "remote_url"},
		{name: "production without tls", body: "[tls]\nsecurity_mode = \"production\"\n", want: "tls"},
		{name: "syntax", body: "[server\n", want: "load server config"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadServer(writeFile(t, "defectd.toml", tc.body))
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadClientValidatesScheme(t *testing.T) {
	testlog.Start(t)
	_, err := LoadClient(writeFile(t, "c.toml", "[client]\nurl = \"http://127.0.0.1:9001/ws\"\n"))
	require.ErrorIs(t, err, ErrInvalid)

	_, err = LoadClient(writeFile(t, "c.toml", "[client]\nurl = \"wss://faces.local/ws\"\n"))
	require.ErrorIs(t, err, ErrInvalid)

	cfg, err := LoadClient(writeFile(t, "c.toml", `
[client]
url = "wss://faces.local/ws"
max_attempts = 4
backoff_initial = "1s"

[tls]
enabled = true
`))
	require.NoError(t, err)
	require.Equal(t, 4, cfg.Session.MaxAttempts)
	require.Equal(t, time.Second, cfg.Session.Backoff.InitialDelay)
	require.True(t, cfg.Session.TLS.Enabled)
}

func TestRenderServerRoundTrips(t *testing.T) {
	testlog.Start(t)
	in := DefaultServer()
	in.Addr = "10.0.0.2:9100"
	in.AllowedOrigins = []string{"https://qa.local"}
	in.Segment.Backend = "remote"
	in.Segment.RemoteURL = "http://sam:8080"
	in.Session.SecurityMode = session.SecurityModeDevelopment

	out, err := RenderServer(in)
	require.NoError(t, err)
	require.NoError(t, CheckStrict(KindServer, out))

	got, err := LoadServer(writeFile(t, "rendered.toml", string(out)))
	require.NoError(t, err)
	got.Log = logging.Overrides{}
	require.Equal(t, in, got)
}

func TestRenderClientRoundTrips(t *testing.T) {
	testlog.Start(t)
	in := DefaultClient()
	in.AuthToken = "secret"
	out, err := RenderClient(in)
	require.NoError(t, err)
	require.NoError(t, CheckStrict(KindClient, out))

	got, err := LoadClient(writeFile(t, "rendered.toml", string(out)))
	require.NoError(t, err)
	got.Log = logging.Overrides{}
	require.Equal(t, in, got)
}

func TestCheckStrict(t *testing.T) {
	testlog.Start(t)
	for _, kind := range []string{KindServer, KindClient} {
		tmpl, err := Template(kind)
		require.NoError(t, err)
		require.NoError(t, CheckStrict(kind, []byte(tmpl)), kind)
	}
	err := CheckStrict(KindServer, []byte("[faces]\nextensions = \"png\"\n"))
	require.ErrorIs(t, err, ErrInvalid)
	require.ErrorIs(t, CheckStrict("mirage", nil), ErrInvalid)
}

func TestWriteTemplateRefusesOverwrite(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "defectd.toml")
	require.NoError(t, WriteTemplate(path, KindServer, false))
	err := WriteTemplate(path, KindServer, false)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "already exists"))
	require.NoError(t, WriteTemplate(path, KindServer, true))

	_, err = Template("seed")
	require.Error(t, err)
}
