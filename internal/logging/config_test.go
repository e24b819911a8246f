package logging

import (
	"testing"

	"github.com/danmuck/defectctl/internal/logs"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw    string
		want   logs.Level
		wantOK bool
	}{
		{raw: "", want: logs.InfoLevel, wantOK: false},
		{raw: "debug", want: logs.DebugLevel, wantOK: true},
		{raw: " WARNING ", want: logs.WarnLevel, wantOK: true},
		{raw: "off", want: logs.Disabled, wantOK: true},
		{raw: "diagnostics", want: logs.TraceLevel, wantOK: true},
		{raw: "loud", want: logs.InfoLevel, wantOK: false},
	}
	for _, tc := range tests {
		got, ok := ParseLevel(tc.raw)
		if got != tc.want || ok != tc.wantOK {
			t.Fatalf("ParseLevel(%q)=(%v,%v) want (%v,%v)", tc.raw, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestDefaultConfigProfiles(t *testing.T) {
	if cfg := defaultConfig(ProfileTest); cfg.Level != logs.DebugLevel || cfg.Timestamp {
		t.Fatalf("unexpected test profile: %+v", cfg)
	}
	if cfg := defaultConfig(ProfileCLI); cfg.Level != logs.WarnLevel {
		t.Fatalf("unexpected cli profile: %+v", cfg)
	}
	if cfg := defaultConfig(ProfileRuntime); cfg.Level != logs.InfoLevel || !cfg.Timestamp {
		t.Fatalf("unexpected runtime profile: %+v", cfg)
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogNoColor, "true")
	lvl := logs.DebugLevel
	ts := false
	cfg := defaultConfig(ProfileRuntime)
	applyOverrides(&cfg, Overrides{Level: &lvl, Timestamp: &ts})
	applyEnvOverrides(&cfg)
	if cfg.Level != logs.ErrorLevel {
		t.Fatalf("env level should win, got %v", cfg.Level)
	}
	if cfg.Timestamp {
		t.Fatalf("file timestamp override lost")
	}
	if !cfg.NoColor {
		t.Fatalf("env nocolor override lost")
	}
}
