package logging

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/danmuck/defectctl/internal/logs"
)

const (
	EnvLogLevel     = "DEFECTCTL_LOG_LEVEL"
	EnvLogTimestamp = "DEFECTCTL_LOG_TIMESTAMP"
	EnvLogNoColor   = "DEFECTCTL_LOG_NOCOLOR"
	EnvLogBypass    = "DEFECTCTL_LOG_BYPASS"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
	ProfileCLI
)

// Overrides carries values from a config file; nil fields keep profile defaults.
type Overrides struct {
	Level     *logs.Level
	Timestamp *bool
	NoColor   *bool
}

var configureOnce sync.Once

func ConfigureRuntime(o Overrides) {
	Configure(ProfileRuntime, o)
}

func ConfigureTests() {
	Configure(ProfileTest, Overrides{})
}

func ConfigureCLI() {
	Configure(ProfileCLI, Overrides{})
}

// Configure applies profile defaults, then file overrides, then environment.
// Only the first call in a process has effect.
func Configure(profile Profile, o Overrides) {
	configureOnce.Do(func() {
		cfg := defaultConfig(profile)
		applyOverrides(&cfg, o)
		applyEnvOverrides(&cfg)
		logs.Configure(cfg)
	})
}

func defaultConfig(profile Profile) logs.Config {
	cfg := logs.DefaultConfig()
	switch profile {
	case ProfileTest:
		cfg.Level = logs.DebugLevel
		cfg.Timestamp = false
	case ProfileCLI:
		cfg.Level = logs.WarnLevel
		cfg.Timestamp = false
	default:
		cfg.Level = logs.InfoLevel
		cfg.Timestamp = true
	}
	return cfg
}

func applyOverrides(cfg *logs.Config, o Overrides) {
	if o.Level != nil {
		cfg.Level = *o.Level
	}
	if o.Timestamp != nil {
		cfg.Timestamp = *o.Timestamp
	}
	if o.NoColor != nil {
		cfg.NoColor = *o.NoColor
	}
}

func applyEnvOverrides(cfg *logs.Config) {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogBypass)); ok {
		cfg.Bypass = v
	}
}

// ParseLevel maps a level name to a logs level. ok is false for empty or unknown input.
func ParseLevel(raw string) (logs.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return logs.InfoLevel, false
	case "trace", "diagnostics":
		return logs.TraceLevel, true
	case "debug":
		return logs.DebugLevel, true
	case "info":
		return logs.InfoLevel, true
	case "warn", "warning":
		return logs.WarnLevel, true
	case "error":
		return logs.ErrorLevel, true
	case "disabled", "disable", "off", "none", "inactive":
		return logs.Disabled, true
	default:
		return logs.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
