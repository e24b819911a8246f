package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/defectctl/internal/config"
	"github.com/danmuck/defectctl/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaultsAndOverride(t *testing.T) {
	testlog.Start(t)
	cfg, err := loadConfig("", "")
	require.NoError(t, err)
	require.Equal(t, config.DefaultServer(), cfg)

	cfg, err = loadConfig("", "0.0.0.0:9100")
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9100", cfg.Addr)

	_, err = loadConfig("", "nope")
	require.ErrorIs(t, err, config.ErrInvalid)
}

func TestLoadConfigFromFile(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "defectd.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\naddr = \"127.0.0.1:9200\"\n[faces]\nextension = \"tif\"\n"), 0o600))

	cfg, err := loadConfig(path, "127.0.0.1:9300")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9300", cfg.Addr)
	require.Equal(t, "tif", cfg.Faces.Extension)

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.toml"), "")
	require.Error(t, err)
}
