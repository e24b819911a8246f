package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/defectctl/internal/config"
	"github.com/danmuck/defectctl/internal/faces"
	"github.com/danmuck/defectctl/internal/logging"
	"github.com/danmuck/defectctl/internal/logs"
	"github.com/danmuck/defectctl/internal/segment"
	"github.com/danmuck/defectctl/internal/server"
	"github.com/joho/godotenv"
)

const envConfigPath = "DEFECTD_CONFIG"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "defectd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv(envConfigPath), "path to defectd.toml (defaults apply when empty)")
	addr := flag.String("addr", "", "listen address, overrides server.addr")
	flag.Parse()

	cfg, err := loadConfig(strings.TrimSpace(*configPath), strings.TrimSpace(*addr))
	if err != nil {
		return err
	}
	logging.ConfigureRuntime(cfg.Log)

	seg, err := segment.New(cfg.Segment)
	if err != nil {
		return err
	}
	logs.Infof(
		"defectd starting backend=%s workers=%d timeout=%s cache=%d faces=.%s",
		cfg.Segment.Backend,
		cfg.Segment.Workers,
		cfg.Segment.Timeout,
		cfg.Segment.CacheSize,
		cfg.Faces.Extension,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return server.New(cfg, faces.NewStore(cfg.Faces), seg).Run(ctx)
}

func loadConfig(path, addr string) (config.Server, error) {
	cfg := config.DefaultServer()
	if path != "" {
		loaded, err := config.LoadServer(path)
		if err != nil {
			return config.Server{}, err
		}
		cfg = loaded
	}
	if addr != "" {
		cfg.Addr = addr
	}
	if err := cfg.Validate(); err != nil {
		return config.Server{}, err
	}
	return cfg, nil
}
