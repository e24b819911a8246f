package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/danmuck/defectctl/internal/client"
	"github.com/danmuck/defectctl/internal/config"
	"github.com/danmuck/defectctl/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const envToken = "DEFECTCTL_TOKEN"

type commandContext struct {
	configPath string
	url        string
	token      string
	timeout    time.Duration
	insecure   bool

	cfg *config.Client
}

func newRootCommand() *cobra.Command {
	cc := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "defectctl",
		Short:         "Browse board faces and annotate defects on a defectd server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			logging.ConfigureCLI()
			_, err := cc.config()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cc.configPath, "config", "c", "", "Configuration file path")
	flags.StringVar(&cc.url, "url", "", "Server websocket URL, overrides client.url")
	flags.StringVar(&cc.token, "token", "", "Auth token, overrides client.auth_token and $"+envToken)
	flags.DurationVar(&cc.timeout, "timeout", 0, "Reply timeout, overrides client.reply_timeout")
	flags.BoolVar(&cc.insecure, "insecure", false, "Skip TLS certificate verification (development only)")

	rootCmd.AddCommand(newListCommand(cc))
	rootCmd.AddCommand(newOpenCommand(cc))
	rootCmd.AddCommand(newSegmentCommand(cc))
	rootCmd.AddCommand(newHealthCommand(cc))
	rootCmd.AddCommand(newShellCommand(cc))
	return rootCmd
}

// config resolves the client config once: file or defaults, then environment,
// then flags.
func (c *commandContext) config() (config.Client, error) {
	if c.cfg != nil {
		return *c.cfg, nil
	}
	cfg := config.DefaultClient()
	if path := strings.TrimSpace(c.configPath); path != "" {
		loaded, err := config.LoadClient(path)
		if err != nil {
			return config.Client{}, err
		}
		cfg = loaded
	}
	if tok := strings.TrimSpace(os.Getenv(envToken)); tok != "" {
		cfg.AuthToken = tok
	}
	if u := strings.TrimSpace(c.url); u != "" {
		cfg.URL = u
		cfg.Session.TLS.Enabled = strings.HasPrefix(u, "wss://")
	}
	if tok := strings.TrimSpace(c.token); tok != "" {
		cfg.AuthToken = tok
	}
	if c.timeout > 0 {
		cfg.Session.ReplyTimeout = c.timeout
	}
	if c.insecure {
		cfg.Session.TLS.InsecureSkipVerify = true
	}
	if err := cfg.Validate(); err != nil {
		return config.Client{}, err
	}
	c.cfg = &cfg
	return cfg, nil
}

// connect dials the server. Callers must Close the client.
func (c *commandContext) connect(ctx context.Context) (*client.Client, error) {
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	if cfg.Session.MaxAttempts == 0 {
		cfg.Session.MaxAttempts = 3
	}
	cl := client.New(client.Options{
		URL:       cfg.URL,
		AuthToken: cfg.AuthToken,
		Session:   cfg.Session,
	})
	if err := cl.Connect(ctx); err != nil {
		return nil, err
	}
	return cl, nil
}
