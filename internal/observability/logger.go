package observability

import (
	"os"
	"time"

	"github.com/danmuck/defectctl/internal/logs"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger builds the structured request logger for app. It shares the
// level configured through the logs package and replaces the global zerolog
// logger.
func InitLogger(app string) zerolog.Logger {
	cfg := logs.Current()
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
		NoColor:    cfg.NoColor,
	}
	logger := zerolog.New(output).Level(cfg.Level).With().Timestamp().Str("app", app).Logger()
	log.Logger = logger
	return logger
}
