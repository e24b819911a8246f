package testlog

import (
	"testing"

	"github.com/danmuck/defectctl/internal/logging"
	"github.com/danmuck/defectctl/internal/logs"
)

// Start configures test logging once and marks the beginning of t in the output.
func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	logs.Infof("test=%s", t.Name())
}
