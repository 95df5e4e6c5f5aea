package obsv

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitLogger_ProductionUsesJSONHandler(t *testing.T) {
	logger := InitLogger("production", "info")
	_, isJSON := logger.Handler().(*slog.JSONHandler)
	assert.True(t, isJSON)
}

func TestInitLogger_DevelopmentUsesTextHandler(t *testing.T) {
	logger := InitLogger("development", "debug")
	_, isText := logger.Handler().(*slog.TextHandler)
	assert.True(t, isText)
}

func TestInitLogger_UnknownLevelDefaultsToInfo(t *testing.T) {
	logger := InitLogger("development", "bogus")
	assert.True(t, logger.Handler().Enabled(nil, slog.LevelInfo))
	assert.False(t, logger.Handler().Enabled(nil, slog.LevelDebug))
}
