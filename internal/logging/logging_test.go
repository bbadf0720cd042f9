package logging

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/fstr/pereval/internal/config"
)

func TestLevelForVerbosity(t *testing.T) {
	assert.Equal(t, "warn", LevelForVerbosity("warn", 0))
	assert.Equal(t, "debug", LevelForVerbosity("warn", 1))
	assert.Equal(t, "trace", LevelForVerbosity("info", 2))
	assert.Equal(t, "trace", LevelForVerbosity("info", 5))
}

func TestApply_SetsGlobalLevel(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	Apply("debug", config.LogConfig{})
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	Apply("error", config.LogConfig{})
	assert.Equal(t, zerolog.ErrorLevel, zerolog.GlobalLevel())

	Apply("bogus", config.LogConfig{})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestFilePathForDB(t *testing.T) {
	assert.Equal(t, filepath.Join("/data", DefaultLogFilePath), FilePathForDB("/data/pereval.db"))
}
