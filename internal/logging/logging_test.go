package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "quorum.log")

	log, err := Setup("info", path)
	require.NoError(t, err)

	log.Info().Str("component", "test").Msg("hello from setup")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from setup")
	assert.Contains(t, string(data), "component=test")
}

func TestSetupStderrWhenNoFile(t *testing.T) {
	_, err := Setup("debug", "")
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	_, err := Setup("verbose", "")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unknown log level"))
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	lvl, err := parseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, lvl)
}
