package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	require.NoError(t, Init(Config{Level: "warn", Output: "stderr"}))
	assert.Equal(t, zerolog.WarnLevel, GetLogger().GetLevel())

	require.NoError(t, Init(Config{Level: "error", Debug: true}))
	assert.Equal(t, zerolog.DebugLevel, GetLogger().GetLevel(), "debug flag wins over level")
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	require.NoError(t, Init(Config{Level: "info"}))
	assert.Error(t, Init(Config{Level: "chatty"}))
	assert.Equal(t, zerolog.InfoLevel, GetLogger().GetLevel())
}

func TestSetDebug(t *testing.T) {
	require.NoError(t, Init(Config{}))

	SetDebug(true)
	assert.Equal(t, zerolog.DebugLevel, GetLogger().GetLevel())

	SetDebug(false)
	assert.Equal(t, zerolog.InfoLevel, GetLogger().GetLevel())
}
