package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"pcstyle-auth/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupJSON(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	logger := setup(config.LogConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info().Msg("dropped")
	logger.Warn().Str("auth_id", "user_1").Msg("kept")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, "user_1", entry["auth_id"])
	assert.Equal(t, "pcstyle-auth", entry["service"])
}

func TestSetupUnknownLevelFallsBackToInfo(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	setup(config.LogConfig{Level: "loud"}, &bytes.Buffer{})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
