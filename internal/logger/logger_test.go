package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug", "json")
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	log.Info().Str("attempt_id", "a1").Msg("Attempt paused")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, ServiceName, line["service"])
	assert.Equal(t, "a1", line["attempt_id"])
	assert.Equal(t, "Attempt paused", line["message"])
}

func TestNewUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "chatty", "json")
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	log.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())

	log.Info().Msg("shown")
	assert.NotZero(t, buf.Len())
}
