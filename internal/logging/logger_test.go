package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zerolog.Disabled, ParseLevel("disabled"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("nonsense"))
}

func TestInitWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Format: "json", Output: &buf})
	defer Init(Config{Level: "info", Format: "json"})

	Info().Str("anime_id", "11061").Msg("synced")
	Debug().Msg("hidden")

	out := buf.String()
	assert.Contains(t, out, `"anime_id":"11061"`)
	assert.Contains(t, out, `"message":"synced"`)
	assert.NotContains(t, out, "hidden")
}

func TestAutoFormatFallsBackToJSONForBuffers(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Format: "auto", Output: &buf})
	defer Init(Config{Level: "info", Format: "json"})

	Warn().Msg("plain")
	assert.Contains(t, buf.String(), `"level":"warn"`)
}
