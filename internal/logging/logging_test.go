package logging

import (
	"bytes"
	"testing"

	"github.com/phuslu/log"
	"github.com/stretchr/testify/assert"
)

func TestNew_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New("warn", &buf)

	l.Info().Msg("hidden")
	l.Warn().Str("job_id", "job-1").Msg("visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
	assert.Contains(t, out, "job-1")
}

func TestParseLevel_Fallback(t *testing.T) {
	assert.Equal(t, log.InfoLevel, parseLevel("verbose"))
	assert.Equal(t, log.DebugLevel, parseLevel("debug"))
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Error().Msg("nothing happens")
}
