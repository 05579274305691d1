package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestRedactSensitiveData(t *testing.T) {
	key := "AIza" + "abcdefghijklmnopqrstuvwxyz012345678"
	out := RedactSensitiveData("key=" + key)
	assert.NotContains(t, out, key)
	assert.Contains(t, out, "AIza...[REDACTED]")

	assert.Equal(t, "Authorization: Bearer [REDACTED]", RedactSensitiveData("Authorization: Bearer abc.def"))
	assert.Equal(t, "nothing secret", RedactSensitiveData("nothing secret"))
}

func TestSetOutputRedactsAttributes(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, slog.LevelDebug)
	defer SetLevel(slog.LevelInfo)

	key := "AIza" + "abcdefghijklmnopqrstuvwxyz012345678"
	Info("connecting", "api_key", key)

	assert.NotContains(t, buf.String(), key)
	assert.Contains(t, buf.String(), "connecting")
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abc", ShortID("abc"))
	assert.Equal(t, "12345678", ShortID("1234567890"))
}
