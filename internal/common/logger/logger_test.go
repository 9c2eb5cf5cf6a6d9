package logger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"info":    zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestNewStructured_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dispatch.log")

	log := NewStructured("info", "json", path)
	log.WithFields(map[string]interface{}{"missionId": "m-1"}).
		Info("Offers published", map[string]interface{}{"count": 3, "cause": errors.New("none")})
	log.Debug("dropped below level", nil)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"missionId":"m-1"`)
	assert.Contains(t, lines[0], `"count":3`)
	assert.Contains(t, lines[0], `"cause":"none"`)
	assert.Contains(t, lines[0], `"timestamp"`)
}

func TestNewStructured_BadOutputFallsBack(t *testing.T) {
	log := NewStructured("info", "json", filepath.Join(t.TempDir(), "missing", "dir", "x.log"))
	require.NotNil(t, log)
	log.Info("still usable", nil)
}
