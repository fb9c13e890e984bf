package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")

	log, err := build(true, false, []string{path})
	require.NoError(t, err)

	log.Named("budget").Info("recorded ai spend")
	log.Debug("hidden")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "recorded ai spend", entry["msg"])
	assert.Equal(t, "budget", entry["component"])
	assert.Equal(t, ServiceName, entry["service"])
	assert.Equal(t, "info", entry["level"])
	assert.NotContains(t, entry, "caller")
}

func TestBuildDebug(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")

	log, err := build(true, true, []string{path})
	require.NoError(t, err)

	log.Debug("visible")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"visible"`)
	assert.Contains(t, string(data), `"caller"`)
}
