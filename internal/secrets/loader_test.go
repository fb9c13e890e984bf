package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSecret(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "key")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadPrefersFile(t *testing.T) {
	t.Setenv("TEST_GEMINI_KEY", "from-env")

	got, err := Load(Source{
		Name:  "gemini api key",
		File:  writeSecret(t, "  from-file\n"),
		Env:   "TEST_GEMINI_KEY",
		Value: "inline",
	})
	require.NoError(t, err)
	assert.Equal(t, "from-file", got)
}

func TestLoadEnvBeforeValue(t *testing.T) {
	t.Setenv("TEST_GEMINI_KEY", " from-env ")

	got, err := Load(Source{Env: "TEST_GEMINI_KEY", Value: "inline"})
	require.NoError(t, err)
	assert.Equal(t, "from-env", got)
}

func TestLoadValue(t *testing.T) {
	got, err := Load(Source{Env: "TEST_UNSET_SECRET_VAR", Value: " inline "})
	require.NoError(t, err)
	assert.Equal(t, "inline", got)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(Source{Name: "gemini api key"})
	assert.EqualError(t, err, "gemini api key is not configured")

	_, err = Load(Source{File: writeSecret(t, "\n\n")})
	assert.ErrorContains(t, err, "is empty")

	_, err = Load(Source{File: filepath.Join(t.TempDir(), "missing")})
	assert.ErrorContains(t, err, "reading secret from file")
}
