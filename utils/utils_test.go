package utils

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvFallbacks(t *testing.T) {
	t.Setenv("RIG_TEST_STR", "value")
	t.Setenv("RIG_TEST_INT", "12")
	t.Setenv("RIG_TEST_BAD_INT", "twelve")
	t.Setenv("RIG_TEST_FLOAT", "0.25")
	t.Setenv("RIG_TEST_BOOL", "true")
	t.Setenv("RIG_TEST_EMPTY", "")

	assert.Equal(t, "value", GetEnv("RIG_TEST_STR", "fallback"))
	assert.Equal(t, "fallback", GetEnv("RIG_TEST_EMPTY", "fallback"))
	assert.Equal(t, "fallback", GetEnv("RIG_TEST_UNSET_KEY", "fallback"))
	assert.Equal(t, 12, GetEnvInt("RIG_TEST_INT", 3))
	assert.Equal(t, 3, GetEnvInt("RIG_TEST_BAD_INT", 3))
	assert.InDelta(t, 0.25, GetEnvFloat("RIG_TEST_FLOAT", 1), 1e-12)
	assert.True(t, GetEnvBool("RIG_TEST_BOOL", false))
	assert.False(t, GetEnvBool("RIG_TEST_UNSET_KEY", false))
}

func TestArtifactPathsHonourEnv(t *testing.T) {
	model, scaler := ArtifactPaths("models")
	assert.Equal(t, filepath.Join("models", "model.json"), model)
	assert.Equal(t, filepath.Join("models", "scaler.json"), scaler)

	t.Setenv("MODEL_FILE", "rig_model.json")
	t.Setenv("SCALER_FILE", "rig_scaler.json")
	model, scaler = ArtifactPaths("/srv/models")
	assert.Equal(t, "/srv/models/rig_model.json", model)
	assert.Equal(t, "/srv/models/rig_scaler.json", scaler)
}

func TestNewLoggerWritesRotatedFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "rig.log")
	t.Setenv("LOG_FILE", logPath)
	t.Setenv("LOG_LEVEL", "debug")

	var stdout bytes.Buffer
	logger := newLogger(&stdout)
	logger.Debug("engine loaded", slog.Int("trees", 100))

	assert.Contains(t, stdout.String(), "engine loaded")
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"trees":100`)
}

func TestGenerateUniqueIDIsUnique(t *testing.T) {
	t.Parallel()

	first := GenerateUniqueID()
	second := GenerateUniqueID()
	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}
