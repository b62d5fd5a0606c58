package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// logging uses package-level state, these tests must not run in parallel.

func TestSetOutputAndStructured(t *testing.T) {
	var structured, human bytes.Buffer
	SetOutput(&structured, &human)

	Structured().Info("structured message", "key", "value")

	var record map[string]any
	require.NoError(t, json.Unmarshal(structured.Bytes(), &record))
	assert.Equal(t, "structured message", record["msg"])
	assert.Equal(t, "value", record["key"])
	assert.Equal(t, "INFO", record["level"])

	HumanReadable().Warn("human message")
	assert.Contains(t, human.String(), "human message")
}

func TestForService(t *testing.T) {
	var structured, human bytes.Buffer
	SetOutput(&structured, &human)

	ForService("importer").Info("hello")

	var record map[string]any
	require.NoError(t, json.Unmarshal(structured.Bytes(), &record))
	assert.Equal(t, "importer", record["service"])
}

func TestCustomLevelNames(t *testing.T) {
	var structured, human bytes.Buffer
	SetOutput(&structured, &human)

	Structured().Log(context.Background(), LevelTrace, "tracing")

	var record map[string]any
	require.NoError(t, json.Unmarshal(structured.Bytes(), &record))
	assert.Equal(t, "TRACE", record["level"])
}

func TestNewFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")

	logger, closeFunc, err := NewFileLogger(path, "test-service", slog.LevelInfo)
	require.NoError(t, err)
	require.NotNil(t, logger)

	logger.Info("to file")
	require.NoError(t, closeFunc())

	assert.FileExists(t, path)
}

func TestEnableFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "vikinglab.log")

	closeFunc, err := EnableFileOutput(path, slog.LevelInfo)
	require.NoError(t, err)

	Structured().Info("routed to file")
	ForService("labeling").Info("service routed too")
	require.NoError(t, closeFunc())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "routed to file")
	assert.Contains(t, string(data), `"service":"labeling"`)

	// Restore the stdout logger for any tests that follow.
	SetLevel(slog.LevelInfo)
}
