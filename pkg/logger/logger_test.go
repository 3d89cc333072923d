package logger

import (
	"bytes"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureStd(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })
	return &buf
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel(" WARNING "))
	assert.Equal(t, ERROR, ParseLevel("error"))
	assert.Equal(t, INFO, ParseLevel("bogus"))
}

func TestLevelFiltering(t *testing.T) {
	buf := captureStd(t)
	prev := GetLevel()
	SetLevel(WARN)
	t.Cleanup(func() { SetLevel(prev) })

	InfoC("dispatcher", "hidden")
	WarnCF("dispatcher", "shown", map[string]any{"chat_id": 7})

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] dispatcher: shown {chat_id=7}")
}

func TestFieldsAreSortedAndRedacted(t *testing.T) {
	buf := captureStd(t)
	RegisterSecret("super-secret-proxy")

	InfoCF("telegram", "connecting via super-secret-proxy", map[string]any{
		"b":     2,
		"a":     1,
		"token": "123",
	})

	line := buf.String()
	assert.Contains(t, line, "{a=1, b=2, token=[REDACTED]}")
	assert.NotContains(t, line, "super-secret-proxy")
}

func TestFileLoggingWritesJSON(t *testing.T) {
	captureStd(t)
	path := filepath.Join(t.TempDir(), "bot.log")
	require.NoError(t, EnableFileLogging(path))
	t.Cleanup(DisableFileLogging)

	ErrorCF("files", "remove failed", map[string]any{"node_id": 5})
	DisableFileLogging()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry LogEntry
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry))
	assert.Equal(t, "ERROR", entry.Level)
	assert.Equal(t, "files", entry.Component)
	assert.Equal(t, "remove failed", entry.Message)
	assert.EqualValues(t, 5, entry.Fields["node_id"])
}
