package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(prev)
		SetLevel(INFO)
		SetRedactPII(true)
	})
	return &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]string {
	t.Helper()
	var out []map[string]string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]string
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestNamedLoggerAddsComponent(t *testing.T) {
	buf := captureOutput(t)

	Named("webhook").Info("event applied", "event_type", "delivered", "err", errors.New("boom"))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "INFO", lines[0]["level"])
	assert.Equal(t, "webhook", lines[0]["component"])
	assert.Equal(t, "event applied", lines[0]["msg"])
	assert.Equal(t, "delivered", lines[0]["event_type"])
	assert.Equal(t, "boom", lines[0]["err"])
}

func TestLevelFiltering(t *testing.T) {
	buf := captureOutput(t)
	SetLevel(WARN)

	Info("dropped")
	Debug("dropped")
	Warn("kept")
	Error("kept too")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "WARN", lines[0]["level"])
	assert.Equal(t, "ERROR", lines[1]["level"])
}

func TestRedaction(t *testing.T) {
	buf := captureOutput(t)

	Info("skip", "recipient_email", "john.doe@example.com", "detail", "sent to ana@club.org today")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "jo***@example.com", lines[0]["recipient_email"])
	assert.Equal(t, "sent to an***@club.org today", lines[0]["detail"])
}

func TestRedactionDisabled(t *testing.T) {
	buf := captureOutput(t)
	SetRedactPII(false)

	Info("skip", "email", "john.doe@example.com")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "john.doe@example.com", lines[0]["email"])
}

func TestRedactEmail(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"john.doe@example.com", "jo***@example.com"},
		{"ab@example.com", "***@example.com"},
		{"not-an-email", "***@***"},
		{"a@b@c", "***@***"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, RedactEmail(tt.in))
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel(" Warning "))
	assert.Equal(t, ERROR, ParseLevel("ERROR"))
	assert.Equal(t, INFO, ParseLevel("chatty"))
}
