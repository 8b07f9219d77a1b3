package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects logger output to a buffer for testing.
// Returns the buffer and a cleanup function to restore original output.
func captureOutput() (*bytes.Buffer, func()) {
	buf := new(bytes.Buffer)

	mu.Lock()
	originalOutput := output
	originalColor := useColor
	output = buf
	useColor = false
	mu.Unlock()

	reconfigure()

	cleanup := func() {
		mu.Lock()
		output = originalOutput
		useColor = originalColor
		mu.Unlock()
		reconfigure()
	}

	return buf, cleanup
}

func TestLevelFiltering(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetLevel("INFO")
	Debug("debug message")
	Info("info message")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.Contains(t, out, "info message")

	buf.Reset()
	SetLevel("DEBUG")
	Debug("debug message")
	assert.Contains(t, buf.String(), "debug message")

	SetLevel("INFO")
}

func TestJSONFormat(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetFormat("json")
	defer SetFormat("text")

	Info("session dispatched", SessionID("s-1"), Repo("acme/widgets"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
	assert.Equal(t, "session dispatched", entry["msg"])
	assert.Equal(t, "s-1", entry[KeySessionID])
	assert.Equal(t, "acme/widgets", entry[KeyRepo])
}

func TestContextFieldsPropagate(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetFormat("json")
	defer SetFormat("text")

	ctx := WithSession(context.Background(), "s-1")
	ctx = WithGoal(ctx, "g-1")
	ctx = WithEvent(ctx, "push")

	InfoCtx(ctx, "review started")

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
	assert.Equal(t, "s-1", entry[KeySessionID])
	assert.Equal(t, "g-1", entry[KeyGoalID])
	assert.Equal(t, "push", entry[KeyEvent])
}

func TestErrAttr(t *testing.T) {
	attr := Err(assert.AnError)
	assert.Equal(t, KeyError, attr.Key)
	assert.Equal(t, assert.AnError.Error(), attr.Value.String())

	assert.Empty(t, Err(nil).Key, "nil errors log nothing")
}

func TestLogContextClone(t *testing.T) {
	lc := NewLogContext("req-1").WithSession("s-1")
	clone := lc.Clone().WithGoal("g-1")

	assert.Empty(t, lc.GoalID, "clone does not mutate the original")
	assert.Equal(t, "s-1", clone.SessionID)
	assert.Equal(t, "g-1", clone.GoalID)
}
