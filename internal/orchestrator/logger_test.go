package orchestrator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebugLogger_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "debug.log")

	l, err := NewDebugLogger(path)
	require.NoError(t, err)
	l.Log("routed %s for task %s", "event", "t1")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "agentrun debug log started")
	assert.Contains(t, string(data), "routed event for task t1")
}

func TestDebugLogger_NopAndNil(t *testing.T) {
	l, err := NewDebugLogger("")
	require.NoError(t, err)
	l.Log("ignored")
	assert.NoError(t, l.Close())

	var nilLogger *DebugLogger
	nilLogger.Log("ignored")
	assert.NoError(t, nilLogger.Close())

	NopLogger().Log("ignored")
}
