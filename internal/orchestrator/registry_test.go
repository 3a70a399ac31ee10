package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	first := &runEntry{TaskID: "t1", RunID: "run-1"}

	require.NoError(t, r.Register(first))
	err := r.Register(&runEntry{TaskID: "t1", RunID: "run-2"})
	assert.ErrorIs(t, err, ErrDuplicateTask)

	got, ok := r.Lookup("t1")
	require.True(t, ok)
	assert.Same(t, first, got)
}

func TestRegistry_UnregisterIsIdempotent(t *testing.T) {
	r := NewRegistry()
	e := &runEntry{TaskID: "t1", RunID: "run-1"}
	require.NoError(t, r.Register(e))

	assert.True(t, r.Unregister(e))
	assert.False(t, r.Unregister(e))

	_, ok := r.Lookup("t1")
	assert.False(t, ok)
	assert.Zero(t, r.Len())
}

func TestRegistry_UnregisterLeavesNewerEntry(t *testing.T) {
	r := NewRegistry()
	old := &runEntry{TaskID: "t1", RunID: "run-1"}
	require.NoError(t, r.Register(old))
	r.Unregister(old)

	newer := &runEntry{TaskID: "t1", RunID: "run-2"}
	require.NoError(t, r.Register(newer))

	assert.False(t, r.Unregister(old), "a stale entry must not evict the task's new run")
	got, ok := r.Lookup("t1")
	require.True(t, ok)
	assert.Equal(t, "run-2", got.RunID)
}

func TestRegistry_ActiveOldestFirst(t *testing.T) {
	r := NewRegistry()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, r.Register(&runEntry{TaskID: "b", RunID: "run-b", Kind: "ocr", StartedAt: base.Add(time.Second)}))
	require.NoError(t, r.Register(&runEntry{TaskID: "a", RunID: "run-a", Kind: "transcribe", StartedAt: base}))
	require.NoError(t, r.Register(&runEntry{TaskID: "c", RunID: "run-c", Kind: "ocr", StartedAt: base.Add(time.Second)}))

	active := r.Active()
	require.Len(t, active, 3)
	assert.Equal(t, "a", active[0].TaskID)
	assert.Equal(t, "b", active[1].TaskID)
	assert.Equal(t, "c", active[2].TaskID)
	assert.Equal(t, "transcribe", active[0].Kind)
	assert.Zero(t, active[0].PID)
}

func TestRunEntry_FinalizeLocked(t *testing.T) {
	e := &runEntry{TaskID: "t1"}
	e.mu.Lock()
	defer e.mu.Unlock()

	assert.True(t, e.finalizeLocked())
	assert.False(t, e.finalizeLocked())
}
