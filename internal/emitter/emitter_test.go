package emitter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/vigil/orchestrator"
	"github.com/yairfalse/vigil/storage"
	"github.com/yairfalse/vigil/types"
)

// mockEmitter implements Emitter for testing.
type mockEmitter struct {
	emitCalls  int
	closeCalls int
	emitErr    error
	closeErr   error
	results    []*orchestrator.CycleResult
}

func (m *mockEmitter) Emit(_ context.Context, result *orchestrator.CycleResult) error {
	m.emitCalls++
	m.results = append(m.results, result)
	return m.emitErr
}

func (m *mockEmitter) Close() error {
	m.closeCalls++
	return m.closeErr
}

func TestMultiEmitter_Emit(t *testing.T) {
	e1 := &mockEmitter{}
	e2 := &mockEmitter{}
	multi := NewMultiEmitter(e1, e2)

	result := &orchestrator.CycleResult{
		RunID:    "run-1",
		Entities: []orchestrator.EntityResult{{Kind: types.KindHost, Identity: "web01", Status: storage.StatusChanged}},
		Duration: time.Second,
		Changed:  1,
	}

	err := multi.Emit(context.Background(), result)

	require.NoError(t, err)
	assert.Equal(t, 1, e1.emitCalls)
	assert.Equal(t, 1, e2.emitCalls)
	assert.Same(t, result, e1.results[0])
	assert.Same(t, result, e2.results[0])
}

func TestMultiEmitter_Emit_Error(t *testing.T) {
	e1 := &mockEmitter{emitErr: errors.New("emit failed")}
	e2 := &mockEmitter{}
	multi := NewMultiEmitter(e1, e2)

	err := multi.Emit(context.Background(), &orchestrator.CycleResult{})

	assert.Error(t, err)
	assert.Equal(t, 1, e1.emitCalls)
	assert.Equal(t, 0, e2.emitCalls) // Should stop on first error
}

func TestMultiEmitter_Close(t *testing.T) {
	e1 := &mockEmitter{}
	e2 := &mockEmitter{}
	multi := NewMultiEmitter(e1, e2)

	err := multi.Close()

	require.NoError(t, err)
	assert.Equal(t, 1, e1.closeCalls)
	assert.Equal(t, 1, e2.closeCalls)
}

func TestMultiEmitter_Close_Error(t *testing.T) {
	e1 := &mockEmitter{closeErr: errors.New("close failed")}
	e2 := &mockEmitter{}
	multi := NewMultiEmitter(e1, e2)

	err := multi.Close()

	assert.Error(t, err)
	assert.Equal(t, 1, e1.closeCalls)
	assert.Equal(t, 0, e2.closeCalls)
}

func TestMultiEmitter_Empty(t *testing.T) {
	multi := NewMultiEmitter()

	require.NoError(t, multi.Emit(context.Background(), &orchestrator.CycleResult{}))
	require.NoError(t, multi.Close())
}
