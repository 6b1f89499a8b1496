package bridge

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swarmcore.ai/internal/protocol"
	"swarmcore.ai/internal/sim/engine"
)

func engineFactory() (Engine, error) {
	return engine.New(engine.Config{FlowWidth: 32, FlowHeight: 32}), nil
}

func newReady(t *testing.T) *Bridge {
	t.Helper()
	b := New(engineFactory, nil)
	require.NoError(t, b.Init())
	return b
}

func TestInit_Idempotent(t *testing.T) {
	calls := 0
	b := New(func() (Engine, error) {
		calls++
		return engineFactory()
	}, nil)
	require.NoError(t, b.Init())
	require.NoError(t, b.Init())
	assert.Equal(t, 1, calls)
	assert.True(t, b.Ready())
}

func TestInit_FailureLeavesBridgeUnusable(t *testing.T) {
	b := New(func() (Engine, error) { return nil, errors.New("wasm trap") }, nil)
	err := b.Init()
	require.ErrorIs(t, err, ErrNotReady)
	assert.ErrorIs(t, b.Init(), ErrNotReady)
	assert.False(t, b.Ready())

	assert.ErrorIs(t, b.AddAgent(1, 0, 0, 1, 1), ErrNotReady)
	assert.ErrorIs(t, b.Tick(nil), ErrNotReady)
	_, err = b.Snapshot()
	assert.ErrorIs(t, err, ErrNotReady)
	assert.ErrorIs(t, b.LoadSnapshot(nil), ErrNotReady)
	assert.ErrorIs(t, b.RemapIDs([]uint32{1}, []uint32{2}), ErrNotReady)
	assert.Zero(t, b.StateBuffer().Len())
}

func TestCallsBeforeInit_AreNotReady(t *testing.T) {
	b := New(engineFactory, nil)
	assert.ErrorIs(t, b.Tick(nil), ErrNotReady)
	assert.Zero(t, b.StateBuffer().Len())
	assert.Zero(t, b.TickCount())
}

func TestStateBuffer_EmptyWithZeroAgents(t *testing.T) {
	b := newReady(t)
	require.NoError(t, b.Tick(nil))
	v := b.StateBuffer()
	assert.Zero(t, v.Len())
	assert.False(t, v.Valid())
	_, ok := v.Record(0)
	assert.False(t, ok)
}

func TestStateBuffer_Records(t *testing.T) {
	b := newReady(t)
	require.NoError(t, b.AddAgent(9, 1, 2, 0.5, 1))
	require.NoError(t, b.AddAgent(4, 10, 2, 0.5, 1))
	require.NoError(t, b.Tick([]protocol.InputCommand{{EntityID: 4, Action: protocol.ActionMove, TargetX: 20, TargetY: 2}}))

	v := b.StateBuffer()
	require.Equal(t, 2, v.Len())
	r, ok := v.Find(4)
	require.True(t, ok)
	assert.Equal(t, StateRecord{ID: 4, PosX: 11, PosY: 2, VelX: 1, VelY: 0}, r)
	_, ok = v.Find(5)
	assert.False(t, ok)

	var ids []uint32
	v.Each(func(r StateRecord) { ids = append(ids, r.ID) })
	assert.Equal(t, []uint32{9, 4}, ids)
}

func TestStateView_StaleAfterTick(t *testing.T) {
	b := newReady(t)
	require.NoError(t, b.AddAgent(1, 0, 0, 0.5, 1))
	v := b.StateBuffer()
	require.Equal(t, 1, v.Len())

	require.NoError(t, b.Tick(nil))
	assert.False(t, v.Valid())
	assert.Zero(t, v.Len())
	_, ok := v.Record(0)
	assert.False(t, ok)

	assert.Equal(t, 1, b.StateBuffer().Len())
}

func TestStateView_StaleAfterGrowth(t *testing.T) {
	b := newReady(t)
	require.NoError(t, b.AddAgent(1, 0, 0, 0.5, 1))
	v := b.StateBuffer()
	for i := uint32(2); i < 40; i++ {
		require.NoError(t, b.AddAgent(i, float64(i)*3, 0, 0.5, 1))
	}
	visited := 0
	v.Each(func(StateRecord) { visited++ })
	assert.Zero(t, visited)
	assert.Equal(t, 39, b.StateBuffer().Len())
}

func TestWithState(t *testing.T) {
	b := newReady(t)
	require.NoError(t, b.AddAgent(3, 1, 1, 0.5, 1))
	var got []StateRecord
	b.WithState(func(v StateView) { v.Each(func(r StateRecord) { got = append(got, r) }) })
	assert.Equal(t, []StateRecord{{ID: 3, PosX: 1, PosY: 1}}, got)
}

type shortEngine struct{ Engine }

func (shortEngine) AgentCount() int        { return 2 }
func (shortEngine) StateBuffer() []float64 { return []float64{1, 2, 3, 4, 5, 6, 7} }
func (shortEngine) Generation() uint64     { return 1 }

func TestStateBuffer_MalformedLengthIsEmpty(t *testing.T) {
	b := New(func() (Engine, error) { return shortEngine{}, nil }, nil)
	require.NoError(t, b.Init())
	assert.Zero(t, b.StateBuffer().Len())
}

func TestStateDigest_TracksState(t *testing.T) {
	a := newReady(t)
	c := newReady(t)
	for _, b := range []*Bridge{a, c} {
		require.NoError(t, b.AddAgent(1, 0, 0, 0.5, 1))
	}
	assert.Equal(t, a.StateDigest(), c.StateDigest())

	cmd := []protocol.InputCommand{{EntityID: 1, Action: protocol.ActionMove, TargetX: 5, TargetY: 5}}
	require.NoError(t, a.Tick(cmd))
	assert.NotEqual(t, a.StateDigest(), c.StateDigest())
	require.NoError(t, c.Tick(cmd))
	assert.Equal(t, a.StateDigest(), c.StateDigest())
}

func TestSnapshotAndRemap(t *testing.T) {
	b := newReady(t)
	require.NoError(t, b.AddAgent(1, 2, 3, 0.5, 1))
	blob, err := b.Snapshot()
	require.NoError(t, err)

	other := newReady(t)
	require.NoError(t, other.LoadSnapshot(blob))
	require.NoError(t, other.RemapIDs([]uint32{1}, []uint32{100}))
	r, ok := other.StateBuffer().Find(100)
	require.True(t, ok)
	assert.Equal(t, 2.0, r.PosX)
	assert.NoError(t, other.RemapIDs(nil, nil))
}
