package worldsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swarmcore.ai/internal/protocol"
	"swarmcore.ai/internal/sim/bridge"
	"swarmcore.ai/internal/sim/ecs"
	"swarmcore.ai/internal/sim/engine"
)

func newBridge(t *testing.T) *bridge.Bridge {
	t.Helper()
	b := bridge.New(func() (bridge.Engine, error) {
		return engine.New(engine.Config{}), nil
	}, nil)
	require.NoError(t, b.Init())
	return b
}

func TestRun_EmptyBufferIsNoop(t *testing.T) {
	store := ecs.NewStore()
	sys := New(store, newBridge(t), nil)
	assert.Zero(t, sys.Run())
	assert.Zero(t, store.Len())
}

func TestRun_FirstAppearanceSetsBothPositions(t *testing.T) {
	b := newBridge(t)
	require.NoError(t, b.AddAgent(7, 3, 4, 0.5, 1))
	store := ecs.NewStore()
	sys := New(store, b, nil)

	assert.Equal(t, 1, sys.Run())
	e, ok := store.Entry(7)
	require.True(t, ok)
	assert.Equal(t, ecs.PositionData{X: 3, Y: 4}, *ecs.Position.Get(e))
	assert.Equal(t, ecs.PrevPositionData{X: 3, Y: 4}, *ecs.PrevPosition.Get(e))
}

func TestRun_ShiftsPreviousPosition(t *testing.T) {
	b := newBridge(t)
	require.NoError(t, b.AddAgent(7, 0, 0, 0.5, 1))
	store := ecs.NewStore()
	sys := New(store, b, nil)
	sys.Run()

	require.NoError(t, b.Tick([]protocol.InputCommand{
		{EntityID: 7, Action: protocol.ActionMove, TargetX: 10, TargetY: 0},
	}))
	sys.Run()

	e, _ := store.Entry(7)
	assert.Equal(t, ecs.PrevPositionData{X: 0, Y: 0}, *ecs.PrevPosition.Get(e))
	assert.Equal(t, ecs.PositionData{X: 1, Y: 0}, *ecs.Position.Get(e))
	assert.Equal(t, ecs.VelocityData{X: 1, Y: 0}, *ecs.Velocity.Get(e))

	x, y, ok := Interpolate(e, 0.25)
	require.True(t, ok)
	assert.InDelta(t, 0.25, x, 1e-12)
	assert.Zero(t, y)
}

func TestInterpolate_MissingComponents(t *testing.T) {
	store := ecs.NewStore()
	_, e := store.Create()
	_, _, ok := Interpolate(e, 0.5)
	assert.False(t, ok)

	_, e = store.Create(ecs.Position)
	ecs.Position.SetValue(e, ecs.PositionData{X: 2, Y: 3})
	x, y, ok := Interpolate(e, 0.5)
	require.True(t, ok)
	assert.Equal(t, 2.0, x)
	assert.Equal(t, 3.0, y)
}
