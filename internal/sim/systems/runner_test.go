package systems

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"swarmcore.ai/internal/sim/ecs"
)

func TestRun_InOrder(t *testing.T) {
	var seen []string
	r := NewRunner(nil, nil, nil).
		Add("a", func(uint64) error { seen = append(seen, "a"); return nil }).
		Add("b", func(uint64) error { seen = append(seen, "b"); return nil })
	require.NoError(t, r.Run(1))
	assert.Equal(t, []string{"a", "b"}, seen)
	assert.Equal(t, []string{"a", "b"}, r.Names())
}

func TestRun_ErrorStopsAndAttributes(t *testing.T) {
	store := ecs.NewStore()
	id, e := store.Create(ecs.Health)
	ecs.Health.SetValue(e, ecs.HealthData{Current: -1, Max: 10})

	core, logs := observer.New(zap.ErrorLevel)
	boom := errors.New("negative health")
	ranAfter := false
	r := NewRunner(store, ecs.DefaultRegistry(), zap.New(core)).
		Add("combat", func(uint64) error { return AtEntity(id, boom) }).
		Add("after", func(uint64) error { ranAfter = true; return nil })

	err := r.Run(42)
	require.Error(t, err)
	assert.False(t, ranAfter)
	assert.ErrorIs(t, err, boom)

	var te *TickError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, uint64(42), te.Tick)
	assert.Equal(t, "combat", te.System)
	require.NotNil(t, te.Entity)
	assert.Equal(t, id, *te.Entity)
	assert.JSONEq(t, `{"current":-1,"max":10}`, string(te.Dump["Health"]))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "tick aborted", entry.Message)
	assert.Equal(t, uint64(42), entry.ContextMap()["tick"])
	assert.Equal(t, "combat", entry.ContextMap()["system"])
}

func TestRun_PanicIsRecovered(t *testing.T) {
	r := NewRunner(nil, nil, nil).Add("bad", func(uint64) error {
		var m map[string]int
		m["x"] = 1
		return nil
	})
	err := r.Run(3)
	var te *TickError
	require.ErrorAs(t, err, &te)
	assert.Nil(t, te.Entity)
	assert.Contains(t, err.Error(), "system panicked")

	r = NewRunner(nil, nil, nil).Add("str", func(uint64) error { panic("oops") })
	assert.ErrorContains(t, r.Run(4), "oops")
}

func TestAtEntity_Nil(t *testing.T) {
	assert.NoError(t, AtEntity(1, nil))
}

func TestCheckFinite(t *testing.T) {
	store := ecs.NewStore()
	_, good := store.Create(ecs.Position, ecs.Velocity)
	ecs.Position.SetValue(good, ecs.PositionData{X: 1, Y: 2})
	bad, e := store.Create(ecs.Position, ecs.Owner)
	ecs.Position.SetValue(e, ecs.PositionData{X: math.NaN(), Y: 0})
	ecs.Owner.SetValue(e, ecs.OwnerData{Player: 2})

	err := NewRunner(store, ecs.DefaultRegistry(), nil).Add("finite", CheckFinite(store)).Run(9)
	var te *TickError
	require.ErrorAs(t, err, &te)
	require.NotNil(t, te.Entity)
	assert.Equal(t, bad, *te.Entity)
	require.Contains(t, te.Dump, "Position")
	assert.Contains(t, string(te.Dump["Position"]), "NaN")
	assert.JSONEq(t, `{"player":2}`, string(te.Dump["Owner"]))

	store.Destroy(bad)
	assert.NoError(t, CheckFinite(store)(10))
}
