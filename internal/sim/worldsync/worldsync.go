// Package worldsync copies the engine's post-tick state into the entity store.
package worldsync

import (
	"github.com/yohamta/donburi"
	"go.uber.org/zap"

	"swarmcore.ai/internal/sim/bridge"
	"swarmcore.ai/internal/sim/ecs"
)

type StateSource interface {
	StateBuffer() bridge.StateView
}

type System struct {
	store *ecs.Store
	src   StateSource
	log   *zap.Logger
}

func New(store *ecs.Store, src StateSource, log *zap.Logger) *System {
	if log == nil {
		log = zap.NewNop()
	}
	return &System{store: store, src: src, log: log.Named("worldsync")}
}

// Run applies the current state buffer and returns the number of records
// applied. Entities the store has never seen are created under the engine id.
func (s *System) Run() int {
	view := s.src.StateBuffer()
	n := 0
	view.Each(func(r bridge.StateRecord) {
		e := s.store.Ensure(ecs.EntityID(r.ID))
		Apply(e, r)
		n++
	})
	if n > 0 {
		s.log.Debug("synced", zap.Int("records", n))
	}
	return n
}

// Apply writes one record. Position moves into PrevPosition first, except on
// an entity's first appearance where both take the new value.
func Apply(e *donburi.Entry, r bridge.StateRecord) {
	next := ecs.PositionData{X: r.PosX, Y: r.PosY}
	prev := ecs.PrevPositionData{X: r.PosX, Y: r.PosY}
	if e.HasComponent(ecs.Position) && e.HasComponent(ecs.PrevPosition) {
		cur := ecs.Position.Get(e)
		prev = ecs.PrevPositionData{X: cur.X, Y: cur.Y}
	}
	ensure(e)
	ecs.PrevPosition.SetValue(e, prev)
	ecs.Position.SetValue(e, next)
	ecs.Velocity.SetValue(e, ecs.VelocityData{X: r.VelX, Y: r.VelY})
}

func ensure(e *donburi.Entry) {
	if !e.HasComponent(ecs.Position) {
		e.AddComponent(ecs.Position)
	}
	if !e.HasComponent(ecs.PrevPosition) {
		e.AddComponent(ecs.PrevPosition)
	}
	if !e.HasComponent(ecs.Velocity) {
		e.AddComponent(ecs.Velocity)
	}
}

// Interpolate blends PrevPosition toward Position by alpha in [0,1).
func Interpolate(e *donburi.Entry, alpha float64) (x, y float64, ok bool) {
	if !e.HasComponent(ecs.Position) {
		return 0, 0, false
	}
	cur := ecs.Position.Get(e)
	if !e.HasComponent(ecs.PrevPosition) {
		return cur.X, cur.Y, true
	}
	prev := ecs.PrevPosition.Get(e)
	x = prev.X + float64((cur.X-prev.X)*alpha)
	y = prev.Y + float64((cur.Y-prev.Y)*alpha)
	return x, y, true
}
