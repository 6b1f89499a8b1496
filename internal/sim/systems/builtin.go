package systems

import (
	"fmt"
	"math"

	"swarmcore.ai/internal/sim/ecs"
)

// CheckFinite fails the tick on the first entity whose synced position or
// velocity is NaN or infinite. Such a value would desync every peer on the
// next tick.
func CheckFinite(store *ecs.Store) Func {
	return func(uint64) error {
		for _, id := range store.IDs() {
			e, ok := store.Entry(id)
			if !ok {
				continue
			}
			if e.HasComponent(ecs.Position) {
				p := ecs.Position.Get(e)
				if !finite(p.X) || !finite(p.Y) {
					return AtEntity(id, fmt.Errorf("non-finite position (%v, %v)", p.X, p.Y))
				}
			}
			if e.HasComponent(ecs.Velocity) {
				v := ecs.Velocity.Get(e)
				if !finite(v.X) || !finite(v.Y) {
					return AtEntity(id, fmt.Errorf("non-finite velocity (%v, %v)", v.X, v.Y))
				}
			}
		}
		return nil
	}
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
