package ecs

import (
	"fmt"
	"sort"

	"swarmcore.ai/internal/sim/tuning"
)

// AgentRegistrar is the slice of the simulation bridge the hydrator needs.
type AgentRegistrar interface {
	AddAgent(id uint32, x, y, radius, maxSpeed float64) error
}

// Hydrator turns unit catalog entries into live entities: a store entity with
// the presentation components plus a matching engine agent under the same id.
type Hydrator struct {
	store *Store
	sim   AgentRegistrar
	units map[string]tuning.UnitSpec
}

func NewHydrator(store *Store, sim AgentRegistrar, units map[string]tuning.UnitSpec) *Hydrator {
	return &Hydrator{store: store, sim: sim, units: units}
}

func (h *Hydrator) Kinds() []string {
	out := make([]string, 0, len(h.units))
	for k := range h.units {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (h *Hydrator) Spawn(kind string, player int, x, y float64) (EntityID, error) {
	u, ok := h.units[kind]
	if !ok {
		return 0, fmt.Errorf("unknown unit kind %q", kind)
	}
	id, e := h.store.Create(Position, PrevPosition, Velocity, Unit, Owner, Health)
	Position.SetValue(e, PositionData{X: x, Y: y})
	PrevPosition.SetValue(e, PrevPositionData{X: x, Y: y})
	Unit.SetValue(e, UnitData{Kind: kind, Radius: u.Radius, MaxSpeed: u.MaxSpeed})
	Owner.SetValue(e, OwnerData{Player: player})
	Health.SetValue(e, HealthData{Current: u.Health, Max: u.Health})

	if err := h.sim.AddAgent(uint32(id), x, y, u.Radius, u.MaxSpeed); err != nil {
		h.store.Destroy(id)
		return 0, fmt.Errorf("spawn %s: %w", kind, err)
	}
	return id, nil
}
