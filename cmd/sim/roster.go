package main

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"swarmcore.ai/internal/protocol"
	"swarmcore.ai/internal/sim/ecs"
)

type rosterEntry struct {
	Kind  string
	Count int
}

// parseRoster reads "soldier:4,worker:2". Order is preserved since spawn
// order decides entity identifiers on every peer.
func parseRoster(s string) ([]rosterEntry, error) {
	var out []rosterEntry
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kind, n, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("roster entry %q: want kind:count", part)
		}
		count, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil || count < 0 {
			return nil, fmt.Errorf("roster entry %q: bad count", part)
		}
		out = append(out, rosterEntry{Kind: strings.TrimSpace(kind), Count: count})
	}
	return out, nil
}

type spawner interface {
	Spawn(kind string, player int, x, y float64) (ecs.EntityID, error)
}

// spawnRoster places each player's units in a column on its own side of
// the map. Every peer must call it with the same arguments.
func spawnRoster(g spawner, roster []rosterEntry, players int, width, height float64) (map[int][]ecs.EntityID, error) {
	owned := map[int][]ecs.EntityID{}
	for p := 0; p < players; p++ {
		baseX := width * (0.15 + 0.7*float64(p)/math.Max(1, float64(players-1)))
		if players == 1 {
			baseX = width * 0.15
		}
		row := 0
		for _, r := range roster {
			for i := 0; i < r.Count; i++ {
				y := height*0.2 + float64(row)*1.5
				id, err := g.Spawn(r.Kind, p, baseX, math.Min(y, height-1))
				if err != nil {
					return nil, err
				}
				owned[p] = append(owned[p], id)
				row++
			}
		}
	}
	return owned, nil
}

// patrol sends a player's units between two waypoints every period ticks.
type patrol struct {
	units  []ecs.EntityID
	period uint64
	a, b   [2]float64
	flow   bool
	last   uint64
	sent   bool
}

func newPatrol(units []ecs.EntityID, period uint64, width, height float64, flow bool) *patrol {
	sorted := append([]ecs.EntityID(nil), units...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return &patrol{
		units:  sorted,
		period: period,
		a:      [2]float64{width * 0.8, height * 0.8},
		b:      [2]float64{width * 0.2, height * 0.8},
		flow:   flow,
	}
}

// orders returns the commands due at tick, if any.
func (p *patrol) orders(tick uint64) []protocol.InputCommand {
	if p.period == 0 || len(p.units) == 0 {
		return nil
	}
	if p.sent && tick < p.last+p.period {
		return nil
	}
	p.sent = true
	p.last = tick
	wp := p.a
	if (tick/p.period)%2 == 1 {
		wp = p.b
	}
	mode := protocol.ModeDirect
	if p.flow {
		mode = protocol.ModeFlow
	}
	out := make([]protocol.InputCommand, 0, len(p.units))
	for _, id := range p.units {
		out = append(out, protocol.InputCommand{
			EntityID: uint32(id),
			Action:   protocol.ActionMove,
			TargetX:  wp[0],
			TargetY:  wp[1],
			Mode:     mode,
		})
	}
	return out
}
