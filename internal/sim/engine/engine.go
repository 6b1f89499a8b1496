package engine

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"

	"swarmcore.ai/internal/protocol"
)

// Stride is the number of float64s per agent in the export buffer: id, x, y, vx, vy.
const Stride = 5

var ErrDuplicateAgent = errors.New("engine: duplicate agent id")

type Steering uint8

const (
	SteerNone Steering = iota
	SteerDirect
	SteerFlow
)

type Agent struct {
	ID       uint32
	Pos      Vec2
	Vel      Vec2
	Radius   float64
	MaxSpeed float64
	PrefVel  Vec2

	Steer  Steering
	Target Vec2
}

type Config struct {
	FlowWidth  int
	FlowHeight int
}

// Simulation is the deterministic core: a pure function of (state, ordered
// commands) -> state. It owns the export buffer handed out by StateBuffer.
type Simulation struct {
	tick   uint64
	agents []Agent
	index  map[uint32]int
	flow   *FlowField

	export []float64
	gen    uint64
}

func New(cfg Config) *Simulation {
	if cfg.FlowWidth <= 0 {
		cfg.FlowWidth = 100
	}
	if cfg.FlowHeight <= 0 {
		cfg.FlowHeight = 100
	}
	return &Simulation{
		index: map[uint32]int{},
		flow:  NewFlowField(cfg.FlowWidth, cfg.FlowHeight),
	}
}

func (s *Simulation) AddAgent(id uint32, x, y, radius, maxSpeed float64) error {
	if _, ok := s.index[id]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateAgent, id)
	}
	s.index[id] = len(s.agents)
	s.agents = append(s.agents, Agent{
		ID:       id,
		Pos:      Vec2{X: x, Y: y},
		Radius:   radius,
		MaxSpeed: maxSpeed,
	})
	s.rebuildExport()
	return nil
}

func (s *Simulation) SetObstacle(x, y int, wall bool) { s.flow.SetObstacle(x, y, wall) }

// Tick advances exactly one step. Commands apply in slice order; commands for
// unknown agents are ignored.
func (s *Simulation) Tick(cmds []protocol.InputCommand) {
	s.tick++

	for _, c := range cmds {
		i, ok := s.index[c.EntityID]
		if !ok {
			continue
		}
		a := &s.agents[i]
		switch c.Action {
		case protocol.ActionMove, protocol.ActionAttack:
			a.Target = Vec2{X: c.TargetX, Y: c.TargetY}
			if c.Mode == protocol.ModeFlow {
				s.flow.GenerateTarget(c.TargetX, c.TargetY)
				a.Steer = SteerFlow
			} else {
				a.Steer = SteerDirect
			}
		case protocol.ActionStop:
			a.Steer = SteerNone
		}
	}

	for i := range s.agents {
		s.agents[i].PrefVel = s.preferredVelocity(&s.agents[i])
	}

	next := make([]Vec2, len(s.agents))
	for i := range s.agents {
		next[i] = newVelocity(s.agents, i)
	}
	for i := range s.agents {
		s.agents[i].Vel = next[i]
		s.agents[i].Pos = s.agents[i].Pos.Add(next[i])
	}

	s.rebuildExport()
}

func (s *Simulation) preferredVelocity(a *Agent) Vec2 {
	switch a.Steer {
	case SteerDirect:
		d := a.Target.Sub(a.Pos)
		dist := d.Length()
		if dist == 0 {
			a.Steer = SteerNone
			return Vec2{}
		}
		if dist <= a.MaxSpeed {
			return d
		}
		return d.Scale(a.MaxSpeed / dist)
	case SteerFlow:
		dir := s.flow.Direction(a.Pos.X, a.Pos.Y)
		if dir.IsZero() {
			a.Steer = SteerNone
			return Vec2{}
		}
		return dir.Scale(a.MaxSpeed)
	}
	return Vec2{}
}

// rebuildExport refills the export buffer in agent insertion order. The
// backing array is reused when it fits, so buffers returned earlier may now
// alias different data; the generation bump tells holders their view is gone.
func (s *Simulation) rebuildExport() {
	s.export = s.export[:0]
	for _, a := range s.agents {
		s.export = append(s.export, float64(a.ID), a.Pos.X, a.Pos.Y, a.Vel.X, a.Vel.Y)
	}
	s.gen++
}

// StateBuffer returns the engine-owned export buffer (no copy). It is valid
// until the next call that changes Generation.
func (s *Simulation) StateBuffer() []float64 { return s.export }
func (s *Simulation) Generation() uint64     { return s.gen }
func (s *Simulation) TickCount() uint64      { return s.tick }
func (s *Simulation) AgentCount() int        { return len(s.agents) }

// Agent returns a copy of the agent with id.
func (s *Simulation) Agent(id uint32) (Agent, bool) {
	i, ok := s.index[id]
	if !ok {
		return Agent{}, false
	}
	return s.agents[i], true
}

const snapshotVersion = 1

type snapshotState struct {
	Version int
	Tick    uint64
	Agents  []Agent
	Flow    FlowField
}

func (s *Simulation) Snapshot() ([]byte, error) {
	var buf bytes.Buffer
	st := snapshotState{
		Version: snapshotVersion,
		Tick:    s.tick,
		Agents:  s.agents,
		Flow:    *s.flow,
	}
	if err := gob.NewEncoder(&buf).Encode(&st); err != nil {
		return nil, fmt.Errorf("engine snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *Simulation) LoadSnapshot(blob []byte) error {
	var st snapshotState
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&st); err != nil {
		return fmt.Errorf("engine snapshot: %w", err)
	}
	if st.Version != snapshotVersion {
		return fmt.Errorf("engine snapshot: unsupported version %d", st.Version)
	}
	if st.Flow.Width*st.Flow.Height != len(st.Flow.Costs) {
		return fmt.Errorf("engine snapshot: flow field %dx%d has %d cells", st.Flow.Width, st.Flow.Height, len(st.Flow.Costs))
	}
	index := make(map[uint32]int, len(st.Agents))
	for i, a := range st.Agents {
		if _, dup := index[a.ID]; dup {
			return fmt.Errorf("%w in snapshot: %d", ErrDuplicateAgent, a.ID)
		}
		index[a.ID] = i
	}
	flow := st.Flow
	s.tick = st.Tick
	s.agents = st.Agents
	s.index = index
	s.flow = &flow
	s.rebuildExport()
	return nil
}

// RemapIDs relabels agents oldIDs[i] -> newIDs[i]. The mapping must be a
// bijection and must not collide with agents it leaves untouched; on error
// nothing changes.
func (s *Simulation) RemapIDs(oldIDs, newIDs []uint32) error {
	if len(oldIDs) != len(newIDs) {
		return fmt.Errorf("engine remap: %d old ids vs %d new ids", len(oldIDs), len(newIDs))
	}
	m := make(map[uint32]uint32, len(oldIDs))
	seenNew := make(map[uint32]struct{}, len(newIDs))
	for i, o := range oldIDs {
		if _, dup := m[o]; dup {
			return fmt.Errorf("engine remap: duplicate old id %d", o)
		}
		if _, dup := seenNew[newIDs[i]]; dup {
			return fmt.Errorf("engine remap: duplicate new id %d", newIDs[i])
		}
		m[o] = newIDs[i]
		seenNew[newIDs[i]] = struct{}{}
	}

	agents := make([]Agent, len(s.agents))
	copy(agents, s.agents)
	index := make(map[uint32]int, len(agents))
	for i := range agents {
		if n, ok := m[agents[i].ID]; ok {
			agents[i].ID = n
		}
		if _, dup := index[agents[i].ID]; dup {
			return fmt.Errorf("engine remap: id %d collides after relabel", agents[i].ID)
		}
		index[agents[i].ID] = i
	}
	s.agents = agents
	s.index = index
	s.rebuildExport()
	return nil
}
