// Package game wires the lockstep loop: scheduler -> lockstep -> bridge ->
// world sync -> systems, plus snapshots and the tick log.
package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"swarmcore.ai/internal/lockstep"
	"swarmcore.ai/internal/netadapter"
	tlog "swarmcore.ai/internal/persistence/log"
	"swarmcore.ai/internal/persistence/snapshot"
	"swarmcore.ai/internal/protocol"
	"swarmcore.ai/internal/scheduler"
	"swarmcore.ai/internal/sim/bridge"
	"swarmcore.ai/internal/sim/ecs"
	"swarmcore.ai/internal/sim/engine"
	"swarmcore.ai/internal/sim/systems"
	"swarmcore.ai/internal/sim/tuning"
	"swarmcore.ai/internal/sim/worldsync"
)

// TickSink receives one entry per executed tick.
type TickSink interface {
	WriteTick(tlog.TickEntry) error
}

type Options struct {
	Tuning  tuning.Tuning
	Adapter netadapter.Adapter
	// Engine defaults to the built-in deterministic engine sized from Tuning.
	Engine     bridge.Factory
	Registry   *ecs.Registry
	Clock      scheduler.Clock
	Logger     *zap.Logger
	Registerer prometheus.Registerer
	TickSinks  []TickSink
	// OnSnapshot is called with every periodic snapshot (see
	// Tuning.SnapshotEveryTicks). It runs on the loop goroutine.
	OnSnapshot func(snapshot.GameSnapshot)
	// Present is called once per frame with the interpolation factor.
	Present scheduler.Presenter
}

type Game struct {
	Tuning    tuning.Tuning
	Store     *ecs.Store
	Registry  *ecs.Registry
	Bridge    *bridge.Bridge
	Hydrator  *ecs.Hydrator
	Sync      *worldsync.System
	Systems   *systems.Runner
	Lockstep  *lockstep.Manager
	Snapshots *snapshot.Manager
	Scheduler *scheduler.Scheduler

	log        *zap.Logger
	net        netadapter.Adapter
	clock      scheduler.Clock
	sinks      []TickSink
	onSnapshot func(snapshot.GameSnapshot)
	lastTick   uint64
}

func New(opts Options) (*Game, error) {
	if opts.Adapter == nil {
		return nil, errors.New("game: nil network adapter")
	}
	if err := opts.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("game: %w", err)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = scheduler.SystemClock{}
	}
	reg := opts.Registry
	if reg == nil {
		reg = ecs.DefaultRegistry()
	}
	factory := opts.Engine
	if factory == nil {
		ff := opts.Tuning.FlowField
		factory = func() (bridge.Engine, error) {
			return engine.New(engine.Config{FlowWidth: ff.Width, FlowHeight: ff.Height}), nil
		}
	}

	g := &Game{
		Tuning:     opts.Tuning,
		Store:      ecs.NewStore(),
		Registry:   reg,
		Bridge:     bridge.New(factory, log),
		log:        log.Named("game"),
		net:        opts.Adapter,
		clock:      clock,
		sinks:      opts.TickSinks,
		onSnapshot: opts.OnSnapshot,
	}
	g.Hydrator = ecs.NewHydrator(g.Store, g.Bridge, opts.Tuning.Units)
	g.Sync = worldsync.New(g.Store, g.Bridge, log)
	g.Systems = systems.NewRunner(g.Store, reg, log).
		Add("finite-state", systems.CheckFinite(g.Store))
	g.Snapshots = snapshot.NewManager(g.Store, reg, g.Bridge, log)
	g.Lockstep = lockstep.New(lockstep.Config{
		SendDelayTicks: uint64(opts.Tuning.SendDelayTicks),
		Now:            clock.Now,
		Registerer:     opts.Registerer,
	}, opts.Adapter, g.Bridge, log)
	g.Lockstep.SetTickObserver(g.observeTick)

	step := time.Second / time.Duration(opts.Tuning.TickRateHz)
	sched, err := scheduler.New(scheduler.Config{
		Step:          step,
		MaxFrame:      time.Duration(opts.Tuning.MaxFrameMs) * time.Millisecond,
		FrameInterval: time.Second / time.Duration(opts.Tuning.FrameRateHz),
	}, g, opts.Present, clock, log)
	if err != nil {
		return nil, err
	}
	g.Scheduler = sched
	return g, nil
}

// Start initializes the engine and connects the network adapter.
func (g *Game) Start(ctx context.Context) error {
	if err := g.Bridge.Init(); err != nil {
		return err
	}
	return g.Lockstep.Start(ctx)
}

// Run drives the fixed-step loop until ctx ends or a tick fails.
func (g *Game) Run(ctx context.Context) error {
	return g.Scheduler.Run(ctx)
}

func (g *Game) Close() error {
	g.Scheduler.Stop()
	return g.Lockstep.Stop()
}

// Update is one fixed step. After a tick executes, the engine state is
// copied into the store and the systems run against it; a system failure is
// returned so the loop stops before the next tick.
func (g *Game) Update() (bool, error) {
	ok, err := g.Lockstep.Update()
	if err != nil || !ok {
		return ok, err
	}
	g.Sync.Run()
	if err := g.Systems.Run(g.lastTick); err != nil {
		return false, err
	}
	if every := uint64(g.Tuning.SnapshotEveryTicks); g.onSnapshot != nil && every > 0 && (g.lastTick+1)%every == 0 {
		snap, err := g.Snapshots.CreateSnapshot()
		if err != nil {
			return false, eris.Wrapf(err, "periodic snapshot at tick %d", g.lastTick)
		}
		g.onSnapshot(snap)
	}
	return true, nil
}

func (g *Game) observeTick(tick uint64, cmds []protocol.InputCommand) {
	g.lastTick = tick
	if len(g.sinks) == 0 {
		return
	}
	entry := tlog.TickEntry{
		Tick:     tick,
		Commands: cmds,
		Digest:   g.Bridge.StateDigest(),
		Agents:   g.Bridge.StateBuffer().Len(),
		UnixMs:   g.clock.Now().UnixMilli(),
	}
	for _, s := range g.sinks {
		if err := s.WriteTick(entry); err != nil {
			g.log.Warn("tick log write failed", zap.Uint64("tick", tick), zap.Error(err))
		}
	}
}

func (g *Game) Spawn(kind string, player int, x, y float64) (ecs.EntityID, error) {
	return g.Hydrator.Spawn(kind, player, x, y)
}

// Command queues a local command for the next send window.
func (g *Game) Command(cmd protocol.InputCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	g.Lockstep.QueueCommand(cmd)
	return nil
}

func (g *Game) CurrentTick() uint64 { return g.Lockstep.CurrentTick() }

// OwnedBy lists the entities owned by player in identifier order.
func (g *Game) OwnedBy(player int) []ecs.EntityID {
	var out []ecs.EntityID
	for _, id := range g.Store.IDs() {
		e, ok := g.Store.Entry(id)
		if !ok || !e.HasComponent(ecs.Owner) {
			continue
		}
		if ecs.Owner.Get(e).Player == player {
			out = append(out, id)
		}
	}
	return out
}

// Position returns the presentation position of id blended by alpha.
func (g *Game) Position(id ecs.EntityID, alpha float64) (x, y float64, ok bool) {
	e, found := g.Store.Entry(id)
	if !found {
		return 0, 0, false
	}
	return worldsync.Interpolate(e, alpha)
}

// Restore replaces the world with snap and rewinds the lockstep clock to
// the snapshot's tick. In-process adapters restart their relay there too.
func (g *Game) Restore(snap snapshot.GameSnapshot) (snapshot.IdentifierRemap, error) {
	remap, err := g.Snapshots.LoadSnapshot(snap)
	if err != nil {
		return remap, eris.Wrap(err, "restore")
	}
	g.Lockstep.ResetTo(snap.Header.Tick)
	if rw, ok := g.net.(netadapter.Rewinder); ok {
		rw.Rewind(snap.Header.Tick)
	}
	g.Sync.Run()
	return remap, nil
}
