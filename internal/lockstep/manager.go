// Package lockstep gates simulation ticks on confirmed input bundles.
//
// A tick executes only once the relay's bundle for it has arrived. Local
// commands are never applied directly: they are sent addressed to a tick a
// few steps ahead and come back inside that tick's bundle, so every peer
// executes the same input on the same tick.
package lockstep

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"swarmcore.ai/internal/netadapter"
	"swarmcore.ai/internal/protocol"
)

const DefaultSendDelay = 3

// Ticker executes one simulation tick.
type Ticker interface {
	Tick(cmds []protocol.InputCommand) error
}

// TickObserver sees every executed tick with the commands applied to it.
type TickObserver func(tick uint64, cmds []protocol.InputCommand)

type Config struct {
	SendDelayTicks uint64
	StartTick      uint64
	Now            func() time.Time
	Registerer     prometheus.Registerer
}

// Manager is driven from a single goroutine: Update, QueueCommand and the
// adapter's Poll callbacks all run there.
type Manager struct {
	cfg     Config
	net     netadapter.Adapter
	sim     Ticker
	log     *zap.Logger
	metrics *Metrics

	current  uint64
	buffer   map[uint64][]protocol.InputCommand
	pending  []protocol.InputCommand
	observer TickObserver
	started  bool
}

func New(cfg Config, net netadapter.Adapter, sim Ticker, log *zap.Logger) *Manager {
	if cfg.SendDelayTicks == 0 {
		cfg.SendDelayTicks = DefaultSendDelay
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		cfg:     cfg,
		net:     net,
		sim:     sim,
		log:     log.Named("lockstep"),
		metrics: NewMetrics(cfg.Registerer),
		current: cfg.StartTick,
		buffer:  map[uint64][]protocol.InputCommand{},
	}
	m.metrics.CurrentTick.Set(float64(m.current))
	return m
}

// Start connects the adapter and subscribes to its bundles.
func (m *Manager) Start(ctx context.Context) error {
	if m.started {
		return nil
	}
	m.net.OnInputBundle(m.OnBundleReceived)
	if err := m.net.Connect(ctx); err != nil {
		return fmt.Errorf("connect %s adapter: %w", m.net.Kind(), err)
	}
	m.started = true
	m.log.Info("started",
		zap.String("adapter", string(m.net.Kind())),
		zap.Uint64("start_tick", m.current),
		zap.Uint64("send_delay", m.cfg.SendDelayTicks))
	return nil
}

// QueueCommand records a local command. It is sent on the next Update.
func (m *Manager) QueueCommand(cmd protocol.InputCommand) {
	m.pending = append(m.pending, cmd)
}

// Update pumps the adapter, ships pending commands and executes the current
// tick if its bundle is confirmed. It returns false without touching any
// state when the bundle has not arrived yet. A simulation error keeps the
// bundle and the tick so nothing is half-applied.
func (m *Manager) Update() (bool, error) {
	m.net.Poll(m.cfg.Now())

	if len(m.pending) > 0 {
		target := m.current + m.cfg.SendDelayTicks
		if err := m.net.SendInput(target, m.pending); err != nil {
			return false, fmt.Errorf("send input for tick %d: %w", target, err)
		}
		m.pending = nil
	}

	cmds, ok := m.buffer[m.current]
	if !ok {
		m.metrics.StarvedUpdates.Inc()
		return false, nil
	}
	if err := m.sim.Tick(cmds); err != nil {
		return false, fmt.Errorf("tick %d: %w", m.current, err)
	}
	delete(m.buffer, m.current)
	if m.observer != nil {
		m.observer(m.current, cmds)
	}
	m.current++

	m.metrics.TicksAdvanced.Inc()
	m.metrics.CurrentTick.Set(float64(m.current))
	m.metrics.BufferedBundles.Set(float64(len(m.buffer)))
	return true, nil
}

// OnBundleReceived merges an authoritative bundle into the buffer. Bundles
// for ticks that already executed are dropped.
func (m *Manager) OnBundleReceived(b protocol.TickBundle) {
	if b.Tick < m.current {
		m.metrics.StaleBundles.Inc()
		m.log.Debug("dropping stale bundle", zap.Uint64("tick", b.Tick), zap.Uint64("current", m.current))
		return
	}
	cur, ok := m.buffer[b.Tick]
	if !ok {
		cur = []protocol.InputCommand{}
	}
	m.buffer[b.Tick] = append(cur, b.Commands...)
	m.metrics.BufferedBundles.Set(float64(len(m.buffer)))
}

func (m *Manager) CurrentTick() uint64 { return m.current }

// Buffered returns a copy of the confirmed commands for tick.
func (m *Manager) Buffered(tick uint64) ([]protocol.InputCommand, bool) {
	cmds, ok := m.buffer[tick]
	if !ok {
		return nil, false
	}
	return append([]protocol.InputCommand{}, cmds...), true
}

func (m *Manager) BufferedCount() int { return len(m.buffer) }
func (m *Manager) PendingCount() int  { return len(m.pending) }

func (m *Manager) SetTickObserver(fn TickObserver) { m.observer = fn }

func (m *Manager) Metrics() *Metrics { return m.metrics }

// ResetTo moves the tick counter after a snapshot restore, dropping any
// buffered or pending input from the abandoned timeline.
func (m *Manager) ResetTo(tick uint64) {
	m.log.Info("reset", zap.Uint64("from", m.current), zap.Uint64("to", tick),
		zap.Int("dropped_bundles", len(m.buffer)), zap.Int("dropped_pending", len(m.pending)))
	m.current = tick
	m.buffer = map[uint64][]protocol.InputCommand{}
	m.pending = nil
	m.metrics.CurrentTick.Set(float64(m.current))
	m.metrics.BufferedBundles.Set(0)
}

func (m *Manager) Stop() error {
	if !m.started {
		return nil
	}
	m.started = false
	return m.net.Disconnect()
}
