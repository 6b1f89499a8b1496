package netadapter

import (
	"container/heap"
	"context"
	"time"

	"swarmcore.ai/internal/protocol"
)

type LocalConfig struct {
	// TickInterval is how often the virtual server flushes a bundle.
	TickInterval time.Duration
	// Latency is applied once in each direction.
	Latency time.Duration
}

// Local emulates a relay server in-process. Input travels to the relay and
// bundles travel back through a timer queue with a fixed one-way latency;
// Poll advances the queue to the given instant. Not safe for concurrent use.
type Local struct {
	state
	cfg   LocalConfig
	relay *Relay

	started   bool
	now       time.Time
	nextFlush time.Time
	seq       uint64
	queue     timerQueue
}

func NewLocal(cfg LocalConfig) *Local {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 50 * time.Millisecond
	}
	if cfg.Latency < 0 {
		cfg.Latency = 0
	}
	return &Local{cfg: cfg, relay: NewRelay(0)}
}

func (l *Local) Kind() Kind { return KindLocal }

func (l *Local) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.connect()
}

func (l *Local) SendInput(tick uint64, cmds []protocol.InputCommand) error {
	if err := l.ready(); err != nil {
		return err
	}
	b := protocol.TickBundle{Tick: tick, Commands: cmds}.Clone()
	l.push(timer{due: l.now.Add(l.cfg.Latency), toRelay: true, bundle: b})
	return nil
}

func (l *Local) OnInputBundle(fn BundleHandler) { l.handler = fn }

// Poll runs every relay flush and delivery due at or before now, in time
// order. Input arriving at the relay at the same instant as a flush makes
// that flush.
func (l *Local) Poll(now time.Time) {
	if l.ready() != nil {
		return
	}
	if !l.started {
		l.started = true
		l.nextFlush = now.Add(l.cfg.TickInterval)
	}
	if now.After(l.now) {
		l.now = now
	}
	for {
		if l.queue.Len() > 0 && !l.queue[0].due.After(now) && !l.queue[0].due.After(l.nextFlush) {
			t := heap.Pop(&l.queue).(timer)
			if t.toRelay {
				l.relay.Submit(t.bundle.Tick, t.bundle.Commands)
			} else {
				l.deliver(t.bundle)
				if l.closed {
					return
				}
			}
			continue
		}
		if l.nextFlush.After(now) {
			return
		}
		b := l.relay.Flush()
		l.push(timer{due: l.nextFlush.Add(l.cfg.Latency), bundle: b})
		l.nextFlush = l.nextFlush.Add(l.cfg.TickInterval)
	}
}

func (l *Local) Disconnect() error {
	l.disconnect()
	l.queue = nil
	return nil
}

// Rewind keeps the flush cadence but restarts the relay at tick.
func (l *Local) Rewind(tick uint64) {
	l.relay = NewRelay(tick)
	l.queue = nil
}

// InFlight is the number of messages travelling in either direction.
func (l *Local) InFlight() int { return l.queue.Len() }

func (l *Local) push(t timer) {
	t.seq = l.seq
	l.seq++
	heap.Push(&l.queue, t)
}

type timer struct {
	due     time.Time
	seq     uint64
	toRelay bool
	bundle  protocol.TickBundle
}

type timerQueue []timer

func (q timerQueue) Len() int { return len(q) }
func (q timerQueue) Less(i, j int) bool {
	if !q[i].due.Equal(q[j].due) {
		return q[i].due.Before(q[j].due)
	}
	return q[i].seq < q[j].seq
}
func (q timerQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *timerQueue) Push(x any)   { *q = append(*q, x.(timer)) }
func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	*q = old[:n-1]
	return t
}
