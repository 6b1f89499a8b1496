package netadapter

import "swarmcore.ai/internal/protocol"

// Relay is the authoritative bundler. It collects input per tick and emits
// exactly one bundle per tick, in order, starting at the start tick. Input
// addressed to an already flushed tick is moved to the next unflushed one so
// that every participant still receives it. Not safe for concurrent use.
type Relay struct {
	next    uint64
	pending map[uint64][]protocol.InputCommand
	late    uint64
}

func NewRelay(start uint64) *Relay {
	return &Relay{next: start, pending: map[uint64][]protocol.InputCommand{}}
}

// Submit files cmds and returns the tick they were scheduled for.
func (r *Relay) Submit(tick uint64, cmds []protocol.InputCommand) uint64 {
	if tick < r.next {
		tick = r.next
		r.late++
	}
	if len(cmds) > 0 {
		r.pending[tick] = append(r.pending[tick], cmds...)
	}
	return tick
}

// Flush closes the next tick and returns its bundle. The command list is
// never nil.
func (r *Relay) Flush() protocol.TickBundle {
	cmds := r.pending[r.next]
	delete(r.pending, r.next)
	if cmds == nil {
		cmds = []protocol.InputCommand{}
	}
	b := protocol.TickBundle{Tick: r.next, Commands: cmds}
	r.next++
	return b
}

func (r *Relay) NextTick() uint64 { return r.next }

// Late counts submissions that arrived after their tick was flushed.
func (r *Relay) Late() uint64 { return r.late }
