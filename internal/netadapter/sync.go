package netadapter

import (
	"context"
	"time"

	"swarmcore.ai/internal/protocol"
)

// Sync is a headless loopback without timers: every Poll flushes exactly one
// bundle. Used by tests and the batch simulator.
type Sync struct {
	state
	relay *Relay
}

func NewSync() *Sync {
	return &Sync{relay: NewRelay(0)}
}

func (s *Sync) Kind() Kind { return KindSync }

func (s *Sync) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.connect()
}

func (s *Sync) SendInput(tick uint64, cmds []protocol.InputCommand) error {
	if err := s.ready(); err != nil {
		return err
	}
	s.relay.Submit(tick, cmds)
	return nil
}

func (s *Sync) OnInputBundle(fn BundleHandler) { s.handler = fn }

func (s *Sync) Poll(time.Time) {
	if s.ready() != nil {
		return
	}
	s.deliver(s.relay.Flush())
}

func (s *Sync) Rewind(tick uint64) { s.relay = NewRelay(tick) }

func (s *Sync) Disconnect() error {
	s.disconnect()
	return nil
}
