// Package netadapter moves local input to the authoritative relay and
// authoritative tick bundles back.
//
// Every adapter is pumped: bundle callbacks only fire from inside Poll, on the
// goroutine that calls Poll. After Disconnect no callback fires again.
package netadapter

import (
	"context"
	"errors"
	"time"

	"swarmcore.ai/internal/protocol"
)

type Kind string

const (
	KindLocal  Kind = "local"
	KindSync   Kind = "sync"
	KindRemote Kind = "remote"
)

var (
	ErrDisconnected = errors.New("netadapter: disconnected")
	ErrNotConnected = errors.New("netadapter: not connected")
)

type BundleHandler func(protocol.TickBundle)

type Adapter interface {
	Kind() Kind
	Connect(ctx context.Context) error
	SendInput(tick uint64, cmds []protocol.InputCommand) error
	OnInputBundle(fn BundleHandler)
	Poll(now time.Time)
	Disconnect() error
}

// Rewinder is implemented by adapters that own their relay. Rewind restarts
// the relay at tick and discards everything in flight; it is used after a
// snapshot restore moved the local timeline.
type Rewinder interface {
	Rewind(tick uint64)
}

// state is the connect/disconnect lifecycle shared by the in-process adapters.
type state struct {
	connected bool
	closed    bool
	handler   BundleHandler
}

func (s *state) connect() error {
	if s.closed {
		return ErrDisconnected
	}
	s.connected = true
	return nil
}

func (s *state) ready() error {
	if s.closed {
		return ErrDisconnected
	}
	if !s.connected {
		return ErrNotConnected
	}
	return nil
}

func (s *state) deliver(b protocol.TickBundle) {
	if s.closed || !s.connected || s.handler == nil {
		return
	}
	s.handler(b)
}

func (s *state) disconnect() {
	s.closed = true
	s.connected = false
	s.handler = nil
}
