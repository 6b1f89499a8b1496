package bridge

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"swarmcore.ai/internal/logging"
	"swarmcore.ai/internal/protocol"
)

var ErrNotReady = errors.New("bridge: engine not ready")

// Engine is the contract of the opaque deterministic simulation. This is the
// seam where a process or language boundary would sit.
type Engine interface {
	AddAgent(id uint32, x, y, radius, maxSpeed float64) error
	Tick(cmds []protocol.InputCommand)
	// StateBuffer returns engine-owned memory laid out as Stride-wide records.
	StateBuffer() []float64
	// Generation changes whenever buffers returned earlier may no longer be valid.
	Generation() uint64
	TickCount() uint64
	AgentCount() int
	Snapshot() ([]byte, error)
	LoadSnapshot(blob []byte) error
	RemapIDs(oldIDs, newIDs []uint32) error
}

type Factory func() (Engine, error)

type Bridge struct {
	log     *zap.Logger
	factory Factory

	eng      Engine
	initDone bool
	initErr  error
	warned   bool
}

func New(factory Factory, logger *zap.Logger) *Bridge {
	return &Bridge{factory: factory, log: logging.OrNop(logger).Named("bridge")}
}

// Init constructs the engine once. A failed Init leaves the bridge unusable:
// later calls return the same error and every operation reports ErrNotReady.
func (b *Bridge) Init() error {
	if b.initDone {
		return b.initErr
	}
	b.initDone = true
	if b.factory == nil {
		b.initErr = fmt.Errorf("%w: no engine factory", ErrNotReady)
		return b.initErr
	}
	eng, err := b.factory()
	if err != nil {
		b.initErr = fmt.Errorf("%w: %v", ErrNotReady, err)
		b.log.Error("engine init failed", zap.Error(err))
		return b.initErr
	}
	if eng == nil {
		b.initErr = fmt.Errorf("%w: factory returned nil engine", ErrNotReady)
		return b.initErr
	}
	b.eng = eng
	return nil
}

func (b *Bridge) Ready() bool { return b.eng != nil }

func (b *Bridge) notReady(op string) error {
	if !b.warned {
		b.warned = true
		b.log.Warn("call before engine is ready", zap.String("op", op))
	}
	return ErrNotReady
}

func (b *Bridge) AddAgent(id uint32, x, y, radius, maxSpeed float64) error {
	if !b.Ready() {
		return b.notReady("add_agent")
	}
	return b.eng.AddAgent(id, x, y, radius, maxSpeed)
}

// Tick advances the engine exactly one step. Every StateView taken before the
// call is invalid afterwards.
func (b *Bridge) Tick(cmds []protocol.InputCommand) error {
	if !b.Ready() {
		return b.notReady("tick")
	}
	b.eng.Tick(cmds)
	return nil
}

func (b *Bridge) TickCount() uint64 {
	if !b.Ready() {
		return 0
	}
	return b.eng.TickCount()
}

// StateBuffer re-acquires the engine buffer. It returns the empty view when
// the engine is not ready, has no agents, or reports a malformed length.
func (b *Bridge) StateBuffer() StateView {
	if !b.Ready() {
		return StateView{}
	}
	n := b.eng.AgentCount()
	if n == 0 {
		return StateView{}
	}
	buf := b.eng.StateBuffer()
	if len(buf) != n*Stride {
		b.log.Warn("state buffer length mismatch; treating as no data",
			zap.Int("len", len(buf)), zap.Int("agents", n), zap.Int("stride", Stride))
		return StateView{}
	}
	return StateView{buf: buf, gen: b.eng.Generation(), src: b}
}

// WithState lends a view for the duration of fn. fn must not keep it.
func (b *Bridge) WithState(fn func(StateView)) {
	fn(b.StateBuffer())
}

func (b *Bridge) Snapshot() ([]byte, error) {
	if !b.Ready() {
		return nil, b.notReady("snapshot")
	}
	return b.eng.Snapshot()
}

func (b *Bridge) LoadSnapshot(blob []byte) error {
	if !b.Ready() {
		return b.notReady("load_snapshot")
	}
	return b.eng.LoadSnapshot(blob)
}

// RemapIDs relabels engine agents after a restore so that later state buffers
// carry the observable store's fresh identifiers.
func (b *Bridge) RemapIDs(oldIDs, newIDs []uint32) error {
	if !b.Ready() {
		return b.notReady("remap_ids")
	}
	if len(oldIDs) == 0 && len(newIDs) == 0 {
		return nil
	}
	return b.eng.RemapIDs(oldIDs, newIDs)
}

// StateDigest hashes the engine tick and the raw bits of the state buffer.
// Participants in lockstep must produce equal digests for equal ticks.
func (b *Bridge) StateDigest() string {
	h := sha256.New()
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], b.TickCount())
	h.Write(tmp[:])
	v := b.StateBuffer()
	for _, f := range v.buf {
		binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(f))
		h.Write(tmp[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
