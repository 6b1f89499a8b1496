package snapshot

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"swarmcore.ai/internal/sim/ecs"
)

// Engine is the bridge surface a snapshot touches.
type Engine interface {
	TickCount() uint64
	Snapshot() ([]byte, error)
	LoadSnapshot(blob []byte) error
	RemapIDs(oldIDs, newIDs []uint32) error
}

type Manager struct {
	store *ecs.Store
	reg   *ecs.Registry
	eng   Engine
	log   *zap.Logger
	now   func() time.Time
}

func NewManager(store *ecs.Store, reg *ecs.Registry, eng Engine, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{store: store, reg: reg, eng: eng, log: log.Named("snapshot"), now: time.Now}
}

// CreateSnapshot captures every live entity, in identifier order, with only
// the registered components it actually carries, plus the engine blob.
func (m *Manager) CreateSnapshot() (GameSnapshot, error) {
	blob, err := m.eng.Snapshot()
	if err != nil {
		return GameSnapshot{}, fmt.Errorf("engine snapshot: %w", err)
	}
	snap := GameSnapshot{
		Header:     Header{Version: Version, Tick: m.eng.TickCount()},
		Timestamp:  m.now().UnixMilli(),
		EngineBlob: blob,
		Entities:   make([]EntitySnapshot, 0, m.store.Len()),
	}
	for _, id := range m.store.IDs() {
		e, ok := m.store.Entry(id)
		if !ok {
			continue
		}
		comps, err := m.reg.EncodeEntity(e)
		if err != nil {
			return GameSnapshot{}, fmt.Errorf("entity %d: %w", id, err)
		}
		snap.Entities = append(snap.Entities, EntitySnapshot{ID: uint32(id), Components: comps})
	}
	return snap, nil
}

// LoadSnapshot replaces the world with snap. Entities get fresh identifiers;
// the returned remap is what the engine was relabelled with. Components the
// registry does not know are skipped.
//
// Everything that can be rejected up front (version, duplicate ids,
// undecodable components, a bad engine blob) is rejected before the store is
// touched, so those errors leave the current world as it was. Only a failed
// engine relabel happens after the store was rebuilt; the world is then
// inconsistent and the caller must load another snapshot before ticking.
func (m *Manager) LoadSnapshot(snap GameSnapshot) (IdentifierRemap, error) {
	if snap.Header.Version != Version {
		return IdentifierRemap{}, fmt.Errorf("snapshot version %d not supported", snap.Header.Version)
	}
	seen := make(map[uint32]struct{}, len(snap.Entities))
	skipped := map[string]int{}
	for _, es := range snap.Entities {
		if _, dup := seen[es.ID]; dup {
			return IdentifierRemap{}, fmt.Errorf("%w: entity %d listed twice", ErrBadRemap, es.ID)
		}
		seen[es.ID] = struct{}{}
		for name, raw := range es.Components {
			c, ok := m.reg.Lookup(name)
			if !ok {
				skipped[name]++
				continue
			}
			if err := c.Check(raw); err != nil {
				return IdentifierRemap{}, fmt.Errorf("entity %d: %w", es.ID, err)
			}
		}
	}

	// The engine validates its blob before replacing anything.
	if err := m.eng.LoadSnapshot(snap.EngineBlob); err != nil {
		return IdentifierRemap{}, fmt.Errorf("engine restore: %w", err)
	}

	m.store.Reset()
	var remap IdentifierRemap
	for _, es := range snap.Entities {
		newID, e := m.store.Create()
		for _, name := range sortedNames(es.Components) {
			c, ok := m.reg.Lookup(name)
			if !ok {
				continue
			}
			if err := c.Attach(e, es.Components[name]); err != nil {
				return IdentifierRemap{}, fmt.Errorf("entity %d: %w", es.ID, err)
			}
		}
		remap.Add(es.ID, uint32(newID))
	}
	for name, n := range skipped {
		m.log.Warn("unknown component skipped on restore", zap.String("component", name), zap.Int("entities", n))
	}

	if err := remap.Validate(); err != nil {
		return IdentifierRemap{}, err
	}
	if remap.Len() > 0 {
		if err := m.eng.RemapIDs(remap.OldIDs, remap.NewIDs); err != nil {
			return IdentifierRemap{}, fmt.Errorf("engine remap: %w", err)
		}
	}
	m.log.Info("restored",
		zap.Uint64("tick", snap.Header.Tick),
		zap.Int("entities", remap.Len()),
		zap.Int64("taken_at_ms", snap.Timestamp))
	return remap, nil
}

func sortedNames(m map[string]json.RawMessage) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
