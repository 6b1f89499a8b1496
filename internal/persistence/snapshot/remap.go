package snapshot

import (
	"errors"
	"fmt"
)

var ErrBadRemap = errors.New("snapshot: identifier remap is not a bijection")

// IdentifierRemap pairs OldIDs[i] with NewIDs[i]. It is produced by a restore
// and handed once to the engine.
type IdentifierRemap struct {
	OldIDs []uint32 `json:"old_ids"`
	NewIDs []uint32 `json:"new_ids"`
}

func (m *IdentifierRemap) Add(oldID, newID uint32) {
	m.OldIDs = append(m.OldIDs, oldID)
	m.NewIDs = append(m.NewIDs, newID)
}

func (m IdentifierRemap) Len() int { return len(m.OldIDs) }

// Lookup returns the new id for oldID.
func (m IdentifierRemap) Lookup(oldID uint32) (uint32, bool) {
	for i, o := range m.OldIDs {
		if o == oldID {
			return m.NewIDs[i], true
		}
	}
	return 0, false
}

func (m IdentifierRemap) Validate() error {
	if len(m.OldIDs) != len(m.NewIDs) {
		return fmt.Errorf("%w: %d old vs %d new", ErrBadRemap, len(m.OldIDs), len(m.NewIDs))
	}
	seenOld := make(map[uint32]struct{}, len(m.OldIDs))
	seenNew := make(map[uint32]struct{}, len(m.NewIDs))
	for i := range m.OldIDs {
		if _, dup := seenOld[m.OldIDs[i]]; dup {
			return fmt.Errorf("%w: duplicate old id %d", ErrBadRemap, m.OldIDs[i])
		}
		if _, dup := seenNew[m.NewIDs[i]]; dup {
			return fmt.Errorf("%w: duplicate new id %d", ErrBadRemap, m.NewIDs[i])
		}
		seenOld[m.OldIDs[i]] = struct{}{}
		seenNew[m.NewIDs[i]] = struct{}{}
	}
	return nil
}
