package bridge

import "go.uber.org/zap"

// Stride is the number of float64 fields per StateRecord.
const Stride = 5

// StateRecord is one agent's row in the state buffer. Rows are not ordered by ID.
type StateRecord struct {
	ID   uint32
	PosX float64
	PosY float64
	VelX float64
	VelY float64
}

// StateView is a read window over engine-owned memory, tagged with the engine
// generation it was taken at. Every accessor re-checks the generation; a view
// that outlived its generation reads as empty instead of through stale memory.
type StateView struct {
	buf []float64
	gen uint64
	src *Bridge
}

func (v StateView) Valid() bool {
	if v.src == nil || !v.src.Ready() {
		return false
	}
	if cur := v.src.eng.Generation(); cur != v.gen {
		v.src.log.Warn("stale state view read; returning no data",
			zap.Uint64("view_generation", v.gen), zap.Uint64("engine_generation", cur))
		return false
	}
	return true
}

// Len is the number of records, 0 for an empty or stale view.
func (v StateView) Len() int {
	if len(v.buf) == 0 || !v.Valid() {
		return 0
	}
	return len(v.buf) / Stride
}

func (v StateView) Record(i int) (StateRecord, bool) {
	if i < 0 || i >= v.Len() {
		return StateRecord{}, false
	}
	r := v.buf[i*Stride : i*Stride+Stride]
	return StateRecord{ID: uint32(r[0]), PosX: r[1], PosY: r[2], VelX: r[3], VelY: r[4]}, true
}

// Each visits every record in buffer order; it stops early if the view goes stale.
func (v StateView) Each(fn func(StateRecord)) {
	n := v.Len()
	for i := 0; i < n; i++ {
		rec, ok := v.Record(i)
		if !ok {
			return
		}
		fn(rec)
	}
}

// Find returns the record for id by scanning the identifier field.
func (v StateView) Find(id uint32) (StateRecord, bool) {
	var out StateRecord
	found := false
	v.Each(func(r StateRecord) {
		if !found && r.ID == id {
			out, found = r, true
		}
	})
	return out, found
}
