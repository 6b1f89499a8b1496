// Package systems runs the per-tick system list and turns failures into
// diagnosable, loop-halting errors.
package systems

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"swarmcore.ai/internal/sim/ecs"
)

type Func func(tick uint64) error

// EntityError attributes a system failure to one entity so the runner can
// attach that entity's component dump.
type EntityError struct {
	Entity ecs.EntityID
	Err    error
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("entity %d: %v", e.Entity, e.Err)
}

func (e *EntityError) Unwrap() error { return e.Err }

func AtEntity(id ecs.EntityID, err error) error {
	if err == nil {
		return nil
	}
	return &EntityError{Entity: id, Err: err}
}

type TickError struct {
	Tick   uint64
	System string
	Entity *ecs.EntityID
	Dump   map[string]json.RawMessage
	Err    error
}

func (e *TickError) Error() string {
	if e.Entity != nil {
		return fmt.Sprintf("tick %d: system %s: entity %d: %v", e.Tick, e.System, *e.Entity, e.Err)
	}
	return fmt.Sprintf("tick %d: system %s: %v", e.Tick, e.System, e.Err)
}

func (e *TickError) Unwrap() error { return e.Err }

type entry struct {
	name string
	fn   Func
}

type Runner struct {
	store *ecs.Store
	reg   *ecs.Registry
	log   *zap.Logger
	list  []entry
}

func NewRunner(store *ecs.Store, reg *ecs.Registry, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{store: store, reg: reg, log: log.Named("systems")}
}

func (r *Runner) Add(name string, fn Func) *Runner {
	r.list = append(r.list, entry{name: name, fn: fn})
	return r
}

func (r *Runner) Names() []string {
	out := make([]string, len(r.list))
	for i, e := range r.list {
		out[i] = e.name
	}
	return out
}

// Run calls each system in order and stops at the first failure. A panic
// inside a system is recovered and reported the same way as a returned error.
func (r *Runner) Run(tick uint64) error {
	for _, s := range r.list {
		if err := r.call(s, tick); err != nil {
			return r.fail(tick, s.name, err)
		}
	}
	return nil
}

func (r *Runner) call(s entry, tick uint64) (err error) {
	defer func() {
		if p := recover(); p != nil {
			if pe, ok := p.(error); ok {
				err = eris.Wrap(pe, "system panicked")
			} else {
				err = eris.Errorf("system panicked: %v", p)
			}
		}
	}()
	if err := s.fn(tick); err != nil {
		return eris.Wrap(err, "system failed")
	}
	return nil
}

func (r *Runner) fail(tick uint64, system string, err error) error {
	te := &TickError{Tick: tick, System: system, Err: err}
	fields := []zap.Field{
		zap.Uint64("tick", tick),
		zap.String("system", system),
		zap.String("trace", eris.ToString(err, true)),
	}
	var ee *EntityError
	if errors.As(err, &ee) {
		id := ee.Entity
		te.Entity = &id
		if r.store != nil && r.reg != nil {
			te.Dump = ecs.Dump(r.store, r.reg, id)
		}
		fields = append(fields, zap.Uint32("entity", uint32(id)), zap.Any("components", te.Dump))
	}
	r.log.Error("tick aborted", fields...)
	return te
}
