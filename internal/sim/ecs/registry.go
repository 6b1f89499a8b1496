package ecs

import (
	"encoding/json"
	"fmt"

	"github.com/yohamta/donburi"
)

// ComponentCodec moves one component type between an entity and JSON.
type ComponentCodec interface {
	Name() string
	Has(e *donburi.Entry) bool
	Encode(e *donburi.Entry) (json.RawMessage, error)
	// Inspect never fails: values JSON cannot carry (NaN, ±Inf) come back as
	// a JSON string of the Go value.
	Inspect(e *donburi.Entry) json.RawMessage
	// Check reports whether raw would Attach cleanly, without touching any
	// entity.
	Check(raw json.RawMessage) error
	Attach(e *donburi.Entry, raw json.RawMessage) error
}

type codec[T any] struct {
	name string
	ct   *donburi.ComponentType[T]
}

func Codec[T any](name string, ct *donburi.ComponentType[T]) ComponentCodec {
	return codec[T]{name: name, ct: ct}
}

func (c codec[T]) Name() string { return c.name }

func (c codec[T]) Has(e *donburi.Entry) bool { return e.HasComponent(c.ct) }

func (c codec[T]) Encode(e *donburi.Entry) (json.RawMessage, error) {
	b, err := json.Marshal(c.ct.Get(e))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.name, err)
	}
	return b, nil
}

func (c codec[T]) Inspect(e *donburi.Entry) json.RawMessage {
	v := c.ct.Get(e)
	if b, err := json.Marshal(v); err == nil {
		return b
	}
	b, _ := json.Marshal(fmt.Sprintf("%+v", *v))
	return b
}

func (c codec[T]) decode(raw json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", c.name, err)
	}
	return v, nil
}

func (c codec[T]) Check(raw json.RawMessage) error {
	_, err := c.decode(raw)
	return err
}

func (c codec[T]) Attach(e *donburi.Entry, raw json.RawMessage) error {
	v, err := c.decode(raw)
	if err != nil {
		return err
	}
	if !e.HasComponent(c.ct) {
		e.AddComponent(c.ct)
	}
	c.ct.SetValue(e, v)
	return nil
}

// Registry maps component names to codecs. It is built by the caller and
// passed to whatever needs it; there is no package-level instance.
type Registry struct {
	byName map[string]ComponentCodec
	order  []string
}

func NewRegistry() *Registry {
	return &Registry{byName: map[string]ComponentCodec{}}
}

func (r *Registry) Register(c ComponentCodec) error {
	if _, dup := r.byName[c.Name()]; dup {
		return fmt.Errorf("component %q already registered", c.Name())
	}
	r.byName[c.Name()] = c
	r.order = append(r.order, c.Name())
	return nil
}

func (r *Registry) MustRegister(cs ...ComponentCodec) *Registry {
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
	return r
}

func (r *Registry) Lookup(name string) (ComponentCodec, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// Names returns component names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// EncodeEntity serializes only the registered components present on e.
func (r *Registry) EncodeEntity(e *donburi.Entry) (map[string]json.RawMessage, error) {
	out := map[string]json.RawMessage{}
	for _, name := range r.order {
		c := r.byName[name]
		if !c.Has(e) {
			continue
		}
		raw, err := c.Encode(e)
		if err != nil {
			return nil, err
		}
		out[name] = raw
	}
	return out, nil
}

func DefaultRegistry() *Registry {
	return NewRegistry().MustRegister(
		Codec("Position", Position),
		Codec("PrevPosition", PrevPosition),
		Codec("Velocity", Velocity),
		Codec("Unit", Unit),
		Codec("Owner", Owner),
		Codec("Health", Health),
	)
}

// Dump renders every registered component of id, for diagnostics. Each
// component is rendered on its own so one bad value never hides the rest.
func Dump(s *Store, r *Registry, id EntityID) map[string]json.RawMessage {
	e, ok := s.Entry(id)
	if !ok {
		return nil
	}
	out := map[string]json.RawMessage{}
	for _, name := range r.order {
		c := r.byName[name]
		if c.Has(e) {
			out[name] = c.Inspect(e)
		}
	}
	return out
}
