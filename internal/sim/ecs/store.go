package ecs

import (
	"sort"

	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/component"
)

type EntityID uint32

// Store is the observable entity store. Components live in a donburi world;
// identifiers are issued here, start at 1 and are never reused by one Store,
// so entities recreated after Reset always get new identifiers.
type Store struct {
	world donburi.World
	ents  map[EntityID]donburi.Entity
	next  EntityID
}

func NewStore() *Store {
	return &Store{
		world: donburi.NewWorld(),
		ents:  map[EntityID]donburi.Entity{},
		next:  1,
	}
}

func (s *Store) World() donburi.World { return s.world }

func (s *Store) Create(components ...component.IComponentType) (EntityID, *donburi.Entry) {
	id := s.next
	s.next++
	return id, s.create(id, components)
}

func (s *Store) create(id EntityID, components []component.IComponentType) *donburi.Entry {
	cts := append([]component.IComponentType{Identity}, components...)
	e := s.world.Create(cts...)
	s.ents[id] = e
	entry := s.world.Entry(e)
	Identity.SetValue(entry, IdentityData{ID: id})
	return entry
}

// Ensure returns the entity with id, creating a bare one if it is unknown.
// The allocator skips past id so later Create calls cannot collide with it.
func (s *Store) Ensure(id EntityID) *donburi.Entry {
	if e, ok := s.ents[id]; ok {
		return s.world.Entry(e)
	}
	if id >= s.next {
		s.next = id + 1
	}
	return s.create(id, nil)
}

func (s *Store) Entry(id EntityID) (*donburi.Entry, bool) {
	e, ok := s.ents[id]
	if !ok || !s.world.Valid(e) {
		return nil, false
	}
	return s.world.Entry(e), true
}

func (s *Store) Has(id EntityID) bool {
	_, ok := s.Entry(id)
	return ok
}

func (s *Store) Destroy(id EntityID) bool {
	e, ok := s.ents[id]
	if !ok {
		return false
	}
	delete(s.ents, id)
	if s.world.Valid(e) {
		s.world.Remove(e)
	}
	return true
}

// Reset destroys every entity. The identifier allocator keeps counting.
func (s *Store) Reset() {
	for _, id := range s.IDs() {
		s.Destroy(id)
	}
}

// IDs returns live identifiers in ascending order.
func (s *Store) IDs() []EntityID {
	out := make([]EntityID, 0, len(s.ents))
	for id := range s.ents {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Store) Len() int { return len(s.ents) }

// NextID is the identifier the next Create will return.
func (s *Store) NextID() EntityID { return s.next }
