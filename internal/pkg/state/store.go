package state

import (
	"maps"
	"slices"
	"sync"

	"github.com/samber/lo"
)

// UnitState is the last known state of one unit.
type UnitState struct {
	Latch  map[string]bool `json:"latch,omitempty"`
	Switch map[string]bool `json:"switch,omitempty"`
}

// Snapshot is a point-in-time copy of every unit's state, keyed by unit id.
type Snapshot map[string]UnitState

// Store holds the canonical latch and switch state of every unit.
// Latch frames replace a unit's latch map; switch deltas merge into it.
type Store struct {
	mu    sync.RWMutex
	units map[string]*UnitState
}

func NewStore() *Store {
	return &Store{units: make(map[string]*UnitState)}
}

func (s *Store) unit(id string) *UnitState {
	u, ok := s.units[id]
	if !ok {
		u = &UnitState{}
		s.units[id] = u
	}
	return u
}

// ApplyLatch replaces the latch state of unit with a copy of latch.
func (s *Store) ApplyLatch(unit string, latch map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unit(unit).Latch = maps.Clone(latch)
}

// ApplySwitchDelta merges delta into the switch state of unit. Keys not in
// delta keep their previous value.
func (s *Store) ApplySwitchDelta(unit string, delta map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.unit(unit)
	if u.Switch == nil {
		u.Switch = make(map[string]bool, len(delta))
	}
	maps.Copy(u.Switch, delta)
}

// Latch returns the last reported latch value of key. known is false when
// the unit has not reported it yet.
func (s *Store) Latch(unit, key string) (value, known bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.units[unit]
	if !ok {
		return false, false
	}
	value, known = u.Latch[key]
	return value, known
}

// Snapshot returns a deep copy safe to use without holding the store.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := make(Snapshot, len(s.units))
	for id, u := range s.units {
		snap[id] = UnitState{
			Latch:  maps.Clone(u.Latch),
			Switch: maps.Clone(u.Switch),
		}
	}
	return snap
}

// Units returns the ids of every unit that has reported state, sorted.
func (s *Store) Units() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := lo.Keys(s.units)
	slices.Sort(ids)
	return ids
}

// On returns the keys of a state map that are true, sorted.
func On(m map[string]bool) []string {
	keys := lo.Keys(lo.PickBy(m, func(_ string, v bool) bool { return v }))
	slices.Sort(keys)
	return keys
}
