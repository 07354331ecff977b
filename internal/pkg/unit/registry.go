package unit

import (
	"errors"
	"fmt"
	"slices"

	"github.com/samber/lo"

	"github.com/yuhuachang/mt7688-control-unit/internal/pkg/config"
	"github.com/yuhuachang/mt7688-control-unit/pkg/protocol"
)

var ErrUnknownUnit = errors.New("unknown unit")

// Registry maps unit ids to their adapters. It is built once from the
// registration table and never mutated.
type Registry struct {
	adapters map[string]*Adapter
}

func NewRegistry(reg *config.Registration) *Registry {
	r := &Registry{adapters: make(map[string]*Adapter)}
	if reg == nil {
		return r
	}
	for id, u := range reg.Units {
		r.adapters[id] = NewAdapter(id, u.ByteCount)
	}
	return r
}

// Get returns the adapter for id, including units without a byte width.
func (r *Registry) Get(id string) (*Adapter, error) {
	a, ok := r.adapters[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUnit, id)
	}
	return a, nil
}

// Lookup returns an adapter able to encode for id.
func (r *Registry) Lookup(id string) (*Adapter, error) {
	a, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if a.ByteCount() == 0 {
		return nil, fmt.Errorf("unit %s: %w", id, protocol.ErrUnitByteCountUnset)
	}
	return a, nil
}

// IDs returns the registered unit ids in sorted order.
func (r *Registry) IDs() []string {
	ids := lo.Keys(r.adapters)
	slices.Sort(ids)
	return ids
}
