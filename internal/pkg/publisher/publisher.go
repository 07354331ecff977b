package publisher

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/yuhuachang/mt7688-control-unit/internal/pkg/state"
)

var ErrAlreadyRegistered = errors.New("publisher already registered")

// Publisher is a sink for state snapshots.
type Publisher interface {
	Publish(ctx context.Context, snap state.Snapshot) error
}

// Registry fans one snapshot out to every registered sink.
type Registry struct {
	mu         sync.RWMutex
	publishers map[string]Publisher
	logger     *zap.Logger
}

func NewRegistry() *Registry {
	return &Registry{publishers: make(map[string]Publisher), logger: zap.L()}
}

func (r *Registry) Register(name string, p Publisher) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.publishers[name]; ok {
		return ErrAlreadyRegistered
	}
	r.publishers[name] = p
	return nil
}

// Names returns the registered sinks in publish order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := lo.Keys(r.publishers)
	slices.Sort(names)
	return names
}

// PublishSnapshot hands snap to every sink. A failing sink is logged and
// does not stop the others.
func (r *Registry) PublishSnapshot(ctx context.Context, snap state.Snapshot) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := lo.Keys(r.publishers)
	slices.Sort(names)
	for _, name := range names {
		if err := r.publishers[name].Publish(ctx, snap); err != nil {
			r.logger.Error("failed to publish snapshot", zap.Error(err), zap.String("publisher", name))
			continue
		}
		r.logger.Debug("published snapshot", zap.Int("units", len(snap)), zap.String("publisher", name))
	}
}
