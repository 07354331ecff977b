// Package hub is the server side of the control network. It ingests frames
// forwarded by the bridges, keeps the canonical state, drives the
// reconciliation engine and fans state out to subscribers.
package hub

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/yuhuachang/mt7688-control-unit/internal/pkg/state"
	"github.com/yuhuachang/mt7688-control-unit/internal/pkg/unit"
	"github.com/yuhuachang/mt7688-control-unit/pkg/protocol"
)

// Reconciler reacts to switch deltas.
type Reconciler interface {
	OnSwitchDelta(unit string, delta map[string]bool) error
}

// SnapshotPublisher receives the state after every ingested batch.
type SnapshotPublisher interface {
	PublishSnapshot(ctx context.Context, snap state.Snapshot)
}

// Notifier is told that the store changed. It must not block.
type Notifier interface {
	Notify()
}

// Ingestor applies frames reported by units. Batches of one unit are
// applied in order; different units proceed in parallel.
type Ingestor struct {
	units     *unit.Registry
	store     *state.Store
	reconcile Reconciler
	changed   Notifier
	locks     map[string]*sync.Mutex
	logger    *zap.Logger
}

func NewIngestor(units *unit.Registry, store *state.Store, reconcile Reconciler, changed Notifier) *Ingestor {
	locks := make(map[string]*sync.Mutex)
	for _, id := range units.IDs() {
		locks[id] = &sync.Mutex{}
	}
	return &Ingestor{
		units:     units,
		store:     store,
		reconcile: reconcile,
		changed:   changed,
		locks:     locks,
		logger:    zap.L(),
	}
}

// Ingest decodes data as frames of unitID and applies them. Frames decoded
// before a failure stay applied and are announced; the failure is returned.
func (i *Ingestor) Ingest(ctx context.Context, unitID string, data []byte) ([]unit.Event, error) {
	adapter, err := i.units.Get(unitID)
	if err != nil {
		return nil, err
	}

	mu := i.locks[unitID]
	mu.Lock()
	defer mu.Unlock()

	var (
		events    []unit.Event
		decodeErr error
	)
	for ev, err := range adapter.DecodeIncoming(data) {
		if err != nil {
			decodeErr = err
			break
		}
		i.apply(ev)
		events = append(events, ev)
	}

	if decodeErr != nil {
		i.logger.Warn("frame decode failed", zap.String("unit", unitID), zap.Int("applied", len(events)), zap.Error(decodeErr))
	}
	if len(events) > 0 {
		i.changed.Notify()
	}
	return events, decodeErr
}

func (i *Ingestor) apply(ev unit.Event) {
	switch ev.Kind {
	case protocol.KindLatch:
		i.store.ApplyLatch(ev.Unit, ev.State)
		i.logger.Info("latch state", zap.String("unit", ev.Unit), zap.Strings("on", state.On(ev.State)))
	case protocol.KindSwitch:
		i.store.ApplySwitchDelta(ev.Unit, ev.State)
		i.logger.Info("switch delta", zap.String("unit", ev.Unit), zap.Any("delta", ev.State))
		if err := i.reconcile.OnSwitchDelta(ev.Unit, ev.State); err != nil {
			i.logger.Error("reconcile failed", zap.String("unit", ev.Unit), zap.Error(err))
		}
	}
}
