package hub

import (
	"context"

	"github.com/yuhuachang/mt7688-control-unit/internal/pkg/state"
)

// Fanout publishes the store's snapshot from a single goroutine. Notify only
// marks the state dirty; Run reads the latest snapshot for every publish.
type Fanout struct {
	snapshot func() state.Snapshot
	publish  SnapshotPublisher
	pending  chan struct{}
}

func NewFanout(snapshot func() state.Snapshot, publish SnapshotPublisher) *Fanout {
	return &Fanout{
		snapshot: snapshot,
		publish:  publish,
		pending:  make(chan struct{}, 1),
	}
}

// Notify requests a publish. Requests made while one is pending coalesce.
func (f *Fanout) Notify() {
	select {
	case f.pending <- struct{}{}:
	default:
	}
}

// Run publishes on every notification until ctx is done.
func (f *Fanout) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-f.pending:
			f.publish.PublishSnapshot(ctx, f.snapshot())
		}
	}
}
