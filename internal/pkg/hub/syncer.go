package hub

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SyncRequester asks a unit to report its latch state.
type SyncRequester interface {
	RequestSync(ctx context.Context, unit string) error
}

// Syncer refreshes latch state from every reachable unit.
type Syncer struct {
	units  []string
	client SyncRequester
	logger *zap.Logger
}

func NewSyncer(units []string, client SyncRequester) *Syncer {
	return &Syncer{units: units, client: client, logger: zap.L()}
}

// SyncAll sends one sync request per unit. Failures are logged.
func (s *Syncer) SyncAll(ctx context.Context) int {
	failed := 0
	for _, id := range s.units {
		if err := s.client.RequestSync(ctx, id); err != nil {
			failed++
			s.logger.Warn("sync request failed", zap.String("unit", id), zap.Error(err))
			continue
		}
		s.logger.Debug("sync requested", zap.String("unit", id))
	}
	return failed
}

// Run syncs once, then on schedule until ctx is done. An empty schedule
// syncs once and returns.
func (s *Syncer) Run(ctx context.Context, schedule string) error {
	s.SyncAll(ctx)
	if schedule == "" {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		s.SyncAll(ctx)
	}); err != nil {
		return fmt.Errorf("sync schedule %q: %w", schedule, err)
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
