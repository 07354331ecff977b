package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/yuhuachang/mt7688-control-unit/internal/pkg/state"
	"github.com/yuhuachang/mt7688-control-unit/pkg/sockets"
)

var ErrHubURL = errors.New("hub url required")

const watchPingInterval = 30 * time.Second

// WatchCommand follows a hub's state stream and logs every snapshot.
func WatchCommand(ctx *cli.Context) error {
	logger, err := newLogger(ctx.String("log-level"))
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()
	return runWatch(ctx.Context, ctx.String("url"), logger)
}

func runWatch(ctx context.Context, url string, logger *zap.Logger) error {
	if url == "" {
		return ErrHubURL
	}

	conn := sockets.New(
		sockets.WithPingInterval(watchPingInterval),
		sockets.WithPingMsg([]byte("sync")),
		sockets.OnConnected(func(sockets.Connection) {
			logger.Info("connected", zap.String("url", url))
		}),
		sockets.OnMessage(func(b []byte, _ sockets.Connection) {
			logSnapshot(logger, b)
		}),
		sockets.OnError(func(err error) {
			logger.Warn("stream error", zap.Error(err))
		}),
	)
	if err := conn.Dial(ctx, url, ""); err != nil {
		return err
	}
	defer conn.Close()

	select {
	case <-ctx.Done():
		return nil
	case <-conn.Done():
		return sockets.ErrClosed
	}
}

func logSnapshot(logger *zap.Logger, b []byte) {
	var snap state.Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		logger.Warn("bad snapshot", zap.Error(err), zap.ByteString("body", b))
		return
	}
	ids := lo.Keys(snap)
	slices.Sort(ids)
	for _, id := range ids {
		us := snap[id]
		logger.Info("unit",
			zap.String("unit", id),
			zap.Strings("on", state.On(us.Latch)),
			zap.Int("known", len(us.Latch)),
		)
	}
}
