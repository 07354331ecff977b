package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yuhuachang/mt7688-control-unit/internal/pkg/bridge"
	"github.com/yuhuachang/mt7688-control-unit/internal/pkg/config"
	"github.com/yuhuachang/mt7688-control-unit/internal/pkg/hub"
	"github.com/yuhuachang/mt7688-control-unit/internal/pkg/mqtt"
	"github.com/yuhuachang/mt7688-control-unit/internal/pkg/publisher"
	"github.com/yuhuachang/mt7688-control-unit/internal/pkg/reconcile"
	"github.com/yuhuachang/mt7688-control-unit/internal/pkg/serial"
	"github.com/yuhuachang/mt7688-control-unit/internal/pkg/server"
	"github.com/yuhuachang/mt7688-control-unit/internal/pkg/state"
	"github.com/yuhuachang/mt7688-control-unit/internal/pkg/unit"
	"github.com/yuhuachang/mt7688-control-unit/internal/pkg/webhook"
)

const shutdownTimeout = 5 * time.Second

func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = ctx.String("log-level")
	cfg.ListenAddr = ctx.String("listen")
	return cfg, nil
}

// BridgeCommand runs the MPU-side bridge for the unit named by the config id.
func BridgeCommand(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if err := config.ValidateBridge(cfg.Registration); err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync() // flushes buffer, if any.
	}()

	port, err := serial.Open(cfg.Registration.Serial)
	if err != nil {
		return err
	}
	return runBridge(ctx.Context, cfg, port, logger)
}

// HubCommand runs the server-side hub.
func HubCommand(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	var snapshotSink SnapshotSink
	if cfg.Settings.MQTT.Host != "" {
		snapshotSink = mqtt.New(mqtt.NewClient(cfg.Settings.MQTT), cfg.Settings.MQTT.Topic)
	}
	return runHub(ctx.Context, cfg, logger, snapshotSink)
}

func newLogger(level string) (*zap.Logger, error) {
	var err error
	logCfg := zap.NewProductionConfig()

	logCfg.Level, err = zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	logCfg.OutputPaths = []string{"stdout"}
	logCfg.ErrorOutputPaths = []string{"stdout"}
	logCfg.Sampling = nil
	return logCfg.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
}

func runBridge(ctx context.Context, cfg *config.Config, port SerialPort, logger *zap.Logger) error {
	zap.ReplaceGlobals(logger)
	reg := cfg.Registration

	adapter, err := unit.NewRegistry(reg).Lookup(reg.ID)
	if err != nil {
		_ = port.Close()
		return err
	}
	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		_ = port.Close()
		return err
	}

	client := webhook.New(reg, cfg.Settings.WebhookTimeout)
	b := bridge.New(adapter, port, client)
	srv := newHTTPServer(server.NewBridgeRouter(b, reg))

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return b.Run(ctx, port.Chunks(ctx))
	})

	eg.Go(func() error {
		logger.Info("bridge listening", zap.String("addr", ln.Addr().String()), zap.String("unit", reg.ID), zap.String("serial", reg.Serial.Port))
		return serve(srv, ln)
	})

	eg.Go(func() error {
		<-ctx.Done()
		logger.Info("context done")
		shutdown(srv)
		client.Wait()
		return port.Close()
	})

	return eg.Wait()
}

func runHub(ctx context.Context, cfg *config.Config, logger *zap.Logger, sink SnapshotSink) error {
	zap.ReplaceGlobals(logger)
	reg := cfg.Registration
	settings := cfg.Settings

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return err
	}

	units := unit.NewRegistry(reg)
	store := state.NewStore()
	client := webhook.New(reg, settings.WebhookTimeout)
	engine := reconcile.New(units, store, client, settings.WebhookTimeout)

	subs := hub.NewSubscribers(store.Snapshot)
	pubs := publisher.NewRegistry()
	if err := pubs.Register("websocket", subs); err != nil {
		_ = ln.Close()
		return err
	}
	if sink != nil {
		if err := sink.Connect(); err != nil {
			_ = ln.Close()
			return err
		}
		if err := pubs.Register("mqtt", sink); err != nil {
			_ = ln.Close()
			return err
		}
	}

	fanout := hub.NewFanout(store.Snapshot, pubs)
	subs.OnResync(fanout.Notify)
	ingestor := hub.NewIngestor(units, store, engine, fanout)
	syncer := hub.NewSyncer(syncTargets(reg), client)

	addresses, err := server.LocalAddresses()
	if err != nil {
		logger.Warn("failed to list local addresses", zap.Error(err))
	}
	srv := newHTTPServer(server.NewHubRouter(ingestor, engine, store, subs, server.HubOptions{
		StaticDir: settings.StaticDir,
		Port:      listenPort(ln.Addr()),
		Addresses: addresses,
	}))

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		logger.Info("hub listening", zap.String("addr", ln.Addr().String()), zap.Strings("units", units.IDs()), zap.Strings("publishers", pubs.Names()))
		return serve(srv, ln)
	})

	eg.Go(func() error {
		return fanout.Run(ctx)
	})

	eg.Go(func() error {
		schedule := settings.SyncSchedule
		if settings.SyncDisabled() {
			schedule = ""
		}
		return syncer.Run(ctx, schedule)
	})

	eg.Go(func() error {
		<-ctx.Done()
		logger.Info("context done")
		shutdown(srv)
		subs.Close()
		engine.Wait()
		client.Wait()
		return ctx.Err()
	})

	return eg.Wait()
}

// syncTargets lists the units the hub can reach over HTTP.
func syncTargets(reg *config.Registration) []string {
	ids := lo.Keys(lo.PickBy(reg.Units, func(_ string, u config.UnitConfig) bool {
		return u.Host != ""
	}))
	slices.Sort(ids)
	return ids
}

func newHTTPServer(h http.Handler) *http.Server {
	return &http.Server{
		Handler:      h,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}
}

func serve(srv *http.Server, ln net.Listener) error {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zap.L().Error("http shutdown", zap.Error(err))
	}
}

func listenPort(addr net.Addr) int {
	_, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return 0
	}
	p, _ := strconv.Atoi(port)
	return p
}
