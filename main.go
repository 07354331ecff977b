package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/yuhuachang/mt7688-control-unit/cmd"
)

func main() {
	configFlag := &cli.StringFlag{
		Name:    "config",
		EnvVars: []string{"CONFIG_FILE"},
		Value:   "config.yaml",
	}
	listenFlag := &cli.StringFlag{
		Name:    "listen",
		EnvVars: []string{"LISTEN_ADDR"},
		Value:   "0.0.0.0:8080",
	}

	app := &cli.App{
		Name:  "mt7688",
		Usage: "bridge and hub for MT7688 relay control units",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "INFO",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "bridge",
				Usage:  "relay one unit's serial line to the hub",
				Action: cmd.BridgeCommand,
				Flags:  []cli.Flag{configFlag, listenFlag},
			},
			{
				Name:   "hub",
				Usage:  "aggregate unit state and drive switch-to-latch reconciliation",
				Action: cmd.HubCommand,
				Flags:  []cli.Flag{configFlag, listenFlag},
			},
			{
				Name:   "watch",
				Usage:  "follow a hub's live state stream",
				Action: cmd.WatchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "url",
						EnvVars:  []string{"HUB_URL"},
						Required: true,
					},
				},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}
