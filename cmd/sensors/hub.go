package main

import (
	"context"
	"encoding/hex"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/sensorhub/board"
	"github.com/mklimuk/sensorhub/cmd/sensors/console"
	"github.com/mklimuk/sensorhub/config"
	"github.com/mklimuk/sensorhub/hub"
)

var hubCmd = cli.Command{
	Name:  "hub",
	Usage: "drive every sensor of a board",
	Subcommands: cli.Commands{
		&hubRunCmd,
		&hubSelfTestCmd,
	},
}

var configFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "board description file",
	Value:   "board.yaml",
}

func openBoard(c *cli.Context) (*config.Config, *board.Board, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, console.Exit(1, "%s", console.Red(err))
	}
	b, err := board.Open(cfg)
	if err != nil {
		return nil, nil, console.Exit(1, "could not open board: %s", console.Red(err))
	}
	err = b.Hub.Initialize(c.Context)
	if err != nil {
		console.Warnf("some sensors are unavailable: %s", err)
	}
	return cfg, b, nil
}

var hubRunCmd = cli.Command{
	Name:  "run",
	Usage: "start the sensors and log samples until interrupted",
	Flags: []cli.Flag{configFlag},
	Action: func(c *cli.Context) error {
		cfg, b, err := openBoard(c)
		if err != nil {
			return err
		}
		defer closeBoard(context.Background(), b)
		if len(b.Hub.Ready()) == 0 {
			return console.Exit(2, "no sensor initialized")
		}
		err = b.Hub.Start(c.Context)
		if err != nil {
			console.Warnf("some sensors did not start: %s", err)
		}
		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()
		console.Infof("polling %v every %s", b.Hub.Ready(), cfg.PollInterval)
		return b.Hub.Poll(ctx, cfg.PollInterval, func(s hub.Sample) {
			slog.Info("sample", "sensor", s.Sensor, "data", hex.EncodeToString(s.Data))
		})
	},
}

var hubSelfTestCmd = cli.Command{
	Name:  "selftest",
	Usage: "run the self-test of every sensor",
	Flags: []cli.Flag{configFlag},
	Action: func(c *cli.Context) error {
		_, b, err := openBoard(c)
		if err != nil {
			return err
		}
		defer closeBoard(context.Background(), b)
		failed := false
		for name, code := range b.Hub.SelfTest(c.Context) {
			if code == 0 {
				console.Infof("%s: %s", name, console.Green("passed"))
				continue
			}
			failed = true
			console.Infof("%s: %s (code %d)", name, console.Red("failed"), code)
		}
		if failed {
			return console.Exit(3, "self-test failed")
		}
		return nil
	},
}
