package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/sensorhub"
	"github.com/mklimuk/sensorhub/board"
	"github.com/mklimuk/sensorhub/cmd/sensors/console"
	"github.com/mklimuk/sensorhub/config"
)

var odrFlag = &cli.UintFlag{
	Name:  "odr",
	Usage: "output data rate in Hz",
	Value: config.DefaultODR,
}

var countFlag = &cli.IntFlag{
	Name:  "count",
	Usage: "number of samples to read",
	Value: 10,
}

var timeoutFlag = &cli.DurationFlag{
	Name:  "timeout",
	Usage: "give up when no sample arrives within this time",
	Value: 5 * time.Second,
}

// openSingle builds a board holding one sensor described by flags.
func openSingle(sc config.Sensor) (*board.Board, sensorhub.Sensor, error) {
	cfg := &config.Config{Sensors: []config.Sensor{sc}}
	cfg.SetDefaults()
	err := cfg.Validate()
	if err != nil {
		return nil, nil, console.Exit(1, "%s", console.Red(err))
	}
	b, err := board.Open(cfg)
	if err != nil {
		return nil, nil, console.Exit(1, "could not open sensor: %s", console.Red(err))
	}
	return b, b.Hub.Sensors()[0], nil
}

func closeBoard(ctx context.Context, b *board.Board) {
	err := b.Close(ctx)
	if err != nil {
		console.Warnf("close error: %s", err)
	}
}

func initialize(ctx context.Context, s sensorhub.Sensor) error {
	err := s.Initialize(ctx)
	if errors.Is(err, sensorhub.ErrDeviceNotFound) {
		return console.Exit(2, "%s not found: %s", s.Name(), console.Red(err))
	}
	if err != nil {
		return console.Exit(1, "%s initialization error: %s", s.Name(), console.Red(err))
	}
	return nil
}

// stream starts s and hands count samples to show. Read never blocks, so the
// loop polls every millisecond; a bus error stops it.
func stream(ctx context.Context, s sensorhub.Sensor, count int, timeout time.Duration, show func([]byte)) error {
	_, err := s.Control(ctx, sensorhub.CtrlStart, 0)
	if err != nil {
		return console.Exit(1, "could not start %s: %s", s.Name(), console.Red(err))
	}
	defer func() {
		_, _ = s.Control(ctx, sensorhub.CtrlStop, 0)
	}()
	buf := make([]byte, 16)
	deadline := time.Now().Add(timeout)
	for read := 0; read < count; {
		n, err := s.Read(ctx, buf)
		if err != nil {
			return console.Exit(1, "read error: %s", console.Red(err))
		}
		if n > 0 {
			show(buf[:n])
			read++
			deadline = time.Now().Add(timeout)
			continue
		}
		if time.Now().After(deadline) {
			return console.Exit(1, "no data from %s within %s", s.Name(), timeout)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Millisecond):
		}
	}
	return nil
}

func printODR(ctx context.Context, s sensorhub.Sensor) {
	odr, err := s.Control(ctx, sensorhub.CtrlGetODR, 0)
	if err != nil {
		return
	}
	console.Infof("%s output data rate: %s", s.Name(), console.White(fmt.Sprintf("%d Hz", odr)))
}
