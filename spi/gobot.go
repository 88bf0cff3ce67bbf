package spi

import (
	"context"
	"fmt"

	gobotspi "gobot.io/x/gobot/v2/drivers/spi"

	"github.com/mklimuk/sensorhub"
)

var _ sensorhub.SPIDevice = &GobotDevice{}

// connectionOps is the subset of the gobot SPI connection used here.
// ReadCommandData clocks the command out and the data in without releasing
// chip select in between.
type connectionOps interface {
	ReadCommandData(command []byte, data []byte) error
	WriteBytes(data []byte) error
}

// GobotDevice reaches a register chip through a gobot SPI driver, so boards
// supported by gobot platforms (NanoPi, Raspberry Pi, ...) work without a
// periph host driver.
type GobotDevice struct {
	*gobotspi.Driver
}

// NewGobotDevice binds a driver to bus and chip on the adaptor. Start must be
// called before the first transfer.
func NewGobotDevice(adaptor gobotspi.Connector, bus, chip int, speedHz int64, mode int) *GobotDevice {
	d := gobotspi.NewDriver(adaptor, "sensor-spi",
		gobotspi.WithBusNumber(bus),
		gobotspi.WithChipNumber(chip),
		gobotspi.WithMode(mode),
		gobotspi.WithBitCount(8),
		gobotspi.WithSpeed(speedHz),
	)
	return &GobotDevice{Driver: d}
}

// Transfer treats w[0] as the command byte. With r set the remaining bytes of
// w are clocked as dummies and the response lands in r[1:]; r[0] is zeroed.
func (g *GobotDevice) Transfer(ctx context.Context, w, r []byte) error {
	if len(w) == 0 {
		return nil
	}
	ops, ok := g.Driver.Connection().(connectionOps)
	if !ok {
		return fmt.Errorf("spi connection does not support required operations")
	}
	if r == nil {
		err := ops.WriteBytes(w)
		if err != nil {
			return fmt.Errorf("spi write failed: %w", err)
		}
		return nil
	}
	if len(r) != len(w) {
		return fmt.Errorf("tx/rx length mismatch: %d != %d", len(w), len(r))
	}
	err := ops.ReadCommandData(w[:1], r[1:])
	if err != nil {
		return fmt.Errorf("spi read failed: %w", err)
	}
	r[0] = 0
	return nil
}
