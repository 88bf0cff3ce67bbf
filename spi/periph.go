// Package spi adapts board SPI ports to sensorhub.SPIDevice. Each Transfer is
// a single chip-select span, which is what burst register reads rely on.
package spi

import (
	"context"
	"fmt"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"

	"github.com/mklimuk/sensorhub"
)

const (
	DefaultSpeedHz = 10_000_000
	DefaultMode    = 0
)

var _ sensorhub.SPIDevice = &PeriphDevice{}

// PeriphDevice is a spidev chip opened through the periph registry,
// e.g. "SPI0.0" or "/dev/spidev0.0". The host must be initialized first.
type PeriphDevice struct {
	port spi.PortCloser
	conn spi.Conn
}

func OpenPeriph(name string, speedHz int64, mode int) (*PeriphDevice, error) {
	port, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("could not open spi port %s: %w", name, err)
	}
	conn, err := port.Connect(physic.Hertz*physic.Frequency(speedHz), spi.Mode(mode), 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("could not connect to spi port %s: %w", name, err)
	}
	return &PeriphDevice{port: port, conn: conn}, nil
}

func (d *PeriphDevice) Transfer(ctx context.Context, w, r []byte) error {
	if r != nil && len(r) != len(w) {
		return fmt.Errorf("tx/rx length mismatch: %d != %d", len(w), len(r))
	}
	err := d.conn.Tx(w, r)
	if err != nil {
		return fmt.Errorf("spi transfer failed: %w", err)
	}
	return nil
}

func (d *PeriphDevice) Close() error {
	return d.port.Close()
}
