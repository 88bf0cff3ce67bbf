// Package regmap implements 8-bit register access over the buses the drivers
// are wired to, plus read-modify-write of bit fields.
package regmap

import (
	"context"
	"fmt"

	"github.com/mklimuk/sensorhub"
)

const (
	cmdRead  byte = 0x80
	addrMask byte = 0x7F
	// clocked out while receiving
	dummyByte byte = 0x00
)

// ReadCommand encodes the command byte that starts a register read.
func ReadCommand(addr byte) byte {
	return cmdRead | (addr & addrMask)
}

// WriteCommand encodes the command byte that starts a register write.
func WriteCommand(addr byte) byte {
	return addr & addrMask
}

// Transport moves register contents between the host and a chip.
// ReadRegisters fills buf starting at addr in a single bus transaction,
// relying on the chip to auto-increment the address.
type Transport interface {
	ReadRegisters(ctx context.Context, addr byte, buf []byte) error
	WriteRegister(ctx context.Context, addr byte, value byte) error
}

var _ Transport = &SPITransport{}

// SPITransport speaks the common 4-wire register protocol: one command byte
// (read flag | 7-bit address) followed by data, all inside one chip select.
type SPITransport struct {
	dev sensorhub.SPIDevice
}

func NewSPITransport(dev sensorhub.SPIDevice) *SPITransport {
	return &SPITransport{dev: dev}
}

func (t *SPITransport) ReadRegisters(ctx context.Context, addr byte, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	w := make([]byte, len(buf)+1)
	w[0] = ReadCommand(addr)
	for i := 1; i < len(w); i++ {
		w[i] = dummyByte
	}
	r := make([]byte, len(w))
	err := t.dev.Transfer(ctx, w, r)
	if err != nil {
		return fmt.Errorf("could not read %d register(s) from %#02x: %w", len(buf), addr, err)
	}
	copy(buf, r[1:])
	return nil
}

func (t *SPITransport) WriteRegister(ctx context.Context, addr byte, value byte) error {
	err := t.dev.Transfer(ctx, []byte{WriteCommand(addr), value}, nil)
	if err != nil {
		return fmt.Errorf("could not write register %#02x: %w", addr, err)
	}
	return nil
}

var _ Transport = &I2CTransport{}

// I2CTransport reaches the same register file over I2C: the register pointer
// is written first, then the data is read back with auto-increment.
type I2CTransport struct {
	bus     sensorhub.I2CBus
	address byte
}

func NewI2CTransport(bus sensorhub.I2CBus, address byte) *I2CTransport {
	return &I2CTransport{bus: bus, address: address}
}

func (t *I2CTransport) ReadRegisters(ctx context.Context, addr byte, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	err := t.bus.WriteToAddr(ctx, t.address, []byte{addr})
	if err != nil {
		return fmt.Errorf("could not set register pointer to %#02x: %w", addr, err)
	}
	err = t.bus.ReadFromAddr(ctx, t.address, buf)
	if err != nil {
		return fmt.Errorf("could not read %d register(s) from %#02x: %w", len(buf), addr, err)
	}
	return nil
}

func (t *I2CTransport) WriteRegister(ctx context.Context, addr byte, value byte) error {
	err := t.bus.WriteToAddr(ctx, t.address, []byte{addr, value})
	if err != nil {
		return fmt.Errorf("could not write register %#02x: %w", addr, err)
	}
	return nil
}
