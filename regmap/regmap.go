package regmap

import (
	"context"
	"fmt"
)

// Map gives single-register and bit-field access on top of a Transport.
// It holds no lock: the caller owns the bus for the duration of each call.
type Map struct {
	transport Transport
}

func New(transport Transport) *Map {
	return &Map{transport: transport}
}

func (m *Map) Read(ctx context.Context, addr byte) (byte, error) {
	buf := []byte{0x00}
	err := m.transport.ReadRegisters(ctx, addr, buf)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (m *Map) Write(ctx context.Context, addr byte, value byte) error {
	return m.transport.WriteRegister(ctx, addr, value)
}

// ReadBurst reads len(buf) contiguous registers starting at addr.
func (m *Map) ReadBurst(ctx context.Context, addr byte, buf []byte) error {
	return m.transport.ReadRegisters(ctx, addr, buf)
}

// ChangeBits replaces the bits selected by mask with the matching bits of
// value. Bits outside mask are written back unchanged.
func (m *Map) ChangeBits(ctx context.Context, addr, mask, bits byte) error {
	orig, err := m.Read(ctx, addr)
	if err != nil {
		return fmt.Errorf("could not change bits of %#02x: %w", addr, err)
	}
	err = m.Write(ctx, addr, ApplyBits(orig, mask, bits))
	if err != nil {
		return fmt.Errorf("could not change bits of %#02x: %w", addr, err)
	}
	return nil
}

func ApplyBits(orig, mask, bits byte) byte {
	return (orig &^ mask) | (bits & mask)
}
