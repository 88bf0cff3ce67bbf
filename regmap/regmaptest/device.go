// Package regmaptest provides a simulated register-addressed SPI chip for
// driver tests.
package regmaptest

import (
	"context"
	"fmt"
	"sync"
)

// WriteHook runs after a register write and may adjust the register file.
type WriteHook func(regs *[128]byte, addr, value byte)

// Device decodes the read flag / 7-bit address command byte, auto-increments
// on multi-byte transfers and records every transfer it served.
type Device struct {
	mx        sync.Mutex
	regs      [128]byte
	hooks     map[byte]WriteHook
	transfers [][]byte
	err       error
	// transfers left before err applies; negative means err applies now
	failAfter int
}

func NewDevice() *Device {
	return &Device{hooks: make(map[byte]WriteHook)}
}

// Set presets a register without recording a transfer.
func (d *Device) Set(addr, value byte) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.regs[addr&0x7F] = value
}

// Get returns a register value without recording a transfer.
func (d *Device) Get(addr byte) byte {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.regs[addr&0x7F]
}

func (d *Device) OnWrite(addr byte, hook WriteHook) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.hooks[addr&0x7F] = hook
}

// FailWith makes every following transfer return err.
func (d *Device) FailWith(err error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.err = err
	d.failAfter = 0
}

// FailAfter lets n more transfers succeed, then makes every following
// transfer return err.
func (d *Device) FailAfter(n int, err error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.err = err
	d.failAfter = n
}

// Transfers returns a copy of the outgoing bytes of every served transfer.
func (d *Device) Transfers() [][]byte {
	d.mx.Lock()
	defer d.mx.Unlock()
	out := make([][]byte, len(d.transfers))
	for i, t := range d.transfers {
		out[i] = append([]byte(nil), t...)
	}
	return out
}

func (d *Device) Reset() {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.transfers = nil
}

func (d *Device) Transfer(ctx context.Context, w, r []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.err != nil {
		if d.failAfter <= 0 {
			return d.err
		}
		d.failAfter--
	}
	if len(w) == 0 {
		return fmt.Errorf("empty transfer")
	}
	if r != nil && len(r) != len(w) {
		return fmt.Errorf("tx/rx length mismatch: %d != %d", len(w), len(r))
	}
	d.transfers = append(d.transfers, append([]byte(nil), w...))
	addr := w[0] & 0x7F
	read := w[0]&0x80 != 0
	for i := 1; i < len(w); i++ {
		reg := (addr + byte(i-1)) & 0x7F
		if read {
			if r != nil {
				r[i] = d.regs[reg]
			}
			continue
		}
		d.regs[reg] = w[i]
		if hook, ok := d.hooks[reg]; ok {
			hook(&d.regs, reg, w[i])
		}
	}
	return nil
}
