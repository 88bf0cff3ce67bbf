package sensorhub

import (
	"context"
	"fmt"
	"time"
)

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

type I2CBus interface {
	AddressableReader
	AddressableWriter
}

// SPIDevice is a single chip on a synchronous serial bus. Every Transfer is one
// chip-select span: select, clock len(w) bytes out while filling r, deselect.
// r may be nil for write-only transfers, otherwise len(r) == len(w).
//
// Implementations do not arbitrate between callers. Two logical users must
// not interleave transfers to the same device.
type SPIDevice interface {
	Transfer(ctx context.Context, w, r []byte) error
}

// ByteStream is the receive side of an asynchronous character link.
// Buffered reports how many bytes can be read right now and must never block.
type ByteStream interface {
	Buffered() int
	Read(p []byte) (int, error)
}

// EdgeLine is an interrupt-capable input configured for falling edges.
// WaitForEdge returns true when an edge was seen before the timeout elapsed.
type EdgeLine interface {
	WaitForEdge(timeout time.Duration) bool
}
