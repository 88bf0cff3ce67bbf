// Package gpio exposes host GPIO pins as data-ready lines.
package gpio

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"

	"github.com/mklimuk/sensorhub"
)

var _ sensorhub.EdgeLine = &Line{}

// Line is an input pin armed for falling edges. The host must be
// initialized first.
type Line struct {
	pin gpio.PinIO
}

// OpenLine looks the pin up by name (e.g. "GPIO17") and configures it as a
// pulled-up input that reports falling edges.
func OpenLine(name string) (*Line, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("no gpio pin found for %q", name)
	}
	err := pin.In(gpio.PullUp, gpio.FallingEdge)
	if err != nil {
		return nil, fmt.Errorf("could not configure %s for falling edges: %w", name, err)
	}
	return &Line{pin: pin}, nil
}

func (l *Line) WaitForEdge(timeout time.Duration) bool {
	return l.pin.WaitForEdge(timeout)
}

func (l *Line) Name() string {
	return l.pin.Name()
}

// Close disarms edge detection.
func (l *Line) Close() error {
	return l.pin.In(gpio.PullNoChange, gpio.NoEdge)
}
