// Package acoustic drives an acoustic sensing node that streams newline
// terminated decimal readings over a serial link. The node has no interrupt
// line, so data readiness is paced by a software timer at the configured ODR.
package acoustic

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"

	"github.com/mklimuk/sensorhub"
	"github.com/mklimuk/sensorhub/drdy"
)

const defaultODR = 100

var _ sensorhub.Sensor = &Node{}

// stopper is implemented by streams whose receiver can stop for good.
type stopper interface {
	Err() error
}

type NodeOpts struct {
	ODR    uint32
	Clock  clock.Clock
	Logger *slog.Logger
}

type NodeOpt func(*NodeOpts)

func WithODR(hz uint32) NodeOpt {
	return func(o *NodeOpts) {
		o.ODR = hz
	}
}

// WithClock replaces the wall clock driving the data-ready timer.
func WithClock(clk clock.Clock) NodeOpt {
	return func(o *NodeOpts) {
		o.Clock = clk
	}
}

func WithLogger(logger *slog.Logger) NodeOpt {
	return func(o *NodeOpts) {
		o.Logger = logger
	}
}

// Node is the acoustic sensor. The stream is borrowed and never closed here.
type Node struct {
	stream sensorhub.ByteStream
	flag   drdy.Flag
	cursor *drdy.Cursor
	timer  *drdy.Timer
	logger *slog.Logger

	state  sensorhub.State
	odr    uint32
	gain   uint32
	window [FrameSize]byte
}

func NewNode(stream sensorhub.ByteStream, opts ...NodeOpt) *Node {
	config := NodeOpts{ODR: defaultODR}
	for _, opt := range opts {
		opt(&config)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	n := &Node{
		stream: stream,
		logger: logger.With("sensor", "acoustic"),
		odr:    config.ODR,
	}
	n.cursor = drdy.NewCursor(&n.flag)
	n.timer = drdy.NewTimer(config.Clock, &n.flag)
	return n
}

func (n *Node) Name() string {
	return "acoustic"
}

func (n *Node) State() sensorhub.State {
	return n.state
}

func (n *Node) ODR() uint32 {
	return n.odr
}

func (n *Node) Gain() uint32 {
	return n.gain
}

// Initialize applies the constructor ODR and resets the gain to 1. No bytes
// are exchanged with the node.
func (n *Node) Initialize(ctx context.Context) error {
	_, err := drdy.Period(n.odr)
	if err != nil {
		return fmt.Errorf("could not apply output data rate %d: %w", n.odr, err)
	}
	n.gain = 1
	n.state = sensorhub.StateStandby
	n.logger.Debug("initialized", "odr", n.odr)
	return nil
}

func (n *Node) Uninitialize(ctx context.Context) error {
	return nil
}

// Write is reserved.
func (n *Node) Write(ctx context.Context, data []byte) (int, error) {
	return 0, nil
}

// Read returns one sample encoded as a little-endian float32, truncated to
// len(data). It returns 0 without blocking when the timer has not ticked
// since the previous read, when the link has nothing buffered, or when the
// window just read was not a complete frame. A link that stopped receiving
// is reported as an error once its buffer is drained.
func (n *Node) Read(ctx context.Context, data []byte) (int, error) {
	if !n.cursor.Fresh() {
		return 0, nil
	}
	if n.stream.Buffered() == 0 {
		if s, ok := n.stream.(stopper); ok {
			if err := s.Err(); err != nil {
				return 0, fmt.Errorf("acoustic link stopped: %w", err)
			}
		}
		return 0, nil
	}
	n.cursor.Consume()
	got, err := n.stream.Read(n.window[:])
	if err != nil {
		return 0, fmt.Errorf("could not read acoustic frame: %w", err)
	}
	v, err := ParseFrame(n.window[:got])
	if err != nil {
		// incomplete windows are dropped, never reported
		n.logger.Debug("frame dropped", "error", err)
		return 0, nil
	}
	var buf [SampleSize]byte
	EncodeSample(buf[:], v)
	return copy(data, buf[:]), nil
}

// ReadSample is Read decoded. The boolean is false when no sample was taken.
func (n *Node) ReadSample(ctx context.Context) (float32, bool, error) {
	var buf [SampleSize]byte
	got, err := n.Read(ctx, buf[:])
	if err != nil || got < SampleSize {
		return 0, false, err
	}
	return DecodeSample(buf[:]), true, nil
}

func (n *Node) Control(ctx context.Context, cmd sensorhub.Command, arg uint32) (int32, error) {
	switch cmd {
	case sensorhub.CtrlStart:
		return 0, n.start()
	case sensorhub.CtrlStop:
		n.stop()
		return 0, nil
	case sensorhub.CtrlSetODR:
		return n.SetODR(arg)
	case sensorhub.CtrlGetODR:
		return int32(n.odr), nil
	case sensorhub.CtrlSelfTest:
		// the node offers no self-test protocol
		return sensorhub.SelfTestOK, nil
	case sensorhub.CtrlSetGain:
		n.gain = arg
		return int32(arg), nil
	}
	return 0, nil
}

func (n *Node) start() error {
	switch n.state {
	case sensorhub.StateUnconfigured:
		return sensorhub.ErrNotInitialized
	case sensorhub.StateActive:
		return nil
	}
	err := n.timer.Start(n.odr)
	if err != nil {
		return fmt.Errorf("could not arm data ready timer: %w", err)
	}
	n.cursor.Skip()
	n.state = sensorhub.StateActive
	return nil
}

func (n *Node) stop() {
	if n.state != sensorhub.StateActive {
		return
	}
	n.timer.Stop()
	n.state = sensorhub.StateStandby
}

// SetODR stores hz as the new rate. The node accepts any rate the timer can
// schedule. A running timer is stopped and restarted at the new period, and
// ticks raised at the old rate are discarded.
func (n *Node) SetODR(hz uint32) (int32, error) {
	_, err := drdy.Period(hz)
	if err != nil {
		return 0, err
	}
	if n.state == sensorhub.StateActive {
		err = n.timer.Reschedule(hz)
		if err != nil {
			return 0, fmt.Errorf("could not rearm data ready timer: %w", err)
		}
		n.cursor.Skip()
	}
	n.odr = hz
	return int32(hz), nil
}

// Close stops the data-ready timer. The stream stays open.
func (n *Node) Close() error {
	n.timer.Stop()
	return nil
}
