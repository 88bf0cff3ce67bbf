// Package hub aggregates sensors behind the common contract and polls them.
// It never retries: a sensor that fails to initialize is reported and left
// out of every later operation.
package hub

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/mklimuk/sensorhub"
)

const readBufferSize = 64

// Sample is one non-empty Read result.
type Sample struct {
	Sensor string
	Data   []byte
	At     time.Time
}

// Sink receives samples in poll order. It runs on the polling goroutine.
type Sink func(Sample)

type Opts struct {
	Clock  clock.Clock
	Logger *slog.Logger
}

type Opt func(*Opts)

func WithClock(clk clock.Clock) Opt {
	return func(o *Opts) {
		o.Clock = clk
	}
}

func WithLogger(logger *slog.Logger) Opt {
	return func(o *Opts) {
		o.Logger = logger
	}
}

type entry struct {
	sensor sensorhub.Sensor
	ready  bool
	buf    [readBufferSize]byte
}

// Hub owns its sensors. It is not safe for concurrent use.
type Hub struct {
	clock   clock.Clock
	logger  *slog.Logger
	entries []*entry
}

func New(opts ...Opt) *Hub {
	config := Opts{}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Hub{clock: config.Clock, logger: config.Logger}
}

func (h *Hub) Register(s sensorhub.Sensor) {
	h.entries = append(h.entries, &entry{sensor: s})
}

// Sensors returns every registered sensor, initialized or not.
func (h *Hub) Sensors() []sensorhub.Sensor {
	res := make([]sensorhub.Sensor, 0, len(h.entries))
	for _, e := range h.entries {
		res = append(res, e.sensor)
	}
	return res
}

// Ready returns the names of sensors that initialized successfully.
func (h *Hub) Ready() []string {
	var res []string
	for _, e := range h.entries {
		if e.ready {
			res = append(res, e.sensor.Name())
		}
	}
	return res
}

// Initialize initializes every sensor. Failures are combined into the
// returned error; the remaining sensors stay usable.
func (h *Hub) Initialize(ctx context.Context) error {
	var errs error
	for _, e := range h.entries {
		err := e.sensor.Initialize(ctx)
		if err != nil {
			h.logger.Error("sensor initialization failed", "sensor", e.sensor.Name(), "error", err)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", e.sensor.Name(), err))
			continue
		}
		e.ready = true
	}
	return errs
}

// Start sends START to every ready sensor.
func (h *Hub) Start(ctx context.Context) error {
	return h.broadcast(ctx, sensorhub.CtrlStart, 0)
}

// Stop sends STOP to every ready sensor.
func (h *Hub) Stop(ctx context.Context) error {
	return h.broadcast(ctx, sensorhub.CtrlStop, 0)
}

// SetODR requests hz from every ready sensor and returns the rate each one
// applied.
func (h *Hub) SetODR(ctx context.Context, hz uint32) (map[string]int32, error) {
	res := make(map[string]int32)
	var errs error
	for _, e := range h.ready() {
		rate, err := e.sensor.Control(ctx, sensorhub.CtrlSetODR, hz)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", e.sensor.Name(), err))
			continue
		}
		res[e.sensor.Name()] = rate
	}
	return res, errs
}

// SelfTest runs SELFTEST on every ready sensor and returns the result codes.
func (h *Hub) SelfTest(ctx context.Context) map[string]int32 {
	res := make(map[string]int32)
	for _, e := range h.ready() {
		code, err := e.sensor.Control(ctx, sensorhub.CtrlSelfTest, 0)
		if err != nil {
			h.logger.Warn("self-test failed", "sensor", e.sensor.Name(), "code", code, "error", err)
		}
		res[e.sensor.Name()] = code
	}
	return res
}

func (h *Hub) broadcast(ctx context.Context, cmd sensorhub.Command, arg uint32) error {
	var errs error
	for _, e := range h.ready() {
		_, err := e.sensor.Control(ctx, cmd, arg)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s %s: %w", e.sensor.Name(), cmd, err))
		}
	}
	return errs
}

func (h *Hub) ready() []*entry {
	res := make([]*entry, 0, len(h.entries))
	for _, e := range h.entries {
		if e.ready {
			res = append(res, e)
		}
	}
	return res
}

// PollOnce reads every ready sensor once and passes non-empty results to
// sink. Read errors are logged and do not stop the round.
func (h *Hub) PollOnce(ctx context.Context, sink Sink) {
	for _, e := range h.ready() {
		n, err := e.sensor.Read(ctx, e.buf[:])
		if err != nil {
			h.logger.Warn("sensor read failed", "sensor", e.sensor.Name(), "error", err)
			continue
		}
		if n == 0 {
			continue
		}
		sink(Sample{
			Sensor: e.sensor.Name(),
			Data:   append([]byte(nil), e.buf[:n]...),
			At:     h.clock.Now(),
		})
	}
}

// Poll calls PollOnce every interval until ctx is done.
func (h *Hub) Poll(ctx context.Context, interval time.Duration, sink Sink) error {
	if interval <= 0 {
		return fmt.Errorf("invalid poll interval %s", interval)
	}
	ticker := h.clock.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.PollOnce(ctx, sink)
		}
	}
}

// Close stops and uninitializes ready sensors, then closes every sensor that
// holds background resources.
func (h *Hub) Close(ctx context.Context) error {
	errs := h.Stop(ctx)
	for _, e := range h.entries {
		if e.ready {
			errs = multierr.Append(errs, e.sensor.Uninitialize(ctx))
			e.ready = false
		}
		if c, ok := e.sensor.(io.Closer); ok {
			errs = multierr.Append(errs, c.Close())
		}
	}
	return errs
}
