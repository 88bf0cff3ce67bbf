// Package board wires sensors to host buses according to a board
// configuration.
package board

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"
	"periph.io/x/host/v3"

	"github.com/mklimuk/sensorhub"
	"github.com/mklimuk/sensorhub/accel"
	"github.com/mklimuk/sensorhub/acoustic"
	"github.com/mklimuk/sensorhub/adapter"
	"github.com/mklimuk/sensorhub/config"
	"github.com/mklimuk/sensorhub/gpio"
	"github.com/mklimuk/sensorhub/hub"
	"github.com/mklimuk/sensorhub/i2c"
	"github.com/mklimuk/sensorhub/regmap"
	"github.com/mklimuk/sensorhub/spi"
	"github.com/mklimuk/sensorhub/uart"
)

// bridgePollInterval is how often an MCP2221 GP input is sampled for
// data-ready edges.
const bridgePollInterval = 2 * time.Millisecond

var hostOnce = sync.OnceValue(func() error {
	state, err := host.Init()
	if err != nil {
		return fmt.Errorf("could not init host: %w", err)
	}
	for _, failure := range state.Failed {
		slog.Debug("host driver failed", "driver", failure.D.String(), "error", failure.Err)
	}
	return nil
})

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

// Board owns the buses and lines it opened. Sensors borrow them, so they are
// closed only after the hub released every sensor.
type Board struct {
	Hub *hub.Hub

	config  Opts
	closers []io.Closer
	bridge  *adapter.MCP2221
	gobot   *nanopi.Adaptor
}

// Open builds every configured sensor and registers it with a new hub. A
// sensor whose bus cannot be opened fails the whole board: configuration
// errors are not runtime conditions.
func Open(cfg *config.Config, opts ...Opt) (*Board, error) {
	config := Opts{}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	b := &Board{
		config: config,
		Hub:    hub.New(hub.WithClock(config.Clock), hub.WithLogger(config.Logger)),
	}
	for _, sc := range cfg.Sensors {
		s, err := b.OpenSensor(sc)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("could not open sensor %s: %w", sc.Name, err), b.Close(context.Background()))
		}
		b.Hub.Register(s)
	}
	return b, nil
}

// OpenSensor builds a single sensor without registering it.
func (b *Board) OpenSensor(sc config.Sensor) (sensorhub.Sensor, error) {
	switch sc.Type {
	case config.TypeKX122:
		return b.openKX122(sc)
	case config.TypeAcoustic:
		return b.openAcoustic(sc)
	}
	return nil, fmt.Errorf("unknown sensor type %q", sc.Type)
}

func (b *Board) openKX122(sc config.Sensor) (*accel.KX122, error) {
	var transport regmap.Transport
	var line sensorhub.EdgeLine
	var err error
	opts := []accel.KX122Opt{
		accel.WithODR(sc.ODR),
		accel.WithRange(accel.Range(sc.Range)),
		accel.WithLogger(b.config.Logger),
	}
	switch sc.Transport {
	case config.TransportSPI:
		err = hostOnce()
		if err != nil {
			return nil, err
		}
		dev, err := spi.OpenPeriph(sc.Device, sc.SpeedHz, spi.DefaultMode)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, dev)
		transport = regmap.NewSPITransport(dev)
	case config.TransportGobot:
		adaptor, err := b.gobotAdaptor()
		if err != nil {
			return nil, err
		}
		dev := spi.NewGobotDevice(adaptor, sc.Bus, sc.Chip, sc.SpeedHz, spi.DefaultMode)
		err = dev.Start()
		if err != nil {
			return nil, fmt.Errorf("could not start gobot spi driver: %w", err)
		}
		b.closers = append(b.closers, closerFunc(dev.Halt))
		transport = regmap.NewSPITransport(dev)
	case config.TransportI2C:
		err = hostOnce()
		if err != nil {
			return nil, err
		}
		bus, err := i2c.NewGenericBus(sc.Device)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, bus)
		err = bus.SetSpeed(sc.SpeedHz)
		if err != nil {
			return nil, err
		}
		transport = regmap.NewI2CTransport(bus, sc.Address)
	case config.TransportMCP2221:
		bridge := b.mcp2221()
		transport = regmap.NewI2CTransport(bridge, sc.Address)
		pin, err := strconv.Atoi(sc.DRDYPin)
		if err != nil {
			return nil, fmt.Errorf("mcp2221 drdy_pin must be a GP index: %w", err)
		}
		line, err = adapter.NewGPIOEdge(bridge, pin, bridgePollInterval)
		if err != nil {
			return nil, err
		}
		// the GP input is sampled over USB, far slower than a data-ready pulse
		opts = append(opts, accel.WithLatchedInterrupt())
	default:
		return nil, fmt.Errorf("transport %q is not supported for kx122", sc.Transport)
	}
	if line == nil {
		err = hostOnce()
		if err != nil {
			return nil, err
		}
		l, err := gpio.OpenLine(sc.DRDYPin)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, l)
		line = l
	}
	return accel.NewKX122(transport, line, opts...), nil
}

func (b *Board) openAcoustic(sc config.Sensor) (*acoustic.Node, error) {
	stream, err := uart.Open(sc.Port, sc.Baud, uart.WithLogger(b.config.Logger))
	if err != nil {
		return nil, err
	}
	b.closers = append(b.closers, stream)
	return acoustic.NewNode(stream,
		acoustic.WithODR(sc.ODR),
		acoustic.WithClock(b.config.Clock),
		acoustic.WithLogger(b.config.Logger),
	), nil
}

func (b *Board) gobotAdaptor() (*nanopi.Adaptor, error) {
	if b.gobot != nil {
		return b.gobot, nil
	}
	adaptor := nanopi.NewNeoAdaptor()
	err := adaptor.Connect()
	if err != nil {
		return nil, fmt.Errorf("adaptor connect error: %w", err)
	}
	b.gobot = adaptor
	b.closers = append(b.closers, closerFunc(adaptor.Finalize))
	return adaptor, nil
}

func (b *Board) mcp2221() *adapter.MCP2221 {
	if b.bridge == nil {
		b.bridge = adapter.NewMCP2221(adapter.WithLogger(b.config.Logger))
	}
	return b.bridge
}

// Close releases the hub's sensors, then every bus and line in reverse
// opening order.
func (b *Board) Close(ctx context.Context) error {
	errs := b.Hub.Close(ctx)
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, b.closers[i].Close())
	}
	b.closers = nil
	return errs
}

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}
