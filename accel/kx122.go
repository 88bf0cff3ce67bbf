package accel

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"github.com/mklimuk/sensorhub"
	"github.com/mklimuk/sensorhub/drdy"
	"github.com/mklimuk/sensorhub/regmap"
)

const (
	// I2C addresses selected by the ADDR pin
	KX122AddressLow  = 0x1E
	KX122AddressHigh = 0x1F

	defaultODR = 100
	sampleSize = 6
)

var _ sensorhub.Sensor = &KX122{}

type KX122Opts struct {
	ODR      uint32
	Range    Range
	Logger   *slog.Logger
	EdgePoll time.Duration
	Latched  bool
}

type KX122Opt func(*KX122Opts)

// WithODR sets the rate applied during Initialize.
func WithODR(hz uint32) KX122Opt {
	return func(o *KX122Opts) {
		o.ODR = hz
	}
}

func WithRange(r Range) KX122Opt {
	return func(o *KX122Opts) {
		o.Range = r
	}
}

func WithLogger(logger *slog.Logger) KX122Opt {
	return func(o *KX122Opts) {
		o.Logger = logger
	}
}

// WithEdgePoll bounds how long the data-ready watcher blocks on the line
// between shutdown checks.
func WithEdgePoll(d time.Duration) KX122Opt {
	return func(o *KX122Opts) {
		o.EdgePoll = d
	}
}

// WithLatchedInterrupt holds INT1 low until the sample is read instead of
// pulsing it. Needed when the data-ready pin is sampled by a slow poller that
// would miss a pulse.
func WithLatchedInterrupt() KX122Opt {
	return func(o *KX122Opts) {
		o.Latched = true
	}
}

// KX122 represents Kionix KX122 tri-axis accelerometer wired over a register
// bus, with its INT1 pin signaling data ready on a falling edge.
//
// The transport and the line are borrowed: KX122 never closes them.
type KX122 struct {
	regs   *regmap.Map
	flag   drdy.Flag
	cursor *drdy.Cursor
	edge   *drdy.Edge
	config KX122Opts
	logger *slog.Logger

	state sensorhub.State
	odr   uint32
	buf   [sampleSize]byte
}

func NewKX122(transport regmap.Transport, line sensorhub.EdgeLine, opts ...KX122Opt) *KX122 {
	config := KX122Opts{
		ODR:      defaultODR,
		Range:    Range8G,
		EdgePoll: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&config)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	d := &KX122{
		regs:   regmap.New(transport),
		config: config,
		logger: logger.With("sensor", "kx122"),
		odr:    config.ODR,
	}
	d.cursor = drdy.NewCursor(&d.flag)
	d.edge = drdy.NewEdge(line, &d.flag, drdy.WithPollTimeout(config.EdgePoll))
	return d
}

func (d *KX122) Name() string {
	return "kx122"
}

func (d *KX122) State() sensorhub.State {
	return d.state
}

func (d *KX122) ODR() uint32 {
	return d.odr
}

func (d *KX122) Range() Range {
	return d.config.Range
}

// Initialize probes WHO_AM_I and configures the chip, leaving it in standby.
func (d *KX122) Initialize(ctx context.Context) error {
	id, err := d.regs.Read(ctx, regWhoAmI)
	if err != nil {
		return fmt.Errorf("could not read identity register: %w", err)
	}
	if id != whoAmIKX122 {
		return fmt.Errorf("%w: kx122 WHO_AM_I is %#02x, expected %#02x", sensorhub.ErrDeviceNotFound, id, whoAmIKX122)
	}
	// PC1 must be cleared before any other setting is accepted
	err = d.regs.Write(ctx, regCNTL1, 0x00)
	if err != nil {
		return fmt.Errorf("could not enter standby: %w", err)
	}
	err = d.regs.Write(ctx, regINC1, d.inc1())
	if err != nil {
		return fmt.Errorf("could not configure interrupt pin: %w", err)
	}
	if d.config.Latched {
		err = d.releaseInterrupt(ctx)
		if err != nil {
			return err
		}
	}
	err = d.regs.Write(ctx, regINC4, inc4DRDYI1)
	if err != nil {
		return fmt.Errorf("could not route data ready interrupt: %w", err)
	}
	_, err = d.writeODR(ctx, d.odr)
	if err != nil {
		return err
	}
	err = d.regs.Write(ctx, regCNTL1, d.config.Range.gsel()|cntl1RES|cntl1DRDYE)
	if err != nil {
		return fmt.Errorf("could not set range and resolution: %w", err)
	}
	d.edge.Bind()
	d.edge.Enable()
	d.state = sensorhub.StateStandby
	d.logger.Debug("initialized", "odr", d.odr, "range", d.config.Range)
	return nil
}

func (d *KX122) Uninitialize(ctx context.Context) error {
	return nil
}

// Write is reserved.
func (d *KX122) Write(ctx context.Context, data []byte) (int, error) {
	return 0, nil
}

// Read copies the latest XYZ sample (little-endian int16 per axis) into data
// and returns the number of bytes copied, at most 6. It returns 0 when no
// data-ready edge was seen since the previous read.
func (d *KX122) Read(ctx context.Context, data []byte) (int, error) {
	if !d.cursor.Consume() {
		return 0, nil
	}
	err := d.regs.ReadBurst(ctx, regXOutL, d.buf[:])
	if err != nil {
		return 0, fmt.Errorf("could not read acceleration: %w", err)
	}
	if d.config.Latched {
		err = d.releaseInterrupt(ctx)
		if err != nil {
			return 0, err
		}
	}
	return copy(data, d.buf[:]), nil
}

// inc1 enables the physical interrupt pin, pulsed unless latched.
func (d *KX122) inc1() byte {
	if d.config.Latched {
		return inc1IEN1
	}
	return inc1IEN1 | inc1IEL1
}

// releaseInterrupt reads INT_REL, which lets a latched INT1 go high again.
func (d *KX122) releaseInterrupt(ctx context.Context) error {
	_, err := d.regs.Read(ctx, regINTREL)
	if err != nil {
		return fmt.Errorf("could not release interrupt latch: %w", err)
	}
	return nil
}

// LatchedInterrupt reports whether INT1 is latched rather than pulsed.
func (d *KX122) LatchedInterrupt() bool {
	return d.config.Latched
}

// ReadAxes is Read decoded. The boolean is false when no new sample was ready.
func (d *KX122) ReadAxes(ctx context.Context) (Axes, bool, error) {
	var buf [sampleSize]byte
	n, err := d.Read(ctx, buf[:])
	if err != nil || n < sampleSize {
		return Axes{}, false, err
	}
	return DecodeAxes(buf[:]), true, nil
}

func (d *KX122) Control(ctx context.Context, cmd sensorhub.Command, arg uint32) (int32, error) {
	switch cmd {
	case sensorhub.CtrlStart:
		return 0, d.start(ctx)
	case sensorhub.CtrlStop:
		return 0, d.stop(ctx)
	case sensorhub.CtrlSetODR:
		return d.SetODR(ctx, arg)
	case sensorhub.CtrlGetODR:
		return int32(d.odr), nil
	case sensorhub.CtrlSelfTest:
		err := d.SelfTest(ctx)
		return sensorhub.SelfTestCode(err), err
	case sensorhub.CtrlSetGain:
		return 0, nil
	}
	// unknown commands are accepted and ignored
	return 0, nil
}

func (d *KX122) start(ctx context.Context) error {
	switch d.state {
	case sensorhub.StateUnconfigured:
		return sensorhub.ErrNotInitialized
	case sensorhub.StateActive:
		return nil
	}
	d.cursor.Skip()
	err := d.regs.ChangeBits(ctx, regCNTL1, cntl1PC1, cntl1PC1)
	if err != nil {
		return fmt.Errorf("could not enter operating mode: %w", err)
	}
	d.state = sensorhub.StateActive
	return nil
}

func (d *KX122) stop(ctx context.Context) error {
	if d.state != sensorhub.StateActive {
		return nil
	}
	err := d.regs.ChangeBits(ctx, regCNTL1, cntl1PC1, 0)
	if err != nil {
		return fmt.Errorf("could not enter standby: %w", err)
	}
	d.state = sensorhub.StateStandby
	return nil
}

// SetODR selects the nearest supported rate at or above hz (clamped to the
// maximum) and returns it. When the sensor is running the data-ready line is
// masked for the duration of the change, and signals raised before the line
// is unmasked again are discarded.
func (d *KX122) SetODR(ctx context.Context, hz uint32) (int32, error) {
	if d.state != sensorhub.StateActive {
		rate, err := d.writeODR(ctx, hz)
		return int32(rate), err
	}
	d.edge.Disable()
	rate, err := d.changeODR(ctx, hz)
	d.edge.Enable()
	if err != nil {
		return 0, err
	}
	d.cursor.Skip()
	return int32(rate), nil
}

func (d *KX122) changeODR(ctx context.Context, hz uint32) (uint32, error) {
	err := d.regs.ChangeBits(ctx, regCNTL1, cntl1PC1, 0)
	if err != nil {
		return 0, fmt.Errorf("could not enter standby for rate change: %w", err)
	}
	rate, err := d.writeODR(ctx, hz)
	if err != nil {
		return 0, err
	}
	err = d.regs.ChangeBits(ctx, regCNTL1, cntl1PC1, cntl1PC1)
	if err != nil {
		return 0, fmt.Errorf("could not resume operating mode: %w", err)
	}
	return rate, nil
}

func (d *KX122) writeODR(ctx context.Context, hz uint32) (uint32, error) {
	e := KX122Rates.Select(hz)
	err := d.regs.Write(ctx, regODCNTL, e.Code)
	if err != nil {
		return 0, fmt.Errorf("could not set output data rate: %w", err)
	}
	d.odr = e.Rate
	return e.Rate, nil
}

// SelfTest runs the command test: COTR must read 0x55, then 0xAA once COTC is
// set. The interrupt line is masked during the test and unmasked afterwards
// whatever the outcome.
func (d *KX122) SelfTest(ctx context.Context) error {
	d.edge.Disable()
	defer d.edge.Enable()
	v, err := d.regs.Read(ctx, regCOTR)
	if err != nil {
		return fmt.Errorf("could not read command test response: %w", err)
	}
	if v != cotrDefault {
		return fmt.Errorf("%w: COTR is %#02x, expected %#02x", sensorhub.ErrSelfTestPrecheck, v, cotrDefault)
	}
	err = d.regs.ChangeBits(ctx, regCNTL2, cntl2COTC, cntl2COTC)
	if err != nil {
		return fmt.Errorf("could not start command test: %w", err)
	}
	v, err = d.regs.Read(ctx, regCOTR)
	if err != nil {
		return fmt.Errorf("could not read command test response: %w", err)
	}
	if v != cotrActive {
		return fmt.Errorf("%w: COTR is %#02x, expected %#02x", sensorhub.ErrSelfTestMismatch, v, cotrActive)
	}
	d.logger.Debug("self-test passed")
	return nil
}

// Close stops the data-ready watcher. The bus and the line stay open.
func (d *KX122) Close() error {
	return d.edge.Close()
}

// InterruptEnabled reports whether data-ready edges are currently delivered.
func (d *KX122) InterruptEnabled() bool {
	return d.edge.Enabled()
}

// Axes is one raw sample in counts.
type Axes struct {
	X, Y, Z int16
}

// DecodeAxes reads XL XH YL YH ZL ZH.
func DecodeAxes(b []byte) Axes {
	return Axes{
		X: int16(binary.LittleEndian.Uint16(b[0:2])),
		Y: int16(binary.LittleEndian.Uint16(b[2:4])),
		Z: int16(binary.LittleEndian.Uint16(b[4:6])),
	}
}

// G converts counts to units of standard gravity for range r.
func (a Axes) G(r Range) [3]float64 {
	div := r.CountsPerG()
	return [3]float64{float64(a.X) / div, float64(a.Y) / div, float64(a.Z) / div}
}
