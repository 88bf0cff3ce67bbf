// Package adapter drives the Microchip MCP2221 USB to I2C/GPIO bridge over HID.
// The bridge can host a register-addressed sensor on its I2C side and relay
// the sensor's data-ready pin through one of its GP inputs.
package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/karalabe/hid"

	"github.com/mklimuk/sensorhub"
	"github.com/mklimuk/sensorhub/snsctx"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

const reportSize = 64

// HID report command codes
const (
	cmdStatusSetParams = 0x10
	cmdI2CWrite        = 0x90
	cmdI2CRead         = 0x91
	cmdI2CGetData      = 0x40
	cmdGetGPIO         = 0x51
	cmdGetSRAM         = 0xB0
	cmdSetSRAM         = 0xB1
)

const (
	statusCancelTransfer = 0x10
	i2cEngineBusy        = 0x01
	i2cReadError         = 0x41
)

var ErrCommandUnsupported = errors.New("unsupported command")
var ErrCommandFailed = errors.New("command failed")
var ErrAdapterNotFound = errors.New("MCP2221 device not found")

// OpenFunc opens the HID interface of the bridge. The optional id selects
// one of several attached bridges by enumeration index.
type OpenFunc func(id ...int) (io.ReadWriteCloser, error)

type MCP2221Opts struct {
	ResponseWait time.Duration
	Open         OpenFunc
	Logger       *slog.Logger
}

type MCP2221Opt func(*MCP2221Opts)

// WithResponseWait sets the delay between a request report and reading the
// response report.
func WithResponseWait(d time.Duration) MCP2221Opt {
	return func(o *MCP2221Opts) {
		o.ResponseWait = d
	}
}

func WithOpenFunc(open OpenFunc) MCP2221Opt {
	return func(o *MCP2221Opts) {
		o.Open = open
	}
}

func WithLogger(logger *slog.Logger) MCP2221Opt {
	return func(o *MCP2221Opts) {
		o.Logger = logger
	}
}

var _ sensorhub.I2CBus = &MCP2221{}

// MCP2221 serializes every request/response exchange with the bridge. The
// HID device is opened per exchange, so several processes can share it.
type MCP2221 struct {
	mx       sync.Mutex
	request  []byte
	response []byte
	config   MCP2221Opts
	logger   *slog.Logger
}

type MCP2221Status struct {
	I2CDataBufferCounter   int    `yaml:"i2c_data_buffer_counter"`
	I2CSpeedDivider        int    `yaml:"i2c_speed_divider"`
	I2CTimeout             int    `yaml:"i2c_timeout"`
	CurrentAddress         string `yaml:"current_address"`
	LastWriteRequestedSize uint16 `yaml:"last_write_requested_size"`
	LastWriteSentSize      uint16 `yaml:"last_write_sent_size"`
	ReadPending            int    `yaml:"read_pending"`
}

func NewMCP2221(opts ...MCP2221Opt) *MCP2221 {
	config := MCP2221Opts{
		ResponseWait: 50 * time.Millisecond,
		Open:         openHID,
	}
	for _, opt := range opts {
		opt(&config)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MCP2221{
		request:  make([]byte, reportSize),
		response: make([]byte, reportSize),
		config:   config,
		logger:   logger.With("adapter", "mcp2221"),
	}
}

func openHID(id ...int) (io.ReadWriteCloser, error) {
	devs := hid.Enumerate(VendorID, ProductID)
	if len(devs) == 0 {
		return nil, ErrAdapterNotFound
	}
	if len(id) == 0 {
		if len(devs) > 1 {
			return nil, fmt.Errorf("ambiguous device identification: %d bridges attached", len(devs))
		}
		return devs[0].Open()
	}
	if id[0] < 0 || id[0] >= len(devs) {
		return nil, fmt.Errorf("no device with id %d", id[0])
	}
	return devs[id[0]].Open()
}

func (d *MCP2221) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	if len(buffer) > reportSize-4 {
		return fmt.Errorf("write of %d bytes exceeds a single report", len(buffer))
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdI2CWrite
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address << 1
	copy(d.request[4:], buffer)
	err := d.send(ctx, true)
	if err != nil {
		return fmt.Errorf("write to %x failed: %w", address, err)
	}
	if d.response[1] == i2cEngineBusy {
		d.logger.Debug("adapter busy", "address", address)
		return sensorhub.ErrBusBusy
	}
	return nil
}

func (d *MCP2221) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	if len(buffer) > reportSize-4 {
		return fmt.Errorf("read of %d bytes exceeds a single report", len(buffer))
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdI2CRead
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address<<1 + 1
	err := d.send(ctx, true)
	if err != nil {
		return fmt.Errorf("bus read from %x failed: %w", address, err)
	}
	if d.response[1] == i2cEngineBusy {
		return sensorhub.ErrBusBusy
	}
	d.resetBuffers()
	d.request[0] = cmdI2CGetData
	err = d.send(ctx, true)
	if err != nil {
		return fmt.Errorf("error getting read data from adapter: %w", err)
	}
	if d.response[1] == i2cReadError {
		return fmt.Errorf("error reading the I2C slave data from the I2C engine")
	}
	if d.response[3] == 127 || int(d.response[3]) != len(buffer) {
		return fmt.Errorf("invalid data size byte; expected %d, got %d", len(buffer), d.response[3])
	}
	copy(buffer, d.response[4:])
	return nil
}

func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatusSetParams
	err := d.send(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func bufferToStatus(buffer []byte) *MCP2221Status {
	/*
		9: Lower byte (16-bit value) of the requested I2C transfer length
		10: Higher byte (16-bit value) of the requested I2C transfer length
		11:	Lower byte (16-bit value) of the already transferred (through I2C) number of bytes
		12:	Higher byte (16-bit value) of the already transferred (through I2C) number of bytes
		13:	Internal I2C data buffer counter
		14: Current I2C communication speed divider value
		15: Current I2C timeout value
		16:	Lower byte (16-bit value) of the I2C address being used
		17:	Higher byte (16-bit value) of the I2C address being used
	*/
	return &MCP2221Status{
		I2CDataBufferCounter:   int(buffer[13]),
		I2CSpeedDivider:        int(buffer[14]),
		I2CTimeout:             int(buffer[15]),
		ReadPending:            int(buffer[25]),
		CurrentAddress:         hex.EncodeToString(buffer[16:18]),
		LastWriteRequestedSize: binary.LittleEndian.Uint16(buffer[9:11]),
		LastWriteSentSize:      binary.LittleEndian.Uint16(buffer[11:13]),
	}
}

// Release cancels any pending I2C transfer so the engine is idle again.
func (d *MCP2221) Release(ctx context.Context) error {
	_, err := d.ReleaseBus(ctx)
	return err
}

func (d *MCP2221) ReleaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatusSetParams
	d.request[2] = statusCancelTransfer
	err := d.send(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("cancel transfer request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func (d *MCP2221) send(ctx context.Context, response bool, id ...int) error {
	dev, err := d.config.Open(id...)
	if err != nil {
		return fmt.Errorf("error opening device: %w", err)
	}
	defer func() {
		err := dev.Close()
		if err != nil {
			d.logger.Warn("could not close device", "error", err)
		}
	}()
	verbose := snsctx.IsVerbose(ctx)
	if verbose {
		d.logger.Debug("sending message to adapter", "report", hex.Dump(d.request))
	}
	n, err := dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short write: %d", n)
	}
	if !response {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d.config.ResponseWait):
	}
	n, err = dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short read: %d", n)
	}
	if verbose {
		d.logger.Debug("read message from adapter", "report", hex.Dump(d.response))
	}
	return nil
}

func (d *MCP2221) resetBuffers() {
	clear(d.request)
	clear(d.response)
}
