package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const board = `
poll_interval: 5ms
sensors:
  - name: accel
    type: kx122
    device: SPI0.0
    drdy_pin: GPIO17
    odr: 400
    range: 4
  - type: kx122
    transport: mcp2221
    drdy_pin: "2"
  - name: mic
    type: acoustic
    port: /dev/ttyS1
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.yaml")
	require.NoError(t, os.WriteFile(path, []byte(board), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Millisecond, c.PollInterval)
	require.Len(t, c.Sensors, 3)

	assert.Equal(t, Sensor{
		Name:      "accel",
		Type:      TypeKX122,
		Transport: TransportSPI,
		Device:    "SPI0.0",
		SpeedHz:   DefaultSPISpeed,
		DRDYPin:   "GPIO17",
		ODR:       400,
		Range:     4,
	}, c.Sensors[0])

	bridge := c.Sensors[1]
	assert.Equal(t, "kx122-1", bridge.Name)
	assert.Equal(t, byte(DefaultKX122Address), bridge.Address)
	assert.Equal(t, uint32(DefaultODR), bridge.ODR)
	assert.Equal(t, DefaultRange, bridge.Range)
	assert.Zero(t, bridge.SpeedHz)

	mic := c.Sensors[2]
	assert.Equal(t, TransportSerial, mic.Transport)
	assert.Equal(t, DefaultBaud, mic.Baud)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
}

func TestParse_Defaults(t *testing.T) {
	c, err := Parse([]byte("sensors: []"))
	require.NoError(t, err)
	assert.Equal(t, DefaultPollInterval, c.PollInterval)
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"unknown type":      "sensors: [{type: bmp280}]",
		"missing drdy":      "sensors: [{type: kx122, device: SPI0.0}]",
		"missing device":    "sensors: [{type: kx122, drdy_pin: GPIO17}]",
		"bad range":         "sensors: [{type: kx122, device: SPI0.0, drdy_pin: GPIO17, range: 16}]",
		"bad transport":     "sensors: [{type: kx122, transport: serial, drdy_pin: GPIO17}]",
		"acoustic over spi": "sensors: [{type: acoustic, transport: spi, port: /dev/ttyS1}]",
		"missing port":      "sensors: [{type: acoustic}]",
		"duplicate name":    "sensors: [{name: a, type: acoustic, port: x}, {name: a, type: acoustic, port: y}]",
		"negative poll":     "poll_interval: -1s",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse([]byte("sensors: {"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidConfig)
}
