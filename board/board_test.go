package board

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/sensorhub/accel"
	"github.com/mklimuk/sensorhub/adapter"
	"github.com/mklimuk/sensorhub/config"
)

func TestOpen_Empty(t *testing.T) {
	b, err := Open(&config.Config{})
	require.NoError(t, err)
	assert.Empty(t, b.Hub.Sensors())
	assert.NoError(t, b.Close(context.Background()))
}

func TestOpen_UnknownType(t *testing.T) {
	_, err := Open(&config.Config{Sensors: []config.Sensor{{Name: "x", Type: "bmp280"}}})
	assert.ErrorContains(t, err, "unknown sensor type")
}

func TestOpen_MissingSerialPort(t *testing.T) {
	cfg := &config.Config{Sensors: []config.Sensor{{
		Name:      "mic",
		Type:      config.TypeAcoustic,
		Transport: config.TransportSerial,
		Port:      filepath.Join(t.TempDir(), "ttyNONE"),
		Baud:      9600,
		ODR:       100,
	}}}
	_, err := Open(cfg)
	assert.ErrorContains(t, err, "could not open sensor mic")
}

func TestClose_ReverseOrder(t *testing.T) {
	b, err := Open(&config.Config{})
	require.NoError(t, err)
	var order []int
	failure := errors.New("close failed")
	b.closers = append(b.closers,
		closerFunc(func() error { order = append(order, 1); return nil }),
		closerFunc(func() error { order = append(order, 2); return failure }),
	)
	err = b.Close(context.Background())
	assert.ErrorIs(t, err, failure)
	assert.Equal(t, []int{2, 1}, order)
}

func TestOpenSensor_KX122OverBridgeLatchesInterrupt(t *testing.T) {
	b, err := Open(&config.Config{})
	require.NoError(t, err)
	defer func() { _ = b.Close(context.Background()) }()

	s, err := b.OpenSensor(config.Sensor{
		Name:      "accel",
		Type:      config.TypeKX122,
		Transport: config.TransportMCP2221,
		Address:   config.DefaultKX122Address,
		DRDYPin:   "2",
		ODR:       100,
		Range:     8,
	})
	require.NoError(t, err)
	kx, ok := s.(*accel.KX122)
	require.True(t, ok)
	assert.True(t, kx.LatchedInterrupt(), "polled GP input needs a held data-ready level")
	assert.NotNil(t, b.bridge)
	assert.IsType(t, &adapter.MCP2221{}, b.bridge)
}

func TestOpenSensor_BridgeNeedsGPIndex(t *testing.T) {
	b, err := Open(&config.Config{})
	require.NoError(t, err)
	_, err = b.OpenSensor(config.Sensor{
		Name:      "accel",
		Type:      config.TypeKX122,
		Transport: config.TransportMCP2221,
		DRDYPin:   "GPIO17",
	})
	assert.ErrorContains(t, err, "GP index")
}
