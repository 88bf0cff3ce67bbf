package regmap

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/sensorhub/regmap/regmaptest"
)

func TestCommandEncoding(t *testing.T) {
	assert.Equal(t, byte(0x8F), ReadCommand(0x0F))
	assert.Equal(t, byte(0x0F), WriteCommand(0x0F))
	// bit 7 of the address never leaks into the command
	assert.Equal(t, byte(0x86), ReadCommand(0x86))
	assert.Equal(t, byte(0x06), WriteCommand(0x86))
}

func TestApplyBitsNeverTouchesBitsOutsideMask(t *testing.T) {
	for orig := 0; orig < 256; orig += 7 {
		for mask := 0; mask < 256; mask += 5 {
			for bits := 0; bits < 256; bits += 11 {
				got := ApplyBits(byte(orig), byte(mask), byte(bits))
				want := (byte(orig) & ^byte(mask)) | (byte(bits) & byte(mask))
				if got != want {
					t.Fatalf("ApplyBits(%#x, %#x, %#x) = %#x, want %#x", orig, mask, bits, got, want)
				}
				if got&^byte(mask) != byte(orig)&^byte(mask) {
					t.Fatalf("bits outside mask %#x changed: %#x -> %#x", mask, orig, got)
				}
			}
		}
	}
}

func TestMap_ChangeBits(t *testing.T) {
	dev := regmaptest.NewDevice()
	dev.Set(0x18, 0b0101_0011)
	m := New(NewSPITransport(dev))
	ctx := context.Background()

	err := m.ChangeBits(ctx, 0x18, 0x80, 0x80)
	require.NoError(t, err)
	assert.Equal(t, byte(0b1101_0011), dev.Get(0x18))

	err = m.ChangeBits(ctx, 0x18, 0x0F, 0xFC)
	require.NoError(t, err)
	assert.Equal(t, byte(0b1101_1100), dev.Get(0x18))

	transfers := dev.Transfers()
	require.Len(t, transfers, 4)
	assert.Equal(t, []byte{0x98, 0x00}, transfers[0])
	assert.Equal(t, []byte{0x18, 0b1101_0011}, transfers[1])
}

func TestMap_ReadBurstIsOneTransfer(t *testing.T) {
	dev := regmaptest.NewDevice()
	for i, v := range []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06} {
		dev.Set(0x06+byte(i), v)
	}
	m := New(NewSPITransport(dev))

	buf := make([]byte, 6)
	err := m.ReadBurst(context.Background(), 0x06, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}, buf)

	transfers := dev.Transfers()
	require.Len(t, transfers, 1)
	assert.Equal(t, []byte{0x86, 0, 0, 0, 0, 0, 0}, transfers[0])
}

func TestMap_ReadPropagatesBusError(t *testing.T) {
	dev := regmaptest.NewDevice()
	busErr := errors.New("bus down")
	dev.FailWith(busErr)
	m := New(NewSPITransport(dev))

	_, err := m.Read(context.Background(), 0x0F)
	assert.ErrorIs(t, err, busErr)

	err = m.ChangeBits(context.Background(), 0x18, 0x80, 0x80)
	assert.ErrorIs(t, err, busErr)
}

type mockI2CBus struct {
	mock.Mock
}

func (m *mockI2CBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	return args.Error(0)
}

func (m *mockI2CBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	if data, ok := args.Get(0).([]byte); ok {
		copy(buffer, data)
	}
	return args.Error(1)
}

func (m *mockI2CBus) Release(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func TestI2CTransport(t *testing.T) {
	bus := new(mockI2CBus)
	tr := NewI2CTransport(bus, 0x1E)
	ctx := context.Background()

	bus.On("WriteToAddr", mock.Anything, byte(0x1E), []byte{0x06}).Return(nil).Once()
	bus.On("ReadFromAddr", mock.Anything, byte(0x1E), mock.Anything).Return([]byte{0x01, 0x02, 0x03}, nil).Once()
	buf := make([]byte, 3)
	err := tr.ReadRegisters(ctx, 0x06, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, buf)

	bus.On("WriteToAddr", mock.Anything, byte(0x1E), []byte{0x18, 0x80}).Return(nil).Once()
	err = tr.WriteRegister(ctx, 0x18, 0x80)
	require.NoError(t, err)

	bus.AssertExpectations(t)
}

func TestI2CTransport_PointerWriteFailure(t *testing.T) {
	bus := new(mockI2CBus)
	tr := NewI2CTransport(bus, 0x1E)
	busErr := errors.New("nack")
	bus.On("WriteToAddr", mock.Anything, byte(0x1E), []byte{0x0F}).Return(busErr).Once()

	err := tr.ReadRegisters(context.Background(), 0x0F, make([]byte, 1))
	assert.ErrorIs(t, err, busErr)
	bus.AssertNotCalled(t, "ReadFromAddr", mock.Anything, mock.Anything, mock.Anything)
}
