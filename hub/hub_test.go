package hub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/sensorhub"
)

type MockSensor struct {
	mock.Mock
	name string
}

func (m *MockSensor) Name() string {
	return m.name
}

func (m *MockSensor) Initialize(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockSensor) Uninitialize(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockSensor) Write(ctx context.Context, data []byte) (int, error) {
	args := m.Called(ctx, data)
	return args.Int(0), args.Error(1)
}

func (m *MockSensor) Read(ctx context.Context, data []byte) (int, error) {
	args := m.Called(ctx, data)
	if payload, ok := args.Get(2).([]byte); ok {
		copy(data, payload)
	}
	return args.Int(0), args.Error(1)
}

func (m *MockSensor) Control(ctx context.Context, cmd sensorhub.Command, arg uint32) (int32, error) {
	args := m.Called(ctx, cmd, arg)
	return args.Get(0).(int32), args.Error(1)
}

type closingSensor struct {
	*MockSensor
	closed bool
}

func (c *closingSensor) Close() error {
	c.closed = true
	return nil
}

var ctxAny = mock.Anything

func TestHub_InitializeSkipsFailedSensors(t *testing.T) {
	good := &MockSensor{name: "good"}
	bad := &MockSensor{name: "bad"}
	good.On("Initialize", ctxAny).Return(nil)
	bad.On("Initialize", ctxAny).Return(sensorhub.ErrDeviceNotFound)
	good.On("Control", ctxAny, sensorhub.CtrlStart, uint32(0)).Return(int32(0), nil)

	h := New()
	h.Register(good)
	h.Register(bad)

	err := h.Initialize(context.Background())
	assert.ErrorIs(t, err, sensorhub.ErrDeviceNotFound)
	assert.Equal(t, []string{"good"}, h.Ready())
	assert.Len(t, h.Sensors(), 2)

	require.NoError(t, h.Start(context.Background()))
	good.AssertExpectations(t)
	bad.AssertNotCalled(t, "Control", ctxAny, sensorhub.CtrlStart, uint32(0))
}

func TestHub_StartCombinesErrors(t *testing.T) {
	a := &MockSensor{name: "a"}
	b := &MockSensor{name: "b"}
	for _, s := range []*MockSensor{a, b} {
		s.On("Initialize", ctxAny).Return(nil)
	}
	a.On("Control", ctxAny, sensorhub.CtrlStart, uint32(0)).Return(int32(0), sensorhub.ErrNotInitialized)
	b.On("Control", ctxAny, sensorhub.CtrlStart, uint32(0)).Return(int32(0), nil)

	h := New()
	h.Register(a)
	h.Register(b)
	require.NoError(t, h.Initialize(context.Background()))

	err := h.Start(context.Background())
	assert.ErrorIs(t, err, sensorhub.ErrNotInitialized)
	b.AssertExpectations(t)
}

func TestHub_SetODRAndSelfTest(t *testing.T) {
	s := &MockSensor{name: "kx122"}
	s.On("Initialize", ctxAny).Return(nil)
	s.On("Control", ctxAny, sensorhub.CtrlSetODR, uint32(90)).Return(int32(100), nil)
	s.On("Control", ctxAny, sensorhub.CtrlSelfTest, uint32(0)).Return(sensorhub.SelfTestMismatch, sensorhub.ErrSelfTestMismatch)

	h := New()
	h.Register(s)
	require.NoError(t, h.Initialize(context.Background()))

	rates, err := h.SetODR(context.Background(), 90)
	require.NoError(t, err)
	assert.Equal(t, map[string]int32{"kx122": 100}, rates)
	assert.Equal(t, map[string]int32{"kx122": -2}, h.SelfTest(context.Background()))
}

func TestHub_PollOnce(t *testing.T) {
	a := &MockSensor{name: "a"}
	b := &MockSensor{name: "b"}
	for _, s := range []*MockSensor{a, b} {
		s.On("Initialize", ctxAny).Return(nil)
	}
	a.On("Read", ctxAny, mock.Anything).Return(2, nil, []byte{0x01, 0x02}).Once()
	b.On("Read", ctxAny, mock.Anything).Return(0, errors.New("bus down"), nil).Once()

	clk := clock.NewMock()
	h := New(WithClock(clk))
	h.Register(a)
	h.Register(b)
	require.NoError(t, h.Initialize(context.Background()))

	var samples []Sample
	h.PollOnce(context.Background(), func(s Sample) { samples = append(samples, s) })
	require.Len(t, samples, 1)
	assert.Equal(t, Sample{Sensor: "a", Data: []byte{0x01, 0x02}, At: clk.Now()}, samples[0])
}

func TestHub_PollUntilCancelled(t *testing.T) {
	s := &MockSensor{name: "a"}
	s.On("Initialize", ctxAny).Return(nil)
	s.On("Read", ctxAny, mock.Anything).Return(1, nil, []byte{0x7F})

	clk := clock.NewMock()
	h := New(WithClock(clk))
	h.Register(s)
	require.NoError(t, h.Initialize(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan Sample, 16)
	done := make(chan error)
	go func() {
		done <- h.Poll(ctx, 10*time.Millisecond, func(s Sample) { got <- s })
	}()

	require.Eventually(t, func() bool {
		clk.Add(10 * time.Millisecond)
		return len(got) >= 2
	}, time.Second, time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestHub_PollRejectsZeroInterval(t *testing.T) {
	assert.Error(t, New().Poll(context.Background(), 0, func(Sample) {}))
}

func TestHub_Close(t *testing.T) {
	s := &closingSensor{MockSensor: &MockSensor{name: "acoustic"}}
	s.On("Initialize", ctxAny).Return(nil)
	s.On("Control", ctxAny, sensorhub.CtrlStop, uint32(0)).Return(int32(0), nil)
	s.On("Uninitialize", ctxAny).Return(nil)
	failed := &MockSensor{name: "kx122"}
	failed.On("Initialize", ctxAny).Return(sensorhub.ErrDeviceNotFound)

	h := New()
	h.Register(s)
	h.Register(failed)
	_ = h.Initialize(context.Background())

	require.NoError(t, h.Close(context.Background()))
	assert.True(t, s.closed)
	assert.Empty(t, h.Ready())
	s.AssertExpectations(t)
	failed.AssertNotCalled(t, "Uninitialize", ctxAny)
}
