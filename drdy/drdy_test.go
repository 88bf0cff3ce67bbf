package drdy

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/sensorhub"
)

func TestCursor(t *testing.T) {
	f := &Flag{}
	c := NewCursor(f)
	assert.False(t, c.Fresh())
	assert.False(t, c.Consume())

	f.Mark()
	f.Mark()
	assert.True(t, c.Fresh())
	assert.True(t, c.Consume())
	assert.False(t, c.Consume(), "two marks before a read collapse into one sample")

	f.Mark()
	c.Skip()
	assert.False(t, c.Fresh())
}

func TestCursorStartsAfterExistingMarks(t *testing.T) {
	f := &Flag{}
	f.Mark()
	c := NewCursor(f)
	assert.False(t, c.Fresh())
}

func TestPeriod(t *testing.T) {
	tests := []struct {
		odr  uint32
		want time.Duration
	}{
		{1, time.Second},
		{100, 10 * time.Millisecond},
		{3, 333333 * time.Microsecond},
		{1_000_000, time.Microsecond},
	}
	for _, tt := range tests {
		got, err := Period(tt.odr)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "odr %d", tt.odr)
	}
	_, err := Period(0)
	assert.ErrorIs(t, err, sensorhub.ErrInvalidRate)
	_, err = Period(2_000_000)
	assert.ErrorIs(t, err, sensorhub.ErrInvalidRate, "sub-microsecond periods are not schedulable")
}

func TestTimer_MarksAtPeriod(t *testing.T) {
	clk := clock.NewMock()
	f := &Flag{}
	tm := NewTimer(clk, f)

	require.NoError(t, tm.Start(100))
	assert.True(t, tm.Running())
	assert.Equal(t, 10*time.Millisecond, tm.CurrentPeriod())

	clk.Add(10 * time.Millisecond)
	assert.Eventually(t, func() bool { return f.Seq() == 1 }, time.Second, time.Millisecond)

	clk.Add(10 * time.Millisecond)
	assert.Eventually(t, func() bool { return f.Seq() == 2 }, time.Second, time.Millisecond)

	tm.Stop()
	assert.False(t, tm.Running())
	clk.Add(100 * time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, uint64(2), f.Seq())
}

func TestTimer_StopWithoutStart(t *testing.T) {
	tm := NewTimer(clock.NewMock(), &Flag{})
	assert.NotPanics(t, tm.Stop)
	assert.False(t, tm.Running())
}

func TestTimer_RescheduleUsesNewPeriod(t *testing.T) {
	clk := clock.NewMock()
	f := &Flag{}
	tm := NewTimer(clk, f)
	defer tm.Stop()

	require.NoError(t, tm.Start(10))
	require.NoError(t, tm.Reschedule(1000))
	assert.Equal(t, time.Millisecond, tm.CurrentPeriod())

	clk.Add(time.Millisecond)
	assert.Eventually(t, func() bool { return f.Seq() >= 1 }, time.Second, time.Millisecond)
	assert.ErrorIs(t, tm.Reschedule(0), sensorhub.ErrInvalidRate)
}

type fakeLine struct {
	edges chan struct{}
}

func newFakeLine() *fakeLine {
	return &fakeLine{edges: make(chan struct{}, 16)}
}

func (l *fakeLine) WaitForEdge(timeout time.Duration) bool {
	select {
	case <-l.edges:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (l *fakeLine) fall() {
	l.edges <- struct{}{}
}

func TestEdge_DeliversOnlyWhenEnabled(t *testing.T) {
	line := newFakeLine()
	f := &Flag{}
	e := NewEdge(line, f, WithPollTimeout(5*time.Millisecond))
	e.Bind()
	defer func() { _ = e.Close() }()

	line.fall()
	assert.Eventually(t, func() bool { return len(line.edges) == 0 }, time.Second, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, uint64(0), f.Seq(), "masked edge must not mark")

	e.Enable()
	line.fall()
	assert.Eventually(t, func() bool { return f.Seq() == 1 }, time.Second, time.Millisecond)

	e.Disable()
	assert.False(t, e.Enabled())
	line.fall()
	assert.Eventually(t, func() bool { return len(line.edges) == 0 }, time.Second, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, uint64(1), f.Seq())
}

func TestEdge_CloseStopsWatcher(t *testing.T) {
	line := newFakeLine()
	f := &Flag{}
	e := NewEdge(line, f, WithPollTimeout(time.Millisecond))
	e.Bind()
	e.Bind()
	e.Enable()
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	line.fall()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, uint64(0), f.Seq())
	assert.Len(t, line.edges, 1, "nobody consumes edges after close")
}

// gatedLine reports each WaitForEdge call so a test knows the watcher is
// waiting.
type gatedLine struct {
	fakeLine
	entered chan struct{}
}

func newGatedLine() *gatedLine {
	return &gatedLine{fakeLine: *newFakeLine(), entered: make(chan struct{}, 64)}
}

func (l *gatedLine) WaitForEdge(timeout time.Duration) bool {
	l.entered <- struct{}{}
	return l.fakeLine.WaitForEdge(timeout)
}

func TestEdge_DisableWaitsForDelivery(t *testing.T) {
	line := newFakeLine()
	f := &Flag{}
	e := NewEdge(line, f, WithPollTimeout(5*time.Millisecond))
	parked := make(chan struct{})
	release := make(chan struct{})
	e.beforeDeliver = func() {
		close(parked)
		<-release
	}
	e.Enable()
	e.Bind()
	defer func() { _ = e.Close() }()

	line.fall()
	<-parked
	disabled := make(chan struct{})
	go func() {
		e.Disable()
		close(disabled)
	}()
	select {
	case <-disabled:
		t.Fatal("Disable returned while an edge was being delivered")
	case <-time.After(10 * time.Millisecond):
	}
	e.beforeDeliver = nil
	close(release)
	<-disabled
	assert.Equal(t, uint64(1), f.Seq(), "the edge in flight lands before Disable returns")

	c := NewCursor(f)
	line.fall()
	require.Eventually(t, func() bool { return len(line.edges) == 0 }, time.Second, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	assert.False(t, c.Fresh(), "nothing is marked once Disable returned")
}

func TestEdge_DropsEdgeWaitedAcrossDisable(t *testing.T) {
	line := newGatedLine()
	f := &Flag{}
	e := NewEdge(line, f, WithPollTimeout(200*time.Millisecond))
	e.Enable()
	e.Bind()
	defer func() { _ = e.Close() }()

	<-line.entered
	e.Disable()
	e.Enable()
	line.fall()
	<-line.entered
	assert.Equal(t, uint64(0), f.Seq(), "edge seen by a wait that began before Disable is dropped")

	line.fall()
	require.Eventually(t, func() bool { return f.Seq() == 1 }, time.Second, time.Millisecond)
}
