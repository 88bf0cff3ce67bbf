package uart

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStream_BuffersWithoutBlocking(t *testing.T) {
	pr, pw := io.Pipe()
	s := NewStream(pr)
	defer func() { _ = s.Close() }()

	assert.Zero(t, s.Buffered())
	n, err := s.Read(make([]byte, 6))
	assert.NoError(t, err)
	assert.Zero(t, n, "read on an empty buffer returns immediately")

	_, err = pw.Write([]byte("12.5 \n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.Buffered() == 6 }, time.Second, time.Millisecond)

	buf := make([]byte, 4)
	n, err = s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "12.5", string(buf))
	assert.Equal(t, 2, s.Buffered())
}

func TestStream_DropsOldestWhenFull(t *testing.T) {
	pr, pw := io.Pipe()
	s := NewStream(pr, WithCapacity(4))
	defer func() { _ = s.Close() }()

	_, err := pw.Write([]byte("abcdef"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.Dropped() == 2 }, time.Second, time.Millisecond)

	buf := make([]byte, 8)
	n, err := s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "cdef", string(buf[:n]))
}

func TestStream_ReportsPortError(t *testing.T) {
	pr, pw := io.Pipe()
	s := NewStream(pr)
	defer func() { _ = s.Close() }()

	_, err := pw.Write([]byte("ab"))
	require.NoError(t, err)
	linkErr := errors.New("link lost")
	require.NoError(t, pw.CloseWithError(linkErr))

	require.Eventually(t, func() bool {
		_, err := s.Read(make([]byte, 1))
		return err != nil
	}, time.Second, time.Millisecond)
	_, err = s.Read(make([]byte, 1))
	assert.ErrorIs(t, err, linkErr)
}

func TestStream_Close(t *testing.T) {
	pr, _ := io.Pipe()
	s := NewStream(pr)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Err(), ErrClosed)
}

// timedPort behaves like a serial port opened with a read timeout: a read
// that sees no data before the timeout returns (0, io.EOF).
type timedPort struct {
	data    chan []byte
	timeout time.Duration
	once    sync.Once
	closed  chan struct{}
	idle    chan struct{}
}

func newTimedPort(timeout time.Duration) *timedPort {
	return &timedPort{
		data:    make(chan []byte, 4),
		timeout: timeout,
		closed:  make(chan struct{}),
		idle:    make(chan struct{}, 64),
	}
}

func (p *timedPort) Read(b []byte) (int, error) {
	select {
	case <-p.closed:
		return 0, errors.New("file already closed")
	case chunk := <-p.data:
		return copy(b, chunk), nil
	case <-time.After(p.timeout):
		select {
		case p.idle <- struct{}{}:
		default:
		}
		return 0, io.EOF
	}
}

func (p *timedPort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func TestStream_SurvivesIdleLine(t *testing.T) {
	port := newTimedPort(2 * time.Millisecond)
	s := NewStream(port, WithReadTimeout(2*time.Millisecond))
	defer func() { _ = s.Close() }()

	for i := 0; i < 3; i++ {
		<-port.idle
	}
	assert.NoError(t, s.Err(), "quiet line is not an error")

	port.data <- []byte("12.5 \n")
	require.Eventually(t, func() bool { return s.Buffered() == 6 }, time.Second, time.Millisecond)
	buf := make([]byte, 6)
	n, err := s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "12.5 \n", string(buf[:n]))
}

func TestStream_EOFIsFinalWithoutTimeout(t *testing.T) {
	pr, pw := io.Pipe()
	s := NewStream(pr, WithReadTimeout(0))
	defer func() { _ = s.Close() }()

	require.NoError(t, pw.Close())
	require.Eventually(t, func() bool { return s.Err() != nil }, time.Second, time.Millisecond)
	assert.ErrorIs(t, s.Err(), io.EOF)
}
