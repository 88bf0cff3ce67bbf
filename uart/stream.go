// Package uart turns a blocking serial port into a non-blocking byte stream
// for sensors that emit on their own schedule.
package uart

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/tarm/serial"

	"github.com/mklimuk/sensorhub"
)

const (
	DefaultBaud     = 9600
	DefaultCapacity = 256

	readChunk = 64
)

var ErrClosed = errors.New("stream closed")

var _ sensorhub.ByteStream = &Stream{}

type StreamOpts struct {
	Capacity    int
	ReadTimeout time.Duration
	Logger      *slog.Logger
}

type StreamOpt func(*StreamOpts)

// WithCapacity bounds the receive buffer. When it is full the oldest bytes
// are dropped.
func WithCapacity(n int) StreamOpt {
	return func(o *StreamOpts) {
		o.Capacity = n
	}
}

// WithReadTimeout bounds a single port read, which is how often the pump
// notices Close on ports that keep the read blocked. With a timeout set, a
// read returning io.EOF without data is an idle line, not the end of the
// stream. Zero means reads block and io.EOF is final.
func WithReadTimeout(d time.Duration) StreamOpt {
	return func(o *StreamOpts) {
		o.ReadTimeout = d
	}
}

func WithLogger(logger *slog.Logger) StreamOpt {
	return func(o *StreamOpts) {
		o.Logger = logger
	}
}

// Stream buffers everything the port receives. A pump goroutine does the
// blocking reads; Buffered and Read only touch the buffer.
type Stream struct {
	port     io.ReadCloser
	capacity int
	timed    bool
	logger   *slog.Logger

	mx      sync.Mutex
	buf     []byte
	dropped uint64
	err     error
	closed  bool
	done    chan struct{}
}

// Open opens a serial port at baud and starts pumping it.
func Open(name string, baud int, opts ...StreamOpt) (*Stream, error) {
	config := defaultOpts(opts)
	if baud == 0 {
		baud = DefaultBaud
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        name,
		Baud:        baud,
		ReadTimeout: config.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("could not open serial port %s: %w", name, err)
	}
	err = port.Flush()
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("could not flush serial port %s: %w", name, err)
	}
	return newStream(port, config), nil
}

// NewStream pumps an already opened reader.
func NewStream(port io.ReadCloser, opts ...StreamOpt) *Stream {
	return newStream(port, defaultOpts(opts))
}

func defaultOpts(opts []StreamOpt) StreamOpts {
	config := StreamOpts{
		Capacity:    DefaultCapacity,
		ReadTimeout: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Capacity <= 0 {
		config.Capacity = DefaultCapacity
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return config
}

func newStream(port io.ReadCloser, config StreamOpts) *Stream {
	s := &Stream{
		port:     port,
		capacity: config.Capacity,
		timed:    config.ReadTimeout > 0,
		logger:   config.Logger,
		buf:      make([]byte, 0, config.Capacity),
		done:     make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *Stream) pump() {
	defer close(s.done)
	chunk := make([]byte, readChunk)
	for {
		n, err := s.port.Read(chunk)
		if n > 0 {
			s.push(chunk[:n])
		}
		if err == nil {
			continue
		}
		s.mx.Lock()
		closed := s.closed
		s.mx.Unlock()
		// a timed read on a quiet line ends with io.EOF and no data
		if !closed && s.timed && n == 0 && errors.Is(err, io.EOF) {
			continue
		}
		s.mx.Lock()
		if !closed {
			s.err = err
		}
		s.mx.Unlock()
		if !closed {
			s.logger.Warn("serial read failed", "error", err)
		}
		return
	}
}

func (s *Stream) push(p []byte) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.buf = append(s.buf, p...)
	if over := len(s.buf) - s.capacity; over > 0 {
		s.dropped += uint64(over)
		s.buf = append(s.buf[:0], s.buf[over:]...)
	}
}

// Buffered returns the number of bytes Read can return immediately.
func (s *Stream) Buffered() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return len(s.buf)
}

// Read copies buffered bytes into p. It never waits: with nothing buffered it
// returns 0 and, once the pump stopped, the error that stopped it.
func (s *Stream) Read(p []byte) (int, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if len(s.buf) == 0 {
		if s.closed {
			return 0, ErrClosed
		}
		return 0, s.err
	}
	n := copy(p, s.buf)
	s.buf = append(s.buf[:0], s.buf[n:]...)
	return n, nil
}

// Err returns the error that stopped the pump, ErrClosed after Close, or nil
// while the stream is receiving.
func (s *Stream) Err() error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.err
}

// Dropped returns how many bytes were discarded because the buffer was full.
func (s *Stream) Dropped() uint64 {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.dropped
}

// Close closes the port and waits for the pump to exit.
func (s *Stream) Close() error {
	s.mx.Lock()
	if s.closed {
		s.mx.Unlock()
		return nil
	}
	s.closed = true
	s.mx.Unlock()
	err := s.port.Close()
	<-s.done
	if err != nil {
		return fmt.Errorf("could not close serial port: %w", err)
	}
	return nil
}
