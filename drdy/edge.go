package drdy

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/mklimuk/sensorhub"
)

const defaultEdgePoll = 100 * time.Millisecond

// Edge binds a falling-edge line to a Flag. The watcher goroutine plays the
// role of interrupt context: it only marks the flag and never touches the bus.
type Edge struct {
	line    sensorhub.EdgeLine
	flag    *Flag
	poll    time.Duration
	enabled atomic.Bool
	// bumped by Disable; an edge is delivered only if no Disable happened
	// while the watcher was waiting for it
	gen atomic.Uint64
	// held while an edge is checked against the mask and marked
	deliver sync.Mutex
	// runs inside deliver before the mask check; tests only
	beforeDeliver func()

	mx     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type EdgeOpt func(*Edge)

// WithPollTimeout bounds a single WaitForEdge call so Close can stop the
// watcher without owning the line.
func WithPollTimeout(d time.Duration) EdgeOpt {
	return func(e *Edge) {
		e.poll = d
	}
}

func NewEdge(line sensorhub.EdgeLine, flag *Flag, opts ...EdgeOpt) *Edge {
	e := &Edge{line: line, flag: flag, poll: defaultEdgePoll}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Bind starts watching the line. Edges are delivered once Enable is called.
// Calling Bind on a bound watcher is a no-op.
func (e *Edge) Bind() {
	e.mx.Lock()
	defer e.mx.Unlock()
	if e.done != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.watch(ctx, e.done)
}

func (e *Edge) watch(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		gen := e.gen.Load()
		if !e.line.WaitForEdge(e.poll) {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		e.deliverEdge(gen)
	}
}

func (e *Edge) deliverEdge(gen uint64) {
	e.deliver.Lock()
	defer e.deliver.Unlock()
	if e.beforeDeliver != nil {
		e.beforeDeliver()
	}
	if e.enabled.Load() && e.gen.Load() == gen {
		e.flag.Mark()
	}
}

// Enable unmasks edge delivery.
func (e *Edge) Enable() {
	e.enabled.Store(true)
}

// Disable masks edge delivery. Edges seen while masked are dropped. An edge
// already being delivered completes first, so once Disable returns the flag
// is not marked until Enable.
func (e *Edge) Disable() {
	e.deliver.Lock()
	defer e.deliver.Unlock()
	e.enabled.Store(false)
	e.gen.Inc()
}

func (e *Edge) Enabled() bool {
	return e.enabled.Load()
}

// Close stops the watcher and waits for it to exit. The line itself is left
// as it was: it belongs to the board.
func (e *Edge) Close() error {
	e.mx.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.mx.Unlock()
	if cancel == nil {
		return nil
	}
	e.Disable()
	cancel()
	<-done
	return nil
}
