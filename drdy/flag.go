// Package drdy implements the data-ready signal paths: a hardware edge
// watcher and a periodic software timer. Both end in Flag.Mark, the only
// code that runs in signal context.
package drdy

import "go.uber.org/atomic"

// Flag is a single-producer, single-consumer readiness notification. The
// signal side increments a sequence number; the consumer remembers the last
// sequence it handled and never writes the shared counter.
type Flag struct {
	seq atomic.Uint64
}

// Mark records that a new sample is available. Safe to call from the signal
// goroutine concurrently with Cursor methods.
func (f *Flag) Mark() {
	f.seq.Inc()
}

func (f *Flag) Seq() uint64 {
	return f.seq.Load()
}

// Cursor is the consumer view of a Flag. It is owned by mainline code.
type Cursor struct {
	flag *Flag
	seen uint64
}

func NewCursor(f *Flag) *Cursor {
	return &Cursor{flag: f, seen: f.Seq()}
}

// Fresh reports whether the flag was marked since the last Consume or Skip.
func (c *Cursor) Fresh() bool {
	return c.flag.Seq() != c.seen
}

// Consume returns true and advances the cursor when a fresh mark is pending.
func (c *Cursor) Consume() bool {
	cur := c.flag.Seq()
	if cur == c.seen {
		return false
	}
	c.seen = cur
	return true
}

// Skip discards any pending marks.
func (c *Cursor) Skip() {
	c.seen = c.flag.Seq()
}
