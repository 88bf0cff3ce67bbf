package drdy

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/mklimuk/sensorhub"
)

// Timer marks a Flag periodically at the output data rate. Used by sensors
// that have no interrupt line.
type Timer struct {
	clock clock.Clock
	flag  *Flag

	mx     sync.Mutex
	period time.Duration
	stop   chan struct{}
	done   chan struct{}
}

func NewTimer(clk clock.Clock, flag *Flag) *Timer {
	if clk == nil {
		clk = clock.New()
	}
	return &Timer{clock: clk, flag: flag}
}

// Period returns the tick interval for odr: 1,000,000 / odr microseconds,
// using integer division.
func Period(odr uint32) (time.Duration, error) {
	if odr == 0 || odr > 1_000_000 {
		return 0, sensorhub.ErrInvalidRate
	}
	return time.Duration(1_000_000/odr) * time.Microsecond, nil
}

// Start schedules periodic marks for odr. A running timer is rescheduled.
func (t *Timer) Start(odr uint32) error {
	period, err := Period(odr)
	if err != nil {
		return err
	}
	t.mx.Lock()
	defer t.mx.Unlock()
	t.stopLocked()
	t.period = period
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	ticker := t.clock.Ticker(period)
	go t.run(ticker, t.stop, t.done)
	return nil
}

// Reschedule is Start under another name: the old schedule is fully stopped
// before the new one begins, so no tick at the old rate follows it.
func (t *Timer) Reschedule(odr uint32) error {
	return t.Start(odr)
}

// Stop cancels the schedule and waits for the ticking goroutine to exit.
// Stopping an idle timer does nothing.
func (t *Timer) Stop() {
	t.mx.Lock()
	defer t.mx.Unlock()
	t.stopLocked()
}

func (t *Timer) stopLocked() {
	if t.stop == nil {
		return
	}
	close(t.stop)
	<-t.done
	t.stop, t.done = nil, nil
	t.period = 0
}

func (t *Timer) Running() bool {
	t.mx.Lock()
	defer t.mx.Unlock()
	return t.stop != nil
}

// CurrentPeriod returns the active tick interval, or 0 when stopped.
func (t *Timer) CurrentPeriod() time.Duration {
	t.mx.Lock()
	defer t.mx.Unlock()
	return t.period
}

func (t *Timer) run(ticker *clock.Ticker, stop, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// stop wins over a tick that raced with it
			select {
			case <-stop:
				return
			default:
			}
			t.flag.Mark()
		}
	}
}
