// Package odr maps requested output data rates to the rates a device supports.
package odr

import "fmt"

// Entry pairs a supported rate in Hz with its register encoding.
type Entry struct {
	Rate uint32
	Code byte
}

// Table lists supported rates in strictly increasing order. The last entry is
// the device maximum.
type Table []Entry

func (t Table) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("empty rate table")
	}
	for i := 1; i < len(t); i++ {
		if t[i].Rate <= t[i-1].Rate {
			return fmt.Errorf("rate table not strictly increasing at index %d (%d <= %d)", i, t[i].Rate, t[i-1].Rate)
		}
	}
	return nil
}

func (t Table) Min() Entry {
	return t[0]
}

func (t Table) Max() Entry {
	return t[len(t)-1]
}

// Select clamps rate to the table maximum and rounds it up to the first
// supported entry. It never rounds down.
func (t Table) Select(rate uint32) Entry {
	if rate > t.Max().Rate {
		rate = t.Max().Rate
	}
	for _, e := range t {
		if e.Rate >= rate {
			return e
		}
	}
	return t.Max()
}
