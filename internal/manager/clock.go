package manager

import (
	"fmt"

	tcerrors "tracecap/pkg/errors"
)

// TimeType is CollectionGlobals.time_type: the wire representation of
// the timestamp column, negotiated once at construction from which
// ClockSource implementation the caller supplies.
type TimeType string

const (
	TimeTypeInt  TimeType = "INT"
	TimeTypeReal TimeType = "REAL"
)

// ClockSource reads the current tick's timestamp and enforces that
// successive collect() timestamps strictly increase. Three
// representations are supported — 32-bit int, 64-bit int, double —
// mirroring the source's timestamp type negotiation.
type ClockSource interface {
	// Next reads the current timestamp, validates it against the
	// previous call, and returns it as an int64 tick value alongside
	// the raw value used for wire serialization.
	Next() (tick int64, raw float64, err error)
	TimeType() TimeType
}

// Uint32Clock reads a caller-supplied zero-arg reader returning a u32
// timestamp (e.g. a hardware cycle counter truncated to 32 bits).
type Uint32Clock struct {
	read    func() uint32
	have    bool
	prev    uint32
}

func NewUint32Clock(read func() uint32) *Uint32Clock { return &Uint32Clock{read: read} }

func (c *Uint32Clock) TimeType() TimeType { return TimeTypeInt }

func (c *Uint32Clock) Next() (int64, float64, error) {
	v := c.read()
	if c.have && v <= c.prev {
		return 0, 0, tcerrors.NewTimeRegressionError(fmt.Sprintf("%d", c.prev), fmt.Sprintf("%d", v))
	}
	c.have, c.prev = true, v
	return int64(v), float64(v), nil
}

// Uint64Clock reads a caller-supplied zero-arg reader returning a u64
// timestamp (e.g. a monotonic nanosecond counter).
type Uint64Clock struct {
	read func() uint64
	have bool
	prev uint64
}

func NewUint64Clock(read func() uint64) *Uint64Clock { return &Uint64Clock{read: read} }

func (c *Uint64Clock) TimeType() TimeType { return TimeTypeInt }

func (c *Uint64Clock) Next() (int64, float64, error) {
	v := c.read()
	if c.have && v <= c.prev {
		return 0, 0, tcerrors.NewTimeRegressionError(fmt.Sprintf("%d", c.prev), fmt.Sprintf("%d", v))
	}
	c.have, c.prev = true, v
	return int64(v), float64(v), nil
}

// DoubleClock reads a caller-supplied zero-arg reader returning a
// floating-point timestamp (e.g. a simulated wall-clock in seconds).
type DoubleClock struct {
	read func() float64
	have bool
	prev float64
}

func NewDoubleClock(read func() float64) *DoubleClock { return &DoubleClock{read: read} }

func (c *DoubleClock) TimeType() TimeType { return TimeTypeReal }

func (c *DoubleClock) Next() (int64, float64, error) {
	v := c.read()
	if c.have && v <= c.prev {
		return 0, 0, tcerrors.NewTimeRegressionError(fmt.Sprintf("%g", c.prev), fmt.Sprintf("%g", v))
	}
	c.have, c.prev = true, v
	return int64(v), v, nil
}
