// Package raceclock is the official race time base. It is a small state
// machine owned by the operator: the operator starts it when the gun goes
// off, and can correct it while the race runs.
package raceclock

import (
	"errors"
	"sync"
	"time"
)

// ErrNotRunning is returned when official race time is requested while the
// clock is not running. Callers must surface this rather than substitute a
// wrong time.
var ErrNotRunning = errors.New("race clock is not running")

type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
)

// State is a copy of the clock's state, for status queries and push
// notifications.
type State struct {
	Status    Status     `json:"status"`
	StartTime *time.Time `json:"startTime,omitempty"`
	OffsetMs  float64    `json:"offsetMs"`
	// ElapsedMs is the current official race time. Only present while running.
	ElapsedMs *float64 `json:"elapsedMs,omitempty"`
}

func (s *State) Running() bool {
	return s.Status == StatusRunning
}

// Clock translates wall-clock instants into official elapsed race time.
// All methods are safe for concurrent use.
type Clock struct {
	// NowFunc exists so tests can drive the clock. Production code leaves it nil.
	NowFunc func() time.Time

	lock      sync.Mutex
	status    Status
	startTime time.Time // zero until the first Start
	offsetMs  float64
}

func NewClock() *Clock {
	return &Clock{
		status: StatusStopped,
	}
}

func (c *Clock) now() time.Time {
	if c.NowFunc != nil {
		return c.NowFunc()
	}
	return time.Now()
}

// Start records "now" as the start time and begins counting.
// An offset applied before the start (via Edit) is preserved, so an operator
// can pre-set where the clock begins counting from.
func (c *Clock) Start() State {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.startTime = c.now()
	c.status = StatusRunning
	return c.stateLocked()
}

// Stop halts the clock. The start time is kept, but there is no resume
// semantic: starting again restarts counting from the new "now", and any
// downtime must be corrected manually with Edit.
func (c *Clock) Stop() State {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.status = StatusStopped
	return c.stateLocked()
}

// Edit sets the current official race time to desiredMs.
// While running, the offset is computed so that the very next query reads
// back desiredMs. While stopped, the offset is set directly, defining where
// the clock will begin counting from once started.
func (c *Clock) Edit(desiredMs float64) State {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.status == StatusRunning {
		elapsed := c.now().Sub(c.startTime)
		c.offsetMs = desiredMs - float64(elapsed.Milliseconds())
	} else {
		c.offsetMs = desiredMs
	}
	return c.stateLocked()
}

// Reset returns the clock to its initial state: stopped, no start time,
// zero offset.
func (c *Clock) Reset() State {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.status = StatusStopped
	c.startTime = time.Time{}
	c.offsetMs = 0
	return c.stateLocked()
}

func (c *Clock) State() State {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.stateLocked()
}

// OfficialMilli converts the wall-clock instant t into official elapsed
// race time in milliseconds. It is an error to ask while the clock is not
// running (eg the operator forgot to start it).
func (c *Clock) OfficialMilli(t time.Time) (float64, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.status != StatusRunning || c.startTime.IsZero() {
		return 0, ErrNotRunning
	}
	return c.officialMilliLocked(t), nil
}

func (c *Clock) officialMilliLocked(t time.Time) float64 {
	return float64(t.Sub(c.startTime).Milliseconds()) + c.offsetMs
}

func (c *Clock) stateLocked() State {
	s := State{
		Status:   c.status,
		OffsetMs: c.offsetMs,
	}
	if !c.startTime.IsZero() {
		st := c.startTime
		s.StartTime = &st
	}
	if c.status == StatusRunning && !c.startTime.IsZero() {
		elapsed := c.officialMilliLocked(c.now())
		s.ElapsedMs = &elapsed
	}
	return s
}
