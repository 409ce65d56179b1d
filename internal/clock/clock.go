// Package clock 抽象時間來源，整個系統只有這裡接觸真實時間
package clock

import (
	"sort"
	"sync"
	"time"
)

// Timer 可取消的延遲回呼
type Timer interface {
	// Stop 回傳 false 代表回呼已觸發或已被取消
	Stop() bool
}

// Clock 時間來源
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Real 以 time 套件實作的真實時鐘
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// ============================================================================
// Fake - 測試用的確定性時鐘
// ============================================================================

// Fake only moves when Advance is called. Due callbacks run on the caller's
// goroutine in (deadline, registration) order, so ties fire in the order they
// were scheduled.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*fakeTimer
}

type fakeTimer struct {
	clock *Fake
	at    time.Time
	seq   uint64
	f     func()
	done  bool // fired or stopped
}

// NewFake creates a Fake clock starting at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Fake) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	t := &fakeTimer{clock: c, at: c.now.Add(max(d, 0)), seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.done {
		return false
	}
	t.done = true
	c.removeLocked(t)
	return true
}

// Pending number of timers that have neither fired nor been stopped
func (c *Fake) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// Advance moves the clock forward by d and runs every callback that becomes
// due, including ones registered by callbacks during the advance.
func (c *Fake) Advance(d time.Duration) {
	for _, f := range c.advance(d, true) {
		f()
	}
}

// AdvanceDeferred moves the clock like Advance but hands the due callbacks back
// instead of running them. It models a host whose timers have elapsed and are
// queued behind other work: the timers report Stop() == false from now on.
func (c *Fake) AdvanceDeferred(d time.Duration) []func() {
	return c.advance(d, false)
}

func (c *Fake) advance(d time.Duration, run bool) []func() {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	var deferred []func()
	for {
		c.mu.Lock()
		t := c.nextDueLocked(target)
		if t == nil {
			c.now = target
			c.mu.Unlock()
			return deferred
		}
		t.done = true
		c.removeLocked(t)
		c.now = t.at
		c.mu.Unlock()

		if run {
			t.f()
		} else {
			deferred = append(deferred, t.f)
		}
	}
}

func (c *Fake) nextDueLocked(target time.Time) *fakeTimer {
	if len(c.timers) == 0 {
		return nil
	}
	sort.SliceStable(c.timers, func(i, j int) bool {
		a, b := c.timers[i], c.timers[j]
		if !a.at.Equal(b.at) {
			return a.at.Before(b.at)
		}
		return a.seq < b.seq
	})
	if c.timers[0].at.After(target) {
		return nil
	}
	return c.timers[0]
}

func (c *Fake) removeLocked(t *fakeTimer) {
	for i, other := range c.timers {
		if other == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return
		}
	}
}
