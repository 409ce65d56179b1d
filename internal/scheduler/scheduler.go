// ============================================================================
// Intro Sequencer Scheduler - 延遲動作與重複計時器的唯一擁有者
// ============================================================================
//
// Package: internal/scheduler
// File: scheduler.go
// Purpose: Owns the Pending Action Set of the current run
//
// Model:
//   ┌──────────────┐  ScheduleRun(run)   ┌───────────────────────────┐
//   │  Sequencer   │ ──────────────────> │ Scheduler                 │
//   │              │  CancelRun()        │  queue: (deadline,handle) │
//   │              │ ──────────────────> │  timer: head only         │
//   └──────────────┘                     └─────────────┬─────────────┘
//          ^                                           │ timer fires
//          └──────────── mutation() ───────────────────┘ (guarded)
//
// Dispatch:
//   Pending actions sit in a min-heap keyed on (absolute deadline, handle).
//   Exactly one clock timer is armed, for the head. When it fires, every due
//   entry runs in heap order under mu, then the timer is re-armed for the new
//   head. Callbacks therefore fire in non-decreasing deadline order and ties
//   keep registration order, whatever the clock's own dispatch order is.
//
// Guard (checked under mu when the timer fires):
//   the firing timer must be the one currently armed. A timer that elapsed
//   before CancelRun or a newer ScheduleRun is dropped silently and counted.
//
// Mutations run while mu is held. A mutation must never call back into the
// Scheduler; the repeating tick stops itself through its return value.
//
// Once CancelRun returns, no mutation of the cancelled run executes, even if
// its timer had already elapsed and was queued behind the lock.
//
// ============================================================================

package scheduler

import (
	"container/heap"
	"log/slog"
	"sync"
	"time"

	"github.com/ChuLiYu/intro-sequencer/internal/clock"
	"github.com/ChuLiYu/intro-sequencer/pkg/types"
)

// Mutation 對序列狀態的同步、非阻塞更新
type Mutation func()

// Action 一個延遲動作：相對於 run 開始的偏移 + 變更
type Action struct {
	Offset time.Duration
	Label  string
	Apply  Mutation
}

// Tick 重複計時器定義
// 第 n 次觸發 (n = 1..MaxTicks) 位於 Start + n*Interval
type Tick struct {
	Start    time.Duration
	Interval time.Duration
	MaxTicks int
	// Apply 回傳 false 時提前停止
	Apply func(n int) bool
}

// Run 一次排程的完整內容
type Run struct {
	ID      types.RunID
	Actions []Action
	Tick    *Tick
}

// Recorder 排程統計（由 metrics.Collector 實作）
type Recorder interface {
	RecordScheduled(n int)
	RecordFired()
	RecordTick()
	RecordCancelled(n int)
	RecordDropped()
	SetPending(n int)
}

type nopRecorder struct{}

func (nopRecorder) RecordScheduled(int) {}
func (nopRecorder) RecordFired()        {}
func (nopRecorder) RecordTick()         {}
func (nopRecorder) RecordCancelled(int) {}
func (nopRecorder) RecordDropped()      {}
func (nopRecorder) SetPending(int)      {}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRecorder attaches scheduling accounting.
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) {
		if r != nil {
			s.rec = r
		}
	}
}

// WithLogger overrides slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// Scheduler 延遲動作集合的擁有者
type Scheduler struct {
	mu      sync.Mutex
	clock   clock.Clock
	rec     Recorder
	log     *slog.Logger
	current types.RunID // 目前 run 的識別碼
	active  bool        // 是否有 run 在排程中
	base    time.Time   // 目前 run 的起點（偏移基準）
	handle  uint64      // 最後配發的 handle
	queue   queue       // 尚未觸發的動作，依 (deadline, handle) 排序

	timer   clock.Timer // 唯一的計時器，對準佇列頭
	armedAt time.Time
	gen     uint64 // 目前計時器的世代，用於辨識過期回呼
}

// New 建立 Scheduler
func New(c clock.Clock, opts ...Option) *Scheduler {
	s := &Scheduler{
		clock: c,
		rec:   nopRecorder{},
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScheduleRun registers every action of run relative to now, replacing
// whatever was outstanding.
func (s *Scheduler) ScheduleRun(run Run) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked()

	s.current = run.ID
	s.active = true
	s.base = s.clock.Now()

	for _, a := range run.Actions {
		s.pushLocked(&entry{at: s.base.Add(a.Offset), run: run.ID, apply: a.Apply})
	}
	if run.Tick != nil && run.Tick.MaxTicks > 0 {
		s.pushTickLocked(run.ID, run.Tick, 1)
	}
	s.armLocked()

	n := len(run.Actions)
	if run.Tick != nil && run.Tick.MaxTicks > 0 {
		n++
	}
	s.rec.RecordScheduled(n)
	s.rec.SetPending(s.queue.Len())
	s.log.Debug("Run scheduled", "run", run.ID, "actions", len(run.Actions), "tick", run.Tick != nil)
}

// CancelRun stops every outstanding action and the repeating tick.
// Idempotent; safe when nothing is pending.
func (s *Scheduler) CancelRun() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
}

func (s *Scheduler) cancelLocked() {
	s.disarmLocked()
	n := s.queue.Len()
	s.queue = nil
	s.active = false

	if n > 0 {
		s.rec.RecordCancelled(n)
		s.log.Debug("Run cancelled", "run", s.current, "cancelled", n)
	}
	s.rec.SetPending(0)
}

// Pending 目前尚未觸發的動作數（重複計時器計為 1）
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// Current returns the run being scheduled and whether one is active.
func (s *Scheduler) Current() (types.RunID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.active
}

// Elapsed time since the current run was scheduled; zero when idle.
func (s *Scheduler) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return 0
	}
	return s.clock.Now().Sub(s.base)
}

// ----------------------------------------------------------------------------
// internal
// ----------------------------------------------------------------------------

// entry 佇列中的一個動作；tick != nil 時為重複計時器的第 n 次觸發
type entry struct {
	at     time.Time
	handle uint64
	run    types.RunID
	apply  Mutation
	tick   *Tick
	n      int
}

// queue implements heap.Interface ordered by (at, handle).
type queue []*entry

func (q queue) Len() int { return len(q) }

func (q queue) Less(i, j int) bool {
	if !q[i].at.Equal(q[j].at) {
		return q[i].at.Before(q[j].at)
	}
	return q[i].handle < q[j].handle
}

func (q queue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *queue) Push(x any) { *q = append(*q, x.(*entry)) }

func (q *queue) Pop() any {
	old := *q
	e := old[len(old)-1]
	old[len(old)-1] = nil
	*q = old[:len(old)-1]
	return e
}

func (s *Scheduler) pushLocked(e *entry) {
	s.handle++
	e.handle = s.handle
	heap.Push(&s.queue, e)
}

func (s *Scheduler) pushTickLocked(run types.RunID, tick *Tick, n int) {
	// 以 run 起點為基準計算，避免逐次累積誤差
	at := s.base.Add(tick.Start + time.Duration(n)*tick.Interval)
	s.pushLocked(&entry{at: at, run: run, tick: tick, n: n})
}

// armLocked points the single timer at the head of the queue.
func (s *Scheduler) armLocked() {
	if s.queue.Len() == 0 {
		s.disarmLocked()
		return
	}
	head := s.queue[0].at
	if s.timer != nil && s.armedAt.Equal(head) {
		return
	}
	s.disarmLocked()

	gen := s.gen
	s.armedAt = head
	s.timer = s.clock.AfterFunc(head.Sub(s.clock.Now()), func() {
		s.dispatch(gen)
	})
}

// disarmLocked stops the armed timer and invalidates any callback of it that
// already elapsed.
func (s *Scheduler) disarmLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

// dispatch runs every due entry in (deadline, handle) order.
func (s *Scheduler) dispatch(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || !s.active {
		s.rec.RecordDropped()
		s.log.Debug("Stale timer dropped", "current", s.current)
		return
	}
	s.timer = nil

	now := s.clock.Now()
	for s.queue.Len() > 0 && !s.queue[0].at.After(now) {
		e := heap.Pop(&s.queue).(*entry)
		if e.tick == nil {
			e.apply()
			s.rec.RecordFired()
			continue
		}
		more := e.tick.Apply(e.n)
		s.rec.RecordTick()
		if more && e.n < e.tick.MaxTicks {
			s.pushTickLocked(e.run, e.tick, e.n+1)
		}
	}

	s.armLocked()
	s.rec.SetPending(s.queue.Len())
}
