// ============================================================================
// Intro Sequencer - 序列狀態機
// ============================================================================
//
// Package: internal/sequencer
// File: sequencer.go
// Purpose: Owns the Sequence State and drives it through the Scheduler
//
// Phases (independent flags, not a single enum):
//   Idle → Captions → Typewriter → FinaleShown → FinaleSettled
//        → MenuRevealing → Complete
//
// Transitions only happen inside Scheduler-invoked mutations, except for the
// two user interrupts:
//   Skip    - any state before Complete: clear captions/typewriter instantly,
//             show the finale now, run the finale tail relative to now.
//   Restart - any state: cancel everything, bump the run id, reset every flag,
//             replay the natural run from offset 0.
//
// Locking:
//   ctl   serialises Start / Skip / Restart / Close
//   sched.mu is held while a mutation runs (owned by the Scheduler)
//   mu    guards the state; always acquired last
//   Nothing holds mu while calling into the Scheduler.
//
// ============================================================================

package sequencer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ChuLiYu/intro-sequencer/internal/clock"
	"github.com/ChuLiYu/intro-sequencer/internal/scheduler"
	"github.com/ChuLiYu/intro-sequencer/internal/script"
	"github.com/ChuLiYu/intro-sequencer/internal/timeline"
	"github.com/ChuLiYu/intro-sequencer/pkg/types"
)

// ============================================================================
// 錯誤定義
// ============================================================================

var (
	ErrClosed         = errors.New("sequencer is closed")
	ErrNotStarted     = errors.New("sequencer not started")
	ErrAlreadyStarted = errors.New("sequencer already started")
)

// SkipPolicy 跳過時打字機文字的處理方式
type SkipPolicy string

const (
	// SkipClear resets the revealed character count to zero.
	SkipClear SkipPolicy = "clear"
	// SkipReveal jumps straight to the fully revealed string, fading out.
	SkipReveal SkipPolicy = "reveal"
)

// ParseSkipPolicy accepts "" (default clear), "clear" or "reveal".
func ParseSkipPolicy(v string) (SkipPolicy, error) {
	switch SkipPolicy(v) {
	case "", SkipClear:
		return SkipClear, nil
	case SkipReveal:
		return SkipReveal, nil
	default:
		return "", fmt.Errorf("unknown skip policy %q", v)
	}
}

// Recorder 生命週期與排程統計（由 metrics.Collector 實作）
type Recorder interface {
	scheduler.Recorder
	RecordRunStarted(id types.RunID)
	RecordSkip()
	RecordRestart()
	RecordComplete()
	RecordNavigate(target string)
}

// Config Sequencer 配置
type Config struct {
	Script     *script.Script      // nil = script.Default()
	Clock      clock.Clock         // nil = clock.Real{}
	SkipPolicy SkipPolicy          // "" = SkipClear
	OnNavigate func(target string) // page-shell section switch
	Recorder   Recorder            // optional
	Logger     *slog.Logger        // nil = slog.Default()
}

// Sequencer 序列狀態機 + 終幕編排 + 導航掛鉤
type Sequencer struct {
	ctl sync.Mutex // 序列化控制操作
	mu  sync.Mutex // 保護 st

	sched    *scheduler.Scheduler
	script   *script.Script
	tl       timeline.Timeline
	captions []types.Caption
	chars    int
	policy   SkipPolicy
	navigate func(string)
	rec      Recorder
	log      *slog.Logger

	st      state
	started bool
	closed  bool
	updates chan struct{}
}

// New 建立 Sequencer（尚未開始播放）
func New(cfg Config) *Sequencer {
	if cfg.Script == nil {
		cfg.Script = script.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.SkipPolicy == "" {
		cfg.SkipPolicy = SkipClear
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	opts := []scheduler.Option{scheduler.WithLogger(cfg.Logger)}
	if cfg.Recorder != nil {
		opts = append(opts, scheduler.WithRecorder(cfg.Recorder))
	}

	return &Sequencer{
		sched:    scheduler.New(cfg.Clock, opts...),
		script:   cfg.Script,
		tl:       cfg.Script.Timeline(),
		captions: cfg.Script.Captions(),
		chars:    cfg.Script.Chars(),
		policy:   cfg.SkipPolicy,
		navigate: cfg.OnNavigate,
		rec:      cfg.Recorder,
		log:      cfg.Logger,
		st:       newState(0),
		updates:  make(chan struct{}, 1),
	}
}

// ============================================================================
// 控制操作
// ============================================================================

// Start begins the first run.
func (s *Sequencer) Start() error {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	s.beginRun(1)
	return nil
}

// Skip jumps straight to the finale. It reports false when there is nothing
// to skip: not started, closed, or already complete.
func (s *Sequencer) Skip() bool {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	if s.closed || !s.started {
		return false
	}
	if s.State().Complete() {
		return false
	}

	s.sched.CancelRun()

	s.mu.Lock()
	// 取消前最後一個動作可能剛好完成序列
	if s.st.restartVisible {
		s.mu.Unlock()
		return false
	}
	run := s.st.runID
	s.st.clearCaptions()
	switch s.policy {
	case SkipReveal:
		s.st.typewriterStarted = true
		s.st.typewriterChars = s.chars
		s.st.typewriterFading = true
	default:
		s.st.clearTypewriter()
	}
	s.st.clearFinale()
	s.st.finaleShown = true
	s.st.skipVisible = false
	s.st.skipped = true
	s.touchLocked()
	s.mu.Unlock()

	s.sched.ScheduleRun(scheduler.Run{ID: run, Actions: s.finaleTail(0)})

	if s.rec != nil {
		s.rec.RecordSkip()
	}
	s.log.Info("Sequence skipped to finale", "run", run, "policy", s.policy)
	return true
}

// Restart cancels everything outstanding and replays the sequence from the
// beginning under a new run id.
func (s *Sequencer) Restart() error {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	if s.closed {
		return ErrClosed
	}
	if !s.started {
		return ErrNotStarted
	}

	s.sched.CancelRun()

	s.mu.Lock()
	next := s.st.runID + 1
	s.mu.Unlock()

	if s.rec != nil {
		s.rec.RecordRestart()
	}
	s.beginRun(next)
	return nil
}

// Close drains the Pending Action Set and closes Updates. Idempotent.
func (s *Sequencer) Close() {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.sched.CancelRun()

	s.mu.Lock()
	s.st.running = false
	s.st.skipVisible = false
	s.touchLocked()
	// nothing sends after this: control ops see closed, the scheduler is drained
	close(s.updates)
	s.mu.Unlock()

	s.log.Info("Sequencer closed")
}

// ============================================================================
// 查詢
// ============================================================================

// State returns a snapshot of the current Sequence State.
func (s *Sequencer) State() types.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.snapshot()
}

// Updates is signalled (coalesced) after every applied mutation and closed by Close.
func (s *Sequencer) Updates() <-chan struct{} {
	return s.updates
}

// Pending number of outstanding scheduled actions
func (s *Sequencer) Pending() int {
	return s.sched.Pending()
}

// Elapsed time since the current schedule was seeded (run start, or the skip)
func (s *Sequencer) Elapsed() time.Duration {
	return s.sched.Elapsed()
}

func (s *Sequencer) Timeline() timeline.Timeline { return s.tl }

func (s *Sequencer) Captions() []types.Caption {
	return append([]types.Caption(nil), s.captions...)
}

func (s *Sequencer) Typewriter() string { return s.script.Typewriter }

func (s *Sequencer) Headline() script.Headline { return s.script.Headline }

func (s *Sequencer) Menu() []types.MenuEntry {
	return append([]types.MenuEntry(nil), s.script.Menu...)
}

// ============================================================================
// 內部：run 建構
// ============================================================================

func (s *Sequencer) beginRun(id types.RunID) {
	s.mu.Lock()
	version := s.st.version
	s.st = newState(id)
	s.st.version = version
	s.st.running = true
	s.st.skipVisible = true
	s.touchLocked()
	s.mu.Unlock()

	s.sched.ScheduleRun(s.naturalRun(id))

	if s.rec != nil {
		s.rec.RecordRunStarted(id)
	}
	s.log.Info("Sequence run started",
		"run", id,
		"captions", len(s.captions),
		"finale_at", s.tl.FinaleStart(),
		"total", s.tl.TotalDuration())
}

// naturalRun every action of an uninterrupted run, relative to run start
func (s *Sequencer) naturalRun(id types.RunID) scheduler.Run {
	tl := s.tl
	var actions []scheduler.Action

	for i := range s.captions {
		actions = append(actions,
			scheduler.Action{Offset: tl.CaptionStart(i), Label: "caption show", Apply: s.showCaption(i)},
			scheduler.Action{Offset: tl.CaptionFadeStart(i), Label: "caption fade", Apply: s.fadeCaption(i)},
			scheduler.Action{Offset: tl.CaptionEnd(i), Label: "caption remove", Apply: s.removeCaption(i)},
		)
	}

	actions = append(actions,
		scheduler.Action{Offset: tl.TypewriterStart(), Label: "typewriter start", Apply: s.update(func(st *state) {
			st.typewriterStarted = true
		})},
		scheduler.Action{Offset: tl.TypewriterFadeStart(), Label: "typewriter fade", Apply: s.update(func(st *state) {
			st.typewriterFading = true
		})},
		scheduler.Action{Offset: tl.FinaleStart(), Label: "finale show", Apply: s.update(func(st *state) {
			st.finaleShown = true
		})},
	)
	actions = append(actions, s.finaleTail(tl.FinaleStart())...)

	return scheduler.Run{
		ID:      id,
		Actions: actions,
		Tick: &scheduler.Tick{
			Start:    tl.TypewriterStart(),
			Interval: tl.D.PerChar,
			MaxTicks: s.chars,
			Apply:    s.typewriterTick,
		},
	}
}

// finaleTail is the Finale Orchestrator: settle, menu mount, staggered item
// reveals and the restart affordance, all relative to the finale start at base.
// Natural arrival and skip share it.
func (s *Sequencer) finaleTail(base time.Duration) []scheduler.Action {
	tl := s.tl
	actions := []scheduler.Action{
		{Offset: base + tl.SettleOffset(), Label: "finale settle", Apply: s.update(func(st *state) {
			st.finaleSettled = true
		})},
		{Offset: base + tl.MountOffset(), Label: "menu mount", Apply: s.update(func(st *state) {
			st.menuMounted = true
		})},
	}
	for k := 0; k < tl.Items; k++ {
		actions = append(actions, scheduler.Action{
			Offset: base + tl.ItemOffset(k),
			Label:  "menu item reveal",
			Apply: s.update(func(st *state) {
				st.revealed[k] = struct{}{}
			}),
		})
	}
	actions = append(actions, scheduler.Action{
		Offset: base + tl.RestartOffset(),
		Label:  "restart visible",
		Apply:  s.complete,
	})
	return actions
}

// ============================================================================
// 內部：變更（皆在 Scheduler 鎖內執行）
// ============================================================================

func (s *Sequencer) update(fn func(st *state)) scheduler.Mutation {
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		fn(&s.st)
		s.touchLocked()
	}
}

func (s *Sequencer) showCaption(i int) scheduler.Mutation {
	return s.update(func(st *state) {
		st.active[i] = struct{}{}
	})
}

// fadeCaption keeps the caption active; fading is layered on top.
func (s *Sequencer) fadeCaption(i int) scheduler.Mutation {
	return s.update(func(st *state) {
		st.fading[i] = struct{}{}
	})
}

func (s *Sequencer) removeCaption(i int) scheduler.Mutation {
	return s.update(func(st *state) {
		delete(st.active, i)
		delete(st.fading, i)
	})
}

func (s *Sequencer) typewriterTick(n int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.typewriterChars = min(n, s.chars)
	s.touchLocked()
	return s.st.typewriterChars < s.chars
}

func (s *Sequencer) complete() {
	s.mu.Lock()
	s.st.restartVisible = true
	s.st.skipVisible = false
	run := s.st.runID
	s.touchLocked()
	s.mu.Unlock()

	if s.rec != nil {
		s.rec.RecordComplete()
	}
	s.log.Info("Sequence complete", "run", run)
}

func (s *Sequencer) touchLocked() {
	s.st.version++
	select {
	case s.updates <- struct{}{}:
	default:
	}
}
