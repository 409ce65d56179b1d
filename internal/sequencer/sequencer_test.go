package sequencer

// ============================================================================
// Sequencer Test File
// Purpose: Verify natural timing, skip, restart, teardown and navigation
// ============================================================================

import (
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/ChuLiYu/intro-sequencer/internal/clock"
	"github.com/ChuLiYu/intro-sequencer/internal/script"
	"github.com/ChuLiYu/intro-sequencer/internal/timeline"
	"github.com/ChuLiYu/intro-sequencer/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ms = time.Millisecond

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type harness struct {
	t    *testing.T
	clk  *clock.Fake
	seq  *Sequencer
	base time.Time
	nav  []string
}

func newHarness(t *testing.T, configure ...func(*Config)) *harness {
	t.Helper()
	h := &harness{t: t, clk: clock.NewFake(epoch), base: epoch}
	cfg := Config{
		Clock:      h.clk,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		OnNavigate: func(target string) { h.nav = append(h.nav, target) },
	}
	for _, fn := range configure {
		fn(&cfg)
	}
	h.seq = New(cfg)
	t.Cleanup(h.seq.Close)
	return h
}

// at moves the clock to offset d from the harness base.
func (h *harness) at(d time.Duration) types.State {
	h.t.Helper()
	delta := h.base.Add(d).Sub(h.clk.Now())
	require.GreaterOrEqual(h.t, delta, time.Duration(0), "clock cannot go backwards")
	h.clk.Advance(delta)
	return h.seq.State()
}

func (h *harness) rebase() {
	h.base = h.clk.Now()
}

// trace samples the state at every offset of a natural run, with run id and
// version cleared so two runs can be compared.
func (h *harness) trace() []types.State {
	tl := h.seq.Timeline()
	var offsets []time.Duration
	for _, e := range tl.Plan() {
		offsets = append(offsets, e.Offset)
	}
	for k := 1; k <= tl.Chars; k++ {
		offsets = append(offsets, tl.TypewriterTick(k))
	}
	slices.Sort(offsets)
	offsets = slices.Compact(offsets)

	var out []types.State
	for _, off := range offsets {
		st := h.at(off)
		st.RunID = 0
		st.Version = 0
		out = append(out, st)
	}
	return out
}

// ============================================================================
// Natural run
// ============================================================================

func TestNaturalRunEndToEnd(t *testing.T) {
	h := newHarness(t)
	tl := h.seq.Timeline()

	st := h.seq.State()
	assert.Equal(t, types.PhaseIdle, st.Phase())
	assert.False(t, st.SkipVisible)

	require.NoError(t, h.seq.Start())
	st = h.at(0)
	assert.Equal(t, types.RunID(1), st.RunID)
	assert.Equal(t, []int{0}, st.ActiveCaptions)
	assert.True(t, st.SkipVisible)
	assert.Equal(t, types.PhaseCaptions, st.Phase())

	st = h.at(2000 * ms)
	assert.Equal(t, []int{0, 1}, st.ActiveCaptions)

	st = h.at(3600 * ms)
	assert.Equal(t, []int{0, 1}, st.ActiveCaptions, "fading caption stays active")
	assert.Equal(t, []int{0}, st.FadingCaptions)

	st = h.at(4000 * ms)
	assert.Equal(t, []int{1, 2}, st.ActiveCaptions)
	assert.Empty(t, st.FadingCaptions)

	st = h.at(14000*ms - 1)
	assert.Equal(t, []int{5, 6}, st.ActiveCaptions)
	assert.False(t, st.TypewriterStarted)

	// typewriter begins at exactly 2000 + 6*2000, overlapping the last caption
	st = h.at(14000 * ms)
	assert.Equal(t, []int{6}, st.ActiveCaptions)
	assert.True(t, st.TypewriterStarted)
	assert.Zero(t, st.TypewriterChars)
	assert.Equal(t, types.PhaseTypewriter, st.Phase())

	st = h.at(14045 * ms)
	assert.Equal(t, 1, st.TypewriterChars)

	st = h.at(15080 * ms)
	assert.Equal(t, 24, st.TypewriterChars)
	assert.False(t, st.TypewriterFading)

	st = h.at(16000 * ms)
	assert.Empty(t, st.ActiveCaptions)
	assert.Empty(t, st.FadingCaptions)

	st = h.at(tl.TypewriterFadeStart())
	assert.True(t, st.TypewriterFading)
	assert.False(t, st.FinaleShown)

	// finale begins at exactly 14000 + 24*45 + 2800
	st = h.at(17880*ms - 1)
	assert.False(t, st.FinaleShown)
	st = h.at(17880 * ms)
	assert.True(t, st.FinaleShown)
	assert.Equal(t, 24, st.TypewriterChars, "character count survives until restart")
	assert.Equal(t, types.PhaseFinaleShown, st.Phase())

	d := tl.D
	st = h.at(17880*ms + d.FinaleSettle)
	assert.True(t, st.FinaleSettled)
	assert.False(t, st.MenuMounted)

	st = h.at(17880*ms + d.FinaleSettle + d.MenuMount)
	assert.True(t, st.MenuMounted)
	assert.Empty(t, st.RevealedItems)
	assert.Equal(t, types.PhaseMenuRevealing, st.Phase())

	lastItem := 17880*ms + d.FinaleSettle + d.MenuMount + 970*ms + 3*300*ms
	st = h.at(lastItem - 1)
	assert.Equal(t, []int{0, 1, 2}, st.RevealedItems)
	st = h.at(lastItem)
	assert.Equal(t, []int{0, 1, 2, 3}, st.RevealedItems)
	assert.False(t, st.RestartVisible)
	assert.True(t, st.SkipVisible)

	st = h.at(lastItem + d.ItemReveal)
	assert.True(t, st.RestartVisible)
	assert.False(t, st.SkipVisible)
	assert.Equal(t, types.PhaseComplete, st.Phase())
	assert.Zero(t, h.seq.Pending())
}

func TestCaptionsOverlapWhileFading(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.seq.Start())

	st := h.at(3700 * ms)
	assert.True(t, st.IsActive(0))
	assert.True(t, st.IsFading(0))
	assert.True(t, st.IsActive(1))
	assert.False(t, st.IsFading(1))
}

// ============================================================================
// Skip
// ============================================================================

func TestSkipWhileCaptionThreeActive(t *testing.T) {
	h := newHarness(t)
	tl := h.seq.Timeline()
	require.NoError(t, h.seq.Start())

	st := h.at(6500 * ms)
	require.True(t, st.IsActive(3))
	require.Equal(t, []int{2, 3}, st.ActiveCaptions)
	before := st.Version

	require.True(t, h.seq.Skip())
	h.rebase()

	// applied synchronously, before any further caption timer can fire
	st = h.seq.State()
	assert.Empty(t, st.ActiveCaptions)
	assert.Empty(t, st.FadingCaptions)
	assert.True(t, st.FinaleShown)
	assert.True(t, st.Skipped)
	assert.False(t, st.SkipVisible)
	assert.Zero(t, st.TypewriterChars)
	assert.Equal(t, before+1, st.Version)
	assert.Equal(t, types.RunID(1), st.RunID)
	assert.Equal(t, 2+4+1, h.seq.Pending(), "only the finale tail remains")

	// caption 2 removal and caption 4 show were due at 8000ms of the old schedule
	st = h.at(1500 * ms)
	assert.Empty(t, st.ActiveCaptions)
	assert.False(t, st.TypewriterStarted)

	st = h.at(tl.ItemOffset(3))
	assert.Equal(t, []int{0, 1, 2, 3}, st.RevealedItems)
	st = h.at(tl.RestartOffset())
	assert.True(t, st.Complete())
	assert.Zero(t, h.seq.Pending())

	// nothing from the natural run ever fires
	final := h.at(tl.TotalDuration() * 2)
	assert.Equal(t, st, final)
}

func TestSkipUsesSameFinaleTimingAsNaturalArrival(t *testing.T) {
	natural := newHarness(t)
	require.NoError(t, natural.seq.Start())
	natural.at(natural.seq.Timeline().FinaleStart())
	natural.rebase()

	skipped := newHarness(t)
	require.NoError(t, skipped.seq.Start())
	skipped.at(100 * ms)
	require.True(t, skipped.seq.Skip())
	skipped.rebase()

	tl := natural.seq.Timeline()
	for _, off := range []time.Duration{tl.SettleOffset(), tl.MountOffset(), tl.ItemOffset(0), tl.ItemOffset(2), tl.RestartOffset()} {
		a := natural.at(off)
		b := skipped.at(off)
		assert.Equal(t, a.FinaleSettled, b.FinaleSettled, "settled at +%s", off)
		assert.Equal(t, a.MenuMounted, b.MenuMounted, "mounted at +%s", off)
		assert.Equal(t, a.RevealedItems, b.RevealedItems, "items at +%s", off)
		assert.Equal(t, a.RestartVisible, b.RestartVisible, "restart at +%s", off)
	}
}

func TestSkipMidTypewriterPolicies(t *testing.T) {
	testCases := []struct {
		name      string
		policy    SkipPolicy
		wantChars int
		wantFade  bool
	}{
		{"clear", SkipClear, 0, false},
		{"reveal", SkipReveal, 24, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, func(c *Config) { c.SkipPolicy = tc.policy })
			require.NoError(t, h.seq.Start())

			st := h.at(14000*ms + 10*45*ms)
			require.Equal(t, 10, st.TypewriterChars)

			require.True(t, h.seq.Skip())
			st = h.seq.State()
			assert.Equal(t, tc.wantChars, st.TypewriterChars)
			assert.Equal(t, tc.wantFade, st.TypewriterFading)
			assert.True(t, st.FinaleShown)

			// the character ticker is gone
			st = h.at(16 * time.Second)
			assert.Equal(t, tc.wantChars, st.TypewriterChars)
		})
	}
}

func TestSkipDuringNaturalFinaleRestartsTail(t *testing.T) {
	h := newHarness(t)
	tl := h.seq.Timeline()
	require.NoError(t, h.seq.Start())

	st := h.at(tl.FinaleStart() + tl.ItemOffset(1))
	require.Equal(t, []int{0, 1}, st.RevealedItems)

	require.True(t, h.seq.Skip())
	h.rebase()
	st = h.seq.State()
	assert.True(t, st.FinaleShown)
	assert.False(t, st.MenuMounted)
	assert.Empty(t, st.RevealedItems)

	st = h.at(tl.RestartOffset())
	assert.True(t, st.Complete())
}

func TestSkipRejected(t *testing.T) {
	h := newHarness(t)
	assert.False(t, h.seq.Skip(), "not started")

	require.NoError(t, h.seq.Start())
	h.at(h.seq.Timeline().TotalDuration())
	require.True(t, h.seq.State().Complete())

	version := h.seq.State().Version
	assert.False(t, h.seq.Skip(), "already complete")
	assert.Equal(t, version, h.seq.State().Version)
}

// ============================================================================
// Restart
// ============================================================================

func TestRestartAfterCompleteReproducesTiming(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.seq.Start())

	first := h.trace()
	require.True(t, first[len(first)-1].Complete())

	require.NoError(t, h.seq.Restart())
	h.rebase()

	st := h.seq.State()
	assert.Equal(t, types.RunID(2), st.RunID)
	assert.Empty(t, st.ActiveCaptions)
	assert.Empty(t, st.FadingCaptions)
	assert.Zero(t, st.TypewriterChars)
	assert.False(t, st.TypewriterStarted)
	assert.False(t, st.TypewriterFading)
	assert.False(t, st.FinaleShown)
	assert.False(t, st.FinaleSettled)
	assert.False(t, st.MenuMounted)
	assert.Empty(t, st.RevealedItems)
	assert.True(t, st.SkipVisible)
	assert.False(t, st.RestartVisible)
	assert.False(t, st.Skipped)

	second := h.trace()
	assert.Equal(t, first, second)
}

func TestRestartAfterSkipClearsSkipFlag(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.seq.Start())
	h.at(time.Second)
	require.True(t, h.seq.Skip())

	require.NoError(t, h.seq.Restart())
	st := h.seq.State()
	assert.False(t, st.Skipped)
	assert.False(t, st.FinaleShown)
	assert.True(t, st.SkipVisible)
}

func TestRestartDropsGhostMutations(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.seq.Start())
	h.at(5000 * ms)

	// the timer for caption 1 fade (5600ms) elapses but is queued behind the restart
	queued := h.clk.AdvanceDeferred(1000 * ms)
	require.Len(t, queued, 1)

	require.NoError(t, h.seq.Restart())
	afterRestart := h.seq.State()
	for _, f := range queued {
		f()
	}
	assert.Equal(t, afterRestart, h.seq.State(), "stale callbacks must not touch the new run")

	h.rebase()
	st := h.at(0)
	assert.Equal(t, types.RunID(2), st.RunID)
	assert.Equal(t, []int{0}, st.ActiveCaptions)
}

func TestVersionIsMonotonicAcrossRuns(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.seq.Start())
	v1 := h.at(3 * time.Second).Version

	require.NoError(t, h.seq.Restart())
	assert.Greater(t, h.seq.State().Version, v1)
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestLifecycleErrors(t *testing.T) {
	h := newHarness(t)

	assert.ErrorIs(t, h.seq.Restart(), ErrNotStarted)
	require.NoError(t, h.seq.Start())
	assert.ErrorIs(t, h.seq.Start(), ErrAlreadyStarted)

	h.seq.Close()
	assert.ErrorIs(t, h.seq.Start(), ErrClosed)
	assert.ErrorIs(t, h.seq.Restart(), ErrClosed)
	assert.False(t, h.seq.Skip())
}

func TestCloseCancelsEverything(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.seq.Start())
	h.at(14500 * ms)

	h.seq.Close()
	assert.Zero(t, h.seq.Pending())
	assert.Zero(t, h.clk.Pending(), "no live timers after teardown")

	st := h.seq.State()
	assert.False(t, st.Running)
	assert.False(t, st.SkipVisible)

	after := h.at(time.Minute)
	assert.Equal(t, st, after, "no mutation after teardown")

	assert.NotPanics(t, h.seq.Close, "close is idempotent")
	assert.Equal(t, st, h.seq.State())
}

func TestCloseClosesUpdates(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.seq.Start())
	h.seq.Close()

	// the final signal may still be buffered ahead of the close
	_, ok := <-h.seq.Updates()
	if ok {
		_, ok = <-h.seq.Updates()
	}
	assert.False(t, ok, "updates channel is closed after teardown")
}

func TestUpdatesSignalled(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.seq.Start())

	select {
	case <-h.seq.Updates():
	default:
		t.Fatal("start should signal an update")
	}

	h.at(0)
	select {
	case <-h.seq.Updates():
	default:
		t.Fatal("caption show should signal an update")
	}
}

// ============================================================================
// Navigation
// ============================================================================

func TestNavigate(t *testing.T) {
	tests := []struct {
		name   string
		call   func(s *Sequencer) bool
		want   bool
		wantTo []string
	}{
		{"navigable target", func(s *Sequencer) bool { return s.Navigate("pricing") }, true, []string{"pricing"}},
		{"decorative sentinel", func(s *Sequencer) bool { return s.Navigate(types.NonNavigable) }, false, nil},
		{"empty target", func(s *Sequencer) bool { return s.Navigate("") }, false, nil},
		{"select before reveal", func(s *Sequencer) bool { return s.Select(0) }, false, nil},
		{"select negative", func(s *Sequencer) bool { return s.Select(-1) }, false, nil},
		{"select out of range", func(s *Sequencer) bool { return s.Select(4) }, false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			require.NoError(t, h.seq.Start())
			h.at(time.Second)

			assert.Equal(t, tt.want, tt.call(h.seq))
			assert.Equal(t, tt.wantTo, h.nav)
		})
	}
}

func TestSelectRevealedItems(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.seq.Start())
	require.True(t, h.seq.Skip())
	h.rebase()

	tl := h.seq.Timeline()
	h.at(tl.ItemOffset(0))
	assert.True(t, h.seq.Select(0))
	assert.False(t, h.seq.Select(1), "item 1 is not revealed yet")

	h.at(tl.RestartOffset())
	assert.True(t, h.seq.Select(2))
	assert.False(t, h.seq.Select(3), "decorative entry does not navigate")
	assert.Equal(t, []string{"intro", "pricing"}, h.nav)
}

func TestNavigateWithoutHook(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.OnNavigate = nil })
	assert.False(t, h.seq.Navigate("pricing"))
}

func TestAccessorsReturnCopies(t *testing.T) {
	h := newHarness(t)

	menu := h.seq.Menu()
	menu[0].Target = "tampered"
	assert.Equal(t, "intro", h.seq.Menu()[0].Target)

	captions := h.seq.Captions()
	captions[0].Text = "tampered"
	assert.NotEqual(t, "tampered", h.seq.Captions()[0].Text)

	assert.Equal(t, "Everything in one place.", h.seq.Typewriter())
	assert.Equal(t, "Get in control.", h.seq.Headline().Main)
}

func TestParseSkipPolicy(t *testing.T) {
	p, err := ParseSkipPolicy("")
	require.NoError(t, err)
	assert.Equal(t, SkipClear, p)

	p, err = ParseSkipPolicy("reveal")
	require.NoError(t, err)
	assert.Equal(t, SkipReveal, p)

	_, err = ParseSkipPolicy("jump")
	assert.Error(t, err)
}

func TestSingleCaptionScript(t *testing.T) {
	sc := script.Default()
	sc.Texts = sc.Texts[:1]
	h := newHarness(t, func(c *Config) { c.Script = sc })
	require.NoError(t, h.seq.Start())

	st := h.at(0)
	assert.Equal(t, []int{0}, st.ActiveCaptions)

	st = h.at(h.seq.Timeline().TypewriterStart())
	assert.Equal(t, 2000*ms, h.seq.Timeline().TypewriterStart())
	assert.Equal(t, []int{0}, st.ActiveCaptions)
	assert.True(t, st.TypewriterStarted)

	st = h.at(h.seq.Timeline().CaptionEnd(0))
	assert.Empty(t, st.ActiveCaptions)

	st = h.at(h.seq.Timeline().TotalDuration())
	assert.True(t, st.Complete())
}

// waitComplete follows seq on the real clock until its run completes.
func waitComplete(t *testing.T, seq *Sequencer) types.State {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !seq.State().Complete() {
		select {
		case <-seq.Updates():
		case <-deadline:
			t.Fatalf("run did not complete, state: %+v", seq.State())
		}
	}
	return seq.State()
}

func TestRealClockCompressedRunLeavesNoCaptionBehind(t *testing.T) {
	sc := script.Default()
	sc.Durations = sc.Durations.Scale(1000)

	for trial := 0; trial < 20; trial++ {
		seq := New(Config{Script: sc, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
		require.NoError(t, seq.Start())

		st := waitComplete(t, seq)
		seq.Close()

		assert.Empty(t, st.ActiveCaptions, "trial %d", trial)
		assert.Empty(t, st.FadingCaptions, "trial %d: fade applied after removal", trial)
	}
}

func TestRealClockRunCompletes(t *testing.T) {
	sc := script.Default()
	sc.Texts = sc.Texts[:3]
	sc.Typewriter = "ok"
	sc.Durations = timeline.Durations{
		Solo: ms, Step: 2 * ms, Fade: ms, PerChar: ms, PostTypewriter: ms,
		TypewriterFadeLead: ms, FinaleSettle: ms, MenuMount: ms, MenuReveal: ms,
		ItemStagger: ms, ItemReveal: ms,
	}

	seq := New(Config{Script: sc, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	defer seq.Close()
	require.NoError(t, seq.Start())

	st := waitComplete(t, seq)
	assert.Equal(t, 2, st.TypewriterChars)
	assert.Len(t, st.RevealedItems, 4)
}
