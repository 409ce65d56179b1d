// ============================================================================
// Intro Sequencer Timeline - 時間軸定義
// ============================================================================
//
// Package: internal/timeline
// File: timeline.go
// Purpose: Pure offset arithmetic for every phase of the presentation
//
// Offsets (all relative to run start):
//   captionStart(0)     = 0
//   captionStart(i)     = solo + (i-1)*step
//   captionFadeStart(i) = captionStart(i) + 2*step - fade
//   captionEnd(i)       = captionStart(i) + 2*step
//   typewriterStart     = captionStart(n)   (solo + (n-1)*step)
//   typewriterTick(k)   = typewriterStart + k*perChar     (k = 1..chars)
//   finaleStart         = typewriterStart + chars*perChar + postTypewriter
//
// Finale offsets (relative to finale start, shared by natural arrival and skip):
//   settle              = finaleSettle
//   mount               = settle + menuMount
//   item(k)             = mount + menuReveal + k*itemStagger
//   restart             = item(last) + itemReveal
//
// No state, no side effects. Everything here is safe to call from any goroutine.
//
// ============================================================================

package timeline

import (
	"fmt"
	"sort"
	"time"

	"github.com/ChuLiYu/intro-sequencer/pkg/types"
)

// Durations per-phase duration constants
type Durations struct {
	Solo               time.Duration `yaml:"solo"`                 // first caption shown alone
	Step               time.Duration `yaml:"step"`                 // interval between caption starts
	Fade               time.Duration `yaml:"fade"`                 // caption fade-out length
	PerChar            time.Duration `yaml:"per_char"`             // typewriter tick interval
	PostTypewriter     time.Duration `yaml:"post_typewriter"`      // pause between full string and finale
	TypewriterFadeLead time.Duration `yaml:"typewriter_fade_lead"` // typewriter fades this long before the finale
	FinaleSettle       time.Duration `yaml:"finale_settle"`
	MenuMount          time.Duration `yaml:"menu_mount"`
	MenuReveal         time.Duration `yaml:"menu_reveal"`  // lead-in before the first item
	ItemStagger        time.Duration `yaml:"item_stagger"` // gap between consecutive items
	ItemReveal         time.Duration `yaml:"item_reveal"`  // reveal animation length of one item
}

// DefaultDurations landing page constants
func DefaultDurations() Durations {
	return Durations{
		Solo:               2000 * time.Millisecond,
		Step:               2000 * time.Millisecond,
		Fade:               400 * time.Millisecond,
		PerChar:            45 * time.Millisecond,
		PostTypewriter:     2800 * time.Millisecond,
		TypewriterFadeLead: 600 * time.Millisecond,
		FinaleSettle:       1200 * time.Millisecond,
		MenuMount:          400 * time.Millisecond,
		MenuReveal:         970 * time.Millisecond,
		ItemStagger:        300 * time.Millisecond,
		ItemReveal:         500 * time.Millisecond,
	}
}

// Scale speeds every duration up by factor (2 = twice as fast). Non-zero
// durations never collapse below one millisecond, so ordering is kept.
func (d Durations) Scale(factor float64) Durations {
	if factor <= 0 || factor == 1 {
		return d
	}
	scale := func(v time.Duration) time.Duration {
		if v <= 0 {
			return v
		}
		return max(time.Duration(float64(v)/factor), time.Millisecond)
	}
	return Durations{
		Solo:               scale(d.Solo),
		Step:               scale(d.Step),
		Fade:               scale(d.Fade),
		PerChar:            scale(d.PerChar),
		PostTypewriter:     scale(d.PostTypewriter),
		TypewriterFadeLead: scale(d.TypewriterFadeLead),
		FinaleSettle:       scale(d.FinaleSettle),
		MenuMount:          scale(d.MenuMount),
		MenuReveal:         scale(d.MenuReveal),
		ItemStagger:        scale(d.ItemStagger),
		ItemReveal:         scale(d.ItemReveal),
	}
}

// Timeline derives every offset from content lengths and Durations.
type Timeline struct {
	Captions int // number of captions
	Chars    int // typewriter length in runes
	Items    int // number of menu entries
	D        Durations
}

// New builds a Timeline. Negative counts are treated as zero.
func New(captions, chars, items int, d Durations) Timeline {
	return Timeline{
		Captions: max(captions, 0),
		Chars:    max(chars, 0),
		Items:    max(items, 0),
		D:        d,
	}
}

// Dwell how long every caption stays mounted
func (t Timeline) Dwell() time.Duration {
	return 2 * t.D.Step
}

func (t Timeline) CaptionStart(i int) time.Duration {
	if i <= 0 {
		return 0
	}
	return t.D.Solo + time.Duration(i-1)*t.D.Step
}

// CaptionFadeStart never precedes CaptionStart, even with a fade longer than the dwell.
func (t Timeline) CaptionFadeStart(i int) time.Duration {
	start := t.CaptionStart(i)
	return max(start+t.Dwell()-t.D.Fade, start)
}

func (t Timeline) CaptionEnd(i int) time.Duration {
	return t.CaptionStart(i) + t.Dwell()
}

// TypewriterStart takes the slot a caption after the last one would start in,
// so the last caption overlaps the typewriter for one step like any neighbour.
func (t Timeline) TypewriterStart() time.Duration {
	return t.CaptionStart(t.Captions)
}

// TypewriterTick offset of the k-th revealed character (1-based).
func (t Timeline) TypewriterTick(k int) time.Duration {
	return t.TypewriterStart() + time.Duration(k)*t.D.PerChar
}

// TypewriterDone offset at which the full string is shown
func (t Timeline) TypewriterDone() time.Duration {
	return t.TypewriterTick(t.Chars)
}

// TypewriterFadeStart is clamped so the string is fully revealed before it fades.
func (t Timeline) TypewriterFadeStart() time.Duration {
	return max(t.FinaleStart()-t.D.TypewriterFadeLead, t.TypewriterDone())
}

func (t Timeline) FinaleStart() time.Duration {
	return t.TypewriterDone() + t.D.PostTypewriter
}

// ----------------------------------------------------------------------------
// Finale-relative offsets
// ----------------------------------------------------------------------------

func (t Timeline) SettleOffset() time.Duration {
	return t.D.FinaleSettle
}

func (t Timeline) MountOffset() time.Duration {
	return t.SettleOffset() + t.D.MenuMount
}

// ItemOffset reveal offset of menu item k, relative to finale start
func (t Timeline) ItemOffset(k int) time.Duration {
	return t.MountOffset() + t.D.MenuReveal + time.Duration(k)*t.D.ItemStagger
}

// RestartOffset restart affordance offset, relative to finale start
func (t Timeline) RestartOffset() time.Duration {
	if t.Items == 0 {
		return t.MountOffset() + t.D.ItemReveal
	}
	return t.ItemOffset(t.Items-1) + t.D.ItemReveal
}

// TotalDuration natural run length up to the restart affordance
func (t Timeline) TotalDuration() time.Duration {
	return t.FinaleStart() + t.RestartOffset()
}

// PhaseAt derives caption i's lifecycle at the given elapsed run time.
func (t Timeline) PhaseAt(i int, elapsed time.Duration) types.CaptionPhase {
	switch {
	case i < 0 || i >= t.Captions:
		return types.CaptionNotShown
	case elapsed < t.CaptionStart(i):
		return types.CaptionNotShown
	case elapsed >= t.CaptionEnd(i):
		return types.CaptionRemoved
	case elapsed >= t.CaptionFadeStart(i):
		return types.CaptionFading
	default:
		return types.CaptionActive
	}
}

// ----------------------------------------------------------------------------
// Plan
// ----------------------------------------------------------------------------

// Entry one labelled offset of the natural run
type Entry struct {
	Label  string
	Offset time.Duration
}

// Plan lists every offset of a natural run, ordered by offset then by
// registration order.
func (t Timeline) Plan() []Entry {
	var entries []Entry
	add := func(offset time.Duration, format string, args ...any) {
		entries = append(entries, Entry{Label: fmt.Sprintf(format, args...), Offset: offset})
	}

	for i := 0; i < t.Captions; i++ {
		add(t.CaptionStart(i), "caption %d show", i)
		add(t.CaptionFadeStart(i), "caption %d fade", i)
		add(t.CaptionEnd(i), "caption %d remove", i)
	}

	add(t.TypewriterStart(), "typewriter start")
	if t.Chars > 0 {
		add(t.TypewriterTick(1), "typewriter first char")
		add(t.TypewriterDone(), "typewriter last char")
	}
	add(t.TypewriterFadeStart(), "typewriter fade")

	finale := t.FinaleStart()
	add(finale, "finale show")
	add(finale+t.SettleOffset(), "finale settle")
	add(finale+t.MountOffset(), "menu mount")
	for k := 0; k < t.Items; k++ {
		add(finale+t.ItemOffset(k), "menu item %d reveal", k)
	}
	add(finale+t.RestartOffset(), "restart visible")

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Offset < entries[j].Offset
	})
	return entries
}
