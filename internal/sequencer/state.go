package sequencer

import (
	"maps"
	"slices"

	"github.com/ChuLiYu/intro-sequencer/pkg/types"
)

// state 可變的序列狀態，只由 Sequencer 持有
// active 與 fading 刻意分開：淡出中的字幕仍在 active 中
type state struct {
	runID   types.RunID
	version uint64
	running bool

	active map[int]struct{}
	fading map[int]struct{}

	typewriterStarted bool
	typewriterChars   int
	typewriterFading  bool

	finaleShown   bool
	finaleSettled bool
	menuMounted   bool
	revealed      map[int]struct{}

	skipVisible    bool
	restartVisible bool
	skipped        bool
}

func newState(id types.RunID) state {
	return state{
		runID:    id,
		active:   make(map[int]struct{}),
		fading:   make(map[int]struct{}),
		revealed: make(map[int]struct{}),
	}
}

func (st *state) clearCaptions() {
	clear(st.active)
	clear(st.fading)
}

func (st *state) clearTypewriter() {
	st.typewriterStarted = false
	st.typewriterChars = 0
	st.typewriterFading = false
}

func (st *state) clearFinale() {
	st.finaleShown = false
	st.finaleSettled = false
	st.menuMounted = false
	clear(st.revealed)
}

func (st *state) snapshot() types.State {
	return types.State{
		RunID:             st.runID,
		Version:           st.version,
		Running:           st.running,
		ActiveCaptions:    sortedKeys(st.active),
		FadingCaptions:    sortedKeys(st.fading),
		TypewriterStarted: st.typewriterStarted,
		TypewriterChars:   st.typewriterChars,
		TypewriterFading:  st.typewriterFading,
		FinaleShown:       st.finaleShown,
		FinaleSettled:     st.finaleSettled,
		MenuMounted:       st.menuMounted,
		RevealedItems:     sortedKeys(st.revealed),
		SkipVisible:       st.skipVisible,
		RestartVisible:    st.restartVisible,
		Skipped:           st.skipped,
	}
}

func sortedKeys(set map[int]struct{}) []int {
	return slices.Sorted(maps.Keys(set))
}
