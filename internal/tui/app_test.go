package tui

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ChuLiYu/intro-sequencer/internal/clock"
	"github.com/ChuLiYu/intro-sequencer/internal/sequencer"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// testAppModel creates a started sequencer on a fake clock and a sized model.
func testAppModel(t *testing.T) (AppModel, *sequencer.Sequencer, *clock.Fake, *[]string) {
	t.Helper()
	clk := clock.NewFake(epoch)
	var navigated []string
	seq := sequencer.New(sequencer.Config{
		Clock:      clk,
		OnNavigate: func(target string) { navigated = append(navigated, target) },
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(seq.Close)
	require.NoError(t, seq.Start())

	m := NewAppModel(seq, 50*time.Millisecond)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return updated.(AppModel), seq, clk, &navigated
}

func send(t *testing.T, m AppModel, msg tea.Msg) AppModel {
	t.Helper()
	updated, _ := m.Update(msg)
	return updated.(AppModel)
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestAppModelInit(t *testing.T) {
	m, _, _, _ := testAppModel(t)
	assert.NotNil(t, m.Init(), "Init should batch the update listener and the frame tick")
}

func TestViewBeforeWindowSize(t *testing.T) {
	clk := clock.NewFake(epoch)
	seq := sequencer.New(sequencer.Config{Clock: clk, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	defer seq.Close()

	m := NewAppModel(seq, time.Second)
	assert.Equal(t, "Initializing...", m.View())
}

func TestViewShowsCaptionsAndTypewriter(t *testing.T) {
	m, _, clk, _ := testAppModel(t)

	clk.Advance(2500 * time.Millisecond)
	m = send(t, m, StateChangedMsg{})
	view := m.View()
	assert.Contains(t, view, "Chasing invoices")
	assert.Contains(t, view, "Which customer")
	assert.Contains(t, view, "skip")
	assert.NotContains(t, view, "restart")

	clk.Advance(12*time.Second + 10*45*time.Millisecond)
	m = send(t, m, TickMsg{Time: clk.Now()})
	view = m.View()
	assert.Contains(t, view, "Everything")
	assert.NotContains(t, view, "Everything in one place.", "only part of the string is revealed")
}

func TestSkipKey(t *testing.T) {
	m, seq, clk, _ := testAppModel(t)
	clk.Advance(3 * time.Second)

	m = send(t, m, StateChangedMsg{})
	m = send(t, m, key("s"))

	st := seq.State()
	assert.True(t, st.Skipped)
	assert.True(t, st.FinaleShown)
	assert.Contains(t, m.View(), "Get in control.")
	assert.NotContains(t, m.View(), "skip")
}

func TestSkipKeyIgnoredWhenHidden(t *testing.T) {
	m, seq, clk, _ := testAppModel(t)
	clk.Advance(seq.Timeline().TotalDuration())
	m = send(t, m, StateChangedMsg{})
	require.False(t, m.state.SkipVisible)

	before := seq.State().Version
	send(t, m, tea.KeyMsg{Type: tea.KeySpace})
	assert.Equal(t, before, seq.State().Version)
}

func TestRestartKeyOnlyWhenComplete(t *testing.T) {
	m, seq, clk, _ := testAppModel(t)

	clk.Advance(time.Second)
	m = send(t, m, StateChangedMsg{})
	m = send(t, m, key("r"))
	assert.Equal(t, uint64(1), uint64(seq.State().RunID), "restart hidden while running")

	clk.Advance(seq.Timeline().TotalDuration())
	m = send(t, m, StateChangedMsg{})
	assert.Contains(t, m.View(), "restart")

	m = send(t, m, key("r"))
	assert.Equal(t, uint64(2), uint64(seq.State().RunID))
	assert.NoError(t, m.err)
	assert.Contains(t, m.View(), "skip")
}

func TestMenuSelection(t *testing.T) {
	m, seq, clk, navigated := testAppModel(t)

	m = send(t, m, key("1"))
	assert.Empty(t, *navigated, "items are not clickable before they are revealed")

	require.True(t, seq.Skip())
	clk.Advance(seq.Timeline().RestartOffset())
	m = send(t, m, StateChangedMsg{})

	view := m.View()
	assert.Contains(t, view, "[1] Introduction videos")
	assert.Contains(t, view, "[3] Pricing")
	assert.Contains(t, view, "In the making")

	m = send(t, m, key("3"))
	assert.Equal(t, []string{"pricing"}, *navigated)
	assert.Equal(t, "pricing", m.section)
	assert.Contains(t, m.View(), "#pricing")

	m = send(t, m, key("4"))
	assert.Equal(t, []string{"pricing"}, *navigated, "decorative entry does not navigate")
	assert.Equal(t, "pricing", m.section)

	send(t, m, key("9"))
	assert.Len(t, *navigated, 1)
}

func TestQuitKeys(t *testing.T) {
	m, _, _, _ := testAppModel(t)

	for _, msg := range []tea.KeyMsg{key("q"), {Type: tea.KeyCtrlC}, {Type: tea.KeyEsc}} {
		_, cmd := m.Update(msg)
		require.NotNil(t, cmd, "key %q", msg.String())
		assert.Equal(t, tea.Quit(), cmd(), "key %q", msg.String())
	}
}

func TestStateChangedRearmsListener(t *testing.T) {
	m, _, _, _ := testAppModel(t)

	_, cmd := m.Update(StateChangedMsg{})
	require.NotNil(t, cmd)

	// Start already signalled, so the listener returns immediately
	assert.Equal(t, StateChangedMsg{}, cmd())
}

func TestWaitForUpdateCmdClosedChannel(t *testing.T) {
	ch := make(chan struct{})
	close(ch)
	assert.Nil(t, WaitForUpdateCmd(ch)())
}
