// Package tui renders a running sequence in the terminal with Bubble Tea.
// The model never mutates presentation state itself: it reads snapshots from
// the sequencer and forwards skip, restart and menu clicks.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/ChuLiYu/intro-sequencer/internal/script"
	"github.com/ChuLiYu/intro-sequencer/pkg/types"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Sequencer is the subset of *sequencer.Sequencer the model drives.
type Sequencer interface {
	State() types.State
	Updates() <-chan struct{}
	Elapsed() time.Duration
	Skip() bool
	Restart() error
	Select(i int) bool

	Captions() []types.Caption
	Typewriter() string
	Headline() script.Headline
	Menu() []types.MenuEntry
}

// AppModel is the top-level Bubble Tea model.
type AppModel struct {
	seq   Sequencer
	frame time.Duration

	captions   []types.Caption
	typewriter []rune
	headline   script.Headline
	menu       []types.MenuEntry

	state   types.State
	elapsed time.Duration
	section string // last navigated section
	err     error  // last restart failure
	width   int
	height  int
}

// NewAppModel creates an AppModel reading from seq, redrawing every frame.
func NewAppModel(seq Sequencer, frame time.Duration) AppModel {
	return AppModel{
		seq:        seq,
		frame:      frame,
		captions:   seq.Captions(),
		typewriter: []rune(seq.Typewriter()),
		headline:   seq.Headline(),
		menu:       seq.Menu(),
		state:      seq.State(),
	}
}

// Init implements tea.Model.
func (m AppModel) Init() tea.Cmd {
	return tea.Batch(
		WaitForUpdateCmd(m.seq.Updates()),
		TickCmd(m.frame),
	)
}

// Update implements tea.Model.
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case StateChangedMsg:
		m.refresh()
		return m, WaitForUpdateCmd(m.seq.Updates())

	case TickMsg:
		m.refresh()
		return m, TickCmd(m.frame)

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	}

	return m, nil
}

func (m *AppModel) refresh() {
	m.state = m.seq.State()
	m.elapsed = m.seq.Elapsed()
}

// handleKeyMsg maps keys to the user-facing controls. Controls that are not
// currently visible are ignored.
func (m AppModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key := msg.String(); key {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit

	case "s", " ":
		if m.state.SkipVisible {
			m.seq.Skip()
		}

	case "r":
		if m.state.RestartVisible {
			m.err = m.seq.Restart()
			m.section = ""
		}

	default:
		if len(key) == 1 && key[0] >= '1' && key[0] <= '9' {
			i := int(key[0] - '1')
			if m.seq.Select(i) {
				m.section = m.menu[i].Target
			}
		}
	}

	m.refresh()
	return m, nil
}

// View implements tea.Model.
func (m AppModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	var b strings.Builder
	b.WriteString(m.renderStatusBar())
	b.WriteString("\n\n")

	switch {
	case m.state.FinaleShown:
		b.WriteString(m.renderFinale())
	default:
		b.WriteString(m.renderCaptions())
		if m.state.TypewriterStarted {
			b.WriteString("\n")
			b.WriteString(m.renderTypewriter())
		}
	}

	b.WriteString("\n\n")
	b.WriteString(m.renderHelp())
	return b.String()
}

func (m AppModel) renderStatusBar() string {
	left := fmt.Sprintf("run %d · %s · %s", m.state.RunID, m.state.Phase(), m.elapsed.Truncate(100*time.Millisecond))
	if m.section != "" {
		left += " · #" + m.section
	}
	return StatusBarStyle.Width(m.width).Render(left)
}

// renderCaptions lays out active captions on their side, indented by the
// anchor's horizontal position.
func (m AppModel) renderCaptions() string {
	var rows []string
	for _, i := range m.state.ActiveCaptions {
		if i < 0 || i >= len(m.captions) {
			continue
		}
		c := m.captions[i]
		style := StyleForCaption(m.state.IsFading(i))

		text := style.Render(strings.Join(c.Lines(), "\n"))
		indent := c.Anchor.X * m.width / 200
		block := lipgloss.NewStyle().MarginLeft(indent).Render(text)
		if c.Side == types.SideRight {
			block = lipgloss.PlaceHorizontal(m.width, lipgloss.Right, text)
		}
		rows = append(rows, block)
	}
	return strings.Join(rows, "\n")
}

func (m AppModel) renderTypewriter() string {
	n := min(m.state.TypewriterChars, len(m.typewriter))
	text := string(m.typewriter[:n])
	if n < len(m.typewriter) {
		text += "▌"
	}
	style := TypewriterStyle
	if m.state.TypewriterFading {
		style = TypewriterFadingStyle
	}
	return lipgloss.PlaceHorizontal(m.width, lipgloss.Center, style.Render(text))
}

func (m AppModel) renderFinale() string {
	lines := []string{HeadlineStyle.Render(m.headline.Main)}
	if m.state.FinaleSettled {
		lines = append(lines, SubHeadlineStyle.Render(m.headline.Sub))
	}
	if m.state.MenuMounted {
		var items []string
		for _, i := range m.state.RevealedItems {
			if i < 0 || i >= len(m.menu) {
				continue
			}
			items = append(items, m.renderMenuItem(i))
		}
		lines = append(lines, "", MenuBoxStyle.Render(strings.Join(items, "\n")))
	}

	block := lipgloss.JoinVertical(lipgloss.Center, lines...)
	return lipgloss.PlaceHorizontal(m.width, lipgloss.Center, block)
}

func (m AppModel) renderMenuItem(i int) string {
	entry := m.menu[i]
	if !entry.Navigable() {
		return MenuDecorativeStyle.Render("    " + entry.Label)
	}
	label := fmt.Sprintf("[%d] %s", i+1, entry.Label)
	if entry.Target == m.section {
		return MenuActiveStyle.Render(label)
	}
	return MenuItemStyle.Render(label)
}

func (m AppModel) renderHelp() string {
	var parts []string
	if m.state.SkipVisible {
		parts = append(parts, KeyStyle.Render("s")+HelpStyle.Render(" skip"))
	}
	if m.state.RestartVisible {
		parts = append(parts, KeyStyle.Render("r")+HelpStyle.Render(" restart"))
	}
	if len(m.state.RevealedItems) > 0 {
		parts = append(parts, KeyStyle.Render("1-9")+HelpStyle.Render(" open section"))
	}
	parts = append(parts, KeyStyle.Render("q")+HelpStyle.Render(" quit"))
	if m.err != nil {
		parts = append(parts, HelpStyle.Render("error: "+m.err.Error()))
	}
	return strings.Join(parts, HelpStyle.Render("  ·  "))
}
