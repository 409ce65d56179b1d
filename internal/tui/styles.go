package tui

import "github.com/charmbracelet/lipgloss"

var (
	// Captions
	CaptionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))
	CaptionFadingStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("241")).
				Faint(true)

	// Typewriter line
	TypewriterStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("75")).
			Bold(true)
	TypewriterFadingStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("241"))

	// Finale
	HeadlineStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))
	SubHeadlineStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252")).
				Italic(true)
	MenuBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 2)
	MenuItemStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	MenuDecorativeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true)
	MenuActiveStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)

	// Status and help bars
	StatusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)
	HelpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	KeyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
)

// StyleForCaption picks the caption style for its fade state.
func StyleForCaption(fading bool) lipgloss.Style {
	if fading {
		return CaptionFadingStyle
	}
	return CaptionStyle
}
