package styles

import "github.com/charmbracelet/lipgloss"

// Catppuccin Mocha palette, the subset the watch view uses
var (
	Base     = lipgloss.Color("#1e1e2e")
	Surface0 = lipgloss.Color("#313244")
	Surface1 = lipgloss.Color("#45475a")
	Surface2 = lipgloss.Color("#585b70")
	Overlay0 = lipgloss.Color("#6c7086")
	Subtext0 = lipgloss.Color("#a6adc8")
	Subtext1 = lipgloss.Color("#bac2de")
	Text     = lipgloss.Color("#cdd6f4")

	Blue   = lipgloss.Color("#89b4fa")
	Green  = lipgloss.Color("#a6e3a1")
	Yellow = lipgloss.Color("#f9e2af")
	Peach  = lipgloss.Color("#fab387")
	Red    = lipgloss.Color("#f38ba8")
	Mauve  = lipgloss.Color("#cba6f7")
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Mauve).
			Background(Surface0).
			Padding(0, 1)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Text)

	BorderStyle = lipgloss.NewStyle().
			BorderForeground(Surface1)

	HighlightStyle = lipgloss.NewStyle().
			Foreground(Text).
			Background(Surface1)

	UnknownBoardStyle = lipgloss.NewStyle().
				Foreground(Overlay0)

	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Red)

	InfoStyle = lipgloss.NewStyle().
			Foreground(Subtext0).
			Italic(true)
)

// BoardState is the outcome of the last operation on a board
type BoardState int

const (
	StateIdle BoardState = iota
	StateBusy
	StateDone
	StateSkipped
	StateFailed
)

func (s BoardState) String() string {
	switch s {
	case StateBusy:
		return "resetting"
	case StateDone:
		return "reset"
	case StateSkipped:
		return "skipped"
	case StateFailed:
		return "failed"
	default:
		return ""
	}
}

var (
	stateBusyStyle    = lipgloss.NewStyle().Foreground(Yellow).Bold(true)
	stateDoneStyle    = lipgloss.NewStyle().Foreground(Green)
	stateSkippedStyle = lipgloss.NewStyle().Foreground(Peach)
	stateFailedStyle  = lipgloss.NewStyle().Foreground(Red).Bold(true)
)

func GetStateStyle(state BoardState) lipgloss.Style {
	switch state {
	case StateBusy:
		return stateBusyStyle
	case StateDone:
		return stateDoneStyle
	case StateSkipped:
		return stateSkippedStyle
	case StateFailed:
		return stateFailedStyle
	default:
		return lipgloss.NewStyle().Foreground(Subtext1)
	}
}
