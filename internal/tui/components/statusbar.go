package components

import (
	"fmt"

	"github.com/allbin/go-ardreset/internal/tui/styles"
	"github.com/charmbracelet/lipgloss"
)

// StatusBar is the bottom line of the watch view
type StatusBar struct {
	title   string
	status  string
	err     error
	busy    bool
	boards  int
	unknown int
	width   int
}

func NewStatusBar(title string) *StatusBar {
	return &StatusBar{
		title:  title,
		status: "Scanning...",
	}
}

func (sb *StatusBar) SetStatus(status string, err error) {
	sb.status = status
	sb.err = err
}

func (sb *StatusBar) SetWidth(width int) {
	sb.width = width
}

func (sb *StatusBar) SetBusy(busy bool) {
	sb.busy = busy
}

func (sb *StatusBar) SetCounts(boards, unknown int) {
	sb.boards = boards
	sb.unknown = unknown
}

func (sb *StatusBar) Status() (string, error) {
	return sb.status, sb.err
}

// View renders the status bar with the scan time on the right
func (sb *StatusBar) View(timestamp string) string {
	terminalWidth := sb.width
	if terminalWidth <= 0 {
		terminalWidth = 80
	}

	// Section 1: mode indicator
	modeStyle := lipgloss.NewStyle().
		Foreground(styles.Base).
		Background(styles.Blue).
		Bold(true).
		Padding(0, 1)
	modeText := "WATCH"
	if sb.busy {
		modeStyle = modeStyle.Background(styles.Peach)
		modeText = "BUSY"
	}
	mode := modeStyle.Render(modeText)

	// Section 2: title
	titleStyle := lipgloss.NewStyle().
		Foreground(styles.Mauve).
		Bold(true).
		Padding(0, 1)
	title := titleStyle.Render(sb.title)

	// Section 3: last status message
	statusStyle := lipgloss.NewStyle().
		Foreground(styles.Subtext0).
		Padding(0, 1)
	status := sb.status
	if sb.err != nil {
		statusStyle = statusStyle.Foreground(styles.Red)
		status = fmt.Sprintf("%s: %v", sb.status, sb.err)
	}
	message := statusStyle.Render(status)

	// Section 4: board counts
	countStyle := lipgloss.NewStyle().
		Foreground(styles.Subtext0).
		Padding(0, 1)
	counts := countStyle.Render(fmt.Sprintf("⚡ %d boards, %d unknown", sb.boards, sb.unknown))

	// Section 5: timestamp
	timeStyle := lipgloss.NewStyle().
		Foreground(styles.Subtext1).
		Padding(0, 1)
	scanned := timeStyle.Render(timestamp)

	dividerStyle := lipgloss.NewStyle().
		Foreground(styles.Surface2).
		Padding(0, 1)
	divider := dividerStyle.Render("│")

	leftSide := lipgloss.JoinHorizontal(lipgloss.Left, mode, title, divider, message)
	rightSide := lipgloss.JoinHorizontal(lipgloss.Left, counts, divider, scanned)

	spacerWidth := terminalWidth - lipgloss.Width(leftSide) - lipgloss.Width(rightSide)
	if spacerWidth < 1 {
		spacerWidth = 1
	}
	spacer := lipgloss.NewStyle().Width(spacerWidth).Render("")

	statusBarStyle := lipgloss.NewStyle().
		Foreground(styles.Text).
		Background(styles.Surface0).
		Width(terminalWidth)

	return statusBarStyle.Render(lipgloss.JoinHorizontal(lipgloss.Left, leftSide, spacer, rightSide))
}
