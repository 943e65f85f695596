package models

import (
	"fmt"
	"time"

	"github.com/allbin/go-ardreset"
	"github.com/allbin/go-ardreset/internal/tui/components"
	"github.com/allbin/go-ardreset/internal/tui/keys"
	"github.com/allbin/go-ardreset/internal/tui/styles"
	"github.com/benbjohnson/clock"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

// Operation is an action the watch view runs on the selected board
type Operation int

const (
	OpReset    Operation = iota // board policy
	OpPulse                     // DTR/RTS pulse
	OpTouch                     // 1200 bps touch
	OpUSBReset                  // libusb port reset
)

func (o Operation) String() string {
	switch o {
	case OpReset:
		return "reset"
	case OpPulse:
		return "pulse"
	case OpTouch:
		return "touch"
	case OpUSBReset:
		return "usb reset"
	default:
		return fmt.Sprintf("Operation(%d)", int(o))
	}
}

// DetectFunc lists the boards currently attached
type DetectFunc func() ([]ardreset.Board, error)

// Outcome is what a successful operation did to the board
type Outcome int

const (
	OutcomeDone    Outcome = iota
	OutcomeSkipped         // nothing sent, the board needs the 1200 bps touch
)

// OperateFunc runs op on the board behind port. It blocks until done.
type OperateFunc func(port string, op Operation) (Outcome, error)

// WatchConfig wires the watch view to the board layer
type WatchConfig struct {
	Detect   DetectFunc
	Operate  OperateFunc
	Describe func(ardreset.ResetPolicy) string
	Interval time.Duration // auto refresh period, zero disables it
	Clock    clock.Clock
	Logger   *zap.Logger
}

type boardsMsg struct {
	boards []ardreset.Board
	err    error
}

type operationDoneMsg struct {
	port    string
	op      Operation
	outcome Outcome
	err     error
}

type tickMsg time.Time

const (
	statusScanning   = "Scanning..."
	statusScanFailed = "Scan failed"
	statusReady      = "Ready"
)

// WatchModel lists attached boards and resets the selected one
type WatchModel struct {
	cfg WatchConfig

	table     *components.BoardTable
	statusBar *components.StatusBar
	help      help.Model
	keys      keys.WatchKeys

	boards  []ardreset.Board
	status  map[string]components.BoardStatus
	busy    bool
	scanned time.Time
	width   int
	height  int
}

var _ tea.Model = (*WatchModel)(nil)

func NewWatchModel(cfg WatchConfig) *WatchModel {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Describe == nil {
		cfg.Describe = func(p ardreset.ResetPolicy) string {
			return fmt.Sprintf("%d baud", p.BaudRate)
		}
	}
	return &WatchModel{
		cfg:       cfg,
		table:     components.NewBoardTable(80, 20),
		statusBar: components.NewStatusBar("ardreset"),
		help:      help.New(),
		keys:      keys.NewWatchKeys(),
		status:    make(map[string]components.BoardStatus),
		width:     80,
		height:    24,
	}
}

func (m *WatchModel) Init() tea.Cmd {
	return tea.Batch(m.refresh(), m.tick())
}

func (m *WatchModel) refresh() tea.Cmd {
	detect := m.cfg.Detect
	return func() tea.Msg {
		boards, err := detect()
		return boardsMsg{boards: boards, err: err}
	}
}

func (m *WatchModel) tick() tea.Cmd {
	if m.cfg.Interval <= 0 {
		return nil
	}
	return tea.Tick(m.cfg.Interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// operate starts op on the highlighted board. Only one operation runs
// at a time.
func (m *WatchModel) operate(op Operation) tea.Cmd {
	if m.busy {
		m.statusBar.SetStatus("Busy, wait for the running operation", nil)
		return nil
	}
	board, ok := m.table.Selected()
	if !ok {
		m.statusBar.SetStatus("No board selected", nil)
		return nil
	}

	m.busy = true
	m.statusBar.SetBusy(true)
	m.status[board.Port] = components.BoardStatus{State: styles.StateBusy}
	m.statusBar.SetStatus(fmt.Sprintf("%s %s...", op, board.Port), nil)
	m.syncRows()

	m.cfg.Logger.Debug("operation started", zap.String("port", board.Port), zap.Stringer("op", op))

	operateFn := m.cfg.Operate
	port := board.Port
	return func() tea.Msg {
		outcome, err := operateFn(port, op)
		return operationDoneMsg{port: port, op: op, outcome: outcome, err: err}
	}
}

func (m *WatchModel) syncRows() {
	m.table.SetBoards(m.boards, m.status, m.cfg.Describe)

	unknown := 0
	for _, b := range m.boards {
		if !b.Recognized {
			unknown++
		}
	}
	m.statusBar.SetCounts(len(m.boards), unknown)
}

func (m *WatchModel) layout() {
	m.statusBar.SetWidth(m.width)
	m.help.Width = m.width

	// title, status bar and help
	reserved := 2 + lipgloss.Height(m.help.View(m.keys))
	height := m.height - reserved
	if height < 5 {
		height = 5
	}
	m.table.SetSize(m.width, height)
}

func (m *WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			m.layout()
			return m, nil
		case key.Matches(msg, m.keys.Refresh):
			m.statusBar.SetStatus(statusScanning, nil)
			return m, m.refresh()
		case key.Matches(msg, m.keys.Reset):
			return m, m.operate(OpReset)
		case key.Matches(msg, m.keys.Pulse):
			return m, m.operate(OpPulse)
		case key.Matches(msg, m.keys.Touch):
			return m, m.operate(OpTouch)
		case key.Matches(msg, m.keys.USBReset):
			return m, m.operate(OpUSBReset)
		}
		return m, m.table.Update(msg)

	case boardsMsg:
		m.scanned = m.cfg.Clock.Now()
		if msg.err != nil {
			m.statusBar.SetStatus(statusScanFailed, msg.err)
			return m, nil
		}
		m.boards = msg.boards
		m.pruneStatus()
		m.syncRows()
		// keep the outcome of the last operation visible
		if status, _ := m.statusBar.Status(); !m.busy && (status == statusScanning || status == statusScanFailed) {
			m.statusBar.SetStatus(statusReady, nil)
		}
		return m, nil

	case operationDoneMsg:
		m.busy = false
		m.statusBar.SetBusy(false)
		if msg.err != nil {
			m.cfg.Logger.Warn("operation failed",
				zap.String("port", msg.port),
				zap.Stringer("op", msg.op),
				zap.Error(msg.err))
			m.status[msg.port] = components.BoardStatus{State: styles.StateFailed, Message: msg.op.String() + " failed"}
			m.statusBar.SetStatus(fmt.Sprintf("%s %s failed", msg.op, msg.port), msg.err)
		} else if msg.outcome == OutcomeSkipped {
			m.status[msg.port] = components.BoardStatus{State: styles.StateSkipped, Message: "skipped (touch board)"}
			m.statusBar.SetStatus(fmt.Sprintf("%s %s skipped, press t for the touch", msg.op, msg.port), nil)
		} else {
			m.status[msg.port] = components.BoardStatus{State: styles.StateDone, Message: msg.op.String()}
			m.statusBar.SetStatus(fmt.Sprintf("%s %s done", msg.op, msg.port), nil)
		}
		m.syncRows()
		// the board may re-enumerate under a new port
		return m, m.refresh()

	case tickMsg:
		if m.busy {
			return m, m.tick()
		}
		return m, tea.Batch(m.refresh(), m.tick())
	}

	return m, nil
}

// pruneStatus drops the state of ports that went away, unless an
// operation on them is still running
func (m *WatchModel) pruneStatus() {
	present := make(map[string]bool, len(m.boards))
	for _, b := range m.boards {
		present[b.Port] = true
	}
	for port, st := range m.status {
		if !present[port] && st.State != styles.StateBusy {
			delete(m.status, port)
		}
	}
}

func (m *WatchModel) View() string {
	title := styles.TitleStyle.Render("Arduino boards")

	timestamp := "never"
	if !m.scanned.IsZero() {
		timestamp = m.scanned.Format("15:04:05")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		m.table.View(),
		m.statusBar.View(timestamp),
		m.help.View(m.keys),
	)
}

// Selected returns the highlighted board
func (m *WatchModel) Selected() (ardreset.Board, bool) {
	return m.table.Selected()
}

// Busy reports whether an operation is running
func (m *WatchModel) Busy() bool {
	return m.busy
}

// BoardStatus returns the last operation state of the board behind port
func (m *WatchModel) BoardStatus(port string) components.BoardStatus {
	return m.status[port]
}
