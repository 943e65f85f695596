package components

import (
	"fmt"

	"github.com/allbin/go-ardreset"
	"github.com/allbin/go-ardreset/internal/tui/styles"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/evertras/bubble-table/table"
)

const (
	columnKeyPort    = "port"
	columnKeyID      = "id"
	columnKeyBoard   = "board"
	columnKeyPolicy  = "policy"
	columnKeySerial  = "serial"
	columnKeyState   = "state"
	columnKeyIndex   = "index"
	minPolicyWidth   = 20
	fixedColumnWidth = 15 + 11 + 12 + 22 + 22
)

// BoardStatus is the last operation run on a board, keyed by port
type BoardStatus struct {
	State   styles.BoardState
	Message string
}

// BoardTable lists detected boards, one row per serial port
type BoardTable struct {
	table  table.Model
	boards []ardreset.Board
	width  int
	height int
}

func NewBoardTable(width, height int) *BoardTable {
	bt := &BoardTable{width: width, height: height}
	bt.table = table.New(bt.columns()).
		Focused(true).
		WithBaseStyle(styles.BorderStyle).
		HeaderStyle(styles.HeaderStyle).
		HighlightStyle(styles.HighlightStyle).
		WithPageSize(bt.pageSize())
	return bt
}

func (bt *BoardTable) columns() []table.Column {
	policyWidth := bt.width - fixedColumnWidth - 8
	if policyWidth < minPolicyWidth {
		policyWidth = minPolicyWidth
	}
	return []table.Column{
		table.NewColumn(columnKeyPort, "Port", 15),
		table.NewColumn(columnKeyID, "VID:PID", 11),
		table.NewColumn(columnKeyBoard, "Board", 12),
		table.NewColumn(columnKeyPolicy, "Reset", policyWidth),
		table.NewColumn(columnKeySerial, "Serial", 22),
		table.NewColumn(columnKeyState, "State", 22),
	}
}

func (bt *BoardTable) pageSize() int {
	// header and borders take four lines
	if bt.height-4 < 1 {
		return 1
	}
	return bt.height - 4
}

// SetSize resizes the table to the available area
func (bt *BoardTable) SetSize(width, height int) {
	bt.width = width
	bt.height = height
	bt.table = bt.table.
		WithColumns(bt.columns()).
		WithPageSize(bt.pageSize())
}

// SetBoards replaces the rows. The highlighted row follows its port
// when the port is still present.
func (bt *BoardTable) SetBoards(boards []ardreset.Board, status map[string]BoardStatus, describe func(ardreset.ResetPolicy) string) {
	selected, hadSelection := bt.Selected()

	bt.boards = boards
	rows := make([]table.Row, 0, len(boards))
	highlight := 0
	for i, b := range boards {
		if hadSelection && b.Port == selected.Port {
			highlight = i
		}
		rows = append(rows, boardRow(i, b, status[b.Port], describe))
	}
	bt.table = bt.table.WithRows(rows).WithHighlightedRow(highlight)
}

func boardRow(index int, b ardreset.Board, st BoardStatus, describe func(ardreset.ResetPolicy) string) table.Row {
	state := st.State.String()
	if st.Message != "" {
		state = st.Message
	}
	row := table.NewRow(table.RowData{
		columnKeyIndex:  index,
		columnKeyPort:   b.Port,
		columnKeyID:     fmt.Sprintf("%04x:%04x", b.VendorID, b.ProductID),
		columnKeyBoard:  b.Name(),
		columnKeyPolicy: describe(b.Policy),
		columnKeySerial: b.SerialNumber,
		columnKeyState:  table.NewStyledCell(state, styles.GetStateStyle(st.State)),
	})
	if !b.Recognized {
		row = row.WithStyle(styles.UnknownBoardStyle)
	}
	return row
}

// Selected returns the highlighted board
func (bt *BoardTable) Selected() (ardreset.Board, bool) {
	if len(bt.boards) == 0 {
		return ardreset.Board{}, false
	}
	index, ok := bt.table.HighlightedRow().Data[columnKeyIndex].(int)
	if !ok || index < 0 || index >= len(bt.boards) {
		return ardreset.Board{}, false
	}
	return bt.boards[index], true
}

// Len returns the number of rows
func (bt *BoardTable) Len() int {
	return len(bt.boards)
}

func (bt *BoardTable) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	bt.table, cmd = bt.table.Update(msg)
	return cmd
}

func (bt *BoardTable) View() string {
	if len(bt.boards) == 0 {
		return styles.InfoStyle.Render("No boards found. Plug one in or press u to refresh.")
	}
	return bt.table.View()
}
