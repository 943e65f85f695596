package models

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/allbin/go-ardreset"
	"github.com/allbin/go-ardreset/internal/tui/styles"
	"github.com/benbjohnson/clock"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap/zaptest"
)

type operation struct {
	port string
	op   Operation
}

type fakeBoards struct {
	boards  []ardreset.Board
	err     error
	scans   int
	ops     []operation
	failOps error
	outcome Outcome
}

func (f *fakeBoards) detect() ([]ardreset.Board, error) {
	f.scans++
	return f.boards, f.err
}

func (f *fakeBoards) operate(port string, op Operation) (Outcome, error) {
	f.ops = append(f.ops, operation{port: port, op: op})
	return f.outcome, f.failOps
}

func testBoards() []ardreset.Board {
	catalog := ardreset.DefaultCatalog()
	uno, _ := catalog.Lookup(0x2341, 0x0043)
	leo, _ := catalog.Lookup(0x2341, 0x0036)
	return []ardreset.Board{
		{Port: "/dev/ttyACM0", VendorID: 0x2341, ProductID: 0x0043, Entry: uno, Policy: uno.Action.Policy(), Recognized: true},
		{Port: "/dev/ttyACM1", VendorID: 0x2341, ProductID: 0x0036, Entry: leo, Policy: leo.Action.Policy(), Recognized: true},
		{Port: "/dev/ttyUSB0", VendorID: 0x9999, ProductID: 0x0001, Policy: ardreset.DefaultPolicy},
	}
}

func newTestModel(t *testing.T, f *fakeBoards) (*WatchModel, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC))
	m := NewWatchModel(WatchConfig{
		Detect:  f.detect,
		Operate: f.operate,
		Clock:   mock,
		Logger:  zaptest.NewLogger(t),
	})
	return m, mock
}

// send delivers msg and runs the returned command once, feeding its
// message back into the model
func send(t *testing.T, m *WatchModel, msg tea.Msg) tea.Msg {
	t.Helper()
	_, cmd := m.Update(msg)
	if cmd == nil {
		return nil
	}
	out := cmd()
	switch out.(type) {
	case boardsMsg, operationDoneMsg:
		m.Update(out)
	}
	return out
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func scan(t *testing.T, m *WatchModel) {
	t.Helper()
	if out := send(t, m, keyMsg("u")); out == nil {
		t.Fatal("refresh returned no command")
	}
}

func TestWatchModelRefresh(t *testing.T) {
	f := &fakeBoards{boards: testBoards()}
	m, _ := newTestModel(t, f)

	scan(t, m)

	if f.scans != 1 {
		t.Errorf("expected 1 scan, got %d", f.scans)
	}
	board, ok := m.Selected()
	if !ok {
		t.Fatal("expected a selected board")
	}
	if board.Port != "/dev/ttyACM0" {
		t.Errorf("expected first board selected, got %s", board.Port)
	}

	view := m.View()
	for _, want := range []string{"/dev/ttyACM0", "2341:0036", "uno", "leonardo", "unknown", "12:30:00"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestWatchModelScanError(t *testing.T) {
	f := &fakeBoards{err: errors.New("enumerator failed")}
	m, _ := newTestModel(t, f)

	scan(t, m)

	status, err := m.statusBar.Status()
	if status != statusScanFailed || err == nil {
		t.Errorf("expected scan failure status, got %q, %v", status, err)
	}

	// a later successful scan clears the error
	f.err = nil
	f.boards = testBoards()
	scan(t, m)

	status, err = m.statusBar.Status()
	if status != statusReady || err != nil {
		t.Errorf("expected ready status, got %q, %v", status, err)
	}
}

func TestWatchModelOperations(t *testing.T) {
	tests := []struct {
		name string
		key  string
		op   Operation
	}{
		{"reset", "r", OpReset},
		{"pulse", "p", OpPulse},
		{"touch", "t", OpTouch},
		{"usb reset", "U", OpUSBReset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeBoards{boards: testBoards()}
			m, _ := newTestModel(t, f)
			scan(t, m)

			_, cmd := m.Update(keyMsg(tt.key))
			if cmd == nil {
				t.Fatal("expected an operation command")
			}
			if !m.Busy() {
				t.Error("expected model to be busy")
			}
			if st := m.BoardStatus("/dev/ttyACM0"); st.State != styles.StateBusy {
				t.Errorf("expected busy state, got %v", st.State)
			}

			done := cmd()
			_, cmd = m.Update(done)

			if len(f.ops) != 1 || f.ops[0] != (operation{"/dev/ttyACM0", tt.op}) {
				t.Errorf("unexpected operations: %+v", f.ops)
			}
			if m.Busy() {
				t.Error("expected model to be idle")
			}
			if st := m.BoardStatus("/dev/ttyACM0"); st.State != styles.StateDone {
				t.Errorf("expected done state, got %v", st.State)
			}
			if cmd == nil {
				t.Error("expected a refresh after the operation")
			}
		})
	}
}

func TestWatchModelOperationFailure(t *testing.T) {
	f := &fakeBoards{boards: testBoards(), failOps: errors.New("write failed")}
	m, _ := newTestModel(t, f)
	scan(t, m)

	send(t, m, keyMsg("r"))

	st := m.BoardStatus("/dev/ttyACM0")
	if st.State != styles.StateFailed {
		t.Errorf("expected failed state, got %v", st.State)
	}
	if _, err := m.statusBar.Status(); err == nil {
		t.Error("expected the error in the status bar")
	}
	if !strings.Contains(m.View(), "reset failed") {
		t.Error("view should show the failure")
	}
}

func TestWatchModelResetSkipsTouchBoard(t *testing.T) {
	f := &fakeBoards{boards: testBoards(), outcome: OutcomeSkipped}
	m, _ := newTestModel(t, f)
	scan(t, m)

	// select the leonardo
	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	send(t, m, keyMsg("r"))

	st := m.BoardStatus("/dev/ttyACM1")
	if st.State != styles.StateSkipped {
		t.Errorf("expected skipped state, got %v", st.State)
	}
	status, err := m.statusBar.Status()
	if err != nil || !strings.Contains(status, "skipped") {
		t.Errorf("expected skipped status, got %q, %v", status, err)
	}
	if strings.Contains(status, "done") {
		t.Errorf("skipped reset reported as done: %q", status)
	}
	if !strings.Contains(m.View(), "skipped (touch board)") {
		t.Error("view should show the skipped reset")
	}
}

func TestWatchModelOneOperationAtATime(t *testing.T) {
	f := &fakeBoards{boards: testBoards()}
	m, _ := newTestModel(t, f)
	scan(t, m)

	_, first := m.Update(keyMsg("r"))
	if first == nil {
		t.Fatal("expected an operation command")
	}
	if _, cmd := m.Update(keyMsg("t")); cmd != nil {
		t.Error("second operation should be refused while busy")
	}

	// ticks skip the scan while busy
	_, cmd := m.Update(tickMsg(time.Now()))
	if cmd != nil {
		t.Error("tick should not refresh while busy with auto refresh off")
	}
	if f.scans != 1 {
		t.Errorf("expected 1 scan, got %d", f.scans)
	}
}

func TestWatchModelNoBoards(t *testing.T) {
	f := &fakeBoards{}
	m, _ := newTestModel(t, f)
	scan(t, m)

	if _, cmd := m.Update(keyMsg("r")); cmd != nil {
		t.Error("operation without a board should do nothing")
	}
	if !strings.Contains(m.View(), "No boards found") {
		t.Error("expected the empty message")
	}
}

func TestWatchModelSelectionFollowsPort(t *testing.T) {
	f := &fakeBoards{boards: testBoards()}
	m, _ := newTestModel(t, f)
	scan(t, m)

	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	board, _ := m.Selected()
	if board.Port != "/dev/ttyACM1" {
		t.Fatalf("expected second board after down, got %s", board.Port)
	}

	// the first board goes away, the selection stays on the same port
	f.boards = testBoards()[1:]
	scan(t, m)

	board, _ = m.Selected()
	if board.Port != "/dev/ttyACM1" {
		t.Errorf("expected selection to follow /dev/ttyACM1, got %s", board.Port)
	}
}

func TestWatchModelPrunesStatus(t *testing.T) {
	f := &fakeBoards{boards: testBoards()}
	m, _ := newTestModel(t, f)
	scan(t, m)

	// the board re-enumerates under a new name after the reset
	f.boards = testBoards()[1:]
	send(t, m, keyMsg("r"))
	if st := m.BoardStatus("/dev/ttyACM0"); st.State != styles.StateDone {
		t.Fatalf("expected done state before the rescan, got %v", st.State)
	}
	scan(t, m)

	if st := m.BoardStatus("/dev/ttyACM0"); st.State != styles.StateIdle {
		t.Errorf("expected state of vanished port dropped, got %v", st.State)
	}
}

func TestWatchModelQuit(t *testing.T) {
	m, _ := newTestModel(t, &fakeBoards{})

	_, cmd := m.Update(keyMsg("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestWatchModelHelpToggle(t *testing.T) {
	m, _ := newTestModel(t, &fakeBoards{})
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 30})

	short := m.View()
	m.Update(keyMsg("?"))
	full := m.View()

	if !strings.Contains(full, "USB port reset") {
		t.Error("full help should list the USB reset binding")
	}
	if strings.Contains(short, "USB port reset") {
		t.Error("short help should not list the USB reset binding")
	}
}

func TestOperationString(t *testing.T) {
	tests := []struct {
		op   Operation
		want string
	}{
		{OpReset, "reset"},
		{OpPulse, "pulse"},
		{OpTouch, "touch"},
		{OpUSBReset, "usb reset"},
		{Operation(9), "Operation(9)"},
	}
	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("Operation(%d).String() = %q, want %q", int(tt.op), got, tt.want)
		}
	}
}
