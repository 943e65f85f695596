/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/allbin/go-ardreset"
	"github.com/allbin/go-ardreset/internal/tui/models"
	"github.com/allbin/go-ardreset/usbhost"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Interactive board list with reset controls",
	Long: `Show the attached boards in an interactive table that refreshes as
boards come and go.

Keys:
  ↑/↓ or j/k  select a board
  r           reset according to the board policy (touch boards are skipped)
  p           DTR/RTS pulse
  t           1200 bps touch
  U           USB port reset (needs permissions for libusb)
  u           refresh now
  ?           full help
  q           quit`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		interval, _ := cmd.Flags().GetDuration("interval")
		catalog := mustLoadCatalog()

		// log output would corrupt the alternate screen, failures are
		// shown in the table instead
		l := zap.NewNop()

		model := models.NewWatchModel(models.WatchConfig{
			Detect: func() ([]ardreset.Board, error) {
				return ardreset.DetectBoards(catalog)
			},
			Operate:  operateBoard(catalog, l),
			Describe: describePolicy,
			Interval: interval,
			Logger:   l,
		})

		p := tea.NewProgram(model, tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().DurationP("interval", "i", 2*time.Second, "Refresh interval (0 disables auto refresh)")
}

// operateBoard maps watch view operations onto the reset functions
func operateBoard(catalog *ardreset.Catalog, l *zap.Logger) models.OperateFunc {
	return func(port string, op models.Operation) (models.Outcome, error) {
		opts := []ardreset.SessionOption{
			ardreset.WithCatalog(catalog),
			ardreset.WithLogger(l),
		}
		var err error
		switch op {
		case models.OpReset:
			s, rerr := ardreset.ResetPort(port, ardreset.ResetAuto, 0, opts...)
			if rerr == nil && s.Policy.UsesTouch() {
				return models.OutcomeSkipped, nil
			}
			err = rerr
		case models.OpPulse:
			_, err = ardreset.ResetPort(port, ardreset.ResetPulse, 0, opts...)
		case models.OpTouch:
			_, err = ardreset.ResetPort(port, ardreset.ResetTouch, 0, opts...)
		case models.OpUSBReset:
			err = usbhost.ResetPortDevice(port, l)
		default:
			err = fmt.Errorf("unsupported operation: %s", op)
		}
		return models.OutcomeDone, err
	}
}
