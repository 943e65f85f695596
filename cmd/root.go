/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/allbin/go-ardreset"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var cfgFile string

// logger is replaced in PersistentPreRunE once flags and config are read
var logger = zap.NewNop()

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ardreset",
	Short: "Identify and reset Arduino boards over USB",
	Long: `ardreset identifies Arduino-family boards attached over USB and resets
them into their bootloader.

Boards are classified by USB vendor/product ID. Classic boards (Uno,
Mega) are reset with a DTR/RTS pulse. Native USB boards (Leonardo,
Nano Every) need the 1200 bps touch, which is never sent automatically:
use 'ardreset touch' or 'ardreset reset --touch' for them.

Extra boards can be added in the config file ($HOME/.ardreset.yaml):

  boards:
    - vid: "1a86"
      pid: "7523"
      board: uno
  touch-wait: 2s`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLogger(viper.GetBool("verbose"))
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		logger = l
		if f := viper.ConfigFileUsed(); f != "" {
			logger.Debug("using config file", zap.String("path", f))
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.ardreset.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	viper.SetDefault("touch-wait", 2*time.Second)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".ardreset")
	}

	viper.SetEnvPrefix("ARDRESET")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config: %v\n", err)
			os.Exit(1)
		}
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// boardConfig is one entry of the boards list in the config file.
// IDs are hex strings; quote them so YAML does not read them as numbers.
type boardConfig struct {
	VID   string `mapstructure:"vid"`
	PID   string `mapstructure:"pid"`
	Board string `mapstructure:"board"`
}

// loadCatalog returns the built-in catalog extended with the boards
// from the config file
func loadCatalog() (*ardreset.Catalog, error) {
	var boards []boardConfig
	if err := viper.UnmarshalKey("boards", &boards); err != nil {
		return nil, fmt.Errorf("invalid boards config: %w", err)
	}
	return catalogFromConfig(boards)
}

func catalogFromConfig(boards []boardConfig) (*ardreset.Catalog, error) {
	entries := make([]ardreset.BoardEntry, 0, len(boards))
	for i, b := range boards {
		vid, err := ardreset.ParseUSBID(b.VID)
		if err != nil {
			return nil, fmt.Errorf("boards[%d]: vid: %w", i, err)
		}
		pid, err := ardreset.ParseUSBID(b.PID)
		if err != nil {
			return nil, fmt.Errorf("boards[%d]: pid: %w", i, err)
		}
		action, err := ardreset.ParseBoardAction(b.Board)
		if err != nil {
			return nil, fmt.Errorf("boards[%d]: %w", i, err)
		}
		entries = append(entries, ardreset.BoardEntry{VendorID: vid, ProductID: pid, Action: action})
	}
	return ardreset.DefaultCatalog().With(entries...), nil
}

// mustLoadCatalog loads the catalog or exits
func mustLoadCatalog() *ardreset.Catalog {
	catalog, err := loadCatalog()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return catalog
}

// describePolicy renders a reset policy for humans
func describePolicy(p ardreset.ResetPolicy) string {
	if p.UsesTouch() {
		return fmt.Sprintf("%d baud, 1200 bps touch", p.BaudRate)
	}
	return fmt.Sprintf("%d baud, %d ms DTR/RTS pulse", p.BaudRate, p.ResetPulse)
}

func boardName(entry ardreset.BoardEntry, recognized bool) string {
	if !recognized {
		return "unknown"
	}
	return entry.Action.String()
}
