/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// boardsCmd represents the boards command
var boardsCmd = &cobra.Command{
	Use:   "boards",
	Short: "Print the board catalog",
	Long: `Print the board catalog in lookup order: the built-in boards followed by
the boards from the config file. The first entry matching a device wins.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		catalog := mustLoadCatalog()

		for _, e := range catalog.Entries() {
			fmt.Printf("%04x:%04x  %-11s %s\n", e.VendorID, e.ProductID, e.Action, describePolicy(e.Action.Policy()))
		}
	},
}

func init() {
	rootCmd.AddCommand(boardsCmd)
}
