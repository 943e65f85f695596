/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/allbin/go-ardreset"
	"github.com/spf13/cobra"
)

// classifyCmd represents the classify command
var classifyCmd = &cobra.Command{
	Use:   "classify <vid> <pid>",
	Short: "Show the reset policy for a USB vendor/product ID",
	Long: `Look up a USB vendor/product ID pair in the board catalog and print the
reset policy it resolves to. IDs are hex, with or without a 0x prefix.

Devices that are not in the catalog resolve to the default policy.

Examples:
  ardreset classify 2341 0043
  ardreset classify 0x2341 0x8036`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		vid, err := ardreset.ParseUSBID(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		pid, err := ardreset.ParseUSBID(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		catalog := mustLoadCatalog()
		policy, recognized := catalog.Classify(vid, pid)
		entry, _ := catalog.Lookup(vid, pid)

		fmt.Printf("%04x:%04x\n\n", vid, pid)
		fmt.Printf("  Board:  %s\n", boardName(entry, recognized))
		fmt.Printf("  Policy: %s\n", describePolicy(policy))
		if !recognized {
			fmt.Println("\nNot in the catalog, the default policy applies")
		}
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}
