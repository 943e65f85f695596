/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/allbin/go-ardreset"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List connected boards",
	Long: `List the USB serial ports on the system and the board each one belongs to.

Every USB serial port is classified against the board catalog (built-in
boards plus the boards from the config file). Ports whose USB IDs are not
in the catalog are listed as unknown and are reset with the default policy.

Examples:
  ardreset list
  ardreset list --table
  ardreset list --filter known`,
	Run: func(cmd *cobra.Command, args []string) {
		catalog := mustLoadCatalog()

		boards, err := ardreset.DetectBoards(catalog)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing ports: %v\n", err)
			os.Exit(1)
		}

		filterType, _ := cmd.Flags().GetString("filter")
		tableFormat, _ := cmd.Flags().GetBool("table")

		filtered, err := filterBoards(boards, filterType)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if len(filtered) == 0 {
			if filterType != "" && filterType != "all" {
				fmt.Printf("No boards found matching filter: %s\n", filterType)
			} else {
				fmt.Println("No boards found")
			}
			return
		}

		if tableFormat {
			renderTable(filtered)
		} else {
			renderSimple(filtered)
		}
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringP("filter", "f", "", "Filter by classification: known, unknown, all")
	listCmd.Flags().BoolP("table", "t", false, "Display output in a styled table format")
}

// filterBoards filters the board list based on the specified filter type
func filterBoards(boards []ardreset.Board, filterType string) ([]ardreset.Board, error) {
	switch strings.ToLower(filterType) {
	case "", "all":
		return boards, nil
	case "known", "unknown":
	default:
		return nil, fmt.Errorf("invalid filter: %s (valid: known, unknown, all)", filterType)
	}

	wantKnown := strings.EqualFold(filterType, "known")
	var filtered []ardreset.Board
	for _, b := range boards {
		if b.Recognized == wantKnown {
			filtered = append(filtered, b)
		}
	}
	return filtered, nil
}

// renderTable renders the board list in a styled static table format
func renderTable(boards []ardreset.Board) {
	fmt.Printf("Found %d board(s):\n\n", len(boards))

	// Define column widths
	portWidth := 15
	idWidth := 11
	boardWidth := 12
	policyWidth := 32

	// Create styles
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("99")).
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("240")).
		PaddingBottom(1)

	cellStyle := lipgloss.NewStyle().
		PaddingRight(2)

	unknownStyle := cellStyle.
		Foreground(lipgloss.Color("243"))

	// Print header
	header := fmt.Sprintf("%-*s %-*s %-*s %-*s %s",
		portWidth, "Port",
		idWidth, "VID:PID",
		boardWidth, "Board",
		policyWidth, "Reset",
		"Product")
	fmt.Println(headerStyle.Render(header))

	// Print rows
	for _, b := range boards {
		row := fmt.Sprintf("%-*s %-*s %-*s %-*s %s",
			portWidth, b.Port,
			idWidth, fmt.Sprintf("%04x:%04x", b.VendorID, b.ProductID),
			boardWidth, b.Name(),
			policyWidth, describePolicy(b.Policy),
			b.Product)
		if b.Recognized {
			fmt.Println(cellStyle.Render(row))
		} else {
			fmt.Println(unknownStyle.Render(row))
		}
	}
}

// renderSimple renders the board list in simple text format
func renderSimple(boards []ardreset.Board) {
	for _, b := range boards {
		fmt.Printf("%s\t%04x:%04x\t%s\n", b.Port, b.VendorID, b.ProductID, b.Name())
	}
}
