package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pipecal/pipecal/cal"
)

var (
	inspectStatePath string
	inspectShowCells bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Summarize a saved calibration state checkpoint",
	Run: func(cmd *cobra.Command, args []string) {
		lib := loadLibrary(inspectStatePath)
		printState("active", lib.Active)
		printState("applied", lib.Applied)
	},
}

func printState(name string, state *cal.CalState) {
	fmt.Printf("%s:\n", name)
	if state.IsEmpty() {
		fmt.Println("  (empty)")
		return
	}
	for _, vis := range state.VisIDs() {
		t := state.Tree(vis)
		t.Defrag()
		apps := t.Apps()
		fmt.Printf("  %s: %d applications in %d regions\n", vis, len(apps), t.NumCells())
		for _, app := range apps {
			fmt.Printf("    %s\n", app)
		}
		if inspectShowCells {
			for _, c := range t.Expand() {
				fmt.Printf("    antennas=%v spws=%v fields=%v intents=%v tables=%v\n",
					c.Antennas, c.Spws, c.Fields, c.Intents, c.Tables)
			}
		}
	}
}

func init() {
	inspectCmd.Flags().StringVar(&inspectStatePath, "state", "", "Path to the saved state checkpoint (YAML)")
	inspectCmd.Flags().BoolVar(&inspectShowCells, "cells", false, "Also print each region's materialized id sets")
	inspectCmd.MarkFlagRequired("state")
	rootCmd.AddCommand(inspectCmd)
}
