package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pipecal/pipecal/cal"
	"github.com/pipecal/pipecal/cal/casa"
)

var (
	exportStatePath string
	exportOutPath   string
	exportApplied   bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a state checkpoint to the cal-library record format",
	Long: "Export converts a saved calibration checkpoint into the linear record format " +
		"the external calibration-application tool consumes. Record order carries precedence: " +
		"later records override earlier ones for overlapping selections of the same type.",
	Run: func(cmd *cobra.Command, args []string) {
		lib := loadLibrary(exportStatePath)
		state := lib.Active
		if exportApplied {
			state = lib.Applied
		}
		records, err := state.Export()
		if err != nil {
			logrus.Fatalf("Export failed: %v", err)
		}
		casa.SortStable(records)
		text := casa.Format(records)
		if exportOutPath == "" {
			fmt.Print(text)
			return
		}
		if err := os.WriteFile(exportOutPath, []byte(text), 0o644); err != nil {
			logrus.Fatalf("Writing %s: %v", exportOutPath, err)
		}
		logrus.Infof("Wrote %d records to %s", len(records), exportOutPath)
	},
}

func loadLibrary(path string) *cal.CalLibrary {
	data, err := os.ReadFile(path)
	if err != nil {
		logrus.Fatalf("Reading state checkpoint: %v", err)
	}
	lib, err := cal.ImportCalLibrary(data)
	if err != nil {
		logrus.Fatalf("Parsing state checkpoint: %v", err)
	}
	return lib
}

func init() {
	exportCmd.Flags().StringVar(&exportStatePath, "state", "", "Path to the saved state checkpoint (YAML)")
	exportCmd.Flags().StringVar(&exportOutPath, "out", "", "Output file (default: stdout)")
	exportCmd.Flags().BoolVar(&exportApplied, "applied", false, "Export the applied state instead of the active one")
	exportCmd.MarkFlagRequired("state")
	rootCmd.AddCommand(exportCmd)
}
