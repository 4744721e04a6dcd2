package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pipecal/pipecal/cal"
)

var (
	mergeAPath   string
	mergeBPath   string
	mergeOutPath string
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge two state checkpoints into one",
	Long: "Merge combines the calibration state of two checkpoints, typically saved by " +
		"workers that processed disjoint datasets of the same run. Overlapping coverage " +
		"keeps every application, re-ordered by registration time.",
	Run: func(cmd *cobra.Command, args []string) {
		a := loadLibrary(mergeAPath)
		b := loadLibrary(mergeBPath)

		merged := cal.NewCalLibrary()
		var err error
		if merged.Active, err = a.Active.Merged(b.Active); err != nil {
			logrus.Fatalf("Merging active state: %v", err)
		}
		if merged.Applied, err = a.Applied.Merged(b.Applied); err != nil {
			logrus.Fatalf("Merging applied state: %v", err)
		}

		data, err := merged.Export()
		if err != nil {
			logrus.Fatalf("Serializing merged state: %v", err)
		}
		if err := os.WriteFile(mergeOutPath, data, 0o644); err != nil {
			logrus.Fatalf("Writing %s: %v", mergeOutPath, err)
		}
		logrus.Infof("Merged %s and %s into %s", mergeAPath, mergeBPath, mergeOutPath)
	},
}

func init() {
	mergeCmd.Flags().StringVar(&mergeAPath, "a", "", "First state checkpoint")
	mergeCmd.Flags().StringVar(&mergeBPath, "b", "", "Second state checkpoint")
	mergeCmd.Flags().StringVar(&mergeOutPath, "out", "", "Output checkpoint path")
	mergeCmd.MarkFlagRequired("a")
	mergeCmd.MarkFlagRequired("b")
	mergeCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(mergeCmd)
}
