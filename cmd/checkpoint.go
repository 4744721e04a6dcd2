package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pipecal/pipecal/cal/checkpoint"
)

var (
	ckptDBPath    string
	ckptRunID     string
	ckptRunLabel  string
	ckptStatePath string
	ckptOutPath   string
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Manage checkpoints in a run database",
}

var checkpointSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save a state checkpoint into the run database",
	Run: func(cmd *cobra.Command, args []string) {
		store := openStore()
		defer store.Close()

		ctx := context.Background()
		runID, err := store.NewRun(ctx, ckptRunID, ckptRunLabel)
		if err != nil {
			logrus.Fatalf("Registering run: %v", err)
		}
		lib := loadLibrary(ckptStatePath)
		seq, err := store.Save(ctx, runID, lib)
		if err != nil {
			logrus.Fatalf("Saving checkpoint: %v", err)
		}
		fmt.Printf("run %s checkpoint %d\n", runID, seq)
	},
}

var checkpointRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore the latest checkpoint of a run to a YAML file",
	Run: func(cmd *cobra.Command, args []string) {
		store := openStore()
		defer store.Close()

		lib, err := store.LoadLatest(context.Background(), ckptRunID)
		if err != nil {
			logrus.Fatalf("Loading checkpoint: %v", err)
		}
		if lib == nil {
			logrus.Fatalf("Run %s has no checkpoints", ckptRunID)
		}
		data, err := lib.Export()
		if err != nil {
			logrus.Fatalf("Serializing state: %v", err)
		}
		if err := os.WriteFile(ckptOutPath, data, 0o644); err != nil {
			logrus.Fatalf("Writing %s: %v", ckptOutPath, err)
		}
		logrus.Infof("Restored run %s to %s", ckptRunID, ckptOutPath)
	},
}

var checkpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs stored in the database",
	Run: func(cmd *cobra.Command, args []string) {
		store := openStore()
		defer store.Close()

		runs, err := store.ListRuns(context.Background())
		if err != nil {
			logrus.Fatalf("Listing runs: %v", err)
		}
		for _, r := range runs {
			fmt.Printf("%s  %s  checkpoints=%d  %s\n", r.RunID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Checkpoints, r.Label)
		}
	},
}

func openStore() *checkpoint.Store {
	store, err := checkpoint.Open(ckptDBPath)
	if err != nil {
		logrus.Fatalf("Opening checkpoint database: %v", err)
	}
	return store
}

func init() {
	checkpointCmd.PersistentFlags().StringVar(&ckptDBPath, "db", "pipecal.db", "Checkpoint database path")

	checkpointSaveCmd.Flags().StringVar(&ckptRunID, "run", "", "Run id (a fresh UUID when omitted)")
	checkpointSaveCmd.Flags().StringVar(&ckptRunLabel, "label", "", "Optional run label")
	checkpointSaveCmd.Flags().StringVar(&ckptStatePath, "state", "", "State checkpoint to save (YAML)")
	checkpointSaveCmd.MarkFlagRequired("state")

	checkpointRestoreCmd.Flags().StringVar(&ckptRunID, "run", "", "Run id")
	checkpointRestoreCmd.Flags().StringVar(&ckptOutPath, "out", "state.yaml", "Output YAML path")
	checkpointRestoreCmd.MarkFlagRequired("run")

	checkpointCmd.AddCommand(checkpointSaveCmd, checkpointRestoreCmd, checkpointListCmd)
	rootCmd.AddCommand(checkpointCmd)
}
