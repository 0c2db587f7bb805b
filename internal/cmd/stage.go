package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"convoy/internal/config"
	"convoy/internal/logging"
	"convoy/internal/poll"
	"convoy/internal/stage/analyze"
	"convoy/internal/stage/fetch"
	"convoy/internal/stage/process"
	"convoy/internal/volume"
)

// Stage subcommands are the built-in stage programs for self-managed
// runs. The coordinator launches them by re-invoking its own executable,
// so a single binary covers both roles. Hidden because operators running
// the stages in separate containers invoke them explicitly anyway.
var stageCmd = &cobra.Command{
	Use:    "stage",
	Short:  "Run a single pipeline stage in the foreground",
	Hidden: true,
}

var (
	stageVolumeDir    string
	stageTimeout      int
	stagePollInterval int
)

func init() {
	rootCmd.AddCommand(stageCmd)

	stageCmd.PersistentFlags().StringVar(&stageVolumeDir, "volume", "/shared", "shared volume mount point")
	stageCmd.PersistentFlags().IntVar(&stageTimeout, "timeout", 300, "seconds to wait for the upstream sentinel")
	stageCmd.PersistentFlags().IntVar(&stagePollInterval, "poll-interval", 5, "seconds between upstream sentinel checks")

	stageCmd.AddCommand(&cobra.Command{
		Use:   "fetch",
		Short: "Fetch every URL in the injected work list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(cmd.Context(), volume.StageFetch)
		},
	})
	stageCmd.AddCommand(&cobra.Command{
		Use:   "process",
		Short: "Strip fetched documents down to text and statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(cmd.Context(), volume.StageProcess)
		},
	})
	stageCmd.AddCommand(&cobra.Command{
		Use:   "analyze",
		Short: "Aggregate processed documents into the final report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(cmd.Context(), volume.StageAnalyze)
		},
	})
}

func runStage(ctx context.Context, s volume.Stage) error {
	cfg := config.Get()

	// Stage logs go to stderr; the coordinator captures them into its
	// per-stage diagnostic buffers.
	log, err := logging.NewLogger("", cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer log.Close()

	vol := volume.NewOS(stageVolumeDir)
	wait := poll.Config{
		Interval: time.Duration(stagePollInterval) * time.Second,
		Deadline: time.Duration(stageTimeout) * time.Second,
	}

	switch s {
	case volume.StageFetch:
		return fetch.Run(ctx, fetch.Options{Volume: vol, Logger: log, Wait: wait})
	case volume.StageProcess:
		return process.Run(ctx, process.Options{Volume: vol, Logger: log, Wait: wait})
	case volume.StageAnalyze:
		return analyze.Run(ctx, analyze.Options{Volume: vol, Logger: log, Wait: wait})
	default:
		return fmt.Errorf("unknown stage %q", s)
	}
}
