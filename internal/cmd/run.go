package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"convoy/internal/config"
	"convoy/internal/errors"
	"convoy/internal/extract"
	"convoy/internal/logging"
	"convoy/internal/pipeline"
	"convoy/internal/poll"
	"convoy/internal/runner"
	"convoy/internal/volume"
)

var runCmd = &cobra.Command{
	Use:   "run <work-item>...",
	Short: "Run the pipeline to completion for the given work items",
	Long: `Run injects the work items into the shared volume, launches the pipeline
stages, waits for the terminal completion sentinel and extracts the
results into the output directory.

The command exits 0 only when the run succeeded and every required
artifact was extracted. Timeouts, stage failures, missing artifacts and
interrupts all exit 1, with diagnostics on stderr.`,
	Args: cobra.MinimumNArgs(1),
	// run and extract share viper keys, so flags are bound per-invocation
	// rather than at init where the last binding would win.
	PreRun: bindRunFlags,
	RunE:   runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("volume", "", "shared volume mount point")
	runCmd.Flags().StringP("out", "o", "", "output directory for extracted results")
	runCmd.Flags().IntP("timeout", "t", 0, "seconds to wait for pipeline completion")
	runCmd.Flags().Int("poll-interval", 0, "seconds between sentinel checks")
	runCmd.Flags().Bool("overwrite", false, "replace a prior result in the output directory")
	runCmd.Flags().Bool("keep-volume", false, "skip scrubbing the volume during teardown")
	runCmd.Flags().Bool("no-watch", false, "force fixed-interval polling instead of filesystem notifications")
}

func bindRunFlags(cmd *cobra.Command, args []string) {
	_ = viper.BindPFlag("run.volume_dir", cmd.Flags().Lookup("volume"))
	_ = viper.BindPFlag("run.output_dir", cmd.Flags().Lookup("out"))
	_ = viper.BindPFlag("run.timeout_seconds", cmd.Flags().Lookup("timeout"))
	_ = viper.BindPFlag("run.poll_interval_seconds", cmd.Flags().Lookup("poll-interval"))
	_ = viper.BindPFlag("extract.overwrite", cmd.Flags().Lookup("overwrite"))
	_ = viper.BindPFlag("run.keep_volume", cmd.Flags().Lookup("keep-volume"))
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if noWatch, _ := cmd.Flags().GetBool("no-watch"); noWatch {
		cfg.Run.Watch = false
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}
	volDir := cfg.Run.ResolveVolumeDir(cwd)
	outDir := cfg.Run.ResolveOutputDir(cwd)

	logDir := cfg.Logging.Dir
	if logDir == "" {
		logDir = outDir
	}
	log, err := logging.NewLogger(logDir, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer log.Close()

	vol := volume.NewOS(volDir)

	commands, err := stageCommands(cfg, volDir)
	if err != nil {
		return err
	}

	wait := poll.Config{
		Interval: cfg.Run.PollInterval(),
		Deadline: cfg.Run.Timeout(),
	}
	var waiter poll.Waiter
	if !cfg.Run.Watch {
		waiter = poll.NewIntervalWaiter(vol, wait)
	}

	ctrl, err := pipeline.NewController(pipeline.Options{
		Volume:        vol,
		DestDir:       outDir,
		Manifest:      extract.Manifest(cfg.Extract.Required, cfg.Extract.Optional),
		Overwrite:     cfg.Extract.Overwrite,
		KeepVolume:    cfg.Run.KeepVolume,
		StageCommands: commands,
		Wait:          wait,
		Waiter:        waiter,
		Logger:        log,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run := ctrl.Execute(ctx, args)

	fmt.Fprintln(cmd.OutOrStdout(), renderSummary(run, outDir))
	if run.Err != nil {
		printDiagnostics(cmd.ErrOrStderr(), run)
		return run.Err
	}
	return nil
}

// stageCommands builds the launch commands for a self-managed run. With
// self-management disabled, only explicitly configured commands are
// launched and the remaining stages are assumed to run externally.
func stageCommands(cfg *config.Config, volDir string) ([]runner.Command, error) {
	var commands []runner.Command
	for _, s := range volume.Stages() {
		if argv, ok := cfg.Stages.Commands[string(s)]; ok {
			commands = append(commands, runner.Command{Stage: s, Argv: argv})
			continue
		}
		if !cfg.Stages.SelfManaged {
			continue
		}
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to locate own executable: %w", err)
		}
		commands = append(commands, runner.Command{
			Stage: s,
			Argv: []string{
				exe, "stage", string(s),
				"--volume", volDir,
				"--timeout", strconv.Itoa(cfg.Run.TimeoutSeconds),
				"--poll-interval", strconv.Itoa(cfg.Run.PollIntervalSeconds),
			},
		})
	}
	return commands, nil
}

// printDiagnostics writes the captured stage output for a failed run.
func printDiagnostics(w io.Writer, run *pipeline.Run) {
	for _, d := range run.Diagnostics {
		if d.Output == "" {
			continue
		}
		fmt.Fprintf(w, "--- %s stage output (exit code %d) ---\n%s\n", d.Stage, d.ExitCode, d.Output)
	}
	if errors.Is(run.Err, errors.ErrExtractionIncomplete) {
		fmt.Fprintf(w, "required artifacts missing: %v\n", run.Extraction.MissingRequired)
	}
}
