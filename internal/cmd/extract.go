package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"convoy/internal/config"
	"convoy/internal/extract"
	"convoy/internal/logging"
	"convoy/internal/volume"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract results from the shared volume without running the pipeline",
	Long: `Extract copies the configured result artifacts from the shared volume
into the output directory. Useful when a pipeline completed but the
coordinator exited before extracting, or to re-extract with --overwrite.

Exits 1 when any required artifact is missing from the volume.`,
	Args: cobra.NoArgs,
	PreRun: func(cmd *cobra.Command, args []string) {
		_ = viper.BindPFlag("run.volume_dir", cmd.Flags().Lookup("volume"))
		_ = viper.BindPFlag("run.output_dir", cmd.Flags().Lookup("out"))
		_ = viper.BindPFlag("extract.overwrite", cmd.Flags().Lookup("overwrite"))
	},
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().String("volume", "", "shared volume mount point")
	extractCmd.Flags().StringP("out", "o", "", "output directory for extracted results")
	extractCmd.Flags().Bool("overwrite", false, "replace a prior result in the output directory")
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	log, err := logging.NewLogger("", cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer log.Close()

	vol := volume.NewOS(cfg.Run.ResolveVolumeDir(cwd))
	outDir := cfg.Run.ResolveOutputDir(cwd)

	ext := extract.New(vol, afero.NewOsFs(), log)
	manifest := extract.Manifest(cfg.Extract.Required, cfg.Extract.Optional)

	res, err := ext.Extract(cmd.Context(), outDir, manifest, cfg.Extract.Overwrite)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "extracted %d artifact(s) to %s\n", len(res.Copied), outDir)
	return nil
}
