package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete coordinator configuration
type Config struct {
	Run     RunConfig     `mapstructure:"run"`
	Extract ExtractConfig `mapstructure:"extract"`
	Stages  StagesConfig  `mapstructure:"stages"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// RunConfig controls a pipeline run
type RunConfig struct {
	// VolumeDir is the shared volume mount point all stages read and write.
	// Supports ~ for home directory expansion.
	VolumeDir string `mapstructure:"volume_dir"`
	// OutputDir is where extracted results land
	OutputDir string `mapstructure:"output_dir"`
	// TimeoutSeconds is the maximum wall-clock time to wait for the
	// terminal sentinel before the run is reported as timed out
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	// PollIntervalSeconds is the spacing between sentinel existence checks
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`
	// Watch uses filesystem notifications instead of fixed-interval
	// polling when the volume supports it (default: true)
	Watch bool `mapstructure:"watch"`
	// KeepVolume skips scrubbing the volume during teardown, for debugging
	KeepVolume bool `mapstructure:"keep_volume"`
}

// ExtractConfig declares which artifacts leave the volume after a run
type ExtractConfig struct {
	// Required artifacts must all exist for the run to be reported as
	// succeeded; paths are relative to the volume root
	Required []string `mapstructure:"required"`
	// Optional artifacts are copied when present and skipped when absent
	Optional []string `mapstructure:"optional"`
	// Overwrite allows replacing a prior result in the output directory
	Overwrite bool `mapstructure:"overwrite"`
}

// StagesConfig controls how stage processes are launched
type StagesConfig struct {
	// SelfManaged launches the stages by re-invoking this executable's
	// hidden stage subcommands. When false, the stages are expected to be
	// run externally (e.g. as sibling containers) and Commands is ignored.
	SelfManaged bool `mapstructure:"self_managed"`
	// Commands overrides the stage launch commands, keyed by stage name.
	// Each value is an argv; an empty map uses the built-in stages.
	Commands map[string][]string `mapstructure:"commands"`
}

// LoggingConfig controls coordinator log output
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// Dir is where per-run log files are written.
	// If empty, defaults to the output directory.
	Dir string `mapstructure:"dir"`
}

// Timeout returns the completion deadline as a time.Duration
func (r *RunConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// PollInterval returns the poll spacing as a time.Duration
func (r *RunConfig) PollInterval() time.Duration {
	return time.Duration(r.PollIntervalSeconds) * time.Second
}

// ResolveVolumeDir returns the volume directory with ~ expanded and
// relative paths resolved against baseDir.
func (r *RunConfig) ResolveVolumeDir(baseDir string) string {
	return resolvePath(r.VolumeDir, baseDir)
}

// ResolveOutputDir returns the output directory with ~ expanded and
// relative paths resolved against baseDir.
func (r *RunConfig) ResolveOutputDir(baseDir string) string {
	return resolvePath(r.OutputDir, baseDir)
}

func resolvePath(path, baseDir string) string {
	if path == "" {
		return baseDir
	}
	if len(path) >= 2 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			path = home
		}
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	return path
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Run: RunConfig{
			VolumeDir:           "/shared",
			OutputDir:           "results",
			TimeoutSeconds:      300, // 5 minutes end to end
			PollIntervalSeconds: 5,
			Watch:               true,
			KeepVolume:          false,
		},
		Extract: ExtractConfig{
			Required: []string{"analysis/final_report.json"},
			Optional: []string{
				"status/fetch_complete.json",
				"status/process_complete.json",
				"status/analysis_complete.json",
			},
			Overwrite: false,
		},
		Stages: StagesConfig{
			SelfManaged: true,
			Commands:    map[string][]string{},
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Run defaults
	viper.SetDefault("run.volume_dir", defaults.Run.VolumeDir)
	viper.SetDefault("run.output_dir", defaults.Run.OutputDir)
	viper.SetDefault("run.timeout_seconds", defaults.Run.TimeoutSeconds)
	viper.SetDefault("run.poll_interval_seconds", defaults.Run.PollIntervalSeconds)
	viper.SetDefault("run.watch", defaults.Run.Watch)
	viper.SetDefault("run.keep_volume", defaults.Run.KeepVolume)

	// Extract defaults
	viper.SetDefault("extract.required", defaults.Extract.Required)
	viper.SetDefault("extract.optional", defaults.Extract.Optional)
	viper.SetDefault("extract.overwrite", defaults.Extract.Overwrite)

	// Stages defaults
	viper.SetDefault("stages.self_managed", defaults.Stages.SelfManaged)
	viper.SetDefault("stages.commands", defaults.Stages.Commands)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "convoy")
	}
	// Fall back to ~/.config/convoy
	home, err := os.UserHomeDir()
	if err != nil {
		return ".convoy"
	}
	return filepath.Join(home, ".config", "convoy")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
