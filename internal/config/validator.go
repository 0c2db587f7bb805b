package config

import (
	"fmt"
	"slices"
	"strings"

	"convoy/internal/volume"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "run.timeout_seconds")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateRun()...)
	errors = append(errors, c.validateExtract()...)
	errors = append(errors, c.validateStages()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateRun validates the RunConfig
func (c *Config) validateRun() []ValidationError {
	var errors []ValidationError

	if c.Run.VolumeDir == "" {
		errors = append(errors, ValidationError{
			Field:   "run.volume_dir",
			Value:   c.Run.VolumeDir,
			Message: "cannot be empty",
		})
	}
	if strings.ContainsRune(c.Run.VolumeDir, '\x00') {
		errors = append(errors, ValidationError{
			Field:   "run.volume_dir",
			Value:   c.Run.VolumeDir,
			Message: "path contains invalid null character",
		})
	}

	if c.Run.OutputDir == "" {
		errors = append(errors, ValidationError{
			Field:   "run.output_dir",
			Value:   c.Run.OutputDir,
			Message: "cannot be empty",
		})
	}

	// Timeout bounds: a run must be allowed at least one poll, and an
	// unbounded wait would defeat the point of the coordinator.
	const maxTimeoutSeconds = 86400 // 24 hours
	if c.Run.TimeoutSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "run.timeout_seconds",
			Value:   c.Run.TimeoutSeconds,
			Message: "must be at least 1 second",
		})
	}
	if c.Run.TimeoutSeconds > maxTimeoutSeconds {
		errors = append(errors, ValidationError{
			Field:   "run.timeout_seconds",
			Value:   c.Run.TimeoutSeconds,
			Message: fmt.Sprintf("exceeds maximum of %d seconds", maxTimeoutSeconds),
		})
	}

	if c.Run.PollIntervalSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "run.poll_interval_seconds",
			Value:   c.Run.PollIntervalSeconds,
			Message: "must be at least 1 second",
		})
	}
	// The interval must stay small relative to the deadline (at most
	// 1:20) so elapsed-time reporting is reasonably granular.
	if c.Run.PollIntervalSeconds >= 1 && c.Run.TimeoutSeconds >= 1 &&
		c.Run.PollIntervalSeconds*20 > c.Run.TimeoutSeconds {
		errors = append(errors, ValidationError{
			Field:   "run.poll_interval_seconds",
			Value:   c.Run.PollIntervalSeconds,
			Message: fmt.Sprintf("must be at most 1/20 of run.timeout_seconds (%d)", c.Run.TimeoutSeconds),
		})
	}

	return errors
}

// validateExtract validates the ExtractConfig
func (c *Config) validateExtract() []ValidationError {
	var errors []ValidationError

	if len(c.Extract.Required) == 0 {
		errors = append(errors, ValidationError{
			Field:   "extract.required",
			Value:   c.Extract.Required,
			Message: "at least one required artifact is needed to judge success",
		})
	}

	errors = append(errors, validateArtifactList(c.Extract.Required, "extract.required")...)
	errors = append(errors, validateArtifactList(c.Extract.Optional, "extract.optional")...)

	// An artifact cannot be both required and optional
	required := make(map[string]bool, len(c.Extract.Required))
	for _, a := range c.Extract.Required {
		required[a] = true
	}
	for i, a := range c.Extract.Optional {
		if required[a] {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("extract.optional[%d]", i),
				Value:   a,
				Message: "artifact already listed in 'required'",
			})
		}
	}

	return errors
}

// validateArtifactList validates a list of volume-relative artifact paths
func validateArtifactList(artifacts []string, fieldPrefix string) []ValidationError {
	var errors []ValidationError

	seen := make(map[string]bool)
	for i, a := range artifacts {
		fieldName := fmt.Sprintf("%s[%d]", fieldPrefix, i)

		if strings.TrimSpace(a) == "" {
			errors = append(errors, ValidationError{
				Field:   fieldName,
				Value:   a,
				Message: "artifact path cannot be empty",
			})
			continue
		}
		if strings.HasPrefix(a, "/") {
			errors = append(errors, ValidationError{
				Field:   fieldName,
				Value:   a,
				Message: "must be a path relative to the volume root (remove leading /)",
			})
		}
		if strings.Contains(a, "..") {
			errors = append(errors, ValidationError{
				Field:   fieldName,
				Value:   a,
				Message: "cannot contain parent directory references (..)",
			})
		}
		if seen[a] {
			errors = append(errors, ValidationError{
				Field:   fieldName,
				Value:   a,
				Message: "duplicate artifact path",
			})
		}
		seen[a] = true
	}

	return errors
}

// validateStages validates the StagesConfig
func (c *Config) validateStages() []ValidationError {
	var errors []ValidationError

	for name, argv := range c.Stages.Commands {
		if !volume.Stage(name).Valid() {
			errors = append(errors, ValidationError{
				Field:   "stages.commands",
				Value:   name,
				Message: fmt.Sprintf("unknown stage; must be one of: %s", strings.Join(stageNames(), ", ")),
			})
			continue
		}
		if len(argv) == 0 {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("stages.commands.%s", name),
				Value:   argv,
				Message: "command argv cannot be empty",
			})
		}
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}

func stageNames() []string {
	stages := volume.Stages()
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = string(s)
	}
	return names
}
