package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yairfalse/vigil/internal/config"
	"github.com/yairfalse/vigil/telemetry"
)

const defaultConfigPath = "vigil.toml"

var (
	version = "0.1.0"
	commit  = "dev"

	configPath string
	logLevel   string
	logJSON    bool

	rootCmd = &cobra.Command{
		Use:   "vigil",
		Short: "Declarative Centreon monitoring configuration",
		Long: `Vigil - declarative Centreon monitoring configuration

Vigil converges hosts, services, service templates and commands in a
Centreon instance to the state described in YAML manifests. Every run
compares the live configuration with the manifest, issues only the calls
needed to close the gap, and publishes the poller configuration when
something changed.

Runs are idempotent: applying the same manifest twice makes no change the
second time.`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: setupLogging,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(`Vigil {{.Version}} - declarative Centreon monitoring configuration
`)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Runtime config file (default ./vigil.toml when present)")
	flags.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	flags.BoolVar(&logJSON, "log-json", false, "Emit JSON logs instead of console output")
}

// setupLogging configures the global zerolog logger from flags
func setupLogging(cmd *cobra.Command, _ []string) error {
	level := logLevel
	if level == "" {
		level = "info"
	}
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(parsed)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if logJSON {
		log.Logger = zerolog.New(cmd.ErrOrStderr()).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()})
	}
	return nil
}

// loadRuntimeConfig reads --config, ./vigil.toml, or falls back to defaults.
// A log level set in the file applies unless --log-level was given.
func loadRuntimeConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		}
	}

	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if logLevel == "" {
		if parsed, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
			zerolog.SetGlobalLevel(parsed)
		}
	}
	if cfg.Log.JSON {
		logJSON = true
	}
	return cfg, nil
}

// newLogger returns the component logger matching the output flags
func newLogger(w io.Writer) *telemetry.Logger {
	if logJSON {
		return telemetry.NewLoggerTo(w, "vigil")
	}
	return telemetry.NewConsoleLogger(w, "vigil")
}
