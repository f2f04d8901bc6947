package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Environment variables read after .env is loaded. Flags given on the command
// line win over them.
const (
	envLogLevel = "CCSIM_LOG"
	envSeed     = "CCSIM_SEED"
)

var logLevel string // Log verbosity level

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:               "ccsim",
	Short:             "Discrete-event simulator for contact-center routing",
	SilenceUsage:      true,
	PersistentPreRunE: setupEnvironment,
}

// setupEnvironment loads .env, applies env defaults to flags left unset and
// configures logging.
func setupEnvironment(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	if !cmd.Flags().Changed("log") {
		if v := os.Getenv(envLogLevel); v != "" {
			logLevel = v
		}
	}
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	logrus.SetLevel(level)

	if f := cmd.Flags().Lookup("seed"); f != nil && !f.Changed {
		if v := os.Getenv(envSeed); v != "" {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				return fmt.Errorf("%s=%q is not an integer seed", envSeed, v)
			}
			if err := f.Value.Set(v); err != nil {
				return err
			}
			f.Changed = true
		}
	}
	return nil
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(watchCmd)
}
