/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	serialcore "github.com/allbin/go-serialcore"
	"github.com/allbin/go-serialcore/internal/config"
	"github.com/allbin/go-serialcore/internal/logging"
)

// annotation for commands that take over the terminal
const tuiAnnotation = "tui"

var (
	// Global flags
	cfgFile  string
	logLevel string
	verbose  bool

	appConfig *config.Config
	logger    *zap.Logger
	service   *serialcore.Service
)

var rootCmd = &cobra.Command{
	Use:   "serialctl",
	Short: "Serial port connection manager",
	Long: `Discover serial ports, hold one open connection and exchange data with it.

Examples:
  serialctl list --table
  serialctl send "AT" /dev/ttyUSB0 --newline --wait 500ms
  serialctl listen /dev/ttyACM0 --baud 9600
  serialctl console /dev/ttyUSB0
  serialctl serve < requests.jsonl`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if service != nil {
			service.CloseSerialPort()
		}
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./serialctl.yaml or ~/.config/serialctl/serialctl.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (same as --log-level debug)")
}

// setup loads configuration and builds the logger and the service every
// command works through.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	appConfig, err = config.Load(cfgFile)
	if err != nil {
		return err
	}

	if logLevel != "" {
		appConfig.Logging.Level = logLevel
	}
	if verbose {
		appConfig.Logging.Level = "debug"
	}

	logger, err = newLogger(cmd)
	if err != nil {
		return err
	}

	var enumerator serialcore.Enumerator = serialcore.SystemEnumerator{}
	if appConfig.Registry.Enumerator == config.EnumeratorDevfs {
		enumerator = serialcore.DevfsEnumerator{}
	}

	service = serialcore.NewService(
		serialcore.WithEnumerator(enumerator),
		serialcore.WithLogger(logger.Named("serial")),
		serialcore.WithReceiveLimits(appConfig.Receive.DefaultMaxBytes, appConfig.Receive.MaxBytes),
	)

	logger.Debug("Configuration loaded",
		zap.String("command", cmd.Name()),
		zap.String("enumerator", appConfig.Registry.Enumerator),
		zap.Int("receive_default", appConfig.Receive.DefaultMaxBytes),
	)
	return nil
}

// newLogger builds the configured logger. Full-screen commands only log
// when the output is a file.
func newLogger(cmd *cobra.Command) (*zap.Logger, error) {
	out := appConfig.Logging.Output
	if cmd.Annotations[tuiAnnotation] == "true" && (out == "" || out == "stdout" || out == "stderr") {
		return zap.NewNop(), nil
	}
	return logging.NewLogger(appConfig.Logging)
}
