package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X ...cli.Version=v1.2.3".
var Version = "dev"

// RootOptions holds the persistent flags and the logger built from them.
type RootOptions struct {
	ConfigPath string
	EnvFile    string
	LogLevel   string
	LogFormat  string
	LogFile    string

	Logger  *slog.Logger
	logFile io.Closer
}

func NewRootCmd() *cobra.Command {
	ro := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "cryptobot",
		Short:         "cryptobot: periodic Coinbase spot trading",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&ro.ConfigPath, "config", "config.yaml", "Path to config file (yaml, json or toml)")
	cmd.PersistentFlags().StringVar(&ro.EnvFile, "env-file", ".env", "dotenv file with credentials (skipped when missing)")
	cmd.PersistentFlags().StringVar(&ro.LogLevel, "log-level", "info", "Log level: debug|info|warn|error")
	cmd.PersistentFlags().StringVar(&ro.LogFormat, "log-format", "text", "Log format: text|json")
	cmd.PersistentFlags().StringVar(&ro.LogFile, "log-file", "", "Append logs to this file instead of stderr")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return ro.setupLogging(cmd.ErrOrStderr())
	}
	cmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if ro.logFile != nil {
			return ro.logFile.Close()
		}
		return nil
	}

	cmd.AddCommand(
		newRunCmd(ro),
		newOnceCmd(ro),
		newConfigCmd(ro),
		newJournalCmd(ro),
		newPairsCmd(ro),
		newBacktestCmd(ro),
	)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "cryptobot", Version)
		},
	})

	return cmd
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (ro *RootOptions) setupLogging(stderr io.Writer) error {
	level, err := parseLevel(ro.LogLevel)
	if err != nil {
		return err
	}

	out := stderr
	if ro.LogFile != "" {
		f, err := os.OpenFile(ro.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		ro.logFile = f
		out = f
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch strings.ToLower(ro.LogFormat) {
	case "", "text":
		h = slog.NewTextHandler(out, opts)
	case "json":
		h = slog.NewJSONHandler(out, opts)
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", ro.LogFormat)
	}
	ro.Logger = slog.New(h)
	slog.SetDefault(ro.Logger)
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

func (ro *RootOptions) logger() *slog.Logger {
	if ro.Logger == nil {
		return slog.Default()
	}
	return ro.Logger
}
