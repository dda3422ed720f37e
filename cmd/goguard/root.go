package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/goGuard/internal/config"
)

// Set by -ldflags at build time.
var (
	BuildVersion = "dev"
	BuildCommit  = "none"
	BuildDate    = "unknown"
)

type cli struct {
	envFiles []string
	logLevel string

	env    config.Env
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "goguard",
		Short:         "Session token guard",
		Long:          `goguard validates, refreshes and revokes signed session tokens backed by a revocation store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			env, err := config.Load(c.envFiles...)
			if err != nil {
				return err
			}
			c.env = env
			c.logger = newLogger(cmd.ErrOrStderr(), c.logLevel)
			slog.SetDefault(c.logger)
			return nil
		},
	}

	root.PersistentFlags().StringSliceVar(&c.envFiles, "env-file", nil, "dotenv files to load (default .env)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", os.Getenv("GOGUARD_LOG_LEVEL"), "log level: debug, info, warn, error")

	root.AddCommand(
		newServeCmd(c),
		newIssueCmd(c),
		newRevokeCmd(c),
		newPruneCmd(c),
		newVersionCmd(),
	)

	return root
}

// newLogger returns an slog.Logger backed by a charmbracelet/log handler.
func newLogger(w io.Writer, level string) *slog.Logger {
	handler := log.NewWithOptions(w, log.Options{
		Level:           parseLevel(level),
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
		Prefix:          "goguard",
	})
	return slog.New(handler)
}

func parseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

func newVersionCmd() *cobra.Command {
	var short bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			if short {
				fmt.Fprintln(out, BuildVersion)
				return
			}
			fmt.Fprintf(out, "goguard %s\n", BuildVersion)
			fmt.Fprintf(out, "Commit: %s\n", BuildCommit)
			fmt.Fprintf(out, "Built: %s\n", BuildDate)
		},
	}
	cmd.Flags().BoolVarP(&short, "short", "s", false, "Show only version number")
	return cmd
}
