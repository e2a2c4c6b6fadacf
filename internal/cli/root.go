// Package cli implements the emotion command line: the API server, the live
// window loop, offline prediction and history inspection.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"emotionserver/internal/config"
	"emotionserver/internal/logger"

	"github.com/spf13/cobra"
)

// Version is the application version.
const Version = "0.1.0"

// env holds what every subcommand needs once PersistentPreRunE ran.
type env struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *logger.Logger
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	e := &env{}

	root := &cobra.Command{
		Use:           "emotion",
		Short:         "Facial emotion recognition server and tools",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if e.configPath != "" {
				os.Setenv("EMOTION_CONFIG", e.configPath)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if e.logLevel != "" {
				cfg.LogLevel = e.logLevel
			}

			log, err := logger.New(cfg.LogDir)
			if err != nil {
				return err
			}
			if err := log.SetLevel(cfg.LogLevel); err != nil {
				log.Close()
				return err
			}
			e.cfg, e.logger = cfg, log
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if e.logger != nil {
				e.logger.Close()
			}
		},
	}
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.PersistentFlags().StringVar(&e.configPath, "config", "", "YAML config file (overrides EMOTION_CONFIG)")
	root.PersistentFlags().StringVar(&e.logLevel, "log-level", "", "debug, info, warning or error")

	root.AddCommand(
		newServeCmd(e),
		newLiveCmd(e),
		newPredictCmd(e),
		newHistoryCmd(e),
		newStatsCmd(e),
		newMigrateCmd(e),
	)
	return root
}

// Execute runs the CLI until it finishes or receives SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
