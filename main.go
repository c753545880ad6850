package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nijaru/yt-summarizer/config"
	"github.com/nijaru/yt-summarizer/logger"
)

var cfg *config.Config

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ytsum",
		Short:         "Summarize YouTube videos from their transcripts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var logFile string
	var closeLog func() error
	root.PersistentFlags().StringVar(&logFile, "log-file", "", "log file name under LOG_DIR")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// A missing .env is fine; the environment may already be set.
		_ = godotenv.Load()

		cfg = config.LoadConfig()
		if err := config.ValidateConfig(cfg); err != nil {
			logrus.WithError(err).Error("Invalid configuration")
			return err
		}

		if logFile == "" {
			logFile = cmd.Name() + ".log"
		}
		closer, err := logger.Setup(logger.Options{
			Dir:    cfg.LogDir,
			File:   logFile,
			Level:  cfg.LogLevel,
			Format: cfg.LogFormat,
		})
		if err != nil {
			logrus.WithError(err).Error("Failed to set up logging")
			return err
		}
		closeLog = closer.Close
		return nil
	}
	root.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if closeLog != nil {
			return closeLog()
		}
		return nil
	}

	root.AddCommand(newServeCmd(), newAgentCmd(), newCompanionCmd(), newSummarizeCmd())
	return root
}
