package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/cmxela/thinkube-cicd-monitor/internal/config"
	"github.com/cmxela/thinkube-cicd-monitor/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "tkmon",
	Short: "Thinkube CI/CD pipeline monitor",
	Long: `tkmon watches pipelines on a Thinkube CI/CD control plane: live tree
and timeline views, one-shot listings, metrics and run analysis.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; a missing file is fine.
		godotenv.Load()

		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}

		logFile := cfg.Log.File
		if cmd.Name() == "watch" && logFile == "" {
			// The TUI owns the terminal; log lines go to a file instead.
			logFile = filepath.Join(config.StateDir(), "tkmon.log")
		}
		closeLog, err = logging.Setup(cfg.Log.Level, logFile)
		return err
	},
}

var (
	cfgPath  string
	cfg      *config.Config
	closeLog func() error
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath(), "Config file path")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(pipelinesCmd)
	rootCmd.AddCommand(appsCmd)
	rootCmd.AddCommand(timelineCmd)
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(triggerCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	err := rootCmd.Execute()
	if closeLog != nil {
		closeLog()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
