package cli

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agenthands/minutes/internal/config"
	"github.com/agenthands/minutes/internal/logger"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "minutes",
	Short: "minutes turns meeting transcripts into calendar actions and summaries",
	Long: `minutes drives a meeting transcript through an LLM workflow: it analyzes the
meeting, plans calendar actions, executes them against the calendar and emails
a summary to the configured recipients.

Settings come from a TOML file, overridden by environment variables and an
optional .env file.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "config/config.toml", "Path to the TOML config file")
	rootCmd.PersistentFlags().String("env-file", ".env", "Optional .env file to load")
	rootCmd.PersistentFlags().String("log-level", "", "Override the configured log level")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(meetingsCmd)
}

// loadConfig reads the config the way the server does: file, then .env,
// then environment.
func loadConfig(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	if envFile, _ := cmd.Flags().GetString("env-file"); envFile != "" {
		// A missing .env file is fine.
		_ = godotenv.Load(envFile)
	}

	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, nil, err
	}
	cfg.ApplyEnv()
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return cfg, log, nil
}
