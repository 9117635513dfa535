package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eternnoir/whispscribe/pkg/config"
	"github.com/eternnoir/whispscribe/pkg/history"
	"github.com/eternnoir/whispscribe/pkg/logger"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "whispscribe",
	Short: "Batch speech-to-text with ffmpeg and whisper.cpp",
	Long: `whispscribe turns audio and video files into text transcripts.

Each file is converted to 16 kHz mono WAV with ffmpeg, transcribed with
whisper-cli, and the transcript is placed next to the input or in an
output directory of your choice.

Configuration is layered: built-in defaults, then the shell-style file
~/.whisper-pipeline.conf (or $WHISPER_PIPELINE_CONFIG), then the settings
saved with "whispscribe config set".`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().String("settings", "", "settings file (default is the user config directory)")
	rootCmd.PersistentFlags().String("pipeline-config", "", "shell-style config file (default $WHISPER_PIPELINE_CONFIG or ~/.whisper-pipeline.conf)")
	rootCmd.PersistentFlags().String("history-db", "", "run history database (default next to the settings file)")
	rootCmd.PersistentFlags().Bool("verbose", false, "verbose output (same as --log-level debug)")

	// Logging flags
	rootCmd.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().String("log-output", "stderr", "log output (stdout, stderr, file path)")
	rootCmd.PersistentFlags().Bool("log-no-color", false, "disable colored log output")
	rootCmd.PersistentFlags().Bool("log-caller", false, "include caller information in logs")

	_ = viper.BindPFlag("settings", rootCmd.PersistentFlags().Lookup("settings"))
	_ = viper.BindPFlag("pipeline_config", rootCmd.PersistentFlags().Lookup("pipeline-config"))
	_ = viper.BindPFlag("history_db", rootCmd.PersistentFlags().Lookup("history-db"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("logging.output", rootCmd.PersistentFlags().Lookup("log-output"))
	_ = viper.BindPFlag("logging.caller", rootCmd.PersistentFlags().Lookup("log-caller"))
	_ = viper.BindPFlag("logging.no_color", rootCmd.PersistentFlags().Lookup("log-no-color"))

	// WHISPSCRIBE_LOGGING_LEVEL, WHISPSCRIBE_SETTINGS, ...
	viper.SetEnvPrefix("WHISPSCRIBE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// initConfig runs before every command.
func initConfig() {
	initLogger()
}

// initLogger initializes the logger based on configuration
func initLogger() {
	cfg := logger.DefaultConfig()
	cfg.Level = viper.GetString("logging.level")
	cfg.Format = viper.GetString("logging.format")
	cfg.Output = viper.GetString("logging.output")
	cfg.Caller = viper.GetBool("logging.caller")

	if viper.GetBool("verbose") && cfg.Level == "info" {
		cfg.Level = "debug"
	}
	if viper.GetBool("logging.no_color") {
		cfg.PrettyMode = false
	}

	if err := logger.Initialize(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
}

// loadService resolves both configuration files and loads them.
func loadService() (*config.Service, error) {
	settingsPath, err := config.SettingsPath(viper.GetString("settings"))
	if err != nil {
		return nil, fmt.Errorf("resolve settings path: %w", err)
	}

	externalPath := viper.GetString("pipeline_config")
	if externalPath == "" {
		if externalPath, err = config.ExternalConfigPath(); err != nil {
			return nil, fmt.Errorf("resolve pipeline config path: %w", err)
		}
	}

	store := config.NewJSONStore(settingsPath)
	if viper.GetString("settings") == "" {
		if legacy, err := config.LegacySettingsPath(); err == nil {
			store.WithFallback(legacy)
		}
	}

	svc := config.NewService(store, externalPath)
	svc.Load()
	return svc, nil
}

// historyPath returns the history database location for svc.
func historyPath(svc *config.Service) string {
	if p := viper.GetString("history_db"); p != "" {
		return p
	}
	return history.DefaultPath(svc.StorePath())
}

// openHistory opens the run history. Failures are logged and yield nil so
// runs proceed without a record.
func openHistory(svc *config.Service) *history.Store {
	path := historyPath(svc)
	store, err := history.Open(path)
	if err != nil {
		logger.WithComponent("history").Warn().Err(err).Str("path", path).Msg("Run history disabled")
		return nil
	}
	return store
}
