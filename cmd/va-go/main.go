package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/chriscow/voice-agent-go/pkg/config"
	"github.com/chriscow/voice-agent-go/pkg/logging"
	"github.com/chriscow/voice-agent-go/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:   "va-go",
	Short: "Hands-free voice assistant",
	Long: `va-go listens for a wake phrase, transcribes what you say, streams a
reply from a language model and speaks it back, stopping when you talk over it.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.GetVersionInfo())
	},
}

// setupLogger builds the process logger from VA_LOG_FORMAT and VA_LOG_LEVEL,
// falling back to the config file's logging section.
func setupLogger(cfg *config.Config) *slog.Logger {
	format := os.Getenv("VA_LOG_FORMAT")
	level := os.Getenv("VA_LOG_LEVEL")
	if cfg != nil {
		if format == "" {
			format = cfg.Logging.Format
		}
		if level == "" {
			level = cfg.Logging.Level
		}
	}
	if format == "" {
		format = "console"
	}

	logger := logging.New(os.Stderr, format, level)
	slog.SetDefault(logger)
	return logger
}

// loadConfig reads --config and sets up logging from it.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		setupLogger(nil)
		return nil, nil, err
	}
	return cfg, setupLogger(cfg), nil
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file")

	runCmd.Flags().String("metrics-addr", "", "Serve /metrics and /debug/vars on this address")
	replayCmd.Flags().String("file", "", "WAV file to replay as microphone input")
	replayCmd.Flags().Bool("realtime", false, "Pace frames at capture speed")
	replayCmd.Flags().Bool("mute", false, "Discard reply audio and effects")
	replayCmd.Flags().String("metrics-addr", "", "Serve /metrics and /debug/vars on this address")
	transcribeCmd.Flags().String("file", "", "WAV file to transcribe")
	wakeDownloadCmd.Flags().String("url", "", "Model URL")
	wakeDownloadCmd.Flags().String("sha256", "", "Expected SHA-256 of the model")
	wakeDownloadCmd.Flags().String("dir", "", "Destination directory (default $VA_MODEL_DIR or ~/.cache/voice-agent/models)")

	replayCmd.MarkFlagRequired("file")
	transcribeCmd.MarkFlagRequired("file")
	wakeDownloadCmd.MarkFlagRequired("url")

	wakeCmd.AddCommand(wakeDownloadCmd)
	rootCmd.AddCommand(versionCmd, runCmd, replayCmd, devicesCmd, enginesCmd, sayCmd, transcribeCmd, wakeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
