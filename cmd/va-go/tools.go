package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chriscow/voice-agent-go/internal/engines"
	"github.com/chriscow/voice-agent-go/pkg/audio"
	"github.com/chriscow/voice-agent-go/pkg/audio/mic"
	"github.com/chriscow/voice-agent-go/pkg/audio/wav"
	"github.com/chriscow/voice-agent-go/pkg/plugin"
	"github.com/chriscow/voice-agent-go/pkg/plugin/onnxwake"
	"github.com/chriscow/voice-agent-go/pkg/reply"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		setupLogger(nil)

		devices, err := mic.ListDevices()
		if err != nil {
			return err
		}

		fmt.Printf("%-6s %-40s %-12s %-4s %-4s %s\n", "INDEX", "NAME", "HOST API", "IN", "OUT", "RATE")
		fmt.Println(strings.Repeat("-", 80))
		for _, d := range devices {
			fmt.Printf("%-6d %-40s %-12s %-4d %-4d %.0f\n",
				d.Index, d.Name, d.HostAPI, d.MaxInputChannels, d.MaxOutputChannels, d.DefaultSampleRate)
		}
		return nil
	},
}

var enginesCmd = &cobra.Command{
	Use:   "engines",
	Short: "List the engines each config section can select",
	Run: func(cmd *cobra.Command, args []string) {
		r := engines.NewRegistries()
		printEngines(r.Transcribers.Kind(), r.Transcribers.List())
		printEngines(r.Synthesizers.Kind(), r.Synthesizers.List())
		printEngines(r.Wakes.Kind(), r.Wakes.List())
	},
}

func printEngines[S, T any](kind string, plugins []*plugin.Plugin[S, T]) {
	fmt.Printf("%s:\n", kind)
	for _, p := range plugins {
		fmt.Printf("  %-12s %s\n", p.Name, p.Description)
	}
}

var sayCmd = &cobra.Command{
	Use:   "say [text]",
	Short: "Speak text through the configured synthesizer and player",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		synth, err := engines.NewSynthesizer(cfg, logger)
		if err != nil {
			return err
		}
		open, err := engines.NewOpener(cfg, logger)
		if err != nil {
			return err
		}

		speaker := reply.NewSpeaker(ctx, reply.SpeakerConfig{
			Synth:    synth,
			Open:     open,
			MinWords: cfg.Conversation.MinWords,
			Logger:   logger,
		})
		defer speaker.Stop()

		seg := reply.NewSegmenter(reply.SegmenterConfig{
			MinWords:      cfg.Conversation.MinWords,
			GoodbyeMarker: cfg.Conversation.GoodbyeMarker,
		})
		utterances, _ := seg.Push(strings.Join(args, " "))
		if rest := seg.Flush(); rest != "" {
			utterances = append(utterances, rest)
		}
		for _, u := range utterances {
			logger.Debug("Utterance", slog.String("text", u))
			speaker.Consume(ctx, u)
		}
		speaker.Finish()
		return speaker.WaitToFinish(ctx)
	},
}

var transcribeCmd = &cobra.Command{
	Use:   "transcribe",
	Short: "Transcribe a WAV file with the configured transcriber",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		file, _ := cmd.Flags().GetString("file")

		clip, err := wav.ReadFile(file)
		if err != nil {
			return err
		}
		logger.Info("WAV file info",
			slog.Int("sample_rate", int(clip.Header.SampleRate)),
			slog.Int("channels", int(clip.Header.NumChannels)),
			slog.Int("bytes", len(clip.PCM)))

		transcriber, err := engines.NewTranscriber(cfg, logger)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		start := time.Now()
		text, err := transcriber.Transcribe(ctx, audio.EncodePCM(clip.Mono(audio.SampleRate)))
		if err != nil {
			return fmt.Errorf("transcription failed: %w", err)
		}
		logger.Info("Transcribed", slog.Duration("took", time.Since(start)))
		fmt.Printf("Transcript: %s\n", text)
		return nil
	},
}

var wakeCmd = &cobra.Command{
	Use:   "wake",
	Short: "Wake-phrase model commands",
}

var wakeDownloadCmd = &cobra.Command{
	Use:   "download-model",
	Short: "Download a keyword model for the onnx wake engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := setupLogger(nil)
		url, _ := cmd.Flags().GetString("url")
		sum, _ := cmd.Flags().GetString("sha256")
		dir, _ := cmd.Flags().GetString("dir")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		path, err := onnxwake.NewDownloader(dir, logger).Fetch(ctx, url, sum)
		if err != nil {
			logger.Error("Failed to download model", slog.String("error", err.Error()))
			return err
		}
		fmt.Println(path)
		return nil
	},
}
