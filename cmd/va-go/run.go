package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/chriscow/voice-agent-go/internal/engines"
	"github.com/chriscow/voice-agent-go/pkg/ai"
	"github.com/chriscow/voice-agent-go/pkg/audio/mic"
	"github.com/chriscow/voice-agent-go/pkg/audio/wav"
	"github.com/chriscow/voice-agent-go/pkg/config"
	"github.com/chriscow/voice-agent-go/pkg/conversation"
	"github.com/chriscow/voice-agent-go/pkg/metrics"
	"github.com/chriscow/voice-agent-go/pkg/playback"
	"github.com/chriscow/voice-agent-go/pkg/version"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the assistant on the live microphone",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.ValidateChat(); err != nil {
			return err
		}
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		logger.Info("Starting assistant",
			slog.String("service", "va-go"),
			slog.String("version", version.Version),
			slog.String("commit", version.GitCommit),
			slog.String("wake", cfg.Wake.Engine),
			slog.String("stt", cfg.STT.Engine),
			slog.String("tts", cfg.TTS.Engine))

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		open, err := engines.NewOpener(cfg, logger)
		if err != nil {
			return err
		}
		machine, cleanup, err := buildMachine(ctx, cfg, open, false, metricsAddr, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		// A device error restarts the microphone once.
		for attempt := 0; ; attempt++ {
			src := mic.New(mic.Config{DeviceIndex: cfg.Audio.DeviceIndex, Logger: logger})
			err = machine.Run(ctx, src)
			src.Close()
			if err == nil || ctx.Err() != nil {
				return nil
			}
			if !errors.Is(err, ai.ErrDevice) || attempt > 0 {
				logger.Error("Assistant stopped", slog.String("error", err.Error()))
				return err
			}
			logger.Warn("Microphone failed, restarting", slog.String("error", err.Error()))
			machine.Reset()
			time.Sleep(500 * time.Millisecond)
		}
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Run the assistant on a recorded WAV file instead of the microphone",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.ValidateChat(); err != nil {
			return err
		}
		file, _ := cmd.Flags().GetString("file")
		realtime, _ := cmd.Flags().GetBool("realtime")
		mute, _ := cmd.Flags().GetBool("mute")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		src, err := wav.OpenSource(file, realtime)
		if err != nil {
			return err
		}
		defer src.Close()

		var open playback.Opener
		if mute {
			open, _ = playback.MemoryOpener()
		} else if open, err = engines.NewOpener(cfg, logger); err != nil {
			return err
		}

		machine, cleanup, err := buildMachine(ctx, cfg, open, mute, metricsAddr, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		logger.Info("Replaying", slog.String("file", file), slog.Bool("realtime", realtime))
		if err := machine.Run(ctx, src); err != nil {
			return err
		}

		for _, msg := range machine.Transcript().Messages() {
			fmt.Printf("%s: %s\n", msg.Role, msg.Content)
		}
		return nil
	},
}

// buildMachine creates engines, effects and metrics and wires them into a
// machine. The returned cleanup closes everything in reverse order.
func buildMachine(ctx context.Context, cfg *config.Config, open playback.Opener, mute bool, metricsAddr string, logger *slog.Logger) (*conversation.Machine, func(), error) {
	set, err := engines.New(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	if mute {
		cfg.Audio.SilentEffects = true
	}
	bank, err := engines.NewEffects(cfg, logger)
	if err != nil {
		set.Close()
		return nil, nil, err
	}

	m := metrics.New(nil)
	machine, err := engines.NewMachine(cfg, engines.Deps{
		Engines: set,
		Effects: bank,
		Open:    open,
		Metrics: m,
		Logger:  logger,
	})
	if err != nil {
		set.Close()
		return nil, nil, err
	}

	if metricsAddr == "" {
		metricsAddr = cfg.Metrics.Addr
	}
	var srv *http.Server
	if metricsAddr != "" {
		srv = serveMetrics(metricsAddr, machine.Stats(), logger)
	}

	cleanup := func() {
		if srv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			srv.Shutdown(shutdownCtx)
			cancel()
		}
		machine.Close()
		set.Close()
	}
	return machine, cleanup, nil
}

func serveMetrics(addr string, stats *conversation.Stats, logger *slog.Logger) *http.Server {
	expvar.Publish("va_state_transitions", stats.StateTransitions)
	expvar.Publish("va_ticks", stats.Ticks)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/vars", expvar.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("Starting metrics server", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", slog.String("error", err.Error()))
		}
	}()
	return srv
}
