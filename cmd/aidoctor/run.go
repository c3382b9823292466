package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aidoctor/internal/agent"
	"aidoctor/internal/audio"
	"aidoctor/internal/channel"
	"aidoctor/internal/config"
	"aidoctor/internal/domain"
	"aidoctor/internal/knowledge"
	"aidoctor/internal/provider"

	"github.com/spf13/cobra"
)

// buildDoctor wires the pipeline from config. player may be nil to
// disable local playback.
func buildDoctor(cfg *config.Config, player audio.Player, logger *slog.Logger) (*agent.Doctor, error) {
	if cfg.Vision.APIKey == "" {
		return nil, fmt.Errorf("%w: set %s or vision.apiKey", agent.ErrMissingCredential, config.EnvGroqKey)
	}
	if err := os.MkdirAll(cfg.General.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	kb, err := knowledge.NewEngine(knowledge.EngineConfig{File: cfg.Knowledge.File, Logger: logger})
	if err != nil {
		return nil, err
	}

	f := provider.NewFactory(cfg, logger)
	return agent.NewDoctor(agent.DoctorConfig{
		Vision:              f.Vision(),
		Transcriber:         f.Transcriber(),
		Emotion:             f.Emotion(),
		Translator:          f.Translator(),
		Speech:              f.Speech(player),
		Knowledge:           kb,
		Limiter:             agent.NewRateLimiter(cfg.Vision.Burst, cfg.Vision.RequestsPerMinute),
		DefaultLanguage:     cfg.General.DefaultLanguage,
		PreliminaryAnalysis: cfg.Doctor.PreliminaryAnalysis,
		Logger:              logger,
	})
}

// localPlayer returns the configured playback command, or nil when
// playback is off or the binary is missing.
func localPlayer(cfg *config.Config, logger *slog.Logger) audio.Player {
	if !cfg.Playback.Enabled {
		return nil
	}
	p := audio.NewCommandPlayer(audio.CommandPlayerConfig{
		Command: cfg.Playback.Command,
		Args:    cfg.Playback.Args,
		Logger:  logger,
	})
	if err := p.Available(); err != nil {
		logger.Warn("audio playback disabled", "command", cfg.Playback.Command, "err", err)
		return nil
	}
	return p
}

func consultCmd() *cobra.Command {
	var (
		req    domain.Request
		asJSON bool
		noPlay bool
	)
	cmd := &cobra.Command{
		Use:   "consult",
		Short: "Run a single consultation",
		Long: "Sends a recorded question, a photo, typed text, or any combination to the doctor and prints\n" +
			"what was heard, the doctor's reply, and where the spoken reply was saved.",
		Example: `  aidoctor consult --text "I have had a headache and fever since yesterday"
  aidoctor consult --audio question.mp3 --image rash.jpg --lang Hindi`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.Empty() {
				return errors.New("provide at least one of --audio, --image or --text")
			}
			cfg, closeLog, err := loadRuntimeConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			var player audio.Player
			if !noPlay && !asJSON {
				player = localPlayer(cfg, logger)
			}
			doc, err := buildDoctor(cfg, player, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.General.RequestTimeoutSeconds)*time.Second)
			defer cancel()

			resp := doc.Consult(ctx, agent.NewMemory(cfg.Session.MaxTurns), req)
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			fmt.Printf("Input:  %s\n", resp.Input)
			if resp.ImageAnalysis != "" {
				fmt.Printf("Image:  %s\n", resp.ImageAnalysis)
			}
			fmt.Printf("Doctor: %s\n", resp.Reply)
			if resp.AudioPath != "" {
				fmt.Printf("Audio:  %s\n", resp.AudioPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.AudioPath, "audio", "", "recorded question (mp3, wav, ogg, ...)")
	cmd.Flags().StringVar(&req.ImagePath, "image", "", "photo to examine")
	cmd.Flags().StringVar(&req.Text, "text", "", "typed description of the symptoms")
	cmd.Flags().StringVar(&req.Language, "lang", "", "reply language name or code (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	cmd.Flags().BoolVar(&noPlay, "no-play", false, "do not play the spoken reply")
	return cmd
}

func chatCmd() *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive consultation in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadRuntimeConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			doc, err := buildDoctor(cfg, localPlayer(cfg, logger), logger)
			if err != nil {
				return err
			}
			if lang == "" {
				lang = cfg.General.DefaultLanguage
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return channel.NewCLI(channel.CLIConfig{
				Doctor:   doc,
				Memory:   agent.NewMemory(cfg.Session.MaxTurns),
				Language: lang,
				Logger:   logger,
			}).Run(ctx)
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", "reply language name or code")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and the Telegram bot",
		Long:  "Starts every enabled channel (HTTP API, Telegram). Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := loadRuntimeConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	// A server never plays replies on its own speakers.
	doc, err := buildDoctor(cfg, audio.Nop{}, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions := agent.NewSessionManager(agent.SessionManagerConfig{
		MaxTurns:    cfg.Session.MaxTurns,
		MaxSessions: cfg.Session.MaxSessions,
		IdleTTL:     time.Duration(cfg.Session.IdleMinutes) * time.Minute,
		Logger:      logger,
	})
	go sessions.RunPruner(ctx, time.Minute)
	timeout := time.Duration(cfg.General.RequestTimeoutSeconds) * time.Second
	errCh := make(chan error, 2)
	running := 0

	var webCh *channel.Web
	if cfg.Channels.Web.Enabled {
		metricsEndpoint := ""
		if cfg.Metrics.Enabled {
			metricsEndpoint = cfg.Metrics.Endpoint
		}
		webCh = channel.NewWeb(channel.WebConfig{
			Host:            cfg.Channels.Web.Host,
			Port:            cfg.Channels.Web.Port,
			Doctor:          doc,
			Sessions:        sessions,
			OutputDir:       cfg.General.OutputDir,
			MaxUploadMB:     cfg.Channels.Web.MaxUploadMB,
			RequestTimeout:  timeout,
			MetricsEndpoint: metricsEndpoint,
			Logger:          logger,
		})
		running++
		go func() { errCh <- webCh.Start(ctx) }()
	}

	if cfg.Channels.Telegram.Enabled {
		if cfg.Channels.Telegram.Token == "" {
			logger.Warn("telegram enabled but no token", "env", config.EnvTelegramToken)
		} else {
			tg := channel.NewTelegram(channel.TelegramConfig{
				Token:           cfg.Channels.Telegram.Token,
				AllowFrom:       cfg.Channels.Telegram.AllowFrom,
				Doctor:          doc,
				Sessions:        sessions,
				DefaultLanguage: cfg.General.DefaultLanguage,
				RequestTimeout:  timeout,
				Logger:          logger,
			})
			running++
			go func() { errCh <- tg.Start(ctx) }()
			logger.Info("telegram channel enabled")
		}
	}

	if running == 0 {
		return errors.New("no channel enabled: enable channels.web or channels.telegram")
	}
	logger.Info("ai doctor serving. Press Ctrl+C to stop.", "channels", running)

	var firstErr error
	pending := running
	select {
	case <-ctx.Done():
	case err := <-errCh:
		pending--
		if err != nil {
			firstErr = err
			logger.Error("channel failed, shutting down", "err", err)
		}
		stop()
	}

	const shutdownTimeout = 10 * time.Second
	timer := time.NewTimer(shutdownTimeout)
	defer timer.Stop()
	for ; pending > 0; pending-- {
		select {
		case err := <-errCh:
			if err != nil && firstErr == nil {
				firstErr = err
			}
		case <-timer.C:
			logger.Warn("shutdown timed out, forcing exit")
			if webCh != nil {
				webCh.Stop()
			}
			return errors.New("shutdown timed out")
		}
	}
	logger.Info("shutdown complete")
	return firstErr
}
