package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skypro1111/voice-archive-bot/internal/audio"
	"github.com/skypro1111/voice-archive-bot/internal/config"
	"github.com/skypro1111/voice-archive-bot/internal/dialog"
	"github.com/skypro1111/voice-archive-bot/internal/metrics"
	"github.com/skypro1111/voice-archive-bot/internal/server"
	"github.com/skypro1111/voice-archive-bot/internal/session"
	"github.com/skypro1111/voice-archive-bot/internal/storage"
	"github.com/skypro1111/voice-archive-bot/internal/telegram"
	"github.com/skypro1111/voice-archive-bot/internal/transcription"
	"github.com/skypro1111/voice-archive-bot/internal/vad"
)

const (
	defaultConfigPath = "configs/config.yaml"
	defaultEnvFile    = ".env"
	serviceName       = "voice-archive-bot"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	envFile := flag.String("env", defaultEnvFile, "Path to .env file with secrets")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.Int("max_active_users", cfg.Dispatch.MaxActiveUsers),
		slog.Int("queue_size", cfg.Dispatch.QueueSize),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Duration("max_segment_duration", cfg.Audio.GetMaxSegmentDuration()),
		slog.Bool("vad_enabled", cfg.VAD.Enabled),
		slog.String("transcription_provider", cfg.Transcription.Provider),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
		slog.String("storage_url", cfg.Storage.BaseURL()),
		slog.Bool("admin_forward", cfg.Telegram.AdminChatID != 0),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appMetrics := metrics.NewMetrics(nil)
	logger.Info("Prometheus metrics initialized")

	parts, err := buildPipeline(logger, cfg, appMetrics)
	if err != nil {
		logger.Error("Failed to create transcription pipeline", slog.String("error", err.Error()))
		os.Exit(1)
	}

	store, err := storage.NewClient(logger, storage.Config{
		BaseURL: cfg.Storage.BaseURL(),
		Timeout: cfg.Storage.GetTimeoutDuration(),
	}, appMetrics)
	if err != nil {
		logger.Error("Failed to create record store client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	bot, err := telegram.NewBot(logger, telegram.Config{
		Token:       cfg.Telegram.Token,
		APIEndpoint: cfg.Telegram.APIEndpoint,
		PollTimeout: cfg.Telegram.GetPollTimeoutDuration(),
		Debug:       cfg.Telegram.Debug,
	}, appMetrics)
	if err != nil {
		logger.Error("Failed to start Telegram bot", slog.String("error", err.Error()))
		os.Exit(1)
	}

	sessions := session.NewManager(logger, cfg.Dialog.DefaultLanguage, appMetrics)

	router, err := dialog.NewRouter(logger, dialogConfig(cfg), sessions, bot, parts.pipeline, store, appMetrics)
	if err != nil {
		logger.Error("Failed to create dialog router", slog.String("error", err.Error()))
		os.Exit(1)
	}

	dispatcher, err := server.NewDispatcher(server.DispatcherConfig{
		MaxActiveUsers: cfg.Dispatch.MaxActiveUsers,
		QueueSize:      cfg.Dispatch.QueueSize,
		EventTimeout:   cfg.Dispatch.GetEventTimeoutDuration(),
	}, logger, router, appMetrics)
	if err != nil {
		logger.Error("Failed to create dispatcher", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer, err = server.NewHTTPServer(cfg.HTTP, logger, cfg, server.Components{
			Sessions:    sessions,
			Dispatcher:  dispatcher,
			Chunker:     parts.chunker,
			Transcriber: parts.transcriber,
			Gate:        parts.gate,
			Recognizer:  parts.recognizer,
		}, appMetrics)
		if err != nil {
			logger.Error("Failed to create HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	dispatcher.Start(bot)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("bot", bot.Username()),
	)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// stop polling first so no new events arrive, then answer what is queued
	bot.Stop()
	dispatcher.Stop()

	if closer, ok := parts.recognizer.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Warn("Error closing recognizer", slog.String("error", err.Error()))
		}
	}
	store.Close()

	stats := dispatcher.GetStatistics()
	logger.Info("Final statistics",
		slog.Uint64("events_received", stats.EventsReceived),
		slog.Uint64("events_processed", stats.EventsProcessed),
		slog.Uint64("event_errors", stats.EventErrors),
		slog.Uint64("events_dropped", stats.EventsDropped),
		slog.Int("sessions", sessions.GetActiveSessionCount()),
	)

	logger.Info("Service stopped")
}

// pipelineParts are the transcription components main keeps references to
type pipelineParts struct {
	pipeline    *transcription.Pipeline
	chunker     *audio.Chunker
	transcriber *transcription.Transcriber
	recognizer  transcription.Recognizer
	gate        *vad.Processor
}

// buildPipeline wires decoder, chunker, silence gate and recognizer
func buildPipeline(logger *slog.Logger, cfg *config.Config, m *metrics.Metrics) (*pipelineParts, error) {
	var converter audio.Converter
	ffmpeg, err := audio.NewFFmpegConverter(cfg.Audio.FFmpegPath, cfg.Audio.SampleRate, cfg.Audio.GetConvertTimeoutDuration())
	if err != nil {
		logger.Warn("ffmpeg not available, only WAV recordings will be accepted",
			slog.String("ffmpeg_path", cfg.Audio.FFmpegPath),
			slog.String("error", err.Error()),
		)
	} else {
		converter = ffmpeg
	}

	chunker, err := audio.NewChunker(audio.ChunkingConfig{
		MaxDuration: cfg.Audio.GetMaxSegmentDuration(),
	}, audio.NewDecoder(converter), m)
	if err != nil {
		return nil, fmt.Errorf("failed to create chunker: %w", err)
	}

	var gate *vad.Processor
	if cfg.VAD.Enabled {
		gate, err = vad.NewProcessor(cfg.VAD.Threshold, cfg.VAD.WindowSize, cfg.VAD.MinVoiceRatio)
		if err != nil {
			return nil, fmt.Errorf("failed to create silence gate: %w", err)
		}
	}

	recognizer, err := buildRecognizer(cfg.Transcription, m)
	if err != nil {
		return nil, err
	}

	transcriber, err := transcription.NewTranscriber(logger, recognizer, gate, transcription.TranscriberConfig{
		SegmentTimeout: cfg.Transcription.GetTimeoutDuration(),
		MaxConcurrent:  cfg.Transcription.MaxConcurrent,
	}, m)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcriber: %w", err)
	}

	pipeline, err := transcription.NewPipeline(chunker, transcriber)
	if err != nil {
		return nil, err
	}

	logger.Info("Transcription pipeline initialized",
		slog.String("provider", cfg.Transcription.Provider),
		slog.Bool("converter", converter != nil),
		slog.Bool("silence_gate", gate != nil),
	)

	return &pipelineParts{
		pipeline:    pipeline,
		chunker:     chunker,
		transcriber: transcriber,
		recognizer:  recognizer,
		gate:        gate,
	}, nil
}

func buildRecognizer(cfg config.TranscriptionConfig, m *metrics.Metrics) (transcription.Recognizer, error) {
	switch cfg.Provider {
	case "http":
		r, err := transcription.NewHTTPRecognizer(transcription.Config{
			Endpoint:      cfg.Endpoint,
			APIKey:        cfg.APIKey,
			Model:         cfg.Model,
			Timeout:       cfg.GetTimeoutDuration(),
			MaxRetries:    cfg.MaxRetries,
			MaxConcurrent: cfg.MaxConcurrent,
			OutputFormat:  cfg.OutputFormat,
		}, m)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP recognizer: %w", err)
		}
		return r, nil
	default:
		r, err := transcription.NewWhisperRecognizer(transcription.WhisperConfig{
			BaseURL: cfg.Endpoint,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Whisper recognizer: %w", err)
		}
		return r, nil
	}
}

func dialogConfig(cfg *config.Config) dialog.Config {
	languages := make([]dialog.Language, 0, len(cfg.Dialog.Languages))
	for _, l := range cfg.Dialog.Languages {
		languages = append(languages, dialog.Language{Label: l.Label, Tag: l.Tag})
	}

	return dialog.Config{
		Languages:        languages,
		DefaultLanguage:  cfg.Dialog.DefaultLanguage,
		Greetings:        cfg.Dialog.Greetings,
		MaxCaptionLength: cfg.Dialog.MaxCaptionLength,
		AdminChatID:      cfg.Telegram.AdminChatID,
		KeepDeclined:     cfg.Storage.KeepDeclined,
	}
}

// initLogger creates the structured logger described by cfg
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
