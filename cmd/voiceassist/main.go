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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	redis "github.com/redis/go-redis/v9"

	"github.com/talupulahemanth/voiceassist/internal/config"
	"github.com/talupulahemanth/voiceassist/internal/device"
	"github.com/talupulahemanth/voiceassist/internal/live"
	"github.com/talupulahemanth/voiceassist/internal/metrics"
	"github.com/talupulahemanth/voiceassist/internal/playback"
	"github.com/talupulahemanth/voiceassist/internal/server"
	"github.com/talupulahemanth/voiceassist/internal/session"
	"github.com/talupulahemanth/voiceassist/internal/transcript"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (defaults are used when empty)")
	autostart := flag.Bool("autostart", false, "Start a session immediately")
	console := flag.Bool("console", false, "Read commands from stdin")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(reg)

	var socket *device.AudioSocket
	if cfg.Devices.Microphone.Type == "audiosocket" || cfg.Devices.Speaker.Type == "audiosocket" {
		socket = device.NewAudioSocket(cfg.Devices.AudioSocket.Addr(), logger)
		if err := socket.Listen(); err != nil {
			logger.Error("Failed to start AudioSocket", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer socket.Close()
	}

	mic, err := newMicrophone(cfg.Devices.Microphone, socket, logger)
	if err != nil {
		logger.Error("Failed to create microphone", slog.String("error", err.Error()))
		os.Exit(1)
	}

	sink, err := newSink(cfg.Devices.Speaker, socket)
	if err != nil {
		logger.Error("Failed to create speaker", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer sink.Close()

	output := playback.NewStreamOutput(sink, cfg.Audio.RenderPeriod(), logger)
	go output.Run(ctx)

	recorder, err := newRecorder(cfg.Transcripts, logger)
	if err != nil {
		logger.Error("Failed to create transcript store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	controller, err := session.New(session.Options{
		Assistant: cfg.Assistant,
		Audio:     cfg.Audio,
		Model:     cfg.Live.Model,
		Connector: &live.Client{
			URL:         cfg.Live.URL,
			APIKey:      cfg.Live.APIKey,
			Logger:      logger,
			EventBuffer: cfg.Live.EventBuffer,
		},
		Microphone: mic,
		Output:     output,
		Recorder:   recorder,
		Metrics:    m,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("Failed to create session controller", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var httpServer *server.Server
	if cfg.HTTP.Enabled {
		httpServer = server.New(controller, m, reg, logger)
		go func() {
			if err := httpServer.Listen(cfg.HTTP.Addr()); err != nil {
				logger.Error("HTTP server error", slog.String("error", err.Error()))
			}
		}()
	}

	if *console || cfg.HTTP.Console {
		if cfg.Devices.Microphone.Type == "stdin" {
			logger.Warn("Console disabled: stdin is the microphone")
		} else {
			go func() {
				if err := server.NewConsole(controller, os.Stderr, logger).Run(ctx, os.Stdin); err != nil && ctx.Err() == nil {
					logger.Warn("Console stopped", slog.String("error", err.Error()))
				}
			}()
		}
	}

	switch {
	case cfg.Devices.Microphone.Type == "audiosocket":
		go serveCalls(ctx, controller, logger)
	case *autostart:
		if err := controller.Start(ctx); err != nil {
			logger.Error("Failed to start session", slog.String("error", err.Error()))
		}
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Voice assistant ready",
		slog.String("voice", cfg.Assistant.Voice),
		slog.String("language", cfg.Assistant.Language),
		slog.String("microphone", cfg.Devices.Microphone.Type),
		slog.String("speaker", cfg.Devices.Speaker.Type),
	)

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	cancel()
	controller.Stop()

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	if recorder != nil {
		if err := recorder.Close(); err != nil {
			logger.Error("Error closing transcript store", slog.String("error", err.Error()))
		}
	}

	logger.Info("Shutdown complete")
}

func newMicrophone(cfg config.MicrophoneConfig, socket *device.AudioSocket, logger *slog.Logger) (device.Microphone, error) {
	switch cfg.Type {
	case "stdin":
		return device.NewReaderMicrophone(os.Stdin, cfg.Rate, cfg.Encoding, logger), nil
	case "file":
		return device.NewFileMicrophone(cfg.Path, cfg.Rate, cfg.Encoding, logger), nil
	case "wav":
		mic, err := device.NewWAVMicrophone(cfg.Path)
		if err != nil {
			return nil, err
		}
		mic.Loop = cfg.Loop
		return mic, nil
	case "audiosocket":
		return socket.Microphone(), nil
	}
	return nil, fmt.Errorf("unknown microphone type %q", cfg.Type)
}

func newSink(cfg config.SpeakerConfig, socket *device.AudioSocket) (playback.Sink, error) {
	switch cfg.Type {
	case "stdout":
		return device.NewWriterSink(os.Stdout, cfg.Rate, cfg.Channels, cfg.Encoding), nil
	case "file":
		return device.OpenFileSink(cfg.Path, cfg.Rate, cfg.Channels, cfg.Encoding)
	case "audiosocket":
		return socket.Sink(), nil
	case "discard":
		return device.DiscardSink{Rate: cfg.Rate, Chans: cfg.Channels}, nil
	}
	return nil, fmt.Errorf("unknown speaker type %q", cfg.Type)
}

func newRecorder(cfg config.TranscriptsConfig, logger *slog.Logger) (*transcript.Recorder, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	var stores transcript.Stores
	if cfg.Dir != "" {
		fileStore, err := transcript.NewFileStore(cfg.Dir)
		if err != nil {
			return nil, err
		}
		stores = append(stores, fileStore)
	}

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		redisStore := transcript.NewRedisStore(client, cfg.Redis.Prefix, cfg.Redis.TTL())

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout())
		if err := redisStore.Ping(ctx); err != nil {
			logger.Warn("Redis not reachable, transcripts will be retried per turn",
				slog.String("addr", cfg.Redis.Addr),
				slog.String("error", err.Error()),
			)
		}
		cancel()
		stores = append(stores, redisStore)
	}

	return transcript.NewRecorder(stores, cfg.QueueSize, cfg.Timeout(), logger), nil
}

// serveCalls starts a session for every AudioSocket call.
func serveCalls(ctx context.Context, controller *session.Controller, logger *slog.Logger) {
	updates, unsubscribe := controller.Subscribe()
	defer unsubscribe()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for ctx.Err() == nil {
		if err := controller.Start(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("Call session failed to start", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			continue
		}

		for controller.State() != session.StateIdle {
			select {
			case <-ctx.Done():
				return
			case <-updates:
			case <-ticker.C:
			}
		}
	}
}

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

	// stdout may carry audio, so logs default to stderr
	var output *os.File
	switch cfg.Output {
	case "stderr", "":
		output = os.Stderr
	case "stdout":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			output = os.Stderr
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
