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

	"github.com/bosley/trascrivi/audio"
	"github.com/bosley/trascrivi/config"
	"github.com/bosley/trascrivi/scribe"
	"github.com/bosley/trascrivi/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	certFile := flag.String("cert", "", "Path to server certificate file")
	keyFile := flag.String("key", "", "Path to server key file")
	listDevices := flag.Bool("list-devices", false, "List available audio input devices")
	deviceID := flag.Int("device", -1, "Audio input device ID to use")
	simulate := flag.Bool("simulate", false, "Use a simulated audio source instead of a device")
	replay := flag.String("replay", "", "Replay a WAV file instead of capturing from a device")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg, *addr, *certFile, *keyFile, *deviceID, *simulate, *replay, *verbose)

	slog.SetDefault(newLogger(cfg.Logging))

	if *listDevices {
		devices, err := audio.ListDevices()
		if err != nil {
			slog.Error("Failed to list audio devices", "error", err)
			os.Exit(1)
		}

		fmt.Println("Available audio input devices:")
		for i, device := range devices {
			fmt.Printf("[%d] %s\n", i, device.Name)
			fmt.Printf("    Max Input Channels: %d\n", device.MaxInputChannels)
			fmt.Printf("    Default Sample Rate: %f\n", device.DefaultSampleRate)
			fmt.Println()
		}
		return
	}

	if key := os.Getenv("TRASCRIVI_API_KEY"); key != "" {
		cfg.Gemini.APIKey = key
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		flag.Usage()
		os.Exit(1)
	}

	st, err := store.New(cfg.Storage.Dir)
	if err != nil {
		slog.Error("Failed to open transcript store", "error", err, "dir", cfg.Storage.Dir)
		os.Exit(1)
	}

	scribeService, err := scribe.New(scribe.Config{
		CertFile:      cfg.HTTP.CertFile,
		KeyFile:       cfg.HTTP.KeyFile,
		HTTPAddr:      cfg.HTTP.Addr,
		Audio:         audioOptions(cfg.Audio),
		NewSource:     sourceFactory(cfg.Audio),
		FlushInterval: cfg.Pipeline.FlushInterval,
		QueueSize:     cfg.Pipeline.QueueSize,
		GeminiBaseURL: cfg.Gemini.BaseURL,
		GeminiTimeout: cfg.Gemini.Timeout,
		GeminiRetries: cfg.Gemini.MaxRetries,
		APIKey:        cfg.Gemini.APIKey,
		Model:         cfg.Gemini.Model,
	}, st)
	if err != nil {
		slog.Error("Failed to initialize Scribe", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Debug("Received shutdown signal")
		cancel()
	}()

	slog.Info("Starting trascrivi",
		"addr", cfg.HTTP.Addr,
		"tls", cfg.HTTP.TLS(),
		"source", cfg.Audio.Source,
		"dataDir", cfg.Storage.Dir,
		"flushInterval", cfg.Pipeline.FlushInterval)

	if err := scribeService.Start(ctx); err != nil {
		slog.Error("Scribe service failed", "error", err)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	if err := scribeService.Stop(stopCtx); err != nil {
		slog.Error("Failed to stop Scribe service", "error", err)
	}

	slog.Debug("Program exiting")
}

func applyFlags(cfg *config.Config, addr, certFile, keyFile string, deviceID int, simulate bool, replay string, verbose bool) {
	if addr != "" {
		cfg.HTTP.Addr = addr
	}
	if certFile != "" {
		cfg.HTTP.CertFile = certFile
	}
	if keyFile != "" {
		cfg.HTTP.KeyFile = keyFile
	}
	if deviceID >= 0 {
		cfg.Audio.DeviceID = deviceID
	}
	if simulate {
		cfg.Audio.Source = "simulated"
	}
	if replay != "" {
		cfg.Audio.Source = "file"
		cfg.Audio.File = replay
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func audioOptions(cfg config.AudioConfig) audio.Options {
	return audio.Options{
		SampleRate:    cfg.SampleRate,
		ChunkDuration: cfg.ChunkDuration,
		QueueSize:     cfg.QueueSize,
		DeviceID:      cfg.DeviceID,
	}
}

func sourceFactory(cfg config.AudioConfig) func(audio.Options) audio.Source {
	switch cfg.Source {
	case "simulated":
		return func(o audio.Options) audio.Source { return audio.NewSimulatedSource(o) }
	case "file":
		path := cfg.File
		return func(o audio.Options) audio.Source { return audio.NewFileSource(path, o) }
	default:
		return func(o audio.Options) audio.Source { return audio.NewDeviceSource(o) }
	}
}
