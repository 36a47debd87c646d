package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/civicvoice/bylaw-tts/internal/audio"
	"github.com/civicvoice/bylaw-tts/internal/config"
	"github.com/civicvoice/bylaw-tts/internal/logging"
	"github.com/civicvoice/bylaw-tts/internal/player"
	"github.com/civicvoice/bylaw-tts/internal/speech"
)

func main() {
	text := flag.String("text", "", "Text to speak")
	control := flag.String("control", "cli", "Control id that owns the session")
	configPath := flag.String("config", "", "Path to config file")
	endpoint := flag.String("endpoint", "", "Speech endpoint override")
	backend := flag.String("backend", "", "Playback backend override (portaudio/oto)")
	timeout := flag.Duration("timeout", 0, "Stop playback after this duration (0 = wait until done)")
	flag.Parse()

	if err := logging.InitFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()
	logging.SetTraceID(logging.NewTraceID())

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Fatalf("load config: %v", err)
	}
	if strings.TrimSpace(*endpoint) != "" {
		cfg.Speech.Endpoint = strings.TrimSpace(*endpoint)
	}
	if strings.TrimSpace(*backend) != "" {
		cfg.Playback.Backend = strings.TrimSpace(*backend)
		if err := cfg.Validate(); err != nil {
			logging.Fatalf("invalid config: %v", err)
		}
	}
	if strings.TrimSpace(*text) == "" {
		logging.Fatalf("-text is required")
	}

	client := speech.NewClient(cfg.Speech.Endpoint, time.Duration(cfg.Speech.RequestTimeoutSeconds)*time.Second)
	registry := player.NewRegistry(client, outputFactory(cfg.Playback), cfg.Speech.SourceSampleRate,
		func(control string, st player.State) {
			logging.Infof("control %q -> %s", control, st)
		})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	session, err := registry.Speak(ctx, *control, *text)
	if err != nil {
		logging.Fatalf("speak failed: %v", err)
	}

	var timeoutCh <-chan time.Time
	if *timeout > 0 {
		timeoutCh = time.After(*timeout)
	}

	select {
	case <-session.Done():
	case <-ctx.Done():
		logging.Infof("interrupted, stopping playback")
		registry.Stop(*control)
		<-session.Done()
	case <-timeoutCh:
		logging.Infof("timeout reached, stopping playback")
		registry.Stop(*control)
		<-session.Done()
	}

	if err := session.Err(); err != nil {
		logging.Fatalf("playback failed: %v", err)
	}
	if n := session.Underruns(); n > 0 {
		logging.Warnf("playback finished with %d underruns", n)
	}
}

func outputFactory(cfg config.PlaybackConfig) player.OutputFactory {
	if strings.EqualFold(strings.TrimSpace(cfg.Backend), "oto") {
		return func() (audio.Output, error) {
			return audio.NewOtoOutput(cfg.SampleRate, cfg.FramesPerBuffer)
		}
	}
	return func() (audio.Output, error) {
		return audio.NewPortAudioOutput(cfg.FramesPerBuffer)
	}
}
