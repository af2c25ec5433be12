// The generator streams synthetic parcel lifecycles to a Pub/Sub topic at
// a bounded rate, with per-parcel ordering keys so downstream consumers
// see each lifecycle in sequence.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/rbaliyan/relay/generator"
	"github.com/rbaliyan/relay/transport"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	var (
		configDir = flag.String("config", "", "config directory (default.yaml plus env overlay); built-in defaults when empty")
		duration  = flag.Duration("duration", 0, "how long to generate for; 0 runs until interrupted")
		seed      = flag.Int64("seed", 42, "random seed; a fixed seed reproduces the same stream")
	)
	flag.Parse()

	projectID := envOr("PROJECT_ID", "relay-analytics-demo")

	cfg := generator.DefaultConfig()
	if *configDir != "" {
		var err error
		cfg, err = generator.LoadConfig(*configDir)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
	}
	if topic := os.Getenv("PUBSUB_TOPIC"); topic != "" {
		cfg.PubSub.Topic = topic
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	psClient, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		logger.Error("failed to create pubsub client", "error", err)
		os.Exit(1)
	}
	defer psClient.Close()

	pub := transport.NewPubSubPublisher(psClient, cfg.PubSub.Topic)
	defer pub.Close()

	streamer := generator.NewStreamer(generator.New(cfg, *seed), pub)

	logger.Info("generator started",
		"project", projectID,
		"topic", cfg.PubSub.Topic,
		"events_per_sec", cfg.Rate.EventsPerSec,
		"duration", duration.String())

	start := time.Now()
	published, err := streamer.Run(ctx, *duration)
	if err != nil {
		logger.Error("generator stopped", "error", err, "published", published)
		os.Exit(1)
	}
	logger.Info("generator finished",
		"published", published,
		"elapsed", time.Since(start).String())
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
