// The cold-loader consumes parcel events from Pub/Sub, validates them and
// writes each event as a self-describing Avro object to a GCS bucket,
// partitioned by event time and event type.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"

	"github.com/rbaliyan/relay"
	"github.com/rbaliyan/relay/coldstore"
	"github.com/rbaliyan/relay/contract"
	"github.com/rbaliyan/relay/dlq"
	"github.com/rbaliyan/relay/poison"
	"github.com/rbaliyan/relay/transport"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	projectID := envOr("PROJECT_ID", "relay-analytics-demo")
	subscription := envOr("PUBSUB_SUBSCRIPTION", "parcel-events-cold")
	bucket := envOr("GCS_BUCKET", "relay-parcel-events")
	schemaDir := envOr("SCHEMA_DIR", "testdata/schemas")
	maxOutstanding := envIntOr("MAX_OUTSTANDING_MESSAGES", 100)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := contract.Load(contract.DirSource{Dir: schemaDir})
	if err != nil {
		logger.Error("failed to load contracts", "error", err)
		os.Exit(1)
	}
	validator, err := contract.NewValidator(store)
	if err != nil {
		logger.Error("failed to compile contracts", "error", err)
		os.Exit(1)
	}

	gcsClient, err := storage.NewClient(ctx)
	if err != nil {
		logger.Error("failed to create storage client", "error", err)
		os.Exit(1)
	}
	defer gcsClient.Close()

	psClient, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		logger.Error("failed to create pubsub client", "error", err)
		os.Exit(1)
	}
	defer psClient.Close()

	loader := coldstore.NewLoader(store, coldstore.NewGCSStore(gcsClient, bucket))

	// Redis, when configured, backs the dead letter and poison stores so
	// replicas share them. Without it both fall back to process memory.
	deadLetter, detector := stores(envOr("REDIS_ADDR", ""), envIntOr("POISON_THRESHOLD", 5))

	proc, err := relay.NewProcessor(store, validator,
		relay.WithSinks(loader),
		relay.WithDeadLetter(deadLetter),
		relay.WithPoisonDetector(detector),
		relay.WithSource("cold-loader"),
	)
	if err != nil {
		logger.Error("failed to create processor", "error", err)
		os.Exit(1)
	}

	consumer := transport.NewPubSubConsumer(psClient, subscription, maxOutstanding)
	defer consumer.Close()

	logger.Info("cold-loader started",
		"project", projectID,
		"subscription", subscription,
		"bucket", bucket,
		"contracts", store.Len())

	if err := consumer.Receive(ctx, proc.Handle); err != nil && ctx.Err() == nil {
		logger.Error("consumer stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("cold-loader shut down")
}

func stores(redisAddr string, threshold int) (dlq.Store, *poison.Detector) {
	if redisAddr == "" {
		return dlq.NewMemoryStore(), poison.NewDetector(poison.NewMemoryStore(), poison.WithThreshold(threshold))
	}
	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	return dlq.NewRedisStore(client),
		poison.NewDetector(poison.NewRedisStore(client), poison.WithThreshold(threshold))
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOr(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
