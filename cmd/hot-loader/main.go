// The hot-loader consumes parcel events from Pub/Sub, validates them
// against the loaded contracts and appends them to a columnar warehouse
// table, evolving the table schema additively as new fields appear.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"

	"github.com/rbaliyan/relay"
	"github.com/rbaliyan/relay/contract"
	"github.com/rbaliyan/relay/dlq"
	"github.com/rbaliyan/relay/poison"
	"github.com/rbaliyan/relay/transport"
	"github.com/rbaliyan/relay/warehouse"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	projectID := envOr("PROJECT_ID", "relay-analytics-demo")
	subscription := envOr("PUBSUB_SUBSCRIPTION", "parcel-events-hot")
	dataset := envOr("BQ_DATASET", "parcel_events")
	table := envOr("BQ_TABLE", "events")
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

	bqClient, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		logger.Error("failed to create bigquery client", "error", err)
		os.Exit(1)
	}
	defer bqClient.Close()

	psClient, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		logger.Error("failed to create pubsub client", "error", err)
		os.Exit(1)
	}
	defer psClient.Close()

	loader := warehouse.NewLoader(store, warehouse.NewBigQueryTable(bqClient, dataset, table))

	// Redis, when configured, backs the dead letter and poison stores so
	// replicas share them. Without it both fall back to process memory.
	deadLetter, detector := stores(envOr("REDIS_ADDR", ""), envIntOr("POISON_THRESHOLD", 5))

	proc, err := relay.NewProcessor(store, validator,
		relay.WithSinks(loader),
		relay.WithDeadLetter(deadLetter),
		relay.WithPoisonDetector(detector),
		relay.WithSource("hot-loader"),
	)
	if err != nil {
		logger.Error("failed to create processor", "error", err)
		os.Exit(1)
	}

	consumer := transport.NewPubSubConsumer(psClient, subscription, maxOutstanding)
	defer consumer.Close()

	logger.Info("hot-loader started",
		"project", projectID,
		"subscription", subscription,
		"dataset", dataset,
		"table", table,
		"contracts", store.Len())

	if err := consumer.Receive(ctx, proc.Handle); err != nil && ctx.Err() == nil {
		logger.Error("consumer stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("hot-loader shut down")
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
