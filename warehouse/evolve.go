package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// RetryPolicy bounds the optimistic-concurrency retry loop for schema
// updates: MaxAttempts tries with the delay doubling from BaseDelay after
// each conflicting attempt. Sleep is injectable so tests run without
// waiting.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Sleep       func(time.Duration)
}

// DefaultRetryPolicy matches the production default: three attempts with
// backoff delays of 1s and 2s between them.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   time.Second,
	Sleep:       time.Sleep,
}

// Controller reconciles the persisted destination schema with the desired
// column set per event.
//
// Table state moves absent -> ready exactly once per process; afterwards
// every event diffs its desired columns against the live table and patches
// additively. The table is shared with other replicas, so the only
// correctness mechanism on the patch path is optimistic concurrency with
// bounded retries. No process-local lock can help there; the mutex below
// only collapses duplicate creates inside this process.
type Controller struct {
	client         TableClient
	retry          RetryPolicy
	partitionField string
	clusterFields  []string
	logger         *slog.Logger

	mu    sync.Mutex
	ready bool
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithRetryPolicy sets the schema-update retry policy.
func WithRetryPolicy(p RetryPolicy) ControllerOption {
	return func(c *Controller) {
		if p.MaxAttempts > 0 {
			c.retry = p
		}
	}
}

// WithPartitionField sets the day-partitioning column for table creation.
func WithPartitionField(field string) ControllerOption {
	return func(c *Controller) {
		if field != "" {
			c.partitionField = field
		}
	}
}

// WithClusterFields sets the clustering columns for table creation.
func WithClusterFields(fields ...string) ControllerOption {
	return func(c *Controller) {
		if len(fields) > 0 {
			c.clusterFields = fields
		}
	}
}

// WithControllerLogger sets a custom logger.
func WithControllerLogger(l *slog.Logger) ControllerOption {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewController creates a schema evolution controller for one table.
func NewController(client TableClient, opts ...ControllerOption) *Controller {
	c := &Controller{
		client:         client,
		retry:          DefaultRetryPolicy,
		partitionField: "event_ts",
		clusterFields:  []string{"parcel_id", "event_type"},
		logger:         slog.Default().With("component", "warehouse.controller"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.Sleep == nil {
		c.retry.Sleep = time.Sleep
	}
	return c
}

// EnsureTable moves the table to ready, creating it from the desired
// column set on first contact. Creation races with concurrent replicas are
// treated as success: the table exists either way.
func (c *Controller) EnsureTable(ctx context.Context, desired []Column) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready {
		return nil
	}

	_, err := c.client.Metadata(ctx)
	switch {
	case err == nil:
		c.logger.Info("found existing table")
		c.ready = true
		return nil
	case !errors.Is(err, ErrTableNotFound):
		return fmt.Errorf("fetch table metadata: %w", err)
	}

	spec := &TableSpec{
		Columns:                desired,
		PartitionField:         c.partitionField,
		RequirePartitionFilter: true,
		ClusterFields:          c.clusterFields,
	}
	if err := c.client.Create(ctx, spec); err != nil {
		if errors.Is(err, ErrTableExists) {
			c.logger.Info("table created by a concurrent writer, continuing")
			c.ready = true
			return nil
		}
		return fmt.Errorf("create table: %w", err)
	}
	c.logger.Info("created table",
		"columns", len(desired),
		"partition_field", c.partitionField,
		"cluster_fields", c.clusterFields)
	c.ready = true
	return nil
}

// Reconcile ensures the table schema is a superset of the desired columns,
// patching additively when columns are missing.
//
// The patch path re-fetches metadata immediately before each attempt,
// merges the missing columns onto the freshly fetched set and submits with
// the fetched etag. A conflicting concurrent writer surfaces as
// ErrPreconditionFailed and triggers a bounded exponential-backoff retry.
// When the budget is exhausted Reconcile returns a ConflictError; callers
// degrade gracefully since the sink tolerates unknown fields.
func (c *Controller) Reconcile(ctx context.Context, desired []Column) error {
	delay := c.retry.BaseDelay
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		meta, err := c.client.Metadata(ctx)
		if err != nil {
			return fmt.Errorf("fetch table metadata: %w", err)
		}
		merged, changed := appendNewColumns(meta.Columns, desired)
		if !changed {
			return nil
		}

		err = c.client.Update(ctx, merged, meta.ETag)
		if err == nil {
			c.logger.Info("extended table schema",
				"columns_before", len(meta.Columns),
				"columns_after", len(merged))
			return nil
		}
		if !errors.Is(err, ErrPreconditionFailed) {
			return fmt.Errorf("update table schema: %w", err)
		}
		if attempt < c.retry.MaxAttempts {
			c.logger.Warn("schema update race, retrying",
				"attempt", attempt,
				"delay", delay)
			c.retry.Sleep(delay)
			delay *= 2
		}
	}
	return &ConflictError{Attempts: c.retry.MaxAttempts}
}
