package warehouse

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rbaliyan/relay/contract"
	"github.com/rbaliyan/relay/value"
)

// Loader is the schema-aware warehouse writer. Per event it resolves the
// merged property map, completes the row, reconciles the destination
// schema and inserts.
type Loader struct {
	store  *contract.Store
	client TableClient
	ctrl   *Controller
	logger *slog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLoaderLogger sets a custom logger.
func WithLoaderLogger(l *slog.Logger) LoaderOption {
	return func(ld *Loader) {
		if l != nil {
			ld.logger = l
		}
	}
}

// WithController replaces the default evolution controller, e.g. to adjust
// the retry policy or partitioning fields.
func WithController(c *Controller) LoaderOption {
	return func(ld *Loader) {
		if c != nil {
			ld.ctrl = c
		}
	}
}

// NewLoader creates a warehouse loader over a contract store and a table
// client.
func NewLoader(store *contract.Store, client TableClient, opts ...LoaderOption) *Loader {
	ld := &Loader{
		store:  store,
		client: client,
		ctrl:   NewController(client),
		logger: slog.Default().With("component", "warehouse.loader"),
	}
	for _, opt := range opts {
		opt(ld)
	}
	return ld
}

// Insert writes one event to the warehouse.
//
// The flow per event: resolve the merged property map for the event type,
// fill missing contract fields with null, compute the desired column set
// (contract fields plus inferred extras), ensure the table exists,
// reconcile the schema additively and insert the row. A schema evolution
// conflict degrades gracefully: the row is still inserted and the sink
// drops fields unknown to the table.
func (l *Loader) Insert(ctx context.Context, rec value.Record) error {
	eventType, _ := rec.Get("event_type").Str()
	props, err := l.store.MergedProperties(eventType)
	if err != nil {
		return err
	}

	filled := FillMissing(rec, props)
	desired := DesiredColumns(props, filled)

	if err := l.ctrl.EnsureTable(ctx, desired); err != nil {
		return err
	}
	if err := l.ctrl.Reconcile(ctx, desired); err != nil {
		if !IsConflict(err) {
			return err
		}
		l.logger.Warn("schema evolution conflict, inserting with unknown-field tolerance",
			"event_type", eventType,
			"error", err)
	}

	if err := l.client.Insert(ctx, filled.ToMap()); err != nil {
		return fmt.Errorf("insert row: %w", err)
	}
	return nil
}

// Write implements the pipeline sink contract.
func (l *Loader) Write(ctx context.Context, rec value.Record) error {
	return l.Insert(ctx, rec)
}
