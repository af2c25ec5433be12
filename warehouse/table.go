package warehouse

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors reported by TableClient implementations. Adapters must
// translate backend-specific failures to these so the evolution controller
// can react uniformly.
var (
	// ErrTableNotFound indicates the destination table does not exist yet.
	ErrTableNotFound = errors.New("warehouse table not found")

	// ErrTableExists indicates a create raced a concurrent creator.
	ErrTableExists = errors.New("warehouse table already exists")

	// ErrPreconditionFailed indicates a schema update lost an optimistic
	// concurrency race and must be retried against fresh metadata.
	ErrPreconditionFailed = errors.New("warehouse schema update precondition failed")
)

// TableMetadata is the current persisted state of the destination table.
type TableMetadata struct {
	// Columns is the table's current column set in schema order.
	Columns []Column

	// ETag is the opaque version token to pass back on Update for
	// optimistic concurrency.
	ETag string
}

// TableSpec describes the table to create on first contact.
type TableSpec struct {
	Columns []Column

	// PartitionField selects day-level time partitioning.
	PartitionField string

	// RequirePartitionFilter enforces partition pruning on queries.
	RequirePartitionFilter bool

	// ClusterFields orders data by high-cardinality dimensions.
	ClusterFields []string
}

// TableClient is the persisted-table access contract.
//
// Implementations:
//   - BigQueryTable: production backend
//   - MemoryTable: in-memory fake for tests
type TableClient interface {
	// Metadata fetches current table metadata.
	// Returns ErrTableNotFound when the table does not exist.
	Metadata(ctx context.Context) (*TableMetadata, error)

	// Create creates the table.
	// Returns ErrTableExists when a concurrent creator won the race.
	Create(ctx context.Context, spec *TableSpec) error

	// Update replaces the table's column set, conditioned on etag.
	// Returns ErrPreconditionFailed when the table changed since the
	// metadata carrying etag was fetched.
	Update(ctx context.Context, columns []Column, etag string) error

	// Insert appends one row. Fields unknown to the table schema are
	// dropped by the sink, never rejected.
	Insert(ctx context.Context, row map[string]any) error
}

// ConflictError indicates additive schema evolution could not be committed
// within the retry budget. The event itself is still writable thanks to
// the sink's unknown-field tolerance, but the new columns are not
// guaranteed to be queryable yet.
type ConflictError struct {
	Attempts int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("schema evolution conflict: gave up after %d attempts", e.Attempts)
}

// IsConflict checks if an error indicates an exhausted evolution retry
// budget.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
