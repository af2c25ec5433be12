package warehouse

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func noSleepPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		Sleep:       func(time.Duration) {},
	}
}

func TestEnsureTable(t *testing.T) {
	desired := []Column{
		{Name: "event_ts", Type: TypeTimestamp},
		{Name: "parcel_id", Type: TypeString},
		{Name: "event_type", Type: TypeString},
	}

	t.Run("creates with partitioning and clustering", func(t *testing.T) {
		table := NewMemoryTable()
		ctrl := NewController(table)

		if err := ctrl.EnsureTable(context.Background(), desired); err != nil {
			t.Fatalf("EnsureTable: %v", err)
		}

		spec := table.Spec()
		if spec.PartitionField != "event_ts" {
			t.Errorf("PartitionField = %q, want event_ts", spec.PartitionField)
		}
		if !spec.RequirePartitionFilter {
			t.Error("RequirePartitionFilter should be set")
		}
		if diff := cmp.Diff([]string{"parcel_id", "event_type"}, spec.ClusterFields); diff != "" {
			t.Errorf("ClusterFields mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(desired, table.Columns()); diff != "" {
			t.Errorf("columns mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("existing table short-circuits", func(t *testing.T) {
		table := NewMemoryTable().Seed(desired)
		ctrl := NewController(table)

		if err := ctrl.EnsureTable(context.Background(), desired); err != nil {
			t.Fatalf("EnsureTable: %v", err)
		}
		if table.Creates() != 0 {
			t.Errorf("Creates() = %d, want 0", table.Creates())
		}
	})

	t.Run("lost create race is success", func(t *testing.T) {
		table := &racingTable{MemoryTable: NewMemoryTable()}
		ctrl := NewController(table)

		if err := ctrl.EnsureTable(context.Background(), []Column{{Name: "event_ts", Type: TypeTimestamp}}); err != nil {
			t.Fatalf("EnsureTable after lost race: %v", err)
		}
	})

	t.Run("ready state checks only once", func(t *testing.T) {
		table := NewMemoryTable()
		ctrl := NewController(table)

		for i := 0; i < 3; i++ {
			if err := ctrl.EnsureTable(context.Background(), desired); err != nil {
				t.Fatalf("EnsureTable attempt %d: %v", i, err)
			}
		}
		if table.Creates() != 1 {
			t.Errorf("Creates() = %d, want 1", table.Creates())
		}
	})
}

// racingTable simulates another replica creating the table between the
// not-found metadata fetch and the create call.
type racingTable struct {
	*MemoryTable
	raced bool
}

func (r *racingTable) Metadata(ctx context.Context) (*TableMetadata, error) {
	if !r.raced {
		return nil, ErrTableNotFound
	}
	return r.MemoryTable.Metadata(ctx)
}

func (r *racingTable) Create(ctx context.Context, spec *TableSpec) error {
	if !r.raced {
		r.raced = true
		r.MemoryTable.Seed(spec.Columns)
		return ErrTableExists
	}
	return r.MemoryTable.Create(ctx, spec)
}

func TestReconcile(t *testing.T) {
	base := []Column{
		{Name: "event_id", Type: TypeString},
		{Name: "event_ts", Type: TypeTimestamp},
	}
	widened := append(append([]Column(nil), base...), Column{Name: "outcome", Type: TypeString})

	t.Run("adds missing columns", func(t *testing.T) {
		table := NewMemoryTable().Seed(base)
		ctrl := NewController(table)

		if err := ctrl.Reconcile(context.Background(), widened); err != nil {
			t.Fatalf("Reconcile: %v", err)
		}
		if diff := cmp.Diff(widened, table.Columns()); diff != "" {
			t.Errorf("columns mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("idempotent when schema is a superset", func(t *testing.T) {
		table := NewMemoryTable().Seed(widened)
		ctrl := NewController(table)

		if err := ctrl.Reconcile(context.Background(), base); err != nil {
			t.Fatalf("Reconcile: %v", err)
		}
		if table.Updates() != 0 {
			t.Errorf("Updates() = %d, want 0", table.Updates())
		}
	})

	t.Run("retries through transient conflicts", func(t *testing.T) {
		table := NewMemoryTable().Seed(base)
		table.FailUpdates(2)
		ctrl := NewController(table, WithRetryPolicy(noSleepPolicy(3)))

		if err := ctrl.Reconcile(context.Background(), widened); err != nil {
			t.Fatalf("Reconcile: %v", err)
		}
		if table.Updates() != 3 {
			t.Errorf("Updates() = %d, want 3", table.Updates())
		}
	})

	t.Run("exhausted retries yield ConflictError", func(t *testing.T) {
		table := NewMemoryTable().Seed(base)
		table.FailUpdates(10)
		ctrl := NewController(table, WithRetryPolicy(noSleepPolicy(3)))

		err := ctrl.Reconcile(context.Background(), widened)
		if !IsConflict(err) {
			t.Fatalf("error = %v, want ConflictError", err)
		}
		var ce *ConflictError
		errors.As(err, &ce)
		if ce.Attempts != 3 {
			t.Errorf("Attempts = %d, want 3", ce.Attempts)
		}
	})

	t.Run("backoff delays double", func(t *testing.T) {
		table := NewMemoryTable().Seed(base)
		table.FailUpdates(10)

		var delays []time.Duration
		ctrl := NewController(table, WithRetryPolicy(RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			Sleep:       func(d time.Duration) { delays = append(delays, d) },
		}))

		_ = ctrl.Reconcile(context.Background(), widened)
		if diff := cmp.Diff([]time.Duration{time.Second, 2 * time.Second}, delays); diff != "" {
			t.Errorf("delays mismatch (-want +got):\n%s", diff)
		}
	})
}
