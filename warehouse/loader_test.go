package warehouse

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rbaliyan/relay/contract"
	"github.com/rbaliyan/relay/value"
)

func fixtureStore(t *testing.T) *contract.Store {
	t.Helper()
	store, err := contract.Load(contract.DirSource{Dir: "../testdata/schemas"})
	if err != nil {
		t.Fatalf("load contracts: %v", err)
	}
	return store
}

func record(t *testing.T, doc string) value.Record {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(doc))
	dec.UseNumber()
	var event map[string]any
	if err := dec.Decode(&event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	return value.FromMap(event)
}

const deliveredDoc = `{
	"schema_version": "1.0.0",
	"event_version": "1.0.0",
	"event_id": "e-1",
	"parcel_id": "p-1",
	"producer": "generator",
	"sequence_no": 7,
	"event_type": "DELIVERED",
	"event_ts": "2024-01-01T12:00:00Z",
	"delivered_ts": "2024-01-01T12:00:00Z",
	"attempt_number": 1,
	"outcome": "SUCCESS"
}`

func TestLoaderInsert(t *testing.T) {
	store := fixtureStore(t)

	t.Run("creates table and inserts completed row", func(t *testing.T) {
		table := NewMemoryTable()
		loader := NewLoader(store, table)

		if err := loader.Insert(context.Background(), record(t, deliveredDoc)); err != nil {
			t.Fatalf("Insert: %v", err)
		}

		rows := table.Rows()
		if len(rows) != 1 {
			t.Fatalf("rows = %d, want 1", len(rows))
		}
		row := rows[0]
		// Contract fields absent from the event land as explicit nulls.
		if v, ok := row["failure_reason"]; !ok || v != nil {
			t.Errorf("failure_reason = (%v, %v), want explicit null", v, ok)
		}
		if row["outcome"] != "SUCCESS" {
			t.Errorf("outcome = %v, want SUCCESS", row["outcome"])
		}
		if row["sequence_no"] != int64(7) {
			t.Errorf("sequence_no = %v, want 7", row["sequence_no"])
		}
	})

	t.Run("extra producer field becomes a column", func(t *testing.T) {
		table := NewMemoryTable()
		loader := NewLoader(store, table)

		rec := record(t, deliveredDoc)
		rec["region_tag"] = value.String("NW")
		if err := loader.Insert(context.Background(), rec); err != nil {
			t.Fatalf("Insert: %v", err)
		}

		found := false
		for _, col := range table.Columns() {
			if col.Name == "region_tag" && col.Type == TypeString {
				found = true
			}
		}
		if !found {
			t.Fatalf("region_tag column not created: %v", table.Columns())
		}
		if table.Rows()[0]["region_tag"] != "NW" {
			t.Errorf("region_tag value = %v, want NW", table.Rows()[0]["region_tag"])
		}
	})

	t.Run("second event of same shape does not update schema", func(t *testing.T) {
		table := NewMemoryTable()
		loader := NewLoader(store, table)

		ctx := context.Background()
		if err := loader.Insert(ctx, record(t, deliveredDoc)); err != nil {
			t.Fatalf("first Insert: %v", err)
		}
		updatesAfterFirst := table.Updates()
		if err := loader.Insert(ctx, record(t, deliveredDoc)); err != nil {
			t.Fatalf("second Insert: %v", err)
		}
		if table.Updates() != updatesAfterFirst {
			t.Errorf("Updates() = %d, want %d", table.Updates(), updatesAfterFirst)
		}
		if len(table.Rows()) != 2 {
			t.Errorf("rows = %d, want 2", len(table.Rows()))
		}
	})

	t.Run("unknown event type is returned", func(t *testing.T) {
		table := NewMemoryTable()
		loader := NewLoader(store, table)

		rec := record(t, deliveredDoc)
		rec["event_type"] = value.String("TELEPORTED")
		err := loader.Insert(context.Background(), rec)
		if !contract.IsNotFound(err) {
			t.Errorf("error = %v, want NotFoundError", err)
		}
		if len(table.Rows()) != 0 {
			t.Error("no row should be written for an unknown event type")
		}
	})

	t.Run("evolution conflict degrades to tolerant insert", func(t *testing.T) {
		table := NewMemoryTable()
		loader := NewLoader(store, table)

		ctx := context.Background()
		if err := loader.Insert(ctx, record(t, deliveredDoc)); err != nil {
			t.Fatalf("seed Insert: %v", err)
		}

		// Every schema update now loses the optimistic concurrency race.
		table.FailUpdates(100)
		ctrl := NewController(table, WithRetryPolicy(noSleepPolicy(3)))
		loader = NewLoader(store, table, WithController(ctrl))

		rec := record(t, deliveredDoc)
		rec["brand_new_field"] = value.String("x")
		if err := loader.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert should degrade, not fail: %v", err)
		}

		rows := table.Rows()
		if len(rows) != 2 {
			t.Fatalf("rows = %d, want 2", len(rows))
		}
		// The new column never committed, so the sink dropped the field.
		if _, ok := rows[1]["brand_new_field"]; ok {
			t.Error("unknown field should be dropped by the sink")
		}
		if rows[1]["outcome"] != "SUCCESS" {
			t.Errorf("known fields must still be written, outcome = %v", rows[1]["outcome"])
		}
	})
}
