package generator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/rbaliyan/relay/contract"
	"github.com/rbaliyan/relay/payload"
	"github.com/rbaliyan/relay/transport"
)

func quietConfig() Config {
	cfg := DefaultConfig()
	// No random exceptions or retries: the happy path is deterministic.
	cfg.Exceptions.Missort = 0
	cfg.Exceptions.DepotCapacity = 0
	cfg.Exceptions.VehicleBreakdown = 0
	cfg.Exceptions.AddressIssue = 0
	cfg.Exceptions.CustomerNotHome = 0
	cfg.ETA.UpdateProb = 0
	return cfg
}

func TestLifecycleHappyPath(t *testing.T) {
	gen := New(quietConfig(), 1)
	events := gen.Lifecycle(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))

	var types []string
	for _, e := range events {
		types = append(types, e["event_type"].(string))
	}
	want := []string{
		"PARCEL_CREATED", "SCAN_IN_DEPOT", "SCAN_OUT_DEPOT", "LOADED_TO_VAN",
		"OUT_FOR_DELIVERY", "ETA_SET", "DELIVERED",
	}
	if diff := cmp.Diff(want, types); diff != "" {
		t.Errorf("event order mismatch (-want +got):\n%s", diff)
	}
}

func TestLifecycleEnvelope(t *testing.T) {
	gen := New(quietConfig(), 1)
	events := gen.Lifecycle(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))

	parcelID := events[0]["parcel_id"]
	seen := map[string]bool{}
	for i, e := range events {
		for _, field := range []string{
			"schema_version", "event_version", "event_id", "parcel_id",
			"producer", "sequence_no", "event_type", "event_ts",
		} {
			if _, ok := e[field]; !ok {
				t.Errorf("event %d missing envelope field %s", i, field)
			}
		}
		if e["parcel_id"] != parcelID {
			t.Errorf("event %d parcel_id differs within one lifecycle", i)
		}
		if got := e["sequence_no"].(int); got != i {
			t.Errorf("event %d sequence_no = %d", i, got)
		}
		id := e["event_id"].(string)
		if seen[id] {
			t.Errorf("duplicate event_id %s", id)
		}
		seen[id] = true
	}
}

func TestLifecycleTimestampsNonDecreasing(t *testing.T) {
	// Exceptions and second delivery attempts exercise the reordering
	// fixup, so run with everything switched on.
	cfg := DefaultConfig()
	cfg.Exceptions.Missort = 1
	cfg.Exceptions.DepotCapacity = 1
	cfg.Exceptions.VehicleBreakdown = 1
	cfg.Exceptions.CustomerNotHome = 1
	cfg.ETA.UpdateProb = 1

	gen := New(cfg, 7)
	for run := 0; run < 20; run++ {
		events := gen.Lifecycle(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
		prev := time.Time{}
		for i, e := range events {
			ts, err := time.Parse(time.RFC3339, e["event_ts"].(string))
			if err != nil {
				t.Fatalf("run %d event %d: bad event_ts: %v", run, i, err)
			}
			if ts.Before(prev) {
				t.Fatalf("run %d event %d (%s): event_ts went backwards", run, i, e["event_type"])
			}
			prev = ts
		}
	}
}

func TestLifecycleDeterministic(t *testing.T) {
	a := New(DefaultConfig(), 42).Lifecycle(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	b := New(DefaultConfig(), 42).Lifecycle(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("same seed produced different streams (-a +b):\n%s", diff)
	}
}

func TestLifecycleConformsToContracts(t *testing.T) {
	store, err := contract.Load(contract.DirSource{Dir: "../testdata/schemas"})
	if err != nil {
		t.Fatalf("load contracts: %v", err)
	}
	validator, err := contract.NewValidator(store)
	if err != nil {
		t.Fatalf("compile contracts: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Exceptions.Missort = 1
	cfg.Exceptions.CustomerNotHome = 1
	cfg.ETA.UpdateProb = 1
	cfg.Extras.Enabled = true
	cfg.Extras.Probability = 1

	gen := New(cfg, 3)
	for run := 0; run < 10; run++ {
		for i, e := range gen.Lifecycle(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)) {
			// Round-trip through the wire codec, as consumers will see it.
			data, err := json.Marshal(e)
			if err != nil {
				t.Fatalf("marshal event %d: %v", i, err)
			}
			event, err := payload.DecodeEvent(payload.JSON{}, data)
			if err != nil {
				t.Fatalf("decode event %d: %v", i, err)
			}
			if err := validator.Validate(event); err != nil {
				t.Errorf("run %d event %d (%s): %v", run, i, e["event_type"], err)
			}
		}
	}
}

func TestStreamer(t *testing.T) {
	ch := transport.NewChannel(1000)
	cfg := quietConfig()
	cfg.Rate.EventsPerSec = 100

	streamer := NewStreamer(New(cfg, 1), ch)

	published, err := streamer.Run(context.Background(), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if published == 0 {
		t.Fatal("nothing published")
	}

	ctx, cancel := context.WithCancel(context.Background())
	var got int
	go func() {
		_ = ch.Receive(ctx, func(ctx context.Context, msg transport.Message) {
			if msg.Attributes()["event_type"] == "" {
				t.Error("missing event_type attribute")
			}
			msg.Ack()
			got++
			if got == published {
				cancel()
			}
		})
	}()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatalf("received %d of %d messages", got, published)
	}
}
