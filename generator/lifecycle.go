// Package generator produces synthetic parcel lifecycles for load and
// end-to-end testing of the ingestion pipeline.
//
// Each lifecycle is a strictly ordered slice of contract-shaped events:
// PARCEL_CREATED, SCAN_IN_DEPOT, SCAN_OUT_DEPOT, LOADED_TO_VAN,
// OUT_FOR_DELIVERY, ETA_SET, 0..2 ETA_UPDATED, and one or two DELIVERED
// attempts, with EXCEPTION events injected at configurable probabilities.
// Timestamps within one lifecycle are non-decreasing RFC 3339 strings.
package generator

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"syreclabs.com/go/faker"
)

const producerName = "generator"

// Generator builds parcel lifecycles. Not safe for concurrent use; the
// internal random source is unsynchronized.
type Generator struct {
	cfg Config
	rng *rand.Rand

	depots    []string
	couriers  []string
	merchants []string
}

// New creates a Generator. The seed fixes both the ID pools and all
// subsequent draws, so the same seed reproduces the same stream.
func New(cfg Config, seed int64) *Generator {
	rng := rand.New(rand.NewSource(seed))
	return &Generator{
		cfg:       cfg,
		rng:       rng,
		depots:    idPool(rng, 10),
		couriers:  idPool(rng, 300),
		merchants: idPool(rng, 120),
	}
}

func idPool(rng *rand.Rand, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = uuidFrom(rng)
	}
	return out
}

// uuidFrom draws a v4 UUID from the generator's own source so the pool is
// reproducible under a fixed seed.
func uuidFrom(rng *rand.Rand) string {
	var b [16]byte
	rng.Read(b[:])
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	id, _ := uuid.FromBytes(b[:])
	return id.String()
}

func (g *Generator) choose(list []string) string {
	return list[g.rng.Intn(len(list))]
}

// serviceTier draws a weighted tier: 60% NEXT_DAY, 30% TWO_DAY, 10% ECONOMY.
func (g *Generator) serviceTier() string {
	r := g.rng.Float64()
	switch {
	case r < 0.6:
		return "NEXT_DAY"
	case r < 0.9:
		return "TWO_DAY"
	default:
		return "ECONOMY"
	}
}

func (g *Generator) minutesBetween(lo, hi int) time.Duration {
	return time.Duration(lo+g.rng.Intn(hi-lo+1)) * time.Minute
}

func (g *Generator) normalMinutes(mean, sd, floor float64) time.Duration {
	v := g.rng.NormFloat64()*sd + mean
	if v < floor {
		v = floor
	}
	return time.Duration(v * float64(time.Minute))
}

func (g *Generator) logNormal(mu, sigma, lo, hi float64) int {
	v := math.Exp(g.rng.NormFloat64()*sigma + mu)
	return int(clamp(v, lo, hi))
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

func rfc3339(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// Lifecycle generates one parcel's ordered event slice starting around
// nowBase.
func (g *Generator) Lifecycle(nowBase time.Time) []map[string]any {
	cfg := g.cfg

	parcelID := uuidFrom(g.rng)
	merchantID := g.choose(g.merchants)
	originAddressID := uuidFrom(g.rng)
	destinationAddressID := uuidFrom(g.rng)
	depotID := g.choose(g.depots)
	courierID := g.choose(g.couriers)
	routeID := uuidFrom(g.rng)

	tier := g.serviceTier()
	var pws, pwe time.Time
	switch tier {
	case "NEXT_DAY":
		pws, pwe = nowBase.Add(8*time.Hour), nowBase.Add(20*time.Hour)
	case "TWO_DAY":
		pws, pwe = nowBase.Add(32*time.Hour), nowBase.Add(44*time.Hour)
	default:
		pws, pwe = nowBase.Add(56*time.Hour), nowBase.Add(68*time.Hour)
	}

	weightGrams := g.logNormal(6.7, 0.4, 0, 20000)
	volumeCM3 := g.logNormal(7.1, 0.5, 0, 80000)

	seq := 0
	var events []map[string]any
	env := func(evt map[string]any) {
		base := map[string]any{
			"schema_version": cfg.Schema.Version,
			"event_version":  cfg.Schema.Version,
			"event_id":       uuidFrom(g.rng),
			"parcel_id":      parcelID,
			"producer":       producerName,
			"sequence_no":    seq,
		}
		seq++
		for k, v := range evt {
			base[k] = v
		}
		events = append(events, base)
	}

	// PARCEL_CREATED
	tCreated := nowBase.Add(-time.Duration(g.rng.Intn(3)) * time.Minute)
	created := map[string]any{
		"event_type":             "PARCEL_CREATED",
		"event_ts":               rfc3339(tCreated),
		"merchant_id":            merchantID,
		"origin_address_id":      originAddressID,
		"destination_address_id": destinationAddressID,
		"service_tier":           tier,
		"created_ts":             rfc3339(tCreated.Add(-2 * time.Minute)),
		"promised_window_start":  rfc3339(pws),
		"promised_window_end":    rfc3339(pwe),
		"weight_grams":           weightGrams,
		"volume_cm3":             volumeCM3,
	}
	g.maybeExtras(created)
	env(created)

	// SCAN_IN_DEPOT and depot exceptions
	lc := cfg.Lifecycle
	tIn := tCreated.Add(g.minutesBetween(lc.InDepotMin, lc.InDepotMax))
	env(map[string]any{
		"event_type": "SCAN_IN_DEPOT",
		"event_ts":   rfc3339(tIn),
		"depot_id":   depotID,
		"scanner_id": g.scannerID(),
		"area_code":  "INBOUND-A",
		"belt_no":    1 + g.rng.Intn(5),
	})

	var addDelay time.Duration
	ex := cfg.Exceptions
	if g.rng.Float64() < ex.Missort {
		env(map[string]any{
			"event_type":     "EXCEPTION",
			"event_ts":       rfc3339(tIn.Add(time.Second)),
			"exception_code": "MISSORT",
			"stage_hint":     "DEPOT",
			"details":        "Parcel routed to incorrect belt",
		})
		addDelay += g.minutesBetween(30, 90)
	}
	if g.rng.Float64() < ex.DepotCapacity {
		env(map[string]any{
			"event_type":     "EXCEPTION",
			"event_ts":       rfc3339(tIn.Add(2 * time.Second)),
			"exception_code": "DEPOT_CAPACITY",
			"stage_hint":     "DEPOT",
			"details":        "Temporary capacity constraint",
		})
		addDelay += g.minutesBetween(60, 180)
	}

	// SCAN_OUT_DEPOT
	tOut := tIn.Add(g.minutesBetween(lc.OutDepotMin, lc.OutDepotMax) + addDelay)
	env(map[string]any{
		"event_type": "SCAN_OUT_DEPOT",
		"event_ts":   rfc3339(tOut),
		"depot_id":   depotID,
		"scanner_id": g.scannerID(),
		"area_code":  "OUTBOUND-B",
		"belt_no":    1 + g.rng.Intn(5),
	})

	// LOADED_TO_VAN and breakdown exception
	tLoaded := tOut.Add(g.minutesBetween(lc.LoadedMin, lc.LoadedMax))
	env(map[string]any{
		"event_type":       "LOADED_TO_VAN",
		"event_ts":         rfc3339(tLoaded),
		"route_id":         routeID,
		"courier_id":       courierID,
		"planned_stop_seq": 1 + g.rng.Intn(200),
	})

	var breakdownDelay time.Duration
	if g.rng.Float64() < ex.VehicleBreakdown {
		tBreak := tLoaded.Add(g.minutesBetween(1, 10))
		env(map[string]any{
			"event_type":     "EXCEPTION",
			"event_ts":       rfc3339(tBreak),
			"exception_code": "VEHICLE_BREAKDOWN",
			"stage_hint":     "LAST_MILE",
			"details":        "Temporary breakdown, route delayed",
		})
		breakdownDelay += g.minutesBetween(60, 120)
	}

	// OUT_FOR_DELIVERY
	tOfd := tLoaded.Add(g.minutesBetween(lc.OfdMin, lc.OfdMax) + breakdownDelay)
	firstETA := g.normalMinutes(cfg.ETA.MeanMinutes, cfg.ETA.SDMinutes, 15)
	env(map[string]any{
		"event_type":           "OUT_FOR_DELIVERY",
		"event_ts":             rfc3339(tOfd),
		"route_id":             routeID,
		"first_planned_eta_ts": rfc3339(tOfd.Add(firstETA)),
	})

	// ETA_SET
	tEta0 := tOfd.Add(time.Duration(g.rng.Intn(3)) * time.Minute)
	travel := g.normalMinutes(cfg.ETA.MeanMinutes, cfg.ETA.SDMinutes, 15)
	lastETA := tOfd.Add(travel)
	lastGen := tEta0
	env(map[string]any{
		"event_type":            "ETA_SET",
		"event_ts":              rfc3339(tEta0),
		"route_id":              routeID,
		"predicted_delivery_ts": rfc3339(lastETA),
		"generated_ts":          rfc3339(tEta0),
		"source":                "PLANNER",
	})

	// ETA_UPDATED, 0 to 2 times
	updates := 0
	if g.rng.Float64() < cfg.ETA.UpdateProb {
		updates = 1
		if g.rng.Float64() >= 0.7 {
			updates = 2
		}
	}
	for i := 0; i < updates; i++ {
		lastGen = lastGen.Add(g.minutesBetween(5, 30))
		lastETA = lastETA.Add(g.minutesBetween(-15, 25))
		env(map[string]any{
			"event_type":            "ETA_UPDATED",
			"event_ts":              rfc3339(lastGen),
			"route_id":              routeID,
			"predicted_delivery_ts": rfc3339(lastETA),
			"generated_ts":          rfc3339(lastGen),
			"source":                "RECOMPUTE",
		})
	}

	// DELIVERED, with a second attempt on failure or card
	outcome := "SUCCESS"
	failureReason := ""
	addrIssue := g.rng.Float64() < ex.AddressIssue
	notHome := !addrIssue && g.rng.Float64() < ex.CustomerNotHome

	noise := time.Duration(g.rng.NormFloat64() * 15 * float64(time.Minute))
	tFirst := tOfd.Add(travel + noise)
	if min := tOfd.Add(10 * time.Minute); tFirst.Before(min) {
		tFirst = min
	}
	if addrIssue {
		outcome, failureReason = "FAILED", "ADDRESS_ISSUE"
	} else if notHome {
		outcome = "CARDED"
	}

	delivered := map[string]any{
		"event_type":     "DELIVERED",
		"event_ts":       rfc3339(tFirst),
		"delivered_ts":   rfc3339(tFirst),
		"attempt_number": 1,
		"outcome":        outcome,
		"route_id":       routeID,
		"courier_id":     courierID,
	}
	if failureReason != "" {
		delivered["failure_reason"] = failureReason
	}
	g.maybeExtras(delivered)
	env(delivered)

	if outcome == "CARDED" || outcome == "FAILED" {
		tSecond := tFirst.Add(time.Duration(4+g.rng.Intn(25)) * time.Hour)
		secondOutcome := "SUCCESS"
		if g.rng.Float64() >= 0.85 {
			if g.rng.Float64() < 0.6 {
				secondOutcome = "FAILED"
			} else {
				secondOutcome = "RETURNED"
			}
		}
		second := map[string]any{
			"event_type":     "DELIVERED",
			"event_ts":       rfc3339(tSecond),
			"delivered_ts":   rfc3339(tSecond),
			"attempt_number": 2,
			"outcome":        secondOutcome,
			"route_id":       routeID,
			"courier_id":     courierID,
		}
		if secondOutcome == "FAILED" {
			second["failure_reason"] = "UNSPECIFIED"
		}
		env(second)
	}

	// Timestamps must not go backwards across the slice; exception and
	// retry offsets can otherwise land before an earlier event.
	prev := time.Time{}
	for _, e := range events {
		ts, err := time.Parse(time.RFC3339, e["event_ts"].(string))
		if err != nil {
			continue
		}
		if ts.Before(prev) {
			ts = prev.Add(time.Second)
			e["event_ts"] = rfc3339(ts)
		}
		prev = ts
	}
	return events
}

func (g *Generator) scannerID() string {
	return fmt.Sprintf("S-%02d", 1+g.rng.Intn(99))
}

// maybeExtras adds undeclared producer fields so downstream schema
// evolution has something to pick up.
func (g *Generator) maybeExtras(evt map[string]any) {
	if !g.cfg.Extras.Enabled || g.rng.Float64() >= g.cfg.Extras.Probability {
		return
	}
	evt["region_tag"] = faker.Address().StateAbbr()
	evt["carrier_name"] = faker.Company().Name()
}
