package generator

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// EnvVar selects the config overlay file (configs/<env>.yaml).
const EnvVar = "GENERATOR_ENV"

// Config holds the generator's runtime configuration.
type Config struct {
	Schema struct {
		Version string `yaml:"version"`
	} `yaml:"schema"`

	Lifecycle struct {
		InDepotMin  int `yaml:"in_depot_min"`
		InDepotMax  int `yaml:"in_depot_max"`
		OutDepotMin int `yaml:"out_depot_min"`
		OutDepotMax int `yaml:"out_depot_max"`
		LoadedMin   int `yaml:"loaded_min"`
		LoadedMax   int `yaml:"loaded_max"`
		OfdMin      int `yaml:"ofd_min"`
		OfdMax      int `yaml:"ofd_max"`
	} `yaml:"lifecycle"`

	Exceptions struct {
		Missort          float64 `yaml:"MISSORT"`
		DepotCapacity    float64 `yaml:"DEPOT_CAPACITY"`
		VehicleBreakdown float64 `yaml:"VEHICLE_BREAKDOWN"`
		AddressIssue     float64 `yaml:"ADDRESS_ISSUE"`
		CustomerNotHome  float64 `yaml:"CUSTOMER_NOT_HOME"`
	} `yaml:"exceptions"`

	ETA struct {
		MeanMinutes float64 `yaml:"mean_minutes"`
		SDMinutes   float64 `yaml:"sd_minutes"`
		UpdateProb  float64 `yaml:"update_prob"`
	} `yaml:"eta"`

	// Extras, when enabled, sprinkles optional producer-specific fields the
	// contracts do not declare, so schema evolution is exercised end to end.
	Extras struct {
		Enabled     bool    `yaml:"enabled"`
		Probability float64 `yaml:"probability"`
	} `yaml:"extras"`

	Rate struct {
		EventsPerSec int `yaml:"events_per_sec"`
	} `yaml:"rate"`

	PubSub struct {
		Topic string `yaml:"topic"`
	} `yaml:"pubsub"`
}

// DefaultConfig returns the built-in configuration used when no config
// directory is supplied.
func DefaultConfig() Config {
	var cfg Config
	cfg.Schema.Version = "1.0.0"
	cfg.Lifecycle.InDepotMin = 30
	cfg.Lifecycle.InDepotMax = 180
	cfg.Lifecycle.OutDepotMin = 20
	cfg.Lifecycle.OutDepotMax = 240
	cfg.Lifecycle.LoadedMin = 10
	cfg.Lifecycle.LoadedMax = 60
	cfg.Lifecycle.OfdMin = 5
	cfg.Lifecycle.OfdMax = 30
	cfg.Exceptions.Missort = 0.03
	cfg.Exceptions.DepotCapacity = 0.02
	cfg.Exceptions.VehicleBreakdown = 0.01
	cfg.Exceptions.AddressIssue = 0.02
	cfg.Exceptions.CustomerNotHome = 0.08
	cfg.ETA.MeanMinutes = 240
	cfg.ETA.SDMinutes = 60
	cfg.ETA.UpdateProb = 0.5
	cfg.Extras.Enabled = false
	cfg.Extras.Probability = 0.1
	cfg.Rate.EventsPerSec = 40
	cfg.PubSub.Topic = "parcel-events"
	return cfg
}

// LoadConfig reads configs/default.yaml from dir, applies the optional
// <env>.yaml overlay selected by EnvVar, then env var overrides.
func LoadConfig(dir string) (Config, error) {
	cfg := DefaultConfig()

	if err := mergeFile(&cfg, filepath.Join(dir, "default.yaml")); err != nil {
		return cfg, err
	}

	env := os.Getenv(EnvVar)
	if env == "" {
		env = "dev"
	}
	overlay := filepath.Join(dir, env+".yaml")
	if _, err := os.Stat(overlay); err == nil {
		if err := mergeFile(&cfg, overlay); err != nil {
			return cfg, err
		}
	}

	if eps := os.Getenv("GEN_EVENTS_PER_SEC"); eps != "" {
		n, err := strconv.Atoi(eps)
		if err != nil {
			return cfg, fmt.Errorf("parse GEN_EVENTS_PER_SEC: %w", err)
		}
		cfg.Rate.EventsPerSec = n
	}
	if topic := os.Getenv("PUBSUB_TOPIC"); topic != "" {
		cfg.PubSub.Topic = topic
	}
	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}
