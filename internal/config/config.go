// Package config holds the engine's runtime options. Values come from the
// environment with sensible defaults; workflow multipliers can additionally
// be overridden from a YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/panelworks/production-engine/internal/domain"
	"github.com/panelworks/production-engine/internal/planner"
)

// IngestConfig controls the order ingestor
type IngestConfig struct {
	WindowHours      int
	MaxOrdersPerPage int
	// ProductionStatusIDs is the marketplace status set worth ingesting
	ProductionStatusIDs []string
}

// ReconcileConfig controls the status reconciler
type ReconcileConfig struct {
	TickMinutes int
	// StatusMap maps external status ids to internal effects
	StatusMap StatusMap
	// CompletedStatusID is pushed to the marketplace when a task finishes
	CompletedStatusID string
	// ShippedStatusID is pushed when packaging completes
	ShippedStatusID string
}

// StatusEffect is the internal effect of an external status
type StatusEffect string

const (
	EffectIngest    StatusEffect = "ingest"
	EffectNoop      StatusEffect = "noop"
	EffectCompleted StatusEffect = "completed"
	EffectCancelled StatusEffect = "cancelled"
)

// StatusMap maps marketplace status ids to internal effects. Unknown ids
// raise a data inconsistency, never silently advance the state machine.
type StatusMap map[string]StatusEffect

// Effect looks up the mapping; ok=false marks an unknown external status
func (m StatusMap) Effect(statusID string) (StatusEffect, bool) {
	effect, ok := m[statusID]
	return effect, ok
}

// AlertsConfig controls the alert detectors
type AlertsConfig struct {
	OverloadThreshold int
	StuckHours        int
}

// SweepConfig controls the retention sweeper
type SweepConfig struct {
	RetentionDays      int
	AlertRetentionDays int
}

// MarketplaceConfig configures the marketplace adapter client
type MarketplaceConfig struct {
	BaseURL    string
	APIToken   string
	Timeout    time.Duration
	MaxRetries int
}

// Config is the engine's full option set
type Config struct {
	ServerAddr   string
	Ingest       IngestConfig
	Reconcile    ReconcileConfig
	Alerts       AlertsConfig
	Sweep        SweepConfig
	Marketplace  MarketplaceConfig
	Multipliers  planner.Multipliers
	KafkaBrokers []string
	EventsTopic  string
}

// Load builds the configuration from the environment. A missing marketplace
// credential is a fatal configuration error: the engine refuses to start.
func Load() (*Config, error) {
	cfg := &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),
		Ingest: IngestConfig{
			WindowHours:         getEnvInt("INGEST_WINDOW_HOURS", 24),
			MaxOrdersPerPage:    getEnvInt("INGEST_MAX_ORDERS_PER_PAGE", 100),
			ProductionStatusIDs: splitList(getEnv("INGEST_STATUS_IDS", "paid")),
		},
		Reconcile: ReconcileConfig{
			TickMinutes:       getEnvInt("RECONCILE_TICK_MINUTES", 15),
			StatusMap:         defaultStatusMap(),
			CompletedStatusID: getEnv("MARKETPLACE_COMPLETED_STATUS_ID", "production_completed"),
			ShippedStatusID:   getEnv("MARKETPLACE_SHIPPED_STATUS_ID", "shipped"),
		},
		Alerts: AlertsConfig{
			OverloadThreshold: getEnvInt("ALERTS_OVERLOAD_THRESHOLD", 5),
			StuckHours:        getEnvInt("ALERTS_STUCK_HOURS", 4),
		},
		Sweep: SweepConfig{
			RetentionDays:      getEnvInt("SWEEP_RETENTION_DAYS", 90),
			AlertRetentionDays: getEnvInt("SWEEP_ALERT_RETENTION_DAYS", 30),
		},
		Marketplace: MarketplaceConfig{
			BaseURL:    getEnv("MARKETPLACE_BASE_URL", ""),
			APIToken:   getEnv("MARKETPLACE_API_TOKEN", ""),
			Timeout:    time.Duration(getEnvInt("MARKETPLACE_TIMEOUT_SECONDS", 30)) * time.Second,
			MaxRetries: getEnvInt("MARKETPLACE_MAX_RETRIES", 3),
		},
		Multipliers:  planner.DefaultMultipliers(),
		KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		EventsTopic:  getEnv("KAFKA_EVENTS_TOPIC", "production.events"),
	}

	if cfg.Marketplace.BaseURL == "" {
		return nil, fmt.Errorf("MARKETPLACE_BASE_URL is required")
	}
	if cfg.Marketplace.APIToken == "" {
		return nil, fmt.Errorf("MARKETPLACE_API_TOKEN is required")
	}

	if raw := getEnv("STATUS_MAP", ""); raw != "" {
		statusMap, err := parseStatusMap(raw)
		if err != nil {
			return nil, err
		}
		cfg.Reconcile.StatusMap = statusMap
	}

	if path := getEnv("WORKFLOW_MULTIPLIERS_FILE", ""); path != "" {
		if err := loadMultipliers(path, &cfg.Multipliers); err != nil {
			return nil, fmt.Errorf("failed to load workflow multipliers: %w", err)
		}
	}

	return cfg, nil
}

// defaultStatusMap mirrors the default external-status table. Exact ids
// are configuration data replaced in deployment via STATUS_MAP.
func defaultStatusMap() StatusMap {
	return StatusMap{
		"paid":                 EffectIngest,
		"new_paid":             EffectIngest,
		"in_production":        EffectNoop,
		"production_completed": EffectCompleted,
		"packed":               EffectCompleted,
		"ready_for_pickup":     EffectCompleted,
		"shipped":              EffectCompleted,
		"delivered":            EffectCompleted,
		"collected":            EffectCompleted,
		"cancelled":            EffectCancelled,
	}
}

// parseStatusMap parses "id=effect,id=effect" pairs
func parseStatusMap(raw string) (StatusMap, error) {
	m := make(StatusMap)
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid STATUS_MAP entry %q", pair)
		}
		effect := StatusEffect(parts[1])
		switch effect {
		case EffectIngest, EffectNoop, EffectCompleted, EffectCancelled:
			m[parts[0]] = effect
		default:
			return nil, fmt.Errorf("unknown status effect %q", parts[1])
		}
	}
	return m, nil
}

// multipliersFile is the YAML override document shape
type multipliersFile struct {
	Species         map[string]planner.StageFactors `yaml:"species"`
	SolidGlueFactor float64                         `yaml:"solidGlueFactor"`
}

func loadMultipliers(path string, into *planner.Multipliers) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var file multipliersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}

	for species, factors := range file.Species {
		into.Species[domain.WoodSpecies(species)] = factors
	}
	if file.SolidGlueFactor > 0 {
		into.SolidGlueFactor = file.SolidGlueFactor
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
