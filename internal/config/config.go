// Package config loads and validates the Configuration surface named in
// spec §6: capacity/balance bands, territory mappings, the optimization
// model selector, balance intensity, and priority ordering. It is the single
// source of truth for these options (spec §6) and the single place legacy
// field names are mapped to current ones (spec §9 "Configuration evolution").
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// BalanceIntensity is the ordered 5-point scale from spec §3, with fixed
// multipliers that weight the distance-to-target formula in pkg/priority.
type BalanceIntensity string

const (
	IntensityVeryLight BalanceIntensity = "VERY_LIGHT"
	IntensityLight     BalanceIntensity = "LIGHT"
	IntensityNormal    BalanceIntensity = "NORMAL"
	IntensityHeavy     BalanceIntensity = "HEAVY"
	IntensityVeryHeavy BalanceIntensity = "VERY_HEAVY"
)

// Multiplier returns the fixed multiplier for this intensity level. An
// unrecognized value multiplies by 1.0 (NORMAL), never panics: configuration
// values originate outside the process and must degrade, not crash.
func (b BalanceIntensity) Multiplier() float64 {
	switch b {
	case IntensityVeryLight:
		return 0.25
	case IntensityLight:
		return 0.5
	case IntensityHeavy:
		return 2.0
	case IntensityVeryHeavy:
		return 4.0
	default:
		return 1.0
	}
}

// OptimizationModel selects between the waterfall and relaxed balance modes
// (spec §3, §4.4).
type OptimizationModel string

const (
	ModelWaterfall OptimizationModel = "waterfall"
	ModelRelaxed   OptimizationModel = "relaxed"
)

// PriorityEntry is one element of the ordered priority_config list.
type PriorityEntry struct {
	PriorityID string `yaml:"priority_id" validate:"required"`
	Enabled    bool   `yaml:"enabled"`
}

// BandConfig is a target/min/max/variance quadruple for one balanced
// dimension (ARR, ATR, or pipeline).
type BandConfig struct {
	Target       float64 `yaml:"target" validate:"gte=0"`
	Min          float64 `yaml:"min" validate:"gte=0"`
	Max          float64 `yaml:"max" validate:"gte=0"`
	VariancePct  float64 `yaml:"variance_percent" validate:"gte=0,lte=1"`
	TargetOverr  *float64 `yaml:"target_override,omitempty"`
	MinOverride  *float64 `yaml:"min_override,omitempty"`
	MaxOverride  *float64 `yaml:"max_override,omitempty"`
}

// Config is the full Configuration surface consumed by the core, one record
// per build (spec §3 "Configuration. Per build.").
type Config struct {
	CustomerARR BandConfig `yaml:"customer_arr" validate:"required"`
	CustomerATR BandConfig `yaml:"customer_atr" validate:"required"`
	Prospect    BandConfig `yaml:"prospect_arr" validate:"required"`

	MaxCREPerRep              int     `yaml:"max_cre_per_rep" validate:"gte=0"`
	RenewalConcentrationMaxPct float64 `yaml:"renewal_concentration_max" validate:"gte=0,lte=1"`

	TerritoryMappings map[string]string `yaml:"territory_mappings"`

	OptimizationModel OptimizationModel `yaml:"optimization_model" validate:"required,oneof=waterfall relaxed"`
	BalanceIntensity  BalanceIntensity  `yaml:"balance_intensity" validate:"required"`

	AssignmentMode    string          `yaml:"assignment_mode" validate:"required"`
	PriorityConfig    []PriorityEntry `yaml:"priority_config" validate:"required,min=1,dive"`
	IsCustomPriority  bool            `yaml:"is_custom_priority"`
	CustomPolicyPath  string          `yaml:"custom_policy_path,omitempty"`

	SalesToolsARRThreshold float64 `yaml:"rs_arr_threshold" validate:"gte=0"`

	Logging    LoggingConfig    `yaml:"logging"`
	Store      StoreConfig      `yaml:"store"`
	Lock       LockConfig       `yaml:"lock"`
	Notifier   NotifierConfig   `yaml:"notifier"`
	RunTimeout string           `yaml:"run_timeout" validate:"required"`
}

// LoggingConfig mirrors the teacher's own logging section.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// StoreConfig configures the Postgres-backed Store implementation.
type StoreConfig struct {
	DSN             string `yaml:"dsn" validate:"required"`
	MaxOpenConns    int    `yaml:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int    `yaml:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`
}

// LockConfig configures the Redis-backed advisory per-build lock.
type LockConfig struct {
	RedisAddr string `yaml:"redis_addr"`
	LeaseTTL  string `yaml:"lease_ttl"`
}

// NotifierConfig configures the Slack notifier.
type NotifierConfig struct {
	SlackToken   string `yaml:"slack_token"`
	DefaultChannel string `yaml:"default_channel"`
}

// legacyAliases maps deprecated YAML keys to the field they now populate.
// Nothing reads it: the rewrite itself is done by migrateLegacyFields.
var legacyAliases = map[string]string{
	"atr_target": "customer_atr.target",
}

// Load reads and validates a Config from a YAML file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Parse parses and validates raw YAML bytes into a Config.
func Parse(raw []byte) (*Config, error) {
	var root map[string]any
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	migrateLegacyFields(root)

	remarshaled, err := yaml.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("remarshal config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(remarshaled, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Store.MaxOpenConns == 0 {
		cfg.Store.MaxOpenConns = 25
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// migrateLegacyFields rewrites deprecated top-level keys onto their current
// nested location, in place, before the document is decoded into Config.
func migrateLegacyFields(root map[string]any) {
	legacyATR, ok := root["atr_target"]
	if !ok {
		return
	}
	delete(root, "atr_target")

	section, _ := root["customer_atr"].(map[string]any)
	if section == nil {
		section = map[string]any{}
	}
	if _, exists := section["target"]; !exists {
		section["target"] = legacyATR
	}
	root["customer_atr"] = section
}
