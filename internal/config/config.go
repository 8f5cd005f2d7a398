// Package config provides configuration loading for the simulation:
// embedded YAML defaults, an optional user file, and environment overrides.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/talgya/swarm-economy/internal/agents"
	"github.com/talgya/swarm-economy/internal/economy"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation parameters.
type Config struct {
	Seed     int64  `yaml:"seed"`
	Mode     string `yaml:"mode"`
	LogLevel string `yaml:"log_level"`

	Run        RunConfig        `yaml:"run"`
	Population PopulationConfig `yaml:"population"`
	Agent      AgentConfig      `yaml:"agent"`
	Activity   ActivityConfig   `yaml:"activity"`
	Economy    EconomyConfig    `yaml:"economy"`
	Recovery   RecoveryConfig   `yaml:"recovery"`
	Events     EventsConfig     `yaml:"events"`
	Status     StatusConfig     `yaml:"status"`
	Output     OutputConfig     `yaml:"output"`
	API        APIConfig        `yaml:"api"`

	// RandomOrgKey enables the true-random oracle. Never written to disk.
	RandomOrgKey string `yaml:"-"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// RunConfig bounds a run.
type RunConfig struct {
	MaxTicks uint64 `yaml:"max_ticks"` // 0 = run until interrupted

	// TicksPerSecond overrides the mode's pacing when set; 0 runs unpaced.
	TicksPerSecond *float64 `yaml:"ticks_per_second,omitempty"`
}

// PopulationConfig holds join/leave parameters.
type PopulationConfig struct {
	Initial           int     `yaml:"initial"`
	MinUsers          int     `yaml:"min_users"`
	MaxUsers          int     `yaml:"max_users"`
	BaseJoinRate      float64 `yaml:"base_join_rate"`
	BaseLeaveRate     float64 `yaml:"base_leave_rate"`
	ChangeChance      float64 `yaml:"change_chance"`      // Per-tick chance of a churn burst
	MaxChanges        int     `yaml:"max_changes"`        // Burst size ceiling
	OfflinePreference float64 `yaml:"offline_preference"` // Share of leaves taken from offline agents
	TrendWindow       int     `yaml:"trend_window"`       // Population samples kept for trend checks
}

// AgentConfig holds per-agent limits.
type AgentConfig struct {
	MaxConcurrent         int     `yaml:"max_concurrent"`
	MaxDrones             int     `yaml:"max_drones"`
	OfflineTimeoutSeconds float64 `yaml:"offline_timeout_seconds"`
	CooldownTicks         uint64  `yaml:"cooldown_ticks"`
}

// ActivityConfig holds start-offer parameters.
type ActivityConfig struct {
	StartChance      float64          `yaml:"start_chance"`
	SingleTickChance float64          `yaml:"single_tick_chance"`
	MaxTicks         int              `yaml:"max_ticks"`
	DroneGrantChance float64          `yaml:"drone_grant_chance"`
	DemandWave       DemandWaveConfig `yaml:"demand_wave"`
}

// DemandWaveConfig shapes the slow noise that modulates start offers.
type DemandWaveConfig struct {
	Amplitude float64 `yaml:"amplitude"` // 0 disables the wave
	Period    float64 `yaml:"period"`    // Ticks per noise unit
}

// EconomyConfig holds multiplier and pricing parameters.
type EconomyConfig struct {
	MinMultiplier  float64                  `yaml:"min_multiplier"`
	MaxMultiplier  float64                  `yaml:"max_multiplier"`
	RecomputeEvery uint64                   `yaml:"recompute_every"`
	RewardTiming   string                   `yaml:"reward_timing"`
	HistoryLimit   int                      `yaml:"history_limit"`
	Prices         map[string]economy.Price `yaml:"prices"`
}

// RecoveryConfig holds trigger thresholds.
type RecoveryConfig struct {
	CheckEvery    uint64  `yaml:"check_every"`
	CooldownTicks uint64  `yaml:"cooldown_ticks"`
	CrashDrop     int     `yaml:"crash_drop"`
	CrashWindow   uint64  `yaml:"crash_window"`
	SoftFloor     int     `yaml:"soft_floor"`
	HardFloor     int     `yaml:"hard_floor"`
	DeclineSlope  float64 `yaml:"decline_slope"` // Agents per tick, negative
	MinTopTier    int     `yaml:"min_top_tier"`
	MinEngaged    int     `yaml:"min_engaged"`
}

// EventsConfig holds world event and stillness parameters.
type EventsConfig struct {
	WorldEventChance float64         `yaml:"world_event_chance"`
	ReactionFactor   float64         `yaml:"reaction_factor"`
	HistoryLimit     int             `yaml:"history_limit"`
	Stillness        StillnessConfig `yaml:"stillness"`
}

// StillnessConfig holds entropy breach parameters.
type StillnessConfig struct {
	IdleTicks      int    `yaml:"idle_ticks"`
	DiagnosticTick uint64 `yaml:"diagnostic_tick"` // 0 = disabled
	Penalty        int64  `yaml:"penalty"`
	Bonus          int64  `yaml:"bonus"`
	BonusSlots     int    `yaml:"bonus_slots"`
}

// StatusConfig holds console snapshot parameters.
type StatusConfig struct {
	Enabled      bool `yaml:"enabled"`
	Preview      int  `yaml:"preview"`       // Active activities listed
	RecentEvents int  `yaml:"recent_events"` // Events listed
}

// OutputConfig holds result artifact parameters.
type OutputConfig struct {
	Dir    string `yaml:"dir"`
	SQLite bool   `yaml:"sqlite"`
}

// APIConfig holds status API parameters.
type APIConfig struct {
	Port int `yaml:"port"` // 0 = disabled
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	Mode                Mode
	Prices              economy.PriceTable
	RewardTiming        economy.RewardTiming
	OfflineTimeoutTicks uint64
}

// envOverrides are applied after YAML. Unset variables leave values alone.
type envOverrides struct {
	Mode         string   `env:"SWARMSIM_MODE"`
	Seed         *int64   `env:"SWARMSIM_SEED"`
	LogLevel     string   `env:"SWARMSIM_LOG_LEVEL"`
	MaxTicks     *uint64  `env:"SWARMSIM_MAX_TICKS"`
	TicksPerSec  *float64 `env:"SWARMSIM_TICKS_PER_SECOND"`
	OutputDir    string   `env:"SWARMSIM_OUTPUT_DIR"`
	APIPort      *int     `env:"SWARMSIM_API_PORT"`
	RandomOrgKey string   `env:"RANDOM_ORG_API_KEY"`
}

// Default returns the embedded defaults with derived values computed.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults invalid: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only fields present in the file overwrite defaults.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays SWARMSIM_* environment variables and re-derives.
func (c *Config) ApplyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if o.Mode != "" {
		c.Mode = o.Mode
	}
	if o.Seed != nil {
		c.Seed = *o.Seed
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if o.MaxTicks != nil {
		c.Run.MaxTicks = *o.MaxTicks
	}
	if o.TicksPerSec != nil {
		c.Run.TicksPerSecond = o.TicksPerSec
	}
	if o.OutputDir != "" {
		c.Output.Dir = o.OutputDir
	}
	if o.APIPort != nil {
		c.API.Port = *o.APIPort
	}
	if o.RandomOrgKey != "" {
		c.RandomOrgKey = o.RandomOrgKey
	}
	return c.Finalize()
}

// SetMode switches the time-scale mode and re-derives.
func (c *Config) SetMode(name string) error {
	c.Mode = name
	return c.Finalize()
}

// Finalize clamps degenerate values and computes derived ones. The only
// hard errors are names that cannot be resolved.
func (c *Config) Finalize() error {
	mode, err := ParseMode(c.Mode)
	if err != nil {
		return err
	}
	c.Mode = mode.Name
	if tps := c.Run.TicksPerSecond; tps != nil {
		mode.TicksPerSecond = max(*tps, 0)
	}
	c.Derived.Mode = mode

	timing, err := economy.ParseRewardTiming(c.Economy.RewardTiming)
	if err != nil {
		return err
	}
	c.Derived.RewardTiming = timing

	prices := economy.DefaultPrices()
	for name, p := range c.Economy.Prices {
		kind, ok := agents.ParseKind(name)
		if !ok {
			return fmt.Errorf("unknown activity kind %q in economy.prices", name)
		}
		prices[kind] = p
	}
	c.Derived.Prices = prices

	c.clamp()
	c.Derived.OfflineTimeoutTicks = mode.TicksFor(c.Agent.OfflineTimeoutSeconds)
	return nil
}

func (c *Config) clamp() {
	p := &c.Population
	if p.Initial < 0 {
		p.Initial = 0
	}
	if p.MinUsers < 0 {
		p.MinUsers = 0
	}
	if p.MaxUsers < p.MinUsers {
		p.MaxUsers = p.MinUsers
	}
	if p.MaxChanges < 1 {
		p.MaxChanges = 1
	}
	if p.TrendWindow < 2 {
		p.TrendWindow = 2
	}
	p.BaseJoinRate = clampUnit(p.BaseJoinRate)
	p.BaseLeaveRate = clampUnit(p.BaseLeaveRate)
	p.ChangeChance = clampUnit(p.ChangeChance)
	p.OfflinePreference = clampUnit(p.OfflinePreference)

	if c.Agent.MaxConcurrent < 1 {
		c.Agent.MaxConcurrent = 1
	}
	if c.Agent.MaxDrones < 0 {
		c.Agent.MaxDrones = 0
	}

	a := &c.Activity
	a.StartChance = clampUnit(a.StartChance)
	a.SingleTickChance = clampUnit(a.SingleTickChance)
	a.DroneGrantChance = clampUnit(a.DroneGrantChance)
	if a.MaxTicks < 1 {
		a.MaxTicks = 1
	}
	if a.DemandWave.Amplitude < 0 {
		a.DemandWave.Amplitude = 0
	}
	if a.DemandWave.Amplitude > 1 {
		a.DemandWave.Amplitude = 1
	}

	e := &c.Economy
	if e.MinMultiplier > e.MaxMultiplier {
		e.MinMultiplier, e.MaxMultiplier = e.MaxMultiplier, e.MinMultiplier
	}
	if e.RecomputeEvery == 0 {
		e.RecomputeEvery = economy.DefaultRecomputeEach
	}
	if e.HistoryLimit < 1 {
		e.HistoryLimit = 1
	}

	if c.Recovery.CheckEvery == 0 {
		c.Recovery.CheckEvery = 10
	}
	if c.Events.HistoryLimit < 1 {
		c.Events.HistoryLimit = 1
	}
	c.Events.WorldEventChance = clampUnit(c.Events.WorldEventChance)
	if c.Events.ReactionFactor < 1 {
		c.Events.ReactionFactor = 1
	}
	if c.Events.Stillness.IdleTicks < 1 {
		c.Events.Stillness.IdleTicks = 1
	}
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// SlogLevel maps LogLevel to a slog level. Unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WriteYAML saves the effective configuration.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
