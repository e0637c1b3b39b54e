// Package config loads the two-tier YAML configuration spec §6 defines:
// one global config.yaml for the recognized keys, and one roasters.yaml
// listing the monitored stores with per-roaster overrides. Grounded on
// the teacher's config/providers.go YAML-load-then-validate shape,
// generalized from its single flat provider map to the pipeline's
// worker/fetch/retry/llm/image/alerts sections plus a roster list.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/brewradar/coffeescan/internal/model"
)

// WorkerConfig is §6's worker.* keys.
type WorkerConfig struct {
	GlobalConcurrency   int           `yaml:"global_concurrency"`
	JobDeadlineFull     time.Duration `yaml:"job_deadline_full"`
	JobDeadlinePriceOnly time.Duration `yaml:"job_deadline_price_only"`
}

// FetchConfig is §6's fetch.* keys.
type FetchConfig struct {
	UserAgent      string        `yaml:"user_agent"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	TotalDeadline  time.Duration `yaml:"total_deadline"`
	PoliteDelayMs  int           `yaml:"polite_delay_ms"`
	PoliteJitterMs int           `yaml:"polite_jitter_ms"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	MaxPagesPerRun int           `yaml:"max_pages_per_run"`
}

// RetryConfig is §6's retry.* keys.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	JitterPct   float64       `yaml:"jitter_pct"`
}

// LLMConfig is §6's llm.* keys.
type LLMConfig struct {
	EnabledGlobal        bool               `yaml:"enabled_global"`
	Endpoint             string             `yaml:"endpoint"`
	Model                string             `yaml:"model"`
	DailyBudget          int64              `yaml:"daily_budget"`
	FieldConfidenceFloors map[string]float64 `yaml:"field_confidence_floors"`
	CacheTTL             time.Duration      `yaml:"cache_ttl"`
	BudgetResetHour      int                `yaml:"budget_reset_hour"`
}

// ImageConfig is §6's image.* keys.
type ImageConfig struct {
	Concurrency int   `yaml:"concurrency"`
	MaxBytes    int64 `yaml:"max_bytes"`
}

// AlertsConfig is §6's alerts.* keys.
type AlertsConfig struct {
	PriceDeltaPct float64 `yaml:"price_delta_pct"`
}

// DBConfig tunes the Postgres connection pool. Grounded on the teacher's
// infrastructure/db.Config pool-sizing knobs, narrowed to the four knobs
// sql.DB itself exposes.
type DBConfig struct {
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// Config is the parsed global config.yaml.
type Config struct {
	Worker WorkerConfig `yaml:"worker"`
	Fetch  FetchConfig  `yaml:"fetch"`
	Retry  RetryConfig  `yaml:"retry"`
	LLM    LLMConfig    `yaml:"llm"`
	Image  ImageConfig  `yaml:"image"`
	Alerts AlertsConfig `yaml:"alerts"`
	DB     DBConfig     `yaml:"db"`
}

// defaults applies every spec §6 default for a zero-value field.
func (c *Config) defaults() {
	if c.Worker.GlobalConcurrency <= 0 {
		c.Worker.GlobalConcurrency = 16
	}
	if c.Worker.JobDeadlineFull <= 0 {
		c.Worker.JobDeadlineFull = 2 * time.Hour
	}
	if c.Worker.JobDeadlinePriceOnly <= 0 {
		c.Worker.JobDeadlinePriceOnly = 30 * time.Minute
	}
	if c.Fetch.ConnectTimeout <= 0 {
		c.Fetch.ConnectTimeout = 5 * time.Second
	}
	if c.Fetch.ReadTimeout <= 0 {
		c.Fetch.ReadTimeout = 15 * time.Second
	}
	if c.Fetch.TotalDeadline <= 0 {
		c.Fetch.TotalDeadline = 60 * time.Second
	}
	if c.Fetch.PoliteDelayMs <= 0 {
		c.Fetch.PoliteDelayMs = 250
	}
	if c.Fetch.PoliteJitterMs <= 0 {
		c.Fetch.PoliteJitterMs = 100
	}
	if c.Fetch.MaxBodyBytes <= 0 {
		c.Fetch.MaxBodyBytes = 5 * 1024 * 1024
	}
	if c.Fetch.MaxPagesPerRun <= 0 {
		c.Fetch.MaxPagesPerRun = 200
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 5
	}
	if c.Retry.BaseDelay <= 0 {
		c.Retry.BaseDelay = time.Second
	}
	if c.Retry.JitterPct <= 0 {
		c.Retry.JitterPct = 0.25
	}
	if c.LLM.CacheTTL <= 0 {
		c.LLM.CacheTTL = 24 * time.Hour
	}
	if c.LLM.Endpoint == "" {
		c.LLM.Endpoint = "https://api.openai.com"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.Image.Concurrency <= 0 {
		c.Image.Concurrency = 4
	}
	if c.Alerts.PriceDeltaPct <= 0 {
		c.Alerts.PriceDeltaPct = 0.10
	}
	if c.DB.MaxOpenConns <= 0 {
		c.DB.MaxOpenConns = 10
	}
	if c.DB.MaxIdleConns <= 0 {
		c.DB.MaxIdleConns = 5
	}
	if c.DB.ConnMaxLifetime <= 0 {
		c.DB.ConnMaxLifetime = 30 * time.Minute
	}
	if c.DB.ConnMaxIdleTime <= 0 {
		c.DB.ConnMaxIdleTime = 5 * time.Minute
	}
}

func (c *Config) validate() error {
	if c.Fetch.UserAgent == "" {
		return fmt.Errorf("fetch.user_agent is required")
	}
	return nil
}

// Load reads and validates the global config.yaml at path, applying
// every spec §6 default for an omitted key.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	c.defaults()
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &c, nil
}

// roasterYAML is the on-disk shape of one roasters.yaml entry; zero
// values mean "use the global/package default", applied via
// model.Roaster's Effective* methods.
type roasterYAML struct {
	ID            string  `yaml:"id"`
	DisplayName   string  `yaml:"display_name"`
	Hostname      string  `yaml:"hostname"`
	Platform      string  `yaml:"platform"`
	Currency      string  `yaml:"currency"`
	FullCadence   string  `yaml:"full_cadence"`
	PriceCadence  string  `yaml:"price_cadence"`
	Concurrency   int     `yaml:"concurrency"`
	FallbackOK    bool    `yaml:"fallback_enabled"`
	FallbackLeft  int64   `yaml:"fallback_budget"`
	LLMEnabled    bool    `yaml:"llm_enabled"`
	AlertDeltaPct float64 `yaml:"alert_price_delta_pct"`
}

type roastersFile struct {
	Roasters []roasterYAML `yaml:"roasters"`
}

// LoadRoasters reads roasters.yaml into model.Roaster entries. Roaster
// discovery itself is external input (spec §1 non-goals); this just
// parses the list an operator maintains.
func LoadRoasters(path string) ([]model.Roaster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading roasters file %s: %w", path, err)
	}
	var f roastersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing roasters file %s: %w", path, err)
	}

	roasters := make([]model.Roaster, 0, len(f.Roasters))
	for _, r := range f.Roasters {
		if r.ID == "" || r.Hostname == "" {
			return nil, fmt.Errorf("roaster entry missing id or hostname: %+v", r)
		}
		if r.Currency == "" {
			return nil, fmt.Errorf("roaster %s missing required currency", r.ID)
		}
		roasters = append(roasters, model.Roaster{
			ID:            r.ID,
			DisplayName:   r.DisplayName,
			Hostname:      r.Hostname,
			Platform:      model.Platform(r.Platform),
			Currency:      r.Currency,
			FullCadence:   r.FullCadence,
			PriceCadence:  r.PriceCadence,
			Concurrency:   r.Concurrency,
			FallbackOK:    r.FallbackOK,
			FallbackLeft:  r.FallbackLeft,
			LLMEnabled:    r.LLMEnabled,
			AlertDeltaPct: r.AlertDeltaPct,
		})
	}
	return roasters, nil
}
