package file

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/caseflow/internal/core/domain"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CASEFLOW_"

// Duration is a time.Duration written as a Go duration string ("45m").
type Duration time.Duration

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText renders the duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the standard library duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the complete process configuration.
type Config struct {
	// DataDir holds the sqlite database. Defaults to ~/.caseflow/data.
	DataDir string `toml:"data_dir" env:"DATA_DIR"`

	// Secret is the process secret session keys are derived from.
	Secret string `toml:"secret" env:"SECRET"`

	Log        LogConfig                 `toml:"log" envPrefix:"LOG_"`
	Bus        BusConfig                 `toml:"bus" envPrefix:"BUS_"`
	Hub        HubConfig                 `toml:"hub" envPrefix:"HUB_"`
	Pipeline   PipelineConfig            `toml:"pipeline" envPrefix:"PIPELINE_"`
	Sessions   SessionsConfig            `toml:"sessions" envPrefix:"SESSIONS_"`
	Providers  map[string]ProviderConfig `toml:"providers"`
	Google     GoogleConfig              `toml:"google" envPrefix:"GOOGLE_"`
	Artifacts  ArtifactsConfig           `toml:"artifacts" envPrefix:"ARTIFACTS_"`
	Intake     IntakeConfig              `toml:"intake" envPrefix:"INTAKE_"`
	HTTP       HTTPConfig                `toml:"http" envPrefix:"HTTP_"`
	NATS       NATSConfig                `toml:"nats" envPrefix:"NATS_"`
	Timeline   TimelineConfig            `toml:"timeline" envPrefix:"TIMELINE_"`
	Violations ViolationsConfig          `toml:"violations" envPrefix:"VIOLATIONS_"`
	Scheduler  SchedulerConfig           `toml:"scheduler" envPrefix:"SCHEDULER_"`
}

// LogConfig configures the rotated JSON log file.
type LogConfig struct {
	File       string `toml:"file" env:"FILE"`
	MaxSizeMB  int    `toml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `toml:"max_backups" env:"MAX_BACKUPS"`
	MaxAgeDays int    `toml:"max_age_days" env:"MAX_AGE_DAYS"`
	Compress   bool   `toml:"compress" env:"COMPRESS"`
}

// BusConfig configures the event bus.
type BusConfig struct {
	DrainTimeout Duration `toml:"drain_timeout" env:"DRAIN_TIMEOUT"`
}

// HubConfig configures the module registry.
type HubConfig struct {
	Workers int `toml:"workers" env:"WORKERS"`
}

// PipelineConfig configures the document pipeline.
type PipelineConfig struct {
	Workers        int      `toml:"workers" env:"WORKERS"`
	MaxAttempts    int      `toml:"max_attempts" env:"MAX_ATTEMPTS"`
	InitialBackoff Duration `toml:"initial_backoff" env:"INITIAL_BACKOFF"`
	MaxBackoff     Duration `toml:"max_backoff" env:"MAX_BACKOFF"`
	AttemptTimeout Duration `toml:"attempt_timeout" env:"ATTEMPT_TIMEOUT"`

	// Enrichers names the field enrichers run over extracted text, in order.
	// Empty runs the built-in set.
	Enrichers        []string                  `toml:"enrichers" env:"ENRICHERS"`
	EnricherSettings map[string]map[string]any `toml:"enricher_settings"`
}

// Session store backends.
const (
	SessionStoreSQLite = "sqlite"
	SessionStoreRedis  = "redis"
	SessionStoreMemory = "memory"
)

// SessionsConfig configures the session manager and its store.
type SessionsConfig struct {
	RefreshThreshold Duration `toml:"refresh_threshold" env:"REFRESH_THRESHOLD"`
	Store            string   `toml:"store" env:"STORE"`
	RedisURL         string   `toml:"redis_url" env:"REDIS_URL"`
	RedisPrefix      string   `toml:"redis_prefix" env:"REDIS_PREFIX"`
}

// ProviderConfig is one OAuth client registration.
type ProviderConfig struct {
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"`
	TokenURL     string   `toml:"token_url"`
	AuthURL      string   `toml:"auth_url"`
	Scopes       []string `toml:"scopes"`
}

// GoogleConfig tunes the Drive export extractor.
type GoogleConfig struct {
	RequestsPerSecond float64 `toml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	Burst             int     `toml:"burst" env:"BURST"`
}

// Artifact store backends.
const (
	ArtifactsFS     = "fs"
	ArtifactsGCS    = "gcs"
	ArtifactsMemory = "memory"
)

// ArtifactsConfig selects where raw uploads are kept.
type ArtifactsConfig struct {
	Backend string `toml:"backend" env:"BACKEND"`
	Dir     string `toml:"dir" env:"DIR"`
	Bucket  string `toml:"bucket" env:"BUCKET"`
	Prefix  string `toml:"prefix" env:"PREFIX"`
}

// IntakeConfig configures the watched intake directory.
type IntakeConfig struct {
	Enabled  bool     `toml:"enabled" env:"ENABLED"`
	Dir      string   `toml:"dir" env:"DIR"`
	Debounce Duration `toml:"debounce" env:"DEBOUNCE"`
}

// HTTPConfig configures the HTTP invocation surface.
type HTTPConfig struct {
	Enabled   bool   `toml:"enabled" env:"ENABLED"`
	Addr      string `toml:"addr" env:"ADDR"`
	JWTSecret string `toml:"jwt_secret" env:"JWT_SECRET"`
	JWTIssuer string `toml:"jwt_issuer" env:"JWT_ISSUER"`
}

// NATSConfig configures the optional out-of-process event relay.
type NATSConfig struct {
	URL string `toml:"url" env:"URL"`
}

// TimelineConfig configures the timeline module.
type TimelineConfig struct {
	DeadlineWindow Duration `toml:"deadline_window" env:"DEADLINE_WINDOW"`
}

// ViolationsConfig sets the limits lease rules check against.
type ViolationsConfig struct {
	MaxDepositMonths float64 `toml:"max_deposit_months" env:"MAX_DEPOSIT_MONTHS"`
	MinNoticeDays    int     `toml:"min_notice_days" env:"MIN_NOTICE_DAYS"`
}

// SchedulerConfig configures background tasks.
type SchedulerConfig struct {
	Enabled                bool     `toml:"enabled" env:"ENABLED"`
	SessionRefreshInterval Duration `toml:"session_refresh_interval" env:"SESSION_REFRESH_INTERVAL"`
	PipelineResumeInterval Duration `toml:"pipeline_resume_interval" env:"PIPELINE_RESUME_INTERVAL"`
}

// Default returns the configuration used when no file or override sets a value.
func Default() Config {
	return Config{
		Log: LogConfig{MaxSizeMB: 50, MaxBackups: 5, MaxAgeDays: 30},
		Bus: BusConfig{DrainTimeout: Duration(10 * time.Second)},
		Hub: HubConfig{Workers: 8},
		Pipeline: PipelineConfig{
			Workers:        4,
			MaxAttempts:    3,
			InitialBackoff: Duration(500 * time.Millisecond),
			MaxBackoff:     Duration(30 * time.Second),
			AttemptTimeout: Duration(2 * time.Minute),
		},
		Sessions: SessionsConfig{
			RefreshThreshold: Duration(5 * time.Minute),
			Store:            SessionStoreSQLite,
		},
		Google:     GoogleConfig{RequestsPerSecond: 8, Burst: 10},
		Artifacts:  ArtifactsConfig{Backend: ArtifactsFS},
		Intake:     IntakeConfig{Debounce: Duration(500 * time.Millisecond)},
		HTTP:       HTTPConfig{Addr: "127.0.0.1:8780", JWTIssuer: "caseflow"},
		Timeline:   TimelineConfig{DeadlineWindow: Duration(14 * 24 * time.Hour)},
		Violations: ViolationsConfig{MaxDepositMonths: 2, MinNoticeDays: 30},
		Scheduler: SchedulerConfig{
			Enabled:                true,
			SessionRefreshInterval: Duration(45 * time.Minute),
			PipelineResumeInterval: Duration(time.Minute),
		},
	}
}

// DefaultPath returns ~/.caseflow/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".caseflow", "config.toml"), nil
}

// Load builds the configuration: defaults, then the TOML file at path (a
// missing file is fine), then CASEFLOW_* environment overrides. An empty
// path uses DefaultPath.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("resolving config path: %w", err)
		}
		path = p
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	default:
		if err := decode(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// decode rejects keys the Config does not know, so typos surface.
func decode(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}

// Save writes cfg as TOML, readable only by the owner since it can hold
// secrets.
func Save(path string, cfg *Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// Validate checks enumerations and required companions.
func (c *Config) Validate() error {
	var problems []string
	switch c.Sessions.Store {
	case SessionStoreSQLite, SessionStoreMemory:
	case SessionStoreRedis:
		if c.Sessions.RedisURL == "" {
			problems = append(problems, "sessions.redis_url is required for the redis store")
		}
	default:
		problems = append(problems, fmt.Sprintf("sessions.store %q is not one of sqlite, redis, memory", c.Sessions.Store))
	}
	switch c.Artifacts.Backend {
	case ArtifactsFS, ArtifactsMemory:
	case ArtifactsGCS:
		if c.Artifacts.Bucket == "" {
			problems = append(problems, "artifacts.bucket is required for the gcs backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("artifacts.backend %q is not one of fs, gcs, memory", c.Artifacts.Backend))
	}
	if c.HTTP.Enabled && c.HTTP.JWTSecret == "" {
		problems = append(problems, "http.jwt_secret is required when http is enabled")
	}
	if c.Intake.Enabled && c.Intake.Dir == "" {
		problems = append(problems, "intake.dir is required when intake is enabled")
	}
	for name, p := range c.Providers {
		if p.ClientID == "" {
			problems = append(problems, fmt.Sprintf("providers.%s.client_id is required", name))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}
