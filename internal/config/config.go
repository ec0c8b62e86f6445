// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and environment variables over the defaults.
// - External errors are wrapped with this package's sentinel errors.
package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/okian/cohort/internal/domain/model"
	"github.com/okian/cohort/internal/domain/scoring"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Notification drivers.
const (
	NotifyLog  = "log"
	NotifySMTP = "smtp"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// ServiceName is reported to the tracing backend.
	ServiceName string `koanf:"service_name"`

	// OTelEndpoint enables OTLP/HTTP trace export when set.
	OTelEndpoint string `koanf:"otel_endpoint"`

	// StoreDriver selects persistence: memory, sqlite or postgres.
	StoreDriver string `koanf:"store_driver"`
	SQLitePath  string `koanf:"sqlite_path"`
	PostgresDSN string `koanf:"postgres_dsn"`

	// StageBatchSize bounds how many stage moves share one transaction.
	StageBatchSize int `koanf:"stage_batch_size"`

	// NotifyDriver selects the sender: log or smtp.
	NotifyDriver string `koanf:"notify_driver"`

	// NotifyWorkers is the number of notification workers.
	NotifyWorkers int `koanf:"notify_workers"`

	// NotifyQueueSize bounds the in-memory notification queue.
	NotifyQueueSize int `koanf:"notify_queue_size"`

	// NotifyRatePerSecond and NotifyBurst throttle outgoing sends.
	NotifyRatePerSecond float64 `koanf:"notify_rate_per_second"`
	NotifyBurst         int     `koanf:"notify_burst"`

	SMTPHost     string `koanf:"smtp_host"`
	SMTPPort     int    `koanf:"smtp_port"`
	SMTPUsername string `koanf:"smtp_username"`
	SMTPPassword string `koanf:"smtp_password"`
	SMTPFrom     string `koanf:"smtp_from"`

	// Admins is the reviewer roster seeded into the store at startup.
	Admins []model.Admin `koanf:"admins"`

	// DefaultMinReviewers seeds min_reviewers_required of new phase configs.
	DefaultMinReviewers int `koanf:"default_min_reviewers"`

	// DefaultScoring overrides the built-in rubric per phase when phase
	// configs are initialized.
	DefaultScoring map[string][]model.ScoringCategory `koanf:"default_scoring"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		Addr:                ":9080",
		ServiceName:         "cohort",
		StoreDriver:         StoreMemory,
		SQLitePath:          "cohort.db",
		StageBatchSize:      200,
		NotifyDriver:        NotifyLog,
		NotifyWorkers:       runtime.NumCPU(),
		NotifyQueueSize:     10_000,
		NotifyRatePerSecond: 10,
		NotifyBurst:         5,
		SMTPPort:            587,
		DefaultMinReviewers: 1,
		DefaultScoring:      map[string][]model.ScoringCategory{},
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}
	if c.Addr == "" {
		return invalid("addr must not be empty")
	}
	switch c.StoreDriver {
	case StoreMemory:
	case StoreSQLite:
		if c.SQLitePath == "" {
			return invalid("sqlite_path is required for the sqlite store")
		}
	case StorePostgres:
		if c.PostgresDSN == "" {
			return invalid("postgres_dsn is required for the postgres store")
		}
	default:
		return fmt.Errorf("store_driver %q: %w", c.StoreDriver, ErrUnknownDriver)
	}
	switch c.NotifyDriver {
	case NotifyLog:
	case NotifySMTP:
		if c.SMTPHost == "" || c.SMTPFrom == "" {
			return invalid("smtp_host and smtp_from are required for the smtp notifier")
		}
	default:
		return fmt.Errorf("notify_driver %q: %w", c.NotifyDriver, ErrUnknownDriver)
	}
	if c.StageBatchSize <= 0 {
		return invalid("stage_batch_size must be positive")
	}
	if c.NotifyWorkers <= 0 || c.NotifyQueueSize <= 0 {
		return invalid("notify_workers and notify_queue_size must be positive")
	}
	if c.DefaultMinReviewers < 0 {
		return invalid("default_min_reviewers must not be negative")
	}
	if c.NotifyRatePerSecond <= 0 || c.NotifyBurst <= 0 {
		return invalid("notify_rate_per_second and notify_burst must be positive")
	}
	for i, a := range c.Admins {
		if strings.TrimSpace(a.Email) == "" {
			return invalid("admins[%d].email must not be empty", i)
		}
	}
	for phase, cats := range c.DefaultScoring {
		if _, err := model.ParsePhase(phase); err != nil {
			return invalid("default_scoring: %v", err)
		}
		if err := scoring.Validate(cats); err != nil {
			return invalid("default_scoring.%s: %v", phase, err)
		}
	}
	return nil
}

// ScoringFor returns the configured rubric for phase, falling back to the
// built-in one.
func (c *Config) ScoringFor(phase model.Phase) []model.ScoringCategory {
	if cats, ok := c.DefaultScoring[string(phase)]; ok && len(cats) > 0 {
		return cats
	}
	return scoring.DefaultCategories(phase)
}
