// Package config loads runtime settings from the environment and resolves
// Moodle instance endpoints.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/and161185/moodle-elt/internal/errs"
	"github.com/and161185/moodle-elt/internal/record"
)

// Supported storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Settings is the resolved runtime configuration.
type Settings struct {
	Instance          string
	InstancePrefix    string
	DBDriver          string
	DSN               string
	RateLimitDelay    time.Duration
	MaxRetries        int
	Timeout           time.Duration
	RequestsPerSecond float64
	MetricsAddr       string
	Entities          []string
}

// New returns a viper instance bound to the environment with defaults applied.
func New() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("elt_instance", DefaultInstancePrefix+"1")
	v.SetDefault("elt_instance_prefix", DefaultInstancePrefix)
	v.SetDefault("elt_db_driver", DriverPostgres)
	v.SetDefault("elt_dsn", "")
	v.SetDefault("elt_rate_limit_delay", time.Second)
	v.SetDefault("elt_max_retries", 3)
	v.SetDefault("elt_timeout", 30*time.Second)
	v.SetDefault("elt_requests_per_second", 0.0)
	v.SetDefault("elt_metrics_addr", "")
	v.SetDefault("elt_entities", "")
	return v
}

// FromViper validates and converts the values held by v.
func FromViper(v *viper.Viper) (Settings, error) {
	s := Settings{
		Instance:          strings.TrimSpace(v.GetString("elt_instance")),
		InstancePrefix:    strings.TrimSpace(v.GetString("elt_instance_prefix")),
		DBDriver:          strings.ToLower(strings.TrimSpace(v.GetString("elt_db_driver"))),
		DSN:               strings.TrimSpace(v.GetString("elt_dsn")),
		RateLimitDelay:    v.GetDuration("elt_rate_limit_delay"),
		MaxRetries:        v.GetInt("elt_max_retries"),
		Timeout:           v.GetDuration("elt_timeout"),
		RequestsPerSecond: v.GetFloat64("elt_requests_per_second"),
		MetricsAddr:       strings.TrimSpace(v.GetString("elt_metrics_addr")),
	}

	if s.Instance == "" {
		return Settings{}, fmt.Errorf("%w: ELT_INSTANCE cannot be empty", errs.ErrConfiguration)
	}
	switch s.DBDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return Settings{}, fmt.Errorf("%w: unsupported ELT_DB_DRIVER %q", errs.ErrConfiguration, s.DBDriver)
	}
	if s.RateLimitDelay < 0 {
		return Settings{}, fmt.Errorf("%w: ELT_RATE_LIMIT_DELAY must not be negative", errs.ErrConfiguration)
	}
	if s.MaxRetries < 0 {
		return Settings{}, fmt.Errorf("%w: ELT_MAX_RETRIES must not be negative", errs.ErrConfiguration)
	}
	if s.Timeout <= 0 {
		return Settings{}, fmt.Errorf("%w: ELT_TIMEOUT must be positive", errs.ErrConfiguration)
	}
	if s.RequestsPerSecond < 0 {
		return Settings{}, fmt.Errorf("%w: ELT_REQUESTS_PER_SECOND must not be negative", errs.ErrConfiguration)
	}

	entities, err := ParseEntities(v.GetString("elt_entities"))
	if err != nil {
		return Settings{}, err
	}
	s.Entities = entities
	return s, nil
}

// ParseEntities turns a comma list of entity labels (singular or plural) into
// known plural labels in extraction order. An empty list selects every entity.
func ParseEntities(list string) ([]string, error) {
	known := record.Entities()
	parts := splitList(list)
	if len(parts) == 0 {
		return known, nil
	}

	valid := make(map[string]bool, len(known))
	for _, e := range known {
		valid[e] = true
	}
	selected := make(map[string]bool, len(parts))
	for _, p := range parts {
		e := record.Plural(p)
		if !valid[e] {
			return nil, fmt.Errorf("%w: unknown entity %q", errs.ErrConfiguration, p)
		}
		selected[e] = true
	}

	out := make([]string, 0, len(selected))
	for _, e := range known {
		if selected[e] {
			out = append(out, e)
		}
	}
	return out, nil
}

// Resolver returns the instance resolver for these settings.
func (s Settings) Resolver() Resolver {
	return Resolver{Prefix: s.InstancePrefix}
}
