package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/i474232898/owm-weather/internal/common"
	"github.com/i474232898/owm-weather/internal/weather"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const defaultConfigFile = "owm.yaml"

// AppConfig mirrors the OWM settings file plus the runtime knobs of the service.
type AppConfig struct {
	APIKey          string                       `yaml:"api_key"`
	RateLimits      map[string]weather.RateLimit `yaml:"rate_limits"`
	ModelMappings   map[string]string            `yaml:"model_mappings"`
	UseBuiltinAdmin bool                         `yaml:"use_builtin_admin"`
	ShowMap         bool                         `yaml:"show_map"`
	UseUUID         bool                         `yaml:"use_uuid"`
	Units           weather.Units                `yaml:"units"`
	Exclude         []string                     `yaml:"exclude"`

	// FetchInterval controls how often all locations are fetched.
	// FetchSchedule, a standard cron expression, wins when set.
	FetchInterval time.Duration `yaml:"-"`
	FetchSchedule string        `yaml:"fetch_schedule"`

	DatabasePath   string        `yaml:"database_path"`
	HTTPTimeout    time.Duration `yaml:"-"`
	Port           string        `yaml:"port"`
	GeocoderAPIKey string        `yaml:"geocoder_api_key"`

	RawFetchInterval string `yaml:"fetch_interval"`
	RawHTTPTimeout   string `yaml:"http_timeout"`

	// Models is the parsed form of ModelMappings.
	Models weather.Models `yaml:"-"`
}

var validExclude = map[string]bool{
	"current": true, "minutely": true, "hourly": true, "daily": true, "alerts": true,
}

// Default returns the configuration used when nothing is set.
func Default() *AppConfig {
	mappings := make(map[string]string)
	for kind, table := range weather.DefaultModels() {
		mappings[string(kind)] = table
	}
	return &AppConfig{
		RateLimits:       weather.DefaultRateLimits(),
		ModelMappings:    mappings,
		UseBuiltinAdmin:  true,
		Units:            weather.UnitsStandard,
		RawFetchInterval: "15m",
		DatabasePath:     "data/owm.db",
		RawHTTPTimeout:   "10s",
		Port:             "8080",
	}
}

// Load reads .env, the optional YAML settings file and environment overrides.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	cfg := Default()

	path := os.Getenv("OWM_CONFIG_FILE")
	explicit := path != ""
	if !explicit {
		path = defaultConfigFile
	}
	if err := cfg.loadFile(path, explicit); err != nil {
		return nil, err
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *AppConfig) loadFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	// Maps given in the file replace the defaults instead of merging into them,
	// so leaving a model out of model_mappings disables it.
	limits, mappings := c.RateLimits, c.ModelMappings
	c.RateLimits, c.ModelMappings = nil, nil
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if c.RateLimits == nil {
		c.RateLimits = limits
	}
	if c.ModelMappings == nil {
		c.ModelMappings = mappings
	}
	log.Printf("INFO: loaded settings from %s", path)
	return nil
}

func (c *AppConfig) applyEnv() error {
	c.APIKey = getenvDefault("OWM_API_KEY", c.APIKey)
	c.GeocoderAPIKey = getenvDefault("GOOGLE_GEOCODER_API_KEY", c.GeocoderAPIKey)
	c.Units = weather.Units(getenvDefault("OWM_UNITS", string(c.Units)))
	c.FetchSchedule = getenvDefault("FETCH_SCHEDULE", c.FetchSchedule)
	c.RawFetchInterval = getenvDefault("FETCH_INTERVAL", c.RawFetchInterval)
	c.RawHTTPTimeout = getenvDefault("HTTP_TIMEOUT", c.RawHTTPTimeout)
	c.DatabasePath = getenvDefault("DATABASE_PATH", c.DatabasePath)
	c.Port = getenvDefault("PORT", c.Port)
	if v := os.Getenv("OWM_EXCLUDE"); v != "" {
		c.Exclude = common.SplitList(v)
	}

	limit := c.RateLimits[weather.OneCallAPI]
	limit.CallsPerMinute = getenvInt("OWM_CALLS_PER_MINUTE", limit.CallsPerMinute)
	limit.CallsPerMonth = getenvInt("OWM_CALLS_PER_MONTH", limit.CallsPerMonth)
	if c.RateLimits == nil {
		c.RateLimits = make(map[string]weather.RateLimit)
	}
	c.RateLimits[weather.OneCallAPI] = limit

	var err error
	if c.UseBuiltinAdmin, err = getenvBool("OWM_USE_BUILTIN_ADMIN", c.UseBuiltinAdmin); err != nil {
		return err
	}
	if c.ShowMap, err = getenvBool("OWM_SHOW_MAP", c.ShowMap); err != nil {
		return err
	}
	if c.UseUUID, err = getenvBool("OWM_USE_UUID", c.UseUUID); err != nil {
		return err
	}
	return nil
}

// finalize parses derived fields and validates the result.
func (c *AppConfig) finalize() error {
	interval, err := time.ParseDuration(c.RawFetchInterval)
	if err != nil {
		return fmt.Errorf("invalid FETCH_INTERVAL: %w", err)
	}
	if interval <= 0 {
		return fmt.Errorf("invalid FETCH_INTERVAL: must be positive")
	}
	c.FetchInterval = interval

	timeout, err := time.ParseDuration(c.RawHTTPTimeout)
	if err != nil {
		return fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}
	c.HTTPTimeout = timeout

	if c.FetchSchedule != "" {
		if _, err := cron.ParseStandard(c.FetchSchedule); err != nil {
			return fmt.Errorf("invalid fetch_schedule %q: %w", c.FetchSchedule, err)
		}
	}

	if c.Units == "" {
		c.Units = weather.UnitsStandard
	}
	if !c.Units.Valid() {
		return fmt.Errorf("invalid units %q: expected standard, metric or imperial", c.Units)
	}

	for i, part := range c.Exclude {
		part = strings.ToLower(strings.TrimSpace(part))
		if !validExclude[part] {
			return fmt.Errorf("invalid exclude part %q", part)
		}
		c.Exclude[i] = part
	}

	for api, limit := range c.RateLimits {
		if limit.CallsPerMinute <= 0 || limit.CallsPerMonth <= 0 {
			return fmt.Errorf("rate limits for %s must be positive", api)
		}
	}

	models := make(weather.Models, len(c.ModelMappings))
	for name, table := range c.ModelMappings {
		kind, err := weather.ParseKind(name)
		if err != nil {
			return fmt.Errorf("model_mappings: %w", err)
		}
		if table == "" {
			continue
		}
		if !validTableName(table) {
			return fmt.Errorf("model_mappings: invalid table name %q for %s", table, name)
		}
		models[kind] = table
	}
	c.Models = models
	return nil
}

// validTableName guards table names that end up in SQL text.
func validTableName(s string) bool {
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return s != ""
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
		log.Printf("WARNING: ignoring invalid %s=%q", key, v)
	}
	return def
}

func getenvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
