package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/i474232898/owm-weather/internal/weather"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "owm.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("OWM_CONFIG_FILE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.FetchInterval != 15*time.Minute || cfg.HTTPTimeout != 10*time.Second {
		t.Errorf("unexpected durations %v %v", cfg.FetchInterval, cfg.HTTPTimeout)
	}
	if cfg.Port != "8080" || cfg.DatabasePath != "data/owm.db" || cfg.Units != weather.UnitsStandard {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if !cfg.UseBuiltinAdmin || cfg.ShowMap || cfg.UseUUID {
		t.Errorf("unexpected toggles %+v", cfg)
	}
	limit := cfg.RateLimits[weather.OneCallAPI]
	if limit.CallsPerMinute != 60 || limit.CallsPerMonth != 1000000 {
		t.Errorf("unexpected rate limit %+v", limit)
	}
	if len(cfg.Models.Enabled()) != len(weather.AllKinds) {
		t.Errorf("expected every model enabled, got %v", cfg.Models.Enabled())
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeFile(t, `
api_key: from-file
rate_limits:
  one_call:
    calls_per_minute: 10
    calls_per_month: 500
model_mappings:
  WeatherLocation: places
  CurrentWeather: current_weather
  APICallLog: api_call_log
show_map: true
units: metric
exclude: [minutely, alerts]
fetch_schedule: "*/30 * * * *"
`)
	t.Setenv("OWM_CONFIG_FILE", path)
	t.Setenv("OWM_API_KEY", "from-env")
	t.Setenv("OWM_CALLS_PER_MINUTE", "5")
	t.Setenv("OWM_USE_UUID", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIKey != "from-env" {
		t.Errorf("env should override file, got %q", cfg.APIKey)
	}
	limit := cfg.RateLimits[weather.OneCallAPI]
	if limit.CallsPerMinute != 5 || limit.CallsPerMonth != 500 {
		t.Errorf("unexpected rate limit %+v", limit)
	}
	if !cfg.ShowMap || !cfg.UseUUID || cfg.Units != weather.UnitsMetric {
		t.Errorf("unexpected toggles %+v", cfg)
	}
	if strings.Join(cfg.Exclude, ",") != "minutely,alerts" {
		t.Errorf("unexpected exclude %v", cfg.Exclude)
	}
	if cfg.Models.Table(weather.KindLocation) != "places" {
		t.Errorf("unexpected location table %q", cfg.Models.Table(weather.KindLocation))
	}
	if cfg.Models.Has(weather.KindHourly) {
		t.Error("kinds missing from model_mappings must be disabled")
	}
	if cfg.FetchSchedule != "*/30 * * * *" {
		t.Errorf("unexpected schedule %q", cfg.FetchSchedule)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
		want string
	}{
		{name: "bad units", body: "units: kelvin\n", want: "invalid units"},
		{name: "bad exclude", body: "exclude: [weekly]\n", want: "invalid exclude"},
		{name: "bad schedule", body: "fetch_schedule: every day\n", want: "invalid fetch_schedule"},
		{name: "bad model", body: "model_mappings:\n  Forecast: forecast\n", want: "unknown model"},
		{name: "bad table", body: "model_mappings:\n  WeatherLocation: \"drop table\"\n", want: "invalid table name"},
		{name: "bad interval", env: map[string]string{"FETCH_INTERVAL": "soon"}, want: "invalid FETCH_INTERVAL"},
		{name: "zero limit", body: "rate_limits:\n  one_call:\n    calls_per_minute: 0\n    calls_per_month: 1\n", want: "must be positive"},
		{name: "bad bool", env: map[string]string{"OWM_SHOW_MAP": "maybe"}, want: "invalid OWM_SHOW_MAP"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OWM_CONFIG_FILE", writeFile(t, tt.body))
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Setenv("OWM_CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}
