package weather

import (
	"errors"
	"fmt"
)

// Kind names one of the persisted record types.
type Kind string

const (
	KindLocation       Kind = "WeatherLocation"
	KindCurrentWeather Kind = "CurrentWeather"
	KindMinutely       Kind = "MinutelyWeather"
	KindHourly         Kind = "HourlyWeather"
	KindDaily          Kind = "DailyWeather"
	KindAlert          Kind = "WeatherAlert"
	KindErrorLog       Kind = "WeatherErrorLog"
	KindAPICallLog     Kind = "APICallLog"
)

// AllKinds lists every record type in registration order.
var AllKinds = []Kind{
	KindLocation,
	KindCurrentWeather,
	KindMinutely,
	KindHourly,
	KindDaily,
	KindAlert,
	KindErrorLog,
	KindAPICallLog,
}

var defaultTables = map[Kind]string{
	KindLocation:       "weather_location",
	KindCurrentWeather: "current_weather",
	KindMinutely:       "minutely_weather",
	KindHourly:         "hourly_weather",
	KindDaily:          "daily_weather",
	KindAlert:          "weather_alert",
	KindErrorLog:       "weather_error_log",
	KindAPICallLog:     "api_call_log",
}

var (
	ErrModelNotConfigured = errors.New("model is not configured")
	ErrRateLimited        = errors.New("API call limit exceeded")
	ErrInvalidLocationRef = errors.New("invalid location reference")
)

// Models maps each enabled kind to the table that stores it.
// A kind missing from the map is treated as not configured.
type Models map[Kind]string

// DefaultModels enables every kind under its default table name.
func DefaultModels() Models {
	m := make(Models, len(defaultTables))
	for k, v := range defaultTables {
		m[k] = v
	}
	return m
}

// ParseKind validates a kind name coming from configuration or a URL.
func ParseKind(s string) (Kind, error) {
	for _, k := range AllKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown model %q", s)
}

// Has reports whether kind is configured.
func (m Models) Has(kind Kind) bool {
	_, ok := m[kind]
	return ok
}

// Table returns the table for kind, falling back to the default name.
func (m Models) Table(kind Kind) string {
	if t, ok := m[kind]; ok && t != "" {
		return t
	}
	return defaultTables[kind]
}

// Enabled returns the configured kinds in registration order.
func (m Models) Enabled() []Kind {
	out := make([]Kind, 0, len(m))
	for _, k := range AllKinds {
		if m.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

// RateLimit caps calls to one upstream API.
type RateLimit struct {
	CallsPerMinute int `yaml:"calls_per_minute" json:"calls_per_minute"`
	CallsPerMonth  int `yaml:"calls_per_month" json:"calls_per_month"`
}

// DefaultRateLimits mirrors the free One Call subscription.
func DefaultRateLimits() map[string]RateLimit {
	return map[string]RateLimit{
		OneCallAPI: {CallsPerMinute: 60, CallsPerMonth: 1000000},
	}
}

func notConfigured(kind Kind) error {
	return fmt.Errorf("%s %w", kind, ErrModelNotConfigured)
}
