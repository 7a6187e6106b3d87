package weather

import (
	"time"

	"github.com/google/uuid"
)

// Units is the unit system requested from the One Call API.
type Units string

const (
	UnitsStandard Units = "standard"
	UnitsMetric   Units = "metric"
	UnitsImperial Units = "imperial"
)

// Valid reports whether u is one of the units the API understands.
func (u Units) Valid() bool {
	switch u {
	case UnitsStandard, UnitsMetric, UnitsImperial:
		return true
	}
	return false
}

// Location is a place for which weather data is collected.
// Latitude must be within [-90, 90] and longitude within [-180, 180].
type Location struct {
	ID             int64      `json:"id"`
	UUID           *uuid.UUID `json:"uuid,omitempty"`
	Name           string     `json:"name"`
	Latitude       float64    `json:"latitude"`
	Longitude      float64    `json:"longitude"`
	Timezone       string     `json:"timezone,omitempty"`
	TimezoneOffset *int       `json:"timezone_offset,omitempty"` // seconds from UTC
}

// Condition is the flattened first entry of the API "weather" array.
type Condition struct {
	ID          *int   `json:"weather_condition_id,omitempty"`
	Main        string `json:"weather_condition_main,omitempty"`
	Description string `json:"weather_condition_description,omitempty"`
	Icon        string `json:"weather_condition_icon,omitempty"`
}

// Observation holds the fields shared by current, hourly and daily records.
type Observation struct {
	ID         int64      `json:"id"`
	UUID       *uuid.UUID `json:"uuid,omitempty"`
	LocationID int64      `json:"location_id"`
	Timestamp  time.Time  `json:"timestamp"` // always UTC
	Pressure   *int       `json:"pressure,omitempty"`
	Humidity   *int       `json:"humidity,omitempty"`
	DewPoint   *float64   `json:"dew_point,omitempty"`
	UVI        *float64   `json:"uvi,omitempty"`
	Clouds     *int       `json:"clouds,omitempty"`
	WindSpeed  *float64   `json:"wind_speed,omitempty"`
	WindDeg    *int       `json:"wind_deg,omitempty"`
	WindGust   *float64   `json:"wind_gust,omitempty"`
	Condition
}

type CurrentWeather struct {
	Observation
	Sunrise    *time.Time `json:"sunrise,omitempty"`
	Sunset     *time.Time `json:"sunset,omitempty"`
	Temp       *float64   `json:"temp,omitempty"`
	FeelsLike  *float64   `json:"feels_like,omitempty"`
	Visibility *int       `json:"visibility,omitempty"`
	Rain1h     *float64   `json:"rain_1h,omitempty"` // mm/h
	Snow1h     *float64   `json:"snow_1h,omitempty"` // mm/h
}

type MinutelyWeather struct {
	ID            int64      `json:"id"`
	UUID          *uuid.UUID `json:"uuid,omitempty"`
	LocationID    int64      `json:"location_id"`
	Timestamp     time.Time  `json:"timestamp"`
	Precipitation float64    `json:"precipitation"`
}

type HourlyWeather struct {
	Observation
	Temp       *float64 `json:"temp,omitempty"`
	FeelsLike  *float64 `json:"feels_like,omitempty"`
	Visibility *int     `json:"visibility,omitempty"`
	Pop        *float64 `json:"pop,omitempty"`
	Rain1h     *float64 `json:"rain_1h,omitempty"`
	Snow1h     *float64 `json:"snow_1h,omitempty"`
}

type DailyWeather struct {
	Observation
	Sunrise        *time.Time `json:"sunrise,omitempty"`
	Sunset         *time.Time `json:"sunset,omitempty"`
	Moonrise       *time.Time `json:"moonrise,omitempty"`
	Moonset        *time.Time `json:"moonset,omitempty"`
	MoonPhase      *float64   `json:"moon_phase,omitempty"`
	Summary        string     `json:"summary,omitempty"`
	TempMin        *float64   `json:"temp_min,omitempty"`
	TempMax        *float64   `json:"temp_max,omitempty"`
	TempMorn       *float64   `json:"temp_morn,omitempty"`
	TempDay        *float64   `json:"temp_day,omitempty"`
	TempEve        *float64   `json:"temp_eve,omitempty"`
	TempNight      *float64   `json:"temp_night,omitempty"`
	FeelsLikeMorn  *float64   `json:"feels_like_morn,omitempty"`
	FeelsLikeDay   *float64   `json:"feels_like_day,omitempty"`
	FeelsLikeEve   *float64   `json:"feels_like_eve,omitempty"`
	FeelsLikeNight *float64   `json:"feels_like_night,omitempty"`
	Pop            *float64   `json:"pop,omitempty"`
	Rain           *float64   `json:"rain,omitempty"`
	Snow           *float64   `json:"snow,omitempty"`
}

// MoonPhaseDescription names the moon phase of the day, if known.
func (d DailyWeather) MoonPhaseDescription() string {
	if d.MoonPhase == nil {
		return MoonPhaseDescription(-1)
	}
	return MoonPhaseDescription(*d.MoonPhase)
}

// WeatherAlert is a national weather alert active between Start and End.
type WeatherAlert struct {
	ID          int64      `json:"id"`
	UUID        *uuid.UUID `json:"uuid,omitempty"`
	LocationID  int64      `json:"location_id"`
	SenderName  string     `json:"sender_name"`
	Event       string     `json:"event"`
	Start       time.Time  `json:"start"`
	End         time.Time  `json:"end"`
	Description string     `json:"description"`
	Tags        []string   `json:"tags"`
}

// ActiveAt reports whether the alert has not yet ended at t.
func (a WeatherAlert) ActiveAt(t time.Time) bool {
	return !a.End.Before(t)
}

// WeatherErrorLog records a failed fetch for a location.
type WeatherErrorLog struct {
	ID           int64      `json:"id"`
	UUID         *uuid.UUID `json:"uuid,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
	LocationID   int64      `json:"location_id"`
	APIName      string     `json:"api_name"`
	ErrorMessage string     `json:"error_message"`
	ResponseData string     `json:"response_data,omitempty"`
}

// APICallLog records one successful upstream call; rate limits count these rows.
type APICallLog struct {
	ID        int64      `json:"id"`
	UUID      *uuid.UUID `json:"uuid,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	APIName   string     `json:"api_name"`
	Units     Units      `json:"units"`
}

// Forecast bundles the upcoming hourly and daily records of a location.
type Forecast struct {
	Hourly []HourlyWeather `json:"hourly_forecast"`
	Daily  []DailyWeather  `json:"daily_forecast"`
}

// MoonPhaseDescription maps the API moon phase fraction to a name.
// 0 and 1 are a new moon, 0.25 first quarter, 0.5 full moon and 0.75 last
// quarter; values in between are the waxing/waning phases.
func MoonPhaseDescription(phase float64) string {
	switch {
	case phase == 0 || phase == 1:
		return "New Moon"
	case phase == 0.25:
		return "First Quarter"
	case phase == 0.5:
		return "Full Moon"
	case phase == 0.75:
		return "Last Quarter"
	case phase > 0 && phase < 0.25:
		return "Waxing Crescent"
	case phase > 0.25 && phase < 0.5:
		return "Waxing Gibbous"
	case phase > 0.5 && phase < 0.75:
		return "Waning Gibbous"
	case phase > 0.75 && phase < 1:
		return "Waning Crescent"
	default:
		return "Unknown"
	}
}
