package weather

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Client abstracts the OpenWeatherMap One Call endpoint.
type Client interface {
	Name() string
	OneCall(ctx context.Context, lat, lon float64, exclude []string) (*OneCallResponse, error)
}

// Query narrows list operations. A zero LocationID matches every location,
// a zero Since matches any timestamp.
type Query struct {
	LocationID int64
	Since      time.Time
	Newest     bool // newest first instead of oldest first
}

// Store is the contract both the in-memory and SQLite stores satisfy.
// Lookups of missing rows return store.ErrNotFound.
type Store interface {
	CreateLocation(ctx context.Context, loc *Location) error
	UpdateLocation(ctx context.Context, loc *Location) error
	// DeleteLocation removes the location and every record that references it.
	DeleteLocation(ctx context.Context, id int64) error
	GetLocation(ctx context.Context, id int64) (Location, error)
	GetLocationByUUID(ctx context.Context, id uuid.UUID) (Location, error)
	ListLocations(ctx context.Context) ([]Location, error)

	SaveCurrentWeather(ctx context.Context, w *CurrentWeather) error
	SaveMinutelyWeather(ctx context.Context, w *MinutelyWeather) error
	SaveHourlyWeather(ctx context.Context, w *HourlyWeather) error
	SaveDailyWeather(ctx context.Context, w *DailyWeather) error
	SaveAlert(ctx context.Context, a *WeatherAlert) error
	SaveErrorLog(ctx context.Context, e *WeatherErrorLog) error
	SaveAPICall(ctx context.Context, c *APICallLog) error

	CurrentWeather(ctx context.Context, q Query) ([]CurrentWeather, error)
	MinutelyWeather(ctx context.Context, q Query) ([]MinutelyWeather, error)
	HourlyWeather(ctx context.Context, q Query) ([]HourlyWeather, error)
	DailyWeather(ctx context.Context, q Query) ([]DailyWeather, error)
	// Alerts filters on the alert end time: Since selects alerts still active then.
	Alerts(ctx context.Context, q Query) ([]WeatherAlert, error)
	ErrorLogs(ctx context.Context, q Query) ([]WeatherErrorLog, error)
	APICalls(ctx context.Context, q Query) ([]APICallLog, error)
	CountAPICalls(ctx context.Context, apiName string, since time.Time) (int, error)
}
