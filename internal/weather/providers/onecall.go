package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/i474232898/owm-weather/internal/weather"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// DefaultOneCallURL is the One Call 3.0 endpoint.
const DefaultOneCallURL = "https://api.openweathermap.org/data/3.0/onecall"

// ErrNoAPIKey is returned when the OpenWeatherMap key is not configured.
var ErrNoAPIKey = errors.New("openweathermap api key is not configured")

// OneCallOptions tunes the One Call client. Zero values pick defaults.
type OneCallOptions struct {
	BaseURL        string
	Units          weather.Units
	CallsPerMinute int
	Backoff        *BackoffConfig
}

// OneCallClient implements weather.Client against OpenWeatherMap One Call 3.0.
type OneCallClient struct {
	name    string
	apiKey  string
	baseURL string
	units   weather.Units
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOneCallClient(client *http.Client, apiKey string, opts OneCallOptions) *OneCallClient {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultOneCallURL
	}
	// One attempt per location and run; the scheduler is the retry.
	backoff := BackoffConfig{
		MaxRetries:      0,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
	if opts.Backoff != nil {
		backoff = *opts.Backoff
	}

	var limiter *rate.Limiter
	if opts.CallsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.CallsPerMinute)), opts.CallsPerMinute)
	}

	return &OneCallClient{
		name:    weather.OneCallAPI,
		apiKey:  apiKey,
		baseURL: baseURL,
		units:   opts.Units,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: backoff,
			Limiter: limiter,
		},
		circuit: newCircuitBreaker("openweathermap-onecall"),
	}
}

func (c *OneCallClient) Name() string {
	return c.name
}

// RequestURL builds the One Call URL for the given coordinates.
func (c *OneCallClient) RequestURL(lat, lon float64, exclude []string) string {
	values := url.Values{}
	values.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	values.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	if len(exclude) > 0 {
		values.Set("exclude", strings.Join(exclude, ","))
	}
	if c.units != "" && c.units != weather.UnitsStandard {
		values.Set("units", string(c.units))
	}
	values.Set("appid", c.apiKey)
	return fmt.Sprintf("%s?%s", c.baseURL, values.Encode())
}

func (c *OneCallClient) OneCall(ctx context.Context, lat, lon float64, exclude []string) (*weather.OneCallResponse, error) {
	if c.apiKey == "" {
		log.Printf("ERROR: OpenWeatherMap API key is not set.")
		return nil, ErrNoAPIKey
	}

	buildRequest := func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, c.RequestURL(lat, lon, exclude), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload weather.OneCallResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode one call response: %w", err)
	}
	return &payload, nil
}
