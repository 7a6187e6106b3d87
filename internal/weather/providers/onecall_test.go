package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/i474232898/owm-weather/internal/weather"
)

const samplePayload = `{
	"lat": 52.52, "lon": 13.405, "timezone": "Europe/Berlin", "timezone_offset": 3600,
	"current": {"dt": 1700000000, "temp": 295.15, "weather": [{"id": 800, "main": "Clear", "description": "clear sky", "icon": "01d"}]},
	"minutely": [{"dt": 1700000060, "precipitation": 0.5}],
	"hourly": [{"dt": 1700003600, "temp": 294.1}],
	"daily": [{"dt": 1700006400, "temp": {"min": 280.1, "max": 296.2}, "moon_phase": 0.5}],
	"alerts": [{"sender_name": "DWD", "event": "Wind", "start": 1700000000, "end": 1700086400, "description": "gusts", "tags": ["Wind"]}]
}`

func TestOneCallRequestAndDecode(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(samplePayload))
	}))
	defer srv.Close()

	c := NewOneCallClient(srv.Client(), "secret", OneCallOptions{BaseURL: srv.URL, Units: weather.UnitsMetric})
	resp, err := c.OneCall(context.Background(), 52.52, 13.405, []string{"minutely", "alerts"})
	if err != nil {
		t.Fatalf("OneCall: %v", err)
	}

	for _, want := range []string{"lat=52.52", "lon=13.405", "appid=secret", "units=metric", "exclude=minutely%2Calerts"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}
	if resp.Current == nil || resp.Current.Temp == nil || *resp.Current.Temp != 295.15 {
		t.Fatalf("unexpected current: %+v", resp.Current)
	}
	if len(resp.Minutely) != 1 || len(resp.Hourly) != 1 || len(resp.Daily) != 1 || len(resp.Alerts) != 1 {
		t.Fatalf("unexpected section sizes: %+v", resp)
	}
	if resp.Timezone != "Europe/Berlin" || resp.TimezoneOffset == nil || *resp.TimezoneOffset != 3600 {
		t.Errorf("timezone not decoded: %q %v", resp.Timezone, resp.TimezoneOffset)
	}
}

func TestOneCallStandardUnitsOmitted(t *testing.T) {
	c := NewOneCallClient(http.DefaultClient, "k", OneCallOptions{Units: weather.UnitsStandard})
	u := c.RequestURL(1, 2, nil)
	if strings.Contains(u, "units=") || strings.Contains(u, "exclude=") {
		t.Errorf("unexpected params in %s", u)
	}
	if !strings.HasPrefix(u, DefaultOneCallURL+"?") {
		t.Errorf("unexpected base url %s", u)
	}
}

func TestOneCallMissingKey(t *testing.T) {
	c := NewOneCallClient(http.DefaultClient, "", OneCallOptions{})
	if _, err := c.OneCall(context.Background(), 0, 0, nil); !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestOneCallErrorStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"cod":401,"message":"Invalid API key"}`))
	}))
	defer srv.Close()

	c := NewOneCallClient(srv.Client(), "bad", OneCallOptions{
		BaseURL: srv.URL,
		Backoff: &BackoffConfig{MaxRetries: 3, InitialInterval: time.Millisecond},
	})
	_, err := c.OneCall(context.Background(), 1, 2, nil)

	var apiErr *weather.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized || !strings.Contains(apiErr.Body, "Invalid API key") {
		t.Errorf("unexpected APIError %+v", apiErr)
	}
	if apiErr.Error() != "API call failed with status code 401" {
		t.Errorf("unexpected message %q", apiErr.Error())
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("client errors must not be retried, got %d calls", n)
	}
}

func TestOneCallRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(samplePayload))
	}))
	defer srv.Close()

	c := NewOneCallClient(srv.Client(), "k", OneCallOptions{
		BaseURL: srv.URL,
		Backoff: &BackoffConfig{MaxRetries: 1, InitialInterval: time.Millisecond},
	})
	if _, err := c.OneCall(context.Background(), 1, 2, nil); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("expected 2 calls, got %d", n)
	}
}

func TestDoRequestWithResilienceNoClient(t *testing.T) {
	_, err := doRequestWithResilience(context.Background(), HTTPClientConfig{}, newCircuitBreaker("t"), nil)
	if !errors.Is(err, errNoHTTPClient) {
		t.Fatalf("expected errNoHTTPClient, got %v", err)
	}
}

func TestCircuitOpensOnServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewOneCallClient(srv.Client(), "k", OneCallOptions{BaseURL: srv.URL})
	var err error
	for i := 0; i < 10; i++ {
		_, err = c.OneCall(context.Background(), 1, 2, nil)
	}
	if !errors.Is(err, errCircuitOpen) {
		t.Fatalf("expected errCircuitOpen, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n >= 10 {
		t.Errorf("open circuit should stop requests, got %d calls", n)
	}
}

func TestCircuitIgnoresClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewOneCallClient(srv.Client(), "k", OneCallOptions{BaseURL: srv.URL})
	for i := 0; i < 10; i++ {
		_, err := c.OneCall(context.Background(), 1, 2, nil)
		var apiErr *weather.APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
			t.Fatalf("call %d: expected 404 APIError, got %v", i, err)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 10 {
		t.Errorf("expected every call to reach the server, got %d", n)
	}
}

func TestOneCallPacing(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(samplePayload))
	}))
	defer srv.Close()

	c := NewOneCallClient(srv.Client(), "k", OneCallOptions{BaseURL: srv.URL, CallsPerMinute: 1})
	lim := c.httpCfg.Limiter
	if lim == nil {
		t.Fatal("expected a limiter when CallsPerMinute is set")
	}
	if lim.Limit() != rate.Every(time.Minute) || lim.Burst() != 1 {
		t.Errorf("unexpected limiter %v/%d", lim.Limit(), lim.Burst())
	}

	if _, err := c.OneCall(context.Background(), 1, 2, nil); err != nil {
		t.Fatalf("first call: %v", err)
	}

	// The bucket is empty; the next token is a minute away.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.OneCall(ctx, 1, 2, nil); err == nil {
		t.Fatal("expected the paced call to give up with its context")
	}

	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	if err := lim.Wait(cancelled); err == nil {
		t.Error("expected Wait to honour a cancelled context")
	}

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected 1 call to reach the server, got %d", n)
	}

	if unpaced := NewOneCallClient(srv.Client(), "k", OneCallOptions{}); unpaced.httpCfg.Limiter != nil {
		t.Error("expected no limiter without CallsPerMinute")
	}
}
