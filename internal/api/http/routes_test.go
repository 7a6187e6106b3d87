package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/owm-weather/internal/store"
	"github.com/i474232898/owm-weather/internal/weather"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeClient struct{}

func (fakeClient) Name() string { return weather.OneCallAPI }

func (fakeClient) OneCall(ctx context.Context, lat, lon float64, exclude []string) (*weather.OneCallResponse, error) {
	temp := 295.15
	return &weather.OneCallResponse{
		Lat:     lat,
		Lon:     lon,
		Current: &weather.CurrentData{Dt: now.Unix(), Temp: &temp},
		Hourly:  []weather.HourlyData{{Dt: now.Add(time.Hour).Unix(), Temp: &temp}},
		Daily:   []weather.DailyData{{Dt: now.Add(24 * time.Hour).Unix()}},
	}, nil
}

func newTestApp(t *testing.T, opts Options) (*fiber.App, *weather.Service, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	svc := weather.NewService(mem, fakeClient{}, weather.ServiceConfig{
		Now: func() time.Time { return now },
	})
	return NewApp(svc, opts), svc, mem
}

func do(t *testing.T, app *fiber.App, method, target, body string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	var out map[string]any
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp, out
}

func createLocation(t *testing.T, app *fiber.App) int64 {
	t.Helper()
	resp, body := do(t, app, http.MethodPost, "/api/v1/locations", `{"name":"Berlin","latitude":52.52,"longitude":"13.405"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status %d, got %d (%v)", http.StatusCreated, resp.StatusCode, body)
	}
	return int64(body["id"].(float64))
}

func TestLocationLifecycle(t *testing.T) {
	app, _, _ := newTestApp(t, Options{})
	id := createLocation(t, app)

	resp, body := do(t, app, http.MethodGet, "/api/v1/locations", "")
	if resp.StatusCode != http.StatusOK || len(body["locations"].([]any)) != 1 {
		t.Fatalf("unexpected list %d %v", resp.StatusCode, body)
	}

	resp, body = do(t, app, http.MethodPut, fmt.Sprintf("/api/v1/locations/%d", id), `{"timezone":"Europe/Berlin"}`)
	if resp.StatusCode != http.StatusOK || body["timezone"] != "Europe/Berlin" || body["name"] != "Berlin" {
		t.Fatalf("unexpected update %d %v", resp.StatusCode, body)
	}

	resp, _ = do(t, app, http.MethodDelete, fmt.Sprintf("/api/v1/locations/%d", id), "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, resp.StatusCode)
	}
	resp, _ = do(t, app, http.MethodGet, fmt.Sprintf("/api/v1/locations/%d", id), "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status %d after delete, got %d", http.StatusNotFound, resp.StatusCode)
	}
}

func TestInvalidLocationForm(t *testing.T) {
	app, _, _ := newTestApp(t, Options{})

	resp, body := do(t, app, http.MethodPost, "/api/v1/locations", `{"name":"Nowhere","latitude":"91","longitude":"0"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
	fields, _ := body["fields"].(map[string]any)
	if _, ok := fields["latitude"]; !ok {
		t.Fatalf("expected a latitude error, got %v", body)
	}
	if _, ok := fields["longitude"]; ok {
		t.Errorf("longitude is valid, got %v", fields)
	}
}

func TestUnknownLocationIs404(t *testing.T) {
	app, _, _ := newTestApp(t, Options{})
	for _, target := range []string{
		"/api/v1/locations/999",
		"/api/v1/locations/abc/weather",
		"/api/v1/locations/999/history",
		"/api/v1/locations/999/forecast/partial",
	} {
		resp, _ := do(t, app, http.MethodGet, target, "")
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s: expected status %d, got %d", target, http.StatusNotFound, resp.StatusCode)
		}
	}
}

func TestFetchAndViews(t *testing.T) {
	app, _, _ := newTestApp(t, Options{})
	id := createLocation(t, app)
	base := fmt.Sprintf("/api/v1/locations/%d", id)

	resp, body := do(t, app, http.MethodPost, base+"/fetch", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("fetch: status %d %v", resp.StatusCode, body)
	}
	if res := body["result"].(map[string]any); res["fetched"].(float64) != 1 {
		t.Fatalf("unexpected fetch result %v", res)
	}

	_, body = do(t, app, http.MethodGet, base+"/weather", "")
	current, ok := body["current_weather"].(map[string]any)
	if !ok || current["temp"].(float64) != 295.15 {
		t.Fatalf("unexpected detail %v", body)
	}

	_, body = do(t, app, http.MethodGet, base+"/forecast", "")
	if len(body["hourly_forecast"].([]any)) != 1 || len(body["daily_forecast"].([]any)) != 1 {
		t.Fatalf("unexpected forecast %v", body)
	}
	day := body["daily_forecast"].([]any)[0].(map[string]any)
	if day["moon_phase_description"] != "Unknown" {
		t.Errorf("unexpected moon phase %v", day["moon_phase_description"])
	}

	_, body = do(t, app, http.MethodGet, base+"/alerts", "")
	if len(body["alerts"].([]any)) != 0 {
		t.Errorf("expected no alerts, got %v", body["alerts"])
	}
}

func TestHistoryPartialPagination(t *testing.T) {
	app, _, mem := newTestApp(t, Options{})
	id := createLocation(t, app)
	for i := 0; i < 10; i++ {
		w := &weather.CurrentWeather{Observation: weather.Observation{
			LocationID: id,
			Timestamp:  now.Add(-time.Duration(i) * time.Hour),
		}}
		if err := mem.SaveCurrentWeather(context.Background(), w); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	base := fmt.Sprintf("/api/v1/locations/%d/history/partial", id)

	_, body := do(t, app, http.MethodGet, base+"?page=2", "")
	if body["num_pages"].(float64) != 2 || body["number"].(float64) != 2 || len(body["items"].([]any)) != 5 {
		t.Fatalf("unexpected page %v", body)
	}
	if body["has_next"].(bool) || !body["has_previous"].(bool) {
		t.Errorf("unexpected navigation flags %v", body)
	}

	_, body = do(t, app, http.MethodGet, base+"?page=abc", "")
	if body["number"].(float64) != 1 {
		t.Errorf("non-numeric page should give page 1, got %v", body["number"])
	}
	_, body = do(t, app, http.MethodGet, base+"?page=99", "")
	if body["number"].(float64) != 2 {
		t.Errorf("overflowing page should give the last page, got %v", body["number"])
	}
	_, body = do(t, app, http.MethodGet, base+"?page=0", "")
	if body["number"].(float64) != 2 {
		t.Errorf("page 0 should give the last page, got %v", body["number"])
	}
}

func TestAdmin(t *testing.T) {
	app, _, _ := newTestApp(t, Options{UseBuiltinAdmin: true, ShowMap: true})
	createLocation(t, app)

	resp, body := do(t, app, http.MethodGet, "/admin", "")
	if resp.StatusCode != http.StatusOK || len(body["models"].([]any)) != len(weather.AllKinds) {
		t.Fatalf("unexpected admin index %d %v", resp.StatusCode, body)
	}

	_, body = do(t, app, http.MethodGet, "/admin/WeatherLocation", "")
	rows := body["results"].([]any)
	if len(rows) != 1 {
		t.Fatalf("unexpected rows %v", body)
	}
	row := rows[0].(map[string]any)
	if !strings.HasPrefix(row["map"].(string), "https://www.openstreetmap.org/") {
		t.Errorf("expected a map link, got %v", row)
	}

	resp, _ = do(t, app, http.MethodGet, "/admin/Forecast", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected status %d for unknown model, got %d", http.StatusNotFound, resp.StatusCode)
	}
}

func TestAdminDisabled(t *testing.T) {
	app, _, _ := newTestApp(t, Options{})
	resp, _ := do(t, app, http.MethodGet, "/admin", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	app, _, _ := newTestApp(t, Options{Status: func() fiber.Map { return fiber.Map{"last_run": nil} }})
	resp, body := do(t, app, http.MethodGet, "/health", "")
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("unexpected health %d %v", resp.StatusCode, body)
	}
	if _, ok := body["last_run"]; !ok {
		t.Errorf("expected status fields to be merged, got %v", body)
	}
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthDatabase(t *testing.T) {
	app, _, _ := newTestApp(t, Options{Database: pingFunc(func(context.Context) error { return nil })})
	resp, body := do(t, app, http.MethodGet, "/health", "")
	if resp.StatusCode != http.StatusOK || body["database"] != "ok" {
		t.Fatalf("unexpected health %d %v", resp.StatusCode, body)
	}

	app, _, _ = newTestApp(t, Options{Database: pingFunc(func(context.Context) error { return errors.New("database is closed") })})
	resp, body = do(t, app, http.MethodGet, "/health", "")
	if resp.StatusCode != http.StatusServiceUnavailable || body["status"] != "degraded" || body["database"] != "database is closed" {
		t.Fatalf("unexpected health %d %v", resp.StatusCode, body)
	}
}
