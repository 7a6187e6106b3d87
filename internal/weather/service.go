package weather

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ServiceConfig carries the settings the service needs at runtime.
type ServiceConfig struct {
	Models     Models
	RateLimits map[string]RateLimit
	Units      Units
	Exclude    []string
	UseUUID    bool

	// Now is the clock used for log timestamps and "active" filters.
	Now func() time.Time
}

// Service orchestrates the One Call client and the store.
type Service struct {
	store  Store
	client Client
	cfg    ServiceConfig
}

// NewService creates a new Service. Zero config fields fall back to defaults.
func NewService(store Store, client Client, cfg ServiceConfig) *Service {
	if cfg.Models == nil {
		cfg.Models = DefaultModels()
	}
	if cfg.RateLimits == nil {
		cfg.RateLimits = DefaultRateLimits()
	}
	if cfg.Units == "" {
		cfg.Units = UnitsStandard
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:  store,
		client: client,
		cfg:    cfg,
	}
}

// Models returns the configured record kinds.
func (s *Service) Models() Models {
	return s.cfg.Models
}

func (s *Service) now() time.Time {
	return s.cfg.Now().UTC()
}

func (s *Service) newUUID() *uuid.UUID {
	if !s.cfg.UseUUID {
		return nil
	}
	id := uuid.New()
	return &id
}

// FetchResult summarises one FetchWeather run.
type FetchResult struct {
	Fetched int `json:"fetched"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

func (r FetchResult) String() string {
	return fmt.Sprintf("fetched=%d failed=%d skipped=%d", r.Fetched, r.Failed, r.Skipped)
}

// FetchWeather fetches and stores One Call data for the given locations, or
// for every location when ids is empty. Locations are processed one at a
// time; a failure is recorded in the error log and does not stop the run.
// The run is skipped when the minute or month quota is already used up and
// stops early once the minute quota is reached.
func (s *Service) FetchWeather(ctx context.Context, ids ...int64) (FetchResult, error) {
	var res FetchResult

	ok, err := s.CheckAPILimits(ctx, OneCallAPI)
	if err != nil {
		return res, err
	}
	if !ok {
		log.Printf("WARNING: API call limit exceeded. Skipping fetch_weather task.")
		return res, ErrRateLimited
	}

	if !s.cfg.Models.Has(KindLocation) {
		log.Printf("ERROR: %s model is not configured.", KindLocation)
		return res, notConfigured(KindLocation)
	}

	locations, err := s.locationsFor(ctx, ids)
	if err != nil {
		return res, err
	}

	limit := s.rateLimit(OneCallAPI)
	for i, loc := range locations {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		minute, _, err := s.APICallCounts(ctx, OneCallAPI)
		if err != nil {
			return res, err
		}
		if minute >= limit.CallsPerMinute {
			log.Printf("WARNING: API call limit per minute exceeded. Stopping fetch_weather task.")
			res.Skipped += len(locations) - i
			break
		}

		if err := s.fetchLocation(ctx, loc); err != nil {
			res.Failed++
			continue
		}
		res.Fetched++
	}

	log.Printf("INFO: fetch_weather finished: %s", res)
	return res, nil
}

func (s *Service) locationsFor(ctx context.Context, ids []int64) ([]Location, error) {
	if len(ids) == 0 {
		return s.store.ListLocations(ctx)
	}
	locations := make([]Location, 0, len(ids))
	for _, id := range ids {
		loc, err := s.store.GetLocation(ctx, id)
		if err != nil {
			log.Printf("ERROR: location %d could not be loaded: %v", id, err)
			continue
		}
		locations = append(locations, loc)
	}
	return locations, nil
}

// fetchLocation performs one API call for loc and records its outcome.
func (s *Service) fetchLocation(ctx context.Context, loc Location) error {
	apiName := OneCallAPI
	if s.client != nil {
		apiName = s.client.Name()
	}

	resp, err := s.callAPI(ctx, loc)
	if err != nil {
		log.Printf("ERROR: fetching weather for location %d (%s) failed: %v", loc.ID, loc.Name, err)
		message, body := err.Error(), ""
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			message, body = apiErr.Error(), apiErr.Body
		}
		if logErr := s.SaveErrorLog(ctx, loc, apiName, message, body); logErr != nil {
			log.Printf("ERROR: saving error log for location %d: %v", loc.ID, logErr)
		}
		return err
	}

	if err := s.SaveWeatherData(ctx, loc, resp); err != nil {
		log.Printf("ERROR: saving weather data for location %d: %v", loc.ID, err)
		if logErr := s.SaveErrorLog(ctx, loc, apiName, err.Error(), ""); logErr != nil {
			log.Printf("ERROR: saving error log for location %d: %v", loc.ID, logErr)
		}
		return err
	}

	s.syncTimezone(ctx, loc, resp)

	if err := s.LogAPICall(ctx, apiName); err != nil {
		log.Printf("ERROR: logging API call: %v", err)
	}
	return nil
}

func (s *Service) callAPI(ctx context.Context, loc Location) (*OneCallResponse, error) {
	if s.client == nil {
		return nil, errors.New("no One Call client configured")
	}
	resp, err := s.client.OneCall(ctx, loc.Latitude, loc.Longitude, s.cfg.Exclude)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("empty One Call response")
	}
	return resp, nil
}

// syncTimezone copies the timezone reported by the API onto the location.
func (s *Service) syncTimezone(ctx context.Context, loc Location, resp *OneCallResponse) {
	if resp.Timezone == "" && resp.TimezoneOffset == nil {
		return
	}
	changed := false
	if resp.Timezone != "" && resp.Timezone != loc.Timezone {
		loc.Timezone = resp.Timezone
		changed = true
	}
	if resp.TimezoneOffset != nil && (loc.TimezoneOffset == nil || *loc.TimezoneOffset != *resp.TimezoneOffset) {
		off := *resp.TimezoneOffset
		loc.TimezoneOffset = &off
		changed = true
	}
	if !changed {
		return
	}
	if err := s.store.UpdateLocation(ctx, &loc); err != nil {
		log.Printf("WARNING: updating timezone of location %d: %v", loc.ID, err)
	}
}

func (s *Service) rateLimit(apiName string) RateLimit {
	limit, ok := s.cfg.RateLimits[apiName]
	if !ok {
		limit = DefaultRateLimits()[OneCallAPI]
	}
	if limit.CallsPerMinute <= 0 {
		limit.CallsPerMinute = 60
	}
	if limit.CallsPerMonth <= 0 {
		limit.CallsPerMonth = 1000000
	}
	return limit
}

// APICallCounts returns how many calls to apiName were logged during the
// last minute and the last 30 days.
func (s *Service) APICallCounts(ctx context.Context, apiName string) (minute, month int, err error) {
	if !s.cfg.Models.Has(KindAPICallLog) {
		return 0, 0, nil
	}
	now := s.now()
	minute, err = s.store.CountAPICalls(ctx, apiName, now.Add(-time.Minute))
	if err != nil {
		return 0, 0, fmt.Errorf("count calls in last minute: %w", err)
	}
	month, err = s.store.CountAPICalls(ctx, apiName, now.AddDate(0, 0, -30))
	if err != nil {
		return 0, 0, fmt.Errorf("count calls in last month: %w", err)
	}
	return minute, month, nil
}

// CheckAPILimits reports whether another call to apiName is allowed.
func (s *Service) CheckAPILimits(ctx context.Context, apiName string) (bool, error) {
	limit := s.rateLimit(apiName)
	minute, month, err := s.APICallCounts(ctx, apiName)
	if err != nil {
		return false, err
	}
	return minute < limit.CallsPerMinute && month < limit.CallsPerMonth, nil
}

// LogAPICall records one call to apiName.
func (s *Service) LogAPICall(ctx context.Context, apiName string) error {
	if !s.cfg.Models.Has(KindAPICallLog) {
		return nil
	}
	return s.store.SaveAPICall(ctx, &APICallLog{
		UUID:      s.newUUID(),
		Timestamp: s.now(),
		APIName:   apiName,
		Units:     s.cfg.Units,
	})
}

// ResolveLocation looks a location up by its textual reference: a numeric
// id, or a UUID when UUIDs are enabled.
func (s *Service) ResolveLocation(ctx context.Context, ref string) (Location, error) {
	ref = strings.TrimSpace(ref)
	if s.cfg.UseUUID {
		if id, err := uuid.Parse(ref); err == nil {
			return s.store.GetLocationByUUID(ctx, id)
		}
	}
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil || id <= 0 {
		return Location{}, fmt.Errorf("%w: %q", ErrInvalidLocationRef, ref)
	}
	return s.store.GetLocation(ctx, id)
}

// ListLocations returns every location ordered by id.
func (s *Service) ListLocations(ctx context.Context) ([]Location, error) {
	if !s.cfg.Models.Has(KindLocation) {
		return nil, notConfigured(KindLocation)
	}
	return s.store.ListLocations(ctx)
}

// CreateLocation validates form and stores a new location.
func (s *Service) CreateLocation(ctx context.Context, form LocationForm) (Location, error) {
	if !s.cfg.Models.Has(KindLocation) {
		return Location{}, notConfigured(KindLocation)
	}
	loc := Location{UUID: s.newUUID()}
	if err := form.Apply(&loc); err != nil {
		return Location{}, err
	}
	if err := s.store.CreateLocation(ctx, &loc); err != nil {
		return Location{}, fmt.Errorf("create location: %w", err)
	}
	log.Printf("INFO: created location %d (%s)", loc.ID, loc.Name)
	return loc, nil
}

// UpdateLocation validates form and overwrites the editable fields of loc.
func (s *Service) UpdateLocation(ctx context.Context, loc Location, form LocationForm) (Location, error) {
	if err := form.Apply(&loc); err != nil {
		return Location{}, err
	}
	if err := s.store.UpdateLocation(ctx, &loc); err != nil {
		return Location{}, fmt.Errorf("update location %d: %w", loc.ID, err)
	}
	return loc, nil
}

// DeleteLocation removes loc together with all of its weather records.
func (s *Service) DeleteLocation(ctx context.Context, loc Location) error {
	if err := s.store.DeleteLocation(ctx, loc.ID); err != nil {
		return fmt.Errorf("delete location %d: %w", loc.ID, err)
	}
	log.Printf("INFO: deleted location %d (%s)", loc.ID, loc.Name)
	return nil
}

// LatestWeather returns the most recent current weather of loc, or nil.
func (s *Service) LatestWeather(ctx context.Context, loc Location) (*CurrentWeather, error) {
	history, err := s.History(ctx, loc)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, nil
	}
	latest := history[0]
	return &latest, nil
}

// History returns all current weather records of loc, newest first.
func (s *Service) History(ctx context.Context, loc Location) ([]CurrentWeather, error) {
	if !s.cfg.Models.Has(KindCurrentWeather) {
		return nil, notConfigured(KindCurrentWeather)
	}
	return s.store.CurrentWeather(ctx, Query{LocationID: loc.ID, Newest: true})
}

// Forecast returns the hourly and daily records of loc from now on.
func (s *Service) Forecast(ctx context.Context, loc Location) (Forecast, error) {
	if !s.cfg.Models.Has(KindHourly) {
		return Forecast{}, notConfigured(KindHourly)
	}
	if !s.cfg.Models.Has(KindDaily) {
		return Forecast{}, notConfigured(KindDaily)
	}
	q := Query{LocationID: loc.ID, Since: s.now()}
	hourly, err := s.store.HourlyWeather(ctx, q)
	if err != nil {
		return Forecast{}, err
	}
	daily, err := s.store.DailyWeather(ctx, q)
	if err != nil {
		return Forecast{}, err
	}
	return Forecast{Hourly: hourly, Daily: daily}, nil
}

// ActiveAlerts returns the alerts of loc that have not ended yet.
func (s *Service) ActiveAlerts(ctx context.Context, loc Location) ([]WeatherAlert, error) {
	if !s.cfg.Models.Has(KindAlert) {
		return nil, notConfigured(KindAlert)
	}
	return s.store.Alerts(ctx, Query{LocationID: loc.ID, Since: s.now()})
}

// Errors returns the error log of loc, newest first.
func (s *Service) Errors(ctx context.Context, loc Location) ([]WeatherErrorLog, error) {
	if !s.cfg.Models.Has(KindErrorLog) {
		return nil, notConfigured(KindErrorLog)
	}
	return s.store.ErrorLogs(ctx, Query{LocationID: loc.ID, Newest: true})
}

// Records lists every stored row of kind across locations, for the admin.
func (s *Service) Records(ctx context.Context, kind Kind) (any, error) {
	if !s.cfg.Models.Has(kind) {
		return nil, notConfigured(kind)
	}
	q := Query{Newest: true}
	switch kind {
	case KindLocation:
		return s.store.ListLocations(ctx)
	case KindCurrentWeather:
		return s.store.CurrentWeather(ctx, q)
	case KindMinutely:
		return s.store.MinutelyWeather(ctx, q)
	case KindHourly:
		return s.store.HourlyWeather(ctx, q)
	case KindDaily:
		return s.store.DailyWeather(ctx, q)
	case KindAlert:
		return s.store.Alerts(ctx, q)
	case KindErrorLog:
		return s.store.ErrorLogs(ctx, q)
	case KindAPICallLog:
		return s.store.APICalls(ctx, q)
	}
	return nil, fmt.Errorf("unknown model %q", kind)
}
