package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/i474232898/owm-weather/internal/weather"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")
)

// MemoryStore is a concurrency-safe in-memory implementation of weather.Store.
type MemoryStore struct {
	mu sync.RWMutex

	nextID    int64
	locations map[int64]weather.Location

	current  []weather.CurrentWeather
	minutely []weather.MinutelyWeather
	hourly   []weather.HourlyWeather
	daily    []weather.DailyWeather
	alerts   []weather.WeatherAlert
	errors   []weather.WeatherErrorLog
	calls    []weather.APICallLog
}

var _ weather.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locations: make(map[int64]weather.Location),
	}
}

// id hands out ids from a single sequence; callers hold mu.
func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *MemoryStore) CreateLocation(_ context.Context, loc *weather.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc.ID = s.id()
	s.locations[loc.ID] = cloneLocation(*loc)
	return nil
}

func (s *MemoryStore) UpdateLocation(_ context.Context, loc *weather.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.locations[loc.ID]; !ok {
		return ErrNotFound
	}
	s.locations[loc.ID] = cloneLocation(*loc)
	return nil
}

func (s *MemoryStore) DeleteLocation(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.locations[id]; !ok {
		return ErrNotFound
	}
	delete(s.locations, id)

	s.current = dropLocation(s.current, id, func(w weather.CurrentWeather) int64 { return w.LocationID })
	s.minutely = dropLocation(s.minutely, id, func(w weather.MinutelyWeather) int64 { return w.LocationID })
	s.hourly = dropLocation(s.hourly, id, func(w weather.HourlyWeather) int64 { return w.LocationID })
	s.daily = dropLocation(s.daily, id, func(w weather.DailyWeather) int64 { return w.LocationID })
	s.alerts = dropLocation(s.alerts, id, func(a weather.WeatherAlert) int64 { return a.LocationID })
	s.errors = dropLocation(s.errors, id, func(e weather.WeatherErrorLog) int64 { return e.LocationID })
	return nil
}

func (s *MemoryStore) GetLocation(_ context.Context, id int64) (weather.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loc, ok := s.locations[id]
	if !ok {
		return weather.Location{}, ErrNotFound
	}
	return cloneLocation(loc), nil
}

func (s *MemoryStore) GetLocationByUUID(_ context.Context, id uuid.UUID) (weather.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, loc := range s.locations {
		if loc.UUID != nil && *loc.UUID == id {
			return cloneLocation(loc), nil
		}
	}
	return weather.Location{}, ErrNotFound
}

func (s *MemoryStore) ListLocations(_ context.Context) ([]weather.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]weather.Location, 0, len(s.locations))
	for _, loc := range s.locations {
		out = append(out, cloneLocation(loc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) SaveCurrentWeather(_ context.Context, w *weather.CurrentWeather) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireLocation(w.LocationID); err != nil {
		return err
	}
	w.ID = s.id()
	s.current = append(s.current, *w)
	return nil
}

func (s *MemoryStore) SaveMinutelyWeather(_ context.Context, w *weather.MinutelyWeather) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireLocation(w.LocationID); err != nil {
		return err
	}
	w.ID = s.id()
	s.minutely = append(s.minutely, *w)
	return nil
}

func (s *MemoryStore) SaveHourlyWeather(_ context.Context, w *weather.HourlyWeather) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireLocation(w.LocationID); err != nil {
		return err
	}
	w.ID = s.id()
	s.hourly = append(s.hourly, *w)
	return nil
}

func (s *MemoryStore) SaveDailyWeather(_ context.Context, w *weather.DailyWeather) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireLocation(w.LocationID); err != nil {
		return err
	}
	w.ID = s.id()
	s.daily = append(s.daily, *w)
	return nil
}

func (s *MemoryStore) SaveAlert(_ context.Context, a *weather.WeatherAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireLocation(a.LocationID); err != nil {
		return err
	}
	a.ID = s.id()
	stored := *a
	stored.Tags = append([]string(nil), a.Tags...)
	s.alerts = append(s.alerts, stored)
	return nil
}

func (s *MemoryStore) SaveErrorLog(_ context.Context, e *weather.WeatherErrorLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireLocation(e.LocationID); err != nil {
		return err
	}
	e.ID = s.id()
	s.errors = append(s.errors, *e)
	return nil
}

func (s *MemoryStore) SaveAPICall(_ context.Context, c *weather.APICallLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.ID = s.id()
	s.calls = append(s.calls, *c)
	return nil
}

func (s *MemoryStore) CurrentWeather(_ context.Context, q weather.Query) ([]weather.CurrentWeather, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter(s.current, q, func(w weather.CurrentWeather) (int64, time.Time, int64) {
		return w.LocationID, w.Timestamp, w.ID
	}), nil
}

func (s *MemoryStore) MinutelyWeather(_ context.Context, q weather.Query) ([]weather.MinutelyWeather, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter(s.minutely, q, func(w weather.MinutelyWeather) (int64, time.Time, int64) {
		return w.LocationID, w.Timestamp, w.ID
	}), nil
}

func (s *MemoryStore) HourlyWeather(_ context.Context, q weather.Query) ([]weather.HourlyWeather, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter(s.hourly, q, func(w weather.HourlyWeather) (int64, time.Time, int64) {
		return w.LocationID, w.Timestamp, w.ID
	}), nil
}

func (s *MemoryStore) DailyWeather(_ context.Context, q weather.Query) ([]weather.DailyWeather, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter(s.daily, q, func(w weather.DailyWeather) (int64, time.Time, int64) {
		return w.LocationID, w.Timestamp, w.ID
	}), nil
}

// Alerts are ordered by start; Since applies to the end time.
func (s *MemoryStore) Alerts(_ context.Context, q weather.Query) ([]weather.WeatherAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []weather.WeatherAlert
	for _, a := range s.alerts {
		if q.LocationID != 0 && a.LocationID != q.LocationID {
			continue
		}
		if !q.Since.IsZero() && !a.ActiveAt(q.Since) {
			continue
		}
		a.Tags = append([]string(nil), a.Tags...)
		out = append(out, a)
	}
	sortRows(out, q.Newest, func(a weather.WeatherAlert) (time.Time, int64) { return a.Start, a.ID })
	return out, nil
}

func (s *MemoryStore) ErrorLogs(_ context.Context, q weather.Query) ([]weather.WeatherErrorLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter(s.errors, q, func(e weather.WeatherErrorLog) (int64, time.Time, int64) {
		return e.LocationID, e.Timestamp, e.ID
	}), nil
}

// APICalls ignores Query.LocationID; call logs are not tied to a location.
func (s *MemoryStore) APICalls(_ context.Context, q weather.Query) ([]weather.APICallLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q.LocationID = 0
	return filter(s.calls, q, func(c weather.APICallLog) (int64, time.Time, int64) {
		return 0, c.Timestamp, c.ID
	}), nil
}

func (s *MemoryStore) CountAPICalls(_ context.Context, apiName string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, c := range s.calls {
		if c.APIName == apiName && !c.Timestamp.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) requireLocation(id int64) error {
	if _, ok := s.locations[id]; !ok {
		return ErrNotFound
	}
	return nil
}

func cloneLocation(loc weather.Location) weather.Location {
	if loc.UUID != nil {
		id := *loc.UUID
		loc.UUID = &id
	}
	if loc.TimezoneOffset != nil {
		off := *loc.TimezoneOffset
		loc.TimezoneOffset = &off
	}
	return loc
}

func dropLocation[T any](rows []T, id int64, locationOf func(T) int64) []T {
	kept := rows[:0]
	for _, r := range rows {
		if locationOf(r) != id {
			kept = append(kept, r)
		}
	}
	return kept
}

func filter[T any](rows []T, q weather.Query, key func(T) (int64, time.Time, int64)) []T {
	var out []T
	for _, r := range rows {
		loc, ts, _ := key(r)
		if q.LocationID != 0 && loc != q.LocationID {
			continue
		}
		if !q.Since.IsZero() && ts.Before(q.Since) {
			continue
		}
		out = append(out, r)
	}
	sortRows(out, q.Newest, func(r T) (time.Time, int64) {
		_, ts, id := key(r)
		return ts, id
	})
	return out
}

func sortRows[T any](rows []T, newest bool, key func(T) (time.Time, int64)) {
	sort.SliceStable(rows, func(i, j int) bool {
		ti, ii := key(rows[i])
		tj, ij := key(rows[j])
		if !ti.Equal(tj) {
			if newest {
				return ti.After(tj)
			}
			return ti.Before(tj)
		}
		if newest {
			return ii > ij
		}
		return ii < ij
	})
}
