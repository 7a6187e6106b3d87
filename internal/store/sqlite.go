package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/i474232898/owm-weather/internal/weather"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements weather.Store on a SQLite database. Table names
// come from the configured model mappings.
type SQLiteStore struct {
	db     *sql.DB
	tables weather.Models
}

var _ weather.Store = (*SQLiteStore)(nil)

const observationColumns = `
		pressure INTEGER,
		humidity INTEGER,
		dew_point REAL,
		uvi REAL,
		clouds INTEGER,
		wind_speed REAL,
		wind_deg INTEGER,
		wind_gust REAL,
		weather_condition_id INTEGER,
		weather_condition_main TEXT NOT NULL DEFAULT '',
		weather_condition_description TEXT NOT NULL DEFAULT '',
		weather_condition_icon TEXT NOT NULL DEFAULT ''`

// NewSQLiteStore opens (creating if needed) the database at dbPath.
// An empty path uses data/owm.db.
func NewSQLiteStore(dbPath string, models weather.Models) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = filepath.Join("data", "owm.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	if models == nil {
		models = weather.DefaultModels()
	}

	log.Printf("INFO: opening database at %s", dbPath)
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=1&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serialises writers anyway; one connection also keeps :memory: shared.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, tables: models}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) table(kind weather.Kind) string {
	return s.tables.Table(kind)
}

func (s *SQLiteStore) migrate() error {
	loc := s.table(weather.KindLocation)
	fk := fmt.Sprintf("location_id INTEGER NOT NULL REFERENCES %s(id) ON DELETE CASCADE", loc)

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		timezone TEXT NOT NULL DEFAULT '',
		timezone_offset INTEGER
	)`, loc),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT UNIQUE,
		%s,
		timestamp DATETIME NOT NULL,
		%s,
		sunrise DATETIME,
		sunset DATETIME,
		temp REAL,
		feels_like REAL,
		visibility INTEGER,
		rain_1h REAL,
		snow_1h REAL
	)`, s.table(weather.KindCurrentWeather), fk, observationColumns),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT UNIQUE,
		%s,
		timestamp DATETIME NOT NULL,
		precipitation REAL NOT NULL
	)`, s.table(weather.KindMinutely), fk),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT UNIQUE,
		%s,
		timestamp DATETIME NOT NULL,
		%s,
		temp REAL,
		feels_like REAL,
		visibility INTEGER,
		pop REAL,
		rain_1h REAL,
		snow_1h REAL
	)`, s.table(weather.KindHourly), fk, observationColumns),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT UNIQUE,
		%s,
		timestamp DATETIME NOT NULL,
		%s,
		sunrise DATETIME,
		sunset DATETIME,
		moonrise DATETIME,
		moonset DATETIME,
		moon_phase REAL,
		summary TEXT NOT NULL DEFAULT '',
		temp_min REAL,
		temp_max REAL,
		temp_morn REAL,
		temp_day REAL,
		temp_eve REAL,
		temp_night REAL,
		feels_like_morn REAL,
		feels_like_day REAL,
		feels_like_eve REAL,
		feels_like_night REAL,
		pop REAL,
		rain REAL,
		snow REAL
	)`, s.table(weather.KindDaily), fk, observationColumns),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT UNIQUE,
		%s,
		sender_name TEXT NOT NULL,
		event TEXT NOT NULL,
		"start" DATETIME NOT NULL,
		"end" DATETIME NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '[]'
	)`, s.table(weather.KindAlert), fk),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT UNIQUE,
		timestamp DATETIME NOT NULL,
		%s,
		api_name TEXT NOT NULL,
		error_message TEXT NOT NULL,
		response_data TEXT NOT NULL DEFAULT ''
	)`, s.table(weather.KindErrorLog), fk),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT UNIQUE,
		timestamp DATETIME NOT NULL,
		api_name TEXT NOT NULL,
		units TEXT NOT NULL DEFAULT 'standard'
	)`, s.table(weather.KindAPICallLog)),
	}

	for _, kind := range []weather.Kind{
		weather.KindCurrentWeather, weather.KindMinutely, weather.KindHourly,
		weather.KindDaily, weather.KindErrorLog,
	} {
		t := s.table(kind)
		stmts = append(stmts, fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS idx_%s_location_ts ON %s(location_id, timestamp)`, t, t))
	}
	alerts := s.table(weather.KindAlert)
	calls := s.table(weather.KindAPICallLog)
	stmts = append(stmts,
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_location_end ON %s(location_id, "end")`, alerts, alerts),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_api_ts ON %s(api_name, timestamp)`, calls, calls),
	)

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) insert(ctx context.Context, kind weather.Kind, cols []string, args []any) (int64, error) {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := fmt.Sprintf("INSERT INTO %s(%s) VALUES(%s)", s.table(kind), strings.Join(cols, ", "), marks)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isForeignKeyErr(err) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to insert %s: %w", kind, err)
	}
	return res.LastInsertId()
}

func isForeignKeyErr(err error) bool {
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

var locationColumns = []string{"uuid", "name", "latitude", "longitude", "timezone", "timezone_offset"}

func (s *SQLiteStore) CreateLocation(ctx context.Context, loc *weather.Location) error {
	id, err := s.insert(ctx, weather.KindLocation, locationColumns, []any{
		loc.UUID, loc.Name, loc.Latitude, loc.Longitude, loc.Timezone, loc.TimezoneOffset,
	})
	if err != nil {
		return err
	}
	loc.ID = id
	return nil
}

func (s *SQLiteStore) UpdateLocation(ctx context.Context, loc *weather.Location) error {
	query := fmt.Sprintf(`UPDATE %s SET uuid = ?, name = ?, latitude = ?, longitude = ?, timezone = ?, timezone_offset = ?
		WHERE id = ?`, s.table(weather.KindLocation))
	res, err := s.db.ExecContext(ctx, query,
		loc.UUID, loc.Name, loc.Latitude, loc.Longitude, loc.Timezone, loc.TimezoneOffset, loc.ID)
	if err != nil {
		return fmt.Errorf("failed to update location %d: %w", loc.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteLocation removes the location and its records in one transaction.
// The explicit child deletes keep databases created without foreign keys consistent.
func (s *SQLiteStore) DeleteLocation(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, kind := range []weather.Kind{
		weather.KindCurrentWeather, weather.KindMinutely, weather.KindHourly,
		weather.KindDaily, weather.KindAlert, weather.KindErrorLog,
	} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE location_id = ?", s.table(kind)), id); err != nil {
			return fmt.Errorf("failed to delete %s rows of location %d: %w", kind, id, err)
		}
	}
	res, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.table(weather.KindLocation)), id)
	if err != nil {
		return fmt.Errorf("failed to delete location %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) selectLocations(ctx context.Context, where string, args ...any) ([]weather.Location, error) {
	query := fmt.Sprintf("SELECT id, %s FROM %s %s ORDER BY id",
		strings.Join(locationColumns, ", "), s.table(weather.KindLocation), where)
	return queryRows(ctx, s.db, query, args, func(rows *sql.Rows) (weather.Location, error) {
		var loc weather.Location
		err := rows.Scan(&loc.ID, &loc.UUID, &loc.Name, &loc.Latitude, &loc.Longitude, &loc.Timezone, &loc.TimezoneOffset)
		return loc, err
	})
}

func (s *SQLiteStore) GetLocation(ctx context.Context, id int64) (weather.Location, error) {
	return first(s.selectLocations(ctx, "WHERE id = ?", id))
}

func (s *SQLiteStore) GetLocationByUUID(ctx context.Context, id uuid.UUID) (weather.Location, error) {
	return first(s.selectLocations(ctx, "WHERE uuid = ?", id.String()))
}

func (s *SQLiteStore) ListLocations(ctx context.Context) ([]weather.Location, error) {
	return s.selectLocations(ctx, "")
}

var obsColumns = []string{
	"uuid", "location_id", "timestamp", "pressure", "humidity", "dew_point", "uvi", "clouds",
	"wind_speed", "wind_deg", "wind_gust", "weather_condition_id", "weather_condition_main",
	"weather_condition_description", "weather_condition_icon",
}

func obsArgs(o weather.Observation) []any {
	return []any{
		o.UUID, o.LocationID, o.Timestamp.UTC(), o.Pressure, o.Humidity, o.DewPoint, o.UVI, o.Clouds,
		o.WindSpeed, o.WindDeg, o.WindGust, o.Condition.ID, o.Main, o.Description, o.Icon,
	}
}

func obsDest(o *weather.Observation) []any {
	return []any{
		&o.ID, &o.UUID, &o.LocationID, &o.Timestamp, &o.Pressure, &o.Humidity, &o.DewPoint, &o.UVI, &o.Clouds,
		&o.WindSpeed, &o.WindDeg, &o.WindGust, &o.Condition.ID, &o.Main, &o.Description, &o.Icon,
	}
}

var currentColumns = append(append([]string{}, obsColumns...),
	"sunrise", "sunset", "temp", "feels_like", "visibility", "rain_1h", "snow_1h")

func (s *SQLiteStore) SaveCurrentWeather(ctx context.Context, w *weather.CurrentWeather) error {
	args := append(obsArgs(w.Observation), w.Sunrise, w.Sunset, w.Temp, w.FeelsLike, w.Visibility, w.Rain1h, w.Snow1h)
	id, err := s.insert(ctx, weather.KindCurrentWeather, currentColumns, args)
	if err != nil {
		return err
	}
	w.ID = id
	return nil
}

func (s *SQLiteStore) CurrentWeather(ctx context.Context, q weather.Query) ([]weather.CurrentWeather, error) {
	query, args := s.selectQuery(weather.KindCurrentWeather, currentColumns, q, "timestamp")
	return queryRows(ctx, s.db, query, args, func(rows *sql.Rows) (weather.CurrentWeather, error) {
		var w weather.CurrentWeather
		dest := append(obsDest(&w.Observation), &w.Sunrise, &w.Sunset, &w.Temp, &w.FeelsLike, &w.Visibility, &w.Rain1h, &w.Snow1h)
		err := rows.Scan(dest...)
		return w, err
	})
}

var minutelyColumns = []string{"uuid", "location_id", "timestamp", "precipitation"}

func (s *SQLiteStore) SaveMinutelyWeather(ctx context.Context, w *weather.MinutelyWeather) error {
	id, err := s.insert(ctx, weather.KindMinutely, minutelyColumns, []any{
		w.UUID, w.LocationID, w.Timestamp.UTC(), w.Precipitation,
	})
	if err != nil {
		return err
	}
	w.ID = id
	return nil
}

func (s *SQLiteStore) MinutelyWeather(ctx context.Context, q weather.Query) ([]weather.MinutelyWeather, error) {
	query, args := s.selectQuery(weather.KindMinutely, minutelyColumns, q, "timestamp")
	return queryRows(ctx, s.db, query, args, func(rows *sql.Rows) (weather.MinutelyWeather, error) {
		var w weather.MinutelyWeather
		err := rows.Scan(&w.ID, &w.UUID, &w.LocationID, &w.Timestamp, &w.Precipitation)
		return w, err
	})
}

var hourlyColumns = append(append([]string{}, obsColumns...),
	"temp", "feels_like", "visibility", "pop", "rain_1h", "snow_1h")

func (s *SQLiteStore) SaveHourlyWeather(ctx context.Context, w *weather.HourlyWeather) error {
	args := append(obsArgs(w.Observation), w.Temp, w.FeelsLike, w.Visibility, w.Pop, w.Rain1h, w.Snow1h)
	id, err := s.insert(ctx, weather.KindHourly, hourlyColumns, args)
	if err != nil {
		return err
	}
	w.ID = id
	return nil
}

func (s *SQLiteStore) HourlyWeather(ctx context.Context, q weather.Query) ([]weather.HourlyWeather, error) {
	query, args := s.selectQuery(weather.KindHourly, hourlyColumns, q, "timestamp")
	return queryRows(ctx, s.db, query, args, func(rows *sql.Rows) (weather.HourlyWeather, error) {
		var w weather.HourlyWeather
		dest := append(obsDest(&w.Observation), &w.Temp, &w.FeelsLike, &w.Visibility, &w.Pop, &w.Rain1h, &w.Snow1h)
		err := rows.Scan(dest...)
		return w, err
	})
}

var dailyColumns = append(append([]string{}, obsColumns...),
	"sunrise", "sunset", "moonrise", "moonset", "moon_phase", "summary",
	"temp_min", "temp_max", "temp_morn", "temp_day", "temp_eve", "temp_night",
	"feels_like_morn", "feels_like_day", "feels_like_eve", "feels_like_night",
	"pop", "rain", "snow")

func (s *SQLiteStore) SaveDailyWeather(ctx context.Context, w *weather.DailyWeather) error {
	args := append(obsArgs(w.Observation),
		w.Sunrise, w.Sunset, w.Moonrise, w.Moonset, w.MoonPhase, w.Summary,
		w.TempMin, w.TempMax, w.TempMorn, w.TempDay, w.TempEve, w.TempNight,
		w.FeelsLikeMorn, w.FeelsLikeDay, w.FeelsLikeEve, w.FeelsLikeNight,
		w.Pop, w.Rain, w.Snow)
	id, err := s.insert(ctx, weather.KindDaily, dailyColumns, args)
	if err != nil {
		return err
	}
	w.ID = id
	return nil
}

func (s *SQLiteStore) DailyWeather(ctx context.Context, q weather.Query) ([]weather.DailyWeather, error) {
	query, args := s.selectQuery(weather.KindDaily, dailyColumns, q, "timestamp")
	return queryRows(ctx, s.db, query, args, func(rows *sql.Rows) (weather.DailyWeather, error) {
		var w weather.DailyWeather
		dest := append(obsDest(&w.Observation),
			&w.Sunrise, &w.Sunset, &w.Moonrise, &w.Moonset, &w.MoonPhase, &w.Summary,
			&w.TempMin, &w.TempMax, &w.TempMorn, &w.TempDay, &w.TempEve, &w.TempNight,
			&w.FeelsLikeMorn, &w.FeelsLikeDay, &w.FeelsLikeEve, &w.FeelsLikeNight,
			&w.Pop, &w.Rain, &w.Snow)
		err := rows.Scan(dest...)
		return w, err
	})
}

var alertColumns = []string{"uuid", "location_id", "sender_name", "event", `"start"`, `"end"`, "description", "tags"}

func (s *SQLiteStore) SaveAlert(ctx context.Context, a *weather.WeatherAlert) error {
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to encode alert tags: %w", err)
	}
	id, err := s.insert(ctx, weather.KindAlert, alertColumns, []any{
		a.UUID, a.LocationID, a.SenderName, a.Event, a.Start.UTC(), a.End.UTC(), a.Description, string(raw),
	})
	if err != nil {
		return err
	}
	a.ID = id
	return nil
}

// Alerts are ordered by start; Since applies to the end time.
func (s *SQLiteStore) Alerts(ctx context.Context, q weather.Query) ([]weather.WeatherAlert, error) {
	since := q.Since
	q.Since = time.Time{}
	query, args := s.selectQuery(weather.KindAlert, alertColumns, q, `"start"`)
	if !since.IsZero() {
		// selectQuery always emits a WHERE clause
		query = strings.Replace(query, " ORDER BY ", ` AND "end" >= ? ORDER BY `, 1)
		args = append(args, since.UTC())
	}
	return queryRows(ctx, s.db, query, args, func(rows *sql.Rows) (weather.WeatherAlert, error) {
		var a weather.WeatherAlert
		var tags string
		if err := rows.Scan(&a.ID, &a.UUID, &a.LocationID, &a.SenderName, &a.Event, &a.Start, &a.End, &a.Description, &tags); err != nil {
			return a, err
		}
		if err := json.Unmarshal([]byte(tags), &a.Tags); err != nil {
			return a, fmt.Errorf("failed to decode alert tags: %w", err)
		}
		return a, nil
	})
}

var errorLogColumns = []string{"uuid", "timestamp", "location_id", "api_name", "error_message", "response_data"}

func (s *SQLiteStore) SaveErrorLog(ctx context.Context, e *weather.WeatherErrorLog) error {
	id, err := s.insert(ctx, weather.KindErrorLog, errorLogColumns, []any{
		e.UUID, e.Timestamp.UTC(), e.LocationID, e.APIName, e.ErrorMessage, e.ResponseData,
	})
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

func (s *SQLiteStore) ErrorLogs(ctx context.Context, q weather.Query) ([]weather.WeatherErrorLog, error) {
	query, args := s.selectQuery(weather.KindErrorLog, errorLogColumns, q, "timestamp")
	return queryRows(ctx, s.db, query, args, func(rows *sql.Rows) (weather.WeatherErrorLog, error) {
		var e weather.WeatherErrorLog
		err := rows.Scan(&e.ID, &e.UUID, &e.Timestamp, &e.LocationID, &e.APIName, &e.ErrorMessage, &e.ResponseData)
		return e, err
	})
}

var apiCallColumns = []string{"uuid", "timestamp", "api_name", "units"}

func (s *SQLiteStore) SaveAPICall(ctx context.Context, c *weather.APICallLog) error {
	id, err := s.insert(ctx, weather.KindAPICallLog, apiCallColumns, []any{
		c.UUID, c.Timestamp.UTC(), c.APIName, string(c.Units),
	})
	if err != nil {
		return err
	}
	c.ID = id
	return nil
}

// APICalls ignores Query.LocationID; call logs are not tied to a location.
func (s *SQLiteStore) APICalls(ctx context.Context, q weather.Query) ([]weather.APICallLog, error) {
	q.LocationID = 0
	query, args := s.selectQuery(weather.KindAPICallLog, apiCallColumns, q, "timestamp")
	return queryRows(ctx, s.db, query, args, func(rows *sql.Rows) (weather.APICallLog, error) {
		var c weather.APICallLog
		err := rows.Scan(&c.ID, &c.UUID, &c.Timestamp, &c.APIName, &c.Units)
		return c, err
	})
}

func (s *SQLiteStore) CountAPICalls(ctx context.Context, apiName string, since time.Time) (int, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE api_name = ? AND timestamp >= ?", s.table(weather.KindAPICallLog))
	var n int
	if err := s.db.QueryRowContext(ctx, query, apiName, since.UTC()).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count api calls: %w", err)
	}
	return n, nil
}

// selectQuery builds "SELECT id, cols FROM table WHERE ... ORDER BY" for q.
func (s *SQLiteStore) selectQuery(kind weather.Kind, cols []string, q weather.Query, orderBy string) (string, []any) {
	where := []string{"1 = 1"}
	var args []any
	if q.LocationID != 0 {
		where = append(where, "location_id = ?")
		args = append(args, q.LocationID)
	}
	if !q.Since.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, q.Since.UTC())
	}
	dir := "ASC"
	if q.Newest {
		dir = "DESC"
	}
	query := fmt.Sprintf("SELECT id, %s FROM %s WHERE %s ORDER BY %s %s, id %s",
		strings.Join(cols, ", "), s.table(kind), strings.Join(where, " AND "), orderBy, dir, dir)
	return query, args
}

func queryRows[T any](ctx context.Context, db *sql.DB, query string, args []any, scan func(*sql.Rows) (T, error)) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var result []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return result, nil
}

func first[T any](items []T, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	if len(items) == 0 {
		return zero, ErrNotFound
	}
	return items[0], nil
}

// IsNotFound reports whether err means a missing row in either store.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, sql.ErrNoRows)
}
