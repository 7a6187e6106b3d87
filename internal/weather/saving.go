package weather

import (
	"context"
	"log"
)

// SaveWeatherData persists every section present in resp for loc.
// Sections whose kind is not configured are skipped with an error log.
func (s *Service) SaveWeatherData(ctx context.Context, loc Location, resp *OneCallResponse) error {
	if resp == nil {
		return nil
	}
	steps := []func(context.Context, Location, *OneCallResponse) error{
		s.saveCurrentWeather,
		s.saveMinutelyWeather,
		s.saveHourlyWeather,
		s.saveDailyWeather,
		s.saveAlerts,
	}
	for _, step := range steps {
		if err := step(ctx, loc, resp); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) configured(kind Kind) bool {
	if s.cfg.Models.Has(kind) {
		return true
	}
	log.Printf("ERROR: %s model is not configured.", kind)
	return false
}

func (s *Service) saveCurrentWeather(ctx context.Context, loc Location, resp *OneCallResponse) error {
	if !s.configured(KindCurrentWeather) {
		return nil
	}
	c := resp.Current
	if c == nil {
		return nil
	}
	w := &CurrentWeather{
		Observation: s.observation(loc, c.Dt, c.Weather, observationFields{
			pressure:  c.Pressure,
			humidity:  c.Humidity,
			dewPoint:  c.DewPoint,
			uvi:       c.UVI,
			clouds:    c.Clouds,
			windSpeed: c.WindSpeed,
			windDeg:   c.WindDeg,
			windGust:  c.WindGust,
		}),
		Sunrise:    unixPtr(c.Sunrise),
		Sunset:     unixPtr(c.Sunset),
		Temp:       dec2(c.Temp),
		FeelsLike:  dec2(c.FeelsLike),
		Visibility: c.Visibility,
		Rain1h:     precip(c.Rain),
		Snow1h:     precip(c.Snow),
	}
	return s.store.SaveCurrentWeather(ctx, w)
}

func (s *Service) saveMinutelyWeather(ctx context.Context, loc Location, resp *OneCallResponse) error {
	if !s.configured(KindMinutely) {
		return nil
	}
	for _, m := range resp.Minutely {
		w := &MinutelyWeather{
			UUID:          s.newUUID(),
			LocationID:    loc.ID,
			Timestamp:     unixUTC(m.Dt),
			Precipitation: *dec2(&m.Precipitation),
		}
		if err := s.store.SaveMinutelyWeather(ctx, w); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) saveHourlyWeather(ctx context.Context, loc Location, resp *OneCallResponse) error {
	if !s.configured(KindHourly) {
		return nil
	}
	for _, h := range resp.Hourly {
		w := &HourlyWeather{
			Observation: s.observation(loc, h.Dt, h.Weather, observationFields{
				pressure:  h.Pressure,
				humidity:  h.Humidity,
				dewPoint:  h.DewPoint,
				uvi:       h.UVI,
				clouds:    h.Clouds,
				windSpeed: h.WindSpeed,
				windDeg:   h.WindDeg,
				windGust:  h.WindGust,
			}),
			Temp:       dec2(h.Temp),
			FeelsLike:  dec2(h.FeelsLike),
			Visibility: h.Visibility,
			Pop:        dec2(h.Pop),
			Rain1h:     precip(h.Rain),
			Snow1h:     precip(h.Snow),
		}
		if err := s.store.SaveHourlyWeather(ctx, w); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) saveDailyWeather(ctx context.Context, loc Location, resp *OneCallResponse) error {
	if !s.configured(KindDaily) {
		return nil
	}
	for _, d := range resp.Daily {
		w := &DailyWeather{
			Observation: s.observation(loc, d.Dt, d.Weather, observationFields{
				pressure:  d.Pressure,
				humidity:  d.Humidity,
				dewPoint:  d.DewPoint,
				uvi:       d.UVI,
				clouds:    d.Clouds,
				windSpeed: d.WindSpeed,
				windDeg:   d.WindDeg,
				windGust:  d.WindGust,
			}),
			Sunrise:        unixPtr(d.Sunrise),
			Sunset:         unixPtr(d.Sunset),
			Moonrise:       unixPtr(d.Moonrise),
			Moonset:        unixPtr(d.Moonset),
			MoonPhase:      dec2(d.MoonPhase),
			Summary:        d.Summary,
			TempMin:        dec2(d.Temp.Min),
			TempMax:        dec2(d.Temp.Max),
			TempMorn:       dec2(d.Temp.Morn),
			TempDay:        dec2(d.Temp.Day),
			TempEve:        dec2(d.Temp.Eve),
			TempNight:      dec2(d.Temp.Night),
			FeelsLikeMorn:  dec2(d.FeelsLike.Morn),
			FeelsLikeDay:   dec2(d.FeelsLike.Day),
			FeelsLikeEve:   dec2(d.FeelsLike.Eve),
			FeelsLikeNight: dec2(d.FeelsLike.Night),
			Pop:            dec2(d.Pop),
			Rain:           dec2(d.Rain),
			Snow:           dec2(d.Snow),
		}
		if err := s.store.SaveDailyWeather(ctx, w); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) saveAlerts(ctx context.Context, loc Location, resp *OneCallResponse) error {
	if !s.configured(KindAlert) {
		return nil
	}
	for _, a := range resp.Alerts {
		tags := a.Tags
		if tags == nil {
			tags = []string{}
		}
		alert := &WeatherAlert{
			UUID:        s.newUUID(),
			LocationID:  loc.ID,
			SenderName:  a.SenderName,
			Event:       a.Event,
			Start:       unixUTC(a.Start),
			End:         unixUTC(a.End),
			Description: a.Description,
			Tags:        tags,
		}
		if err := s.store.SaveAlert(ctx, alert); err != nil {
			return err
		}
	}
	return nil
}

// SaveErrorLog records a failed fetch. A missing WeatherErrorLog kind only logs.
func (s *Service) SaveErrorLog(ctx context.Context, loc Location, apiName, message, response string) error {
	if !s.configured(KindErrorLog) {
		return nil
	}
	return s.store.SaveErrorLog(ctx, &WeatherErrorLog{
		UUID:         s.newUUID(),
		Timestamp:    s.now(),
		LocationID:   loc.ID,
		APIName:      apiName,
		ErrorMessage: message,
		ResponseData: response,
	})
}

type observationFields struct {
	pressure  *int
	humidity  *int
	dewPoint  *float64
	uvi       *float64
	clouds    *int
	windSpeed *float64
	windDeg   *int
	windGust  *float64
}

func (s *Service) observation(loc Location, dt int64, conds []ConditionData, f observationFields) Observation {
	return Observation{
		UUID:       s.newUUID(),
		LocationID: loc.ID,
		Timestamp:  unixUTC(dt),
		Pressure:   f.pressure,
		Humidity:   f.humidity,
		DewPoint:   dec2(f.dewPoint),
		UVI:        dec2(f.uvi),
		Clouds:     f.clouds,
		WindSpeed:  dec2(f.windSpeed),
		WindDeg:    f.windDeg,
		WindGust:   dec2(f.windGust),
		Condition:  firstCondition(conds),
	}
}
