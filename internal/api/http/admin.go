package httpapi

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/owm-weather/internal/weather"
)

// listDisplay is the column set shown per model in the admin listing.
var listDisplay = map[weather.Kind][]string{
	weather.KindLocation:       {"name", "latitude", "longitude", "timezone"},
	weather.KindCurrentWeather: {"location", "timestamp", "temp", "feels_like", "pressure", "humidity"},
	weather.KindMinutely:       {"timestamp", "precipitation"},
	weather.KindHourly:         {"timestamp", "temp", "feels_like", "pressure", "humidity"},
	weather.KindDaily:          {"timestamp", "pressure", "humidity"},
	weather.KindAlert:          {"sender_name", "event", "start", "end"},
	weather.KindErrorLog:       {"timestamp", "location", "api_name", "error_message"},
	weather.KindAPICallLog:     {"timestamp", "api_name"},
}

type admin struct {
	service *weather.Service
	showMap bool
}

func registerAdmin(app *fiber.App, service *weather.Service, showMap bool) {
	a := &admin{service: service, showMap: showMap}
	g := app.Group("/admin")
	g.Get("/", a.index)
	g.Get("/:kind", a.list)
}

func (a *admin) index(c *fiber.Ctx) error {
	models := make([]fiber.Map, 0, len(weather.AllKinds))
	for _, kind := range a.service.Models().Enabled() {
		models = append(models, fiber.Map{
			"model":        kind,
			"url":          "/admin/" + string(kind),
			"list_display": listDisplay[kind],
		})
	}
	return c.JSON(fiber.Map{"models": models})
}

func (a *admin) list(c *fiber.Ctx) error {
	kind, err := weather.ParseKind(c.Params("kind"))
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	records, err := a.service.Records(c.UserContext(), kind)
	if err != nil {
		return err
	}
	locations, err := a.locationNames(c)
	if err != nil {
		return err
	}

	rows := a.rows(records, locations)
	return c.JSON(fiber.Map{
		"model":   kind,
		"columns": listDisplay[kind],
		"count":   len(rows),
		"results": rows,
	})
}

func (a *admin) locationNames(c *fiber.Ctx) (map[int64]string, error) {
	names := make(map[int64]string)
	if !a.service.Models().Has(weather.KindLocation) {
		return names, nil
	}
	locations, err := a.service.ListLocations(c.UserContext())
	if err != nil {
		return nil, err
	}
	for _, loc := range locations {
		names[loc.ID] = loc.Name
	}
	return names, nil
}

// rows projects records onto their list_display columns.
func (a *admin) rows(records any, names map[int64]string) []fiber.Map {
	out := []fiber.Map{}
	switch rs := records.(type) {
	case []weather.Location:
		for _, r := range rs {
			row := fiber.Map{"id": r.ID, "name": r.Name, "latitude": r.Latitude, "longitude": r.Longitude, "timezone": r.Timezone}
			if a.showMap {
				row["map"] = osmLink(r.Latitude, r.Longitude)
			}
			out = append(out, row)
		}
	case []weather.CurrentWeather:
		for _, r := range rs {
			out = append(out, fiber.Map{"id": r.ID, "location": names[r.LocationID], "timestamp": r.Timestamp,
				"temp": r.Temp, "feels_like": r.FeelsLike, "pressure": r.Pressure, "humidity": r.Humidity})
		}
	case []weather.MinutelyWeather:
		for _, r := range rs {
			out = append(out, fiber.Map{"id": r.ID, "timestamp": r.Timestamp, "precipitation": r.Precipitation})
		}
	case []weather.HourlyWeather:
		for _, r := range rs {
			out = append(out, fiber.Map{"id": r.ID, "timestamp": r.Timestamp,
				"temp": r.Temp, "feels_like": r.FeelsLike, "pressure": r.Pressure, "humidity": r.Humidity})
		}
	case []weather.DailyWeather:
		for _, r := range rs {
			out = append(out, fiber.Map{"id": r.ID, "timestamp": r.Timestamp, "pressure": r.Pressure, "humidity": r.Humidity})
		}
	case []weather.WeatherAlert:
		for _, r := range rs {
			out = append(out, fiber.Map{"id": r.ID, "sender_name": r.SenderName, "event": r.Event, "start": r.Start, "end": r.End})
		}
	case []weather.WeatherErrorLog:
		for _, r := range rs {
			out = append(out, fiber.Map{"id": r.ID, "timestamp": r.Timestamp, "location": names[r.LocationID],
				"api_name": r.APIName, "error_message": r.ErrorMessage})
		}
	case []weather.APICallLog:
		for _, r := range rs {
			out = append(out, fiber.Map{"id": r.ID, "timestamp": r.Timestamp, "api_name": r.APIName})
		}
	}
	return out
}

func osmLink(lat, lon float64) string {
	return fmt.Sprintf("https://www.openstreetmap.org/?mlat=%f&mlon=%f#map=12/%f/%f", lat, lon, lat, lon)
}
