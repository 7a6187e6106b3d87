package httpapi

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/i474232898/owm-weather/internal/store"
	"github.com/i474232898/owm-weather/internal/weather"
)

// Options toggles the optional surfaces of the API.
type Options struct {
	UseBuiltinAdmin bool
	ShowMap         bool
	// Status is merged into the /health response when set.
	Status func() fiber.Map
	// Database, when set, is pinged by /health.
	Database Pinger
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewApp builds the Fiber app with the shared middleware and error handling.
func NewApp(service *weather.Service, opts Options) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "owm-weather",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler:          errorHandler,
	})

	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		body := fiber.Map{
			"status":  "ok",
			"service": "owm-weather",
		}
		if opts.Status != nil {
			for k, v := range opts.Status() {
				body[k] = v
			}
		}
		if opts.Database != nil {
			ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
			defer cancel()
			if err := opts.Database.Ping(ctx); err != nil {
				body["status"] = "degraded"
				body["database"] = err.Error()
				return c.Status(fiber.StatusServiceUnavailable).JSON(body)
			}
			body["database"] = "ok"
		}
		return c.JSON(body)
	})

	RegisterRoutes(app, service, opts)
	return app
}

// errorHandler maps domain errors onto HTTP statuses.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	body := fiber.Map{"error": true, "message": err.Error()}

	var fe *fiber.Error
	var formErrs weather.FormErrors
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.As(err, &formErrs):
		code = fiber.StatusBadRequest
		body["fields"] = formErrs
	case store.IsNotFound(err), errors.Is(err, weather.ErrInvalidLocationRef):
		code = fiber.StatusNotFound
		body["message"] = "not found"
	case errors.Is(err, weather.ErrModelNotConfigured):
		code = fiber.StatusNotFound
	case errors.Is(err, weather.ErrRateLimited):
		code = fiber.StatusTooManyRequests
	}
	return c.Status(code).JSON(body)
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *weather.Service, opts Options) {
	h := &handlers{service: service}

	v1 := app.Group("/api/v1")
	v1.Get("/locations", h.listLocations)
	v1.Post("/locations", h.createLocation)

	loc := v1.Group("/locations/:id", h.loadLocation)
	loc.Get("/", h.getLocation)
	loc.Put("/", h.updateLocation)
	loc.Delete("/", h.deleteLocation)
	loc.Post("/fetch", h.fetchLocation)
	loc.Get("/weather", h.weatherDetail)
	loc.Get("/history", h.history)
	loc.Get("/history/partial", h.historyPartial)
	loc.Get("/forecast", h.forecast)
	loc.Get("/forecast/partial", h.forecastPartial)
	loc.Get("/alerts", h.alerts)
	loc.Get("/alerts/partial", h.alertsPartial)
	loc.Get("/errors", h.errorLogs)
	loc.Get("/errors/partial", h.errorLogsPartial)

	if opts.UseBuiltinAdmin {
		registerAdmin(app, service, opts.ShowMap)
	}
}

type handlers struct {
	service *weather.Service
}

const locationKey = "location"

// loadLocation resolves :id for every location route; unknown ids are 404.
func (h *handlers) loadLocation(c *fiber.Ctx) error {
	loc, err := h.service.ResolveLocation(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	c.Locals(locationKey, loc)
	return c.Next()
}

func location(c *fiber.Ctx) weather.Location {
	loc, _ := c.Locals(locationKey).(weather.Location)
	return loc
}

func (h *handlers) listLocations(c *fiber.Ctx) error {
	locations, err := h.service.ListLocations(c.UserContext())
	if err != nil {
		return err
	}
	if locations == nil {
		locations = []weather.Location{}
	}
	return c.JSON(fiber.Map{"locations": locations})
}

func (h *handlers) createLocation(c *fiber.Ctx) error {
	var form weather.LocationForm
	if err := c.BodyParser(&form); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	loc, err := h.service.CreateLocation(c.UserContext(), form)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(loc)
}

func (h *handlers) getLocation(c *fiber.Ctx) error {
	return c.JSON(location(c))
}

func (h *handlers) updateLocation(c *fiber.Ctx) error {
	loc := location(c)
	// Fields missing from the body keep their current values.
	form := weather.FormFromLocation(loc)
	if err := c.BodyParser(&form); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	updated, err := h.service.UpdateLocation(c.UserContext(), loc, form)
	if err != nil {
		return err
	}
	return c.JSON(updated)
}

func (h *handlers) deleteLocation(c *fiber.Ctx) error {
	if err := h.service.DeleteLocation(c.UserContext(), location(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *handlers) fetchLocation(c *fiber.Ctx) error {
	loc := location(c)
	res, err := h.service.FetchWeather(c.UserContext(), loc.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"location": loc, "result": res})
}

func (h *handlers) weatherDetail(c *fiber.Ctx) error {
	loc := location(c)
	current, err := h.service.LatestWeather(c.UserContext(), loc)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"location": loc, "current_weather": current})
}

func (h *handlers) history(c *fiber.Ctx) error {
	loc := location(c)
	history, err := h.service.History(c.UserContext(), loc)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"location": loc, "historical_data": orEmpty(history)})
}

func (h *handlers) historyPartial(c *fiber.Ctx) error {
	history, err := h.service.History(c.UserContext(), location(c))
	if err != nil {
		return err
	}
	return c.JSON(weather.Paginate(history, c.Query("page"), weather.PartialPageSize))
}

func (h *handlers) forecast(c *fiber.Ctx) error {
	loc := location(c)
	fc, err := h.service.Forecast(c.UserContext(), loc)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"location":        loc,
		"hourly_forecast": orEmpty(fc.Hourly),
		"daily_forecast":  withMoonPhase(fc.Daily),
	})
}

func (h *handlers) forecastPartial(c *fiber.Ctx) error {
	fc, err := h.service.Forecast(c.UserContext(), location(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"hourly_forecast": weather.Paginate(fc.Hourly, c.Query("hourly_page"), weather.PartialPageSize),
		"daily_forecast":  weather.Paginate(withMoonPhase(fc.Daily), c.Query("daily_page"), weather.PartialPageSize),
	})
}

func (h *handlers) alerts(c *fiber.Ctx) error {
	loc := location(c)
	alerts, err := h.service.ActiveAlerts(c.UserContext(), loc)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"location": loc, "alerts": orEmpty(alerts)})
}

func (h *handlers) alertsPartial(c *fiber.Ctx) error {
	alerts, err := h.service.ActiveAlerts(c.UserContext(), location(c))
	if err != nil {
		return err
	}
	return c.JSON(weather.Paginate(alerts, c.Query("page"), weather.PartialPageSize))
}

func (h *handlers) errorLogs(c *fiber.Ctx) error {
	loc := location(c)
	logs, err := h.service.Errors(c.UserContext(), loc)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"location": loc, "error_logs": orEmpty(logs)})
}

func (h *handlers) errorLogsPartial(c *fiber.Ctx) error {
	logs, err := h.service.Errors(c.UserContext(), location(c))
	if err != nil {
		return err
	}
	return c.JSON(weather.Paginate(logs, c.Query("page"), weather.PartialPageSize))
}

// dailyView adds the human readable moon phase to a daily record.
type dailyView struct {
	weather.DailyWeather
	MoonPhaseDescription string `json:"moon_phase_description"`
}

func withMoonPhase(days []weather.DailyWeather) []dailyView {
	out := make([]dailyView, 0, len(days))
	for _, d := range days {
		out = append(out, dailyView{DailyWeather: d, MoonPhaseDescription: d.MoonPhaseDescription()})
	}
	return out
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
