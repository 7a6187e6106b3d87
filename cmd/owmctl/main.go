// Command owmctl runs the location management commands against the
// configured database.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/i474232898/owm-weather/internal/commands"
	"github.com/i474232898/owm-weather/internal/config"
	"github.com/i474232898/owm-weather/internal/geocode"
	"github.com/i474232898/owm-weather/internal/store"
	"github.com/i474232898/owm-weather/internal/weather"
	"github.com/i474232898/owm-weather/internal/weather/providers"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("ERROR: failed to load config: %v", err)
		return commands.ExitError
	}

	db, err := store.NewSQLiteStore(cfg.DatabasePath, cfg.Models)
	if err != nil {
		log.Printf("ERROR: failed to open database: %v", err)
		return commands.ExitError
	}
	defer db.Close()

	client := providers.NewOneCallClient(&http.Client{Timeout: cfg.HTTPTimeout}, cfg.APIKey, providers.OneCallOptions{
		Units:          cfg.Units,
		CallsPerMinute: cfg.RateLimits[weather.OneCallAPI].CallsPerMinute,
	})
	service := weather.NewService(db, client, weather.ServiceConfig{
		Models:     cfg.Models,
		RateLimits: cfg.RateLimits,
		Units:      cfg.Units,
		Exclude:    cfg.Exclude,
		UseUUID:    cfg.UseUUID,
	})

	env := commands.Env{
		Service: service,
		In:      os.Stdin,
		Out:     os.Stdout,
		Err:     os.Stderr,
	}
	if cfg.GeocoderAPIKey != "" {
		env.Geocoder = geocode.NewGoogleGeocoder(cfg.GeocoderAPIKey)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return commands.Run(ctx, env, os.Args[1:])
}
