package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	httpapi "github.com/i474232898/owm-weather/internal/api/http"
	"github.com/i474232898/owm-weather/internal/config"
	"github.com/i474232898/owm-weather/internal/scheduler"
	"github.com/i474232898/owm-weather/internal/store"
	"github.com/i474232898/owm-weather/internal/weather"
	"github.com/i474232898/owm-weather/internal/weather/providers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Shared HTTP client for outbound One Call requests.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	db, err := store.NewSQLiteStore(cfg.DatabasePath, cfg.Models)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	client := providers.NewOneCallClient(httpClient, cfg.APIKey, providers.OneCallOptions{
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

	// Periodic fetch of every stored location.
	sched := scheduler.New(service, scheduler.Options{
		Interval: cfg.FetchInterval,
		Schedule: cfg.FetchSchedule,
	})
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	app := httpapi.NewApp(service, httpapi.Options{
		UseBuiltinAdmin: cfg.UseBuiltinAdmin,
		ShowMap:         cfg.ShowMap,
		Database:        db,
		Status: func() fiber.Map {
			return fiber.Map{"last_run": sched.LastRun()}
		},
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()
	log.Printf("INFO: listening on :%s", cfg.Port)

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
