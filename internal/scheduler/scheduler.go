package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/i474232898/owm-weather/internal/weather"
)

// Fetcher is the part of weather.Service the scheduler drives.
type Fetcher interface {
	FetchWeather(ctx context.Context, ids ...int64) (weather.FetchResult, error)
}

// Run describes one completed fetch job.
type Run struct {
	StartedAt time.Time           `json:"started_at"`
	Duration  string              `json:"duration"`
	Result    weather.FetchResult `json:"result"`
	Error     string              `json:"error,omitempty"`
}

// Options selects when the fetch job runs. Schedule (cron) wins over Interval.
type Options struct {
	Interval time.Duration
	Schedule string
	// RunTimeout bounds a single job run.
	RunTimeout time.Duration
}

// Scheduler periodically fetches weather data for all stored locations.
type Scheduler struct {
	scheduler *gocron.Scheduler
	fetcher   Fetcher
	opts      Options

	mu      sync.RWMutex
	lastRun *Run
}

// New creates a new Scheduler.
func New(fetcher Fetcher, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 15 * time.Minute
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 5 * time.Minute
	}
	s := gocron.NewScheduler(time.UTC)
	// A slow run must never overlap the next one.
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		fetcher:   fetcher,
		opts:      opts,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	var err error
	if s.opts.Schedule != "" {
		_, err = s.scheduler.Cron(s.opts.Schedule).Do(s.RunOnce)
		log.Printf("INFO: scheduler: fetching weather on schedule %q", s.opts.Schedule)
	} else {
		_, err = s.scheduler.Every(s.opts.Interval).Do(s.RunOnce)
		log.Printf("INFO: scheduler: fetching weather every %s", s.opts.Interval)
	}
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// RunOnce runs a single fetch over every location and records the outcome.
func (s *Scheduler) RunOnce() {
	log.Println("INFO: scheduler: running weather fetch job")
	started := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.RunTimeout)
	defer cancel()

	res, err := s.fetcher.FetchWeather(ctx)
	run := &Run{
		StartedAt: started.UTC(),
		Duration:  time.Since(started).Round(time.Millisecond).String(),
		Result:    res,
	}
	switch {
	case errors.Is(err, weather.ErrRateLimited):
		run.Error = err.Error()
	case err != nil:
		run.Error = err.Error()
		log.Printf("ERROR: scheduler: fetch job failed: %v", err)
	default:
		log.Printf("INFO: scheduler: completed weather fetch job (%s)", res)
	}

	s.mu.Lock()
	s.lastRun = run
	s.mu.Unlock()
}

// LastRun returns the most recent completed run, or nil before the first one.
func (s *Scheduler) LastRun() *Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastRun == nil {
		return nil
	}
	run := *s.lastRun
	return &run
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
