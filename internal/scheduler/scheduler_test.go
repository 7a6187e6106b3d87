package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/i474232898/owm-weather/internal/weather"
)

type fakeFetcher struct {
	calls int32
	res   weather.FetchResult
	err   error
}

func (f *fakeFetcher) FetchWeather(ctx context.Context, ids ...int64) (weather.FetchResult, error) {
	atomic.AddInt32(&f.calls, 1)
	if _, ok := ctx.Deadline(); !ok {
		return weather.FetchResult{}, context.Canceled
	}
	return f.res, f.err
}

func TestRunOnceRecordsLastRun(t *testing.T) {
	f := &fakeFetcher{res: weather.FetchResult{Fetched: 2, Failed: 1}}
	s := New(f, Options{Interval: time.Hour})

	if s.LastRun() != nil {
		t.Fatal("expected no run before the first job")
	}
	s.RunOnce()

	run := s.LastRun()
	if run == nil {
		t.Fatal("expected a recorded run")
	}
	if run.Result.Fetched != 2 || run.Result.Failed != 1 || run.Error != "" {
		t.Errorf("unexpected run %+v", run)
	}
}

func TestRunOnceRecordsRateLimit(t *testing.T) {
	f := &fakeFetcher{err: weather.ErrRateLimited}
	s := New(f, Options{})
	s.RunOnce()

	if run := s.LastRun(); run == nil || run.Error != weather.ErrRateLimited.Error() {
		t.Fatalf("unexpected run %+v", run)
	}
}

func TestStartRunsJob(t *testing.T) {
	f := &fakeFetcher{}
	s := New(f, Options{Interval: time.Hour})
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&f.calls) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if atomic.LoadInt32(&f.calls) == 0 {
		t.Fatal("expected the job to run right after start")
	}
}

func TestStartRejectsBadCron(t *testing.T) {
	s := New(&fakeFetcher{}, Options{Schedule: "not a cron"})
	if err := s.Start(); err == nil {
		s.Stop()
		t.Fatal("expected an error for an invalid cron expression")
	}
}
