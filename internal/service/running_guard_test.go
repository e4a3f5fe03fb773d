package service

import (
	"context"
	"testing"
	"time"
)

func TestActiveRuns_OneRunPerJob(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	a := activeRuns{now: func() time.Time { return at }}

	if !a.begin("job-1", "manual") {
		t.Fatal("expected first begin to succeed")
	}
	if a.begin("job-1", "schedule") {
		t.Fatal("expected second begin for the same job to fail")
	}
	if !a.begin("job-2", "file_watch") {
		t.Fatal("expected begin for another job to succeed")
	}

	run, ok := a.get("job-1")
	if !ok {
		t.Fatal("expected job-1 to be running")
	}
	if run.Trigger != "manual" || !run.StartedAt.Equal(at) {
		t.Errorf("unexpected run %+v", run)
	}

	a.end("job-1")
	a.end("job-2")
	if _, ok := a.get("job-1"); ok {
		t.Fatal("expected job-1 to be released")
	}
	if !a.begin("job-1", "manual") {
		t.Fatal("expected begin to succeed after end")
	}
	a.end("job-1")
}

func TestActiveRuns_Wait(t *testing.T) {
	var a activeRuns
	if !a.begin("job-a", "manual") {
		t.Fatal("expected begin to succeed")
	}

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		a.wait(ctx)
		close(done)
	}()
	go func() {
		time.Sleep(20 * time.Millisecond)
		a.end("job-a")
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("wait did not return")
	}
}

func TestActiveRuns_WaitHonoursContext(t *testing.T) {
	var a activeRuns
	a.begin("stuck", "manual")
	defer a.end("stuck")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	a.wait(ctx)
	if time.Since(start) > time.Second {
		t.Fatal("wait ignored the context deadline")
	}
}
