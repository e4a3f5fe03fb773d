package service_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"sftocsv/internal/service"
)

func TestMockEmitter_Named(t *testing.T) {
	m := &service.MockEmitter{}
	ctx := context.Background()

	m.Emit(ctx, service.EventJobStarted, map[string]string{"jobId": "a"})
	m.Emit(ctx, service.EventJobSkipped, nil)
	m.Emit(ctx, service.EventJobStarted, map[string]string{"jobId": "b"})

	if len(m.Events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(m.Events))
	}
	started := m.Named(service.EventJobStarted)
	if len(started) != 2 {
		t.Fatalf("expected 2 started events, got %d", len(started))
	}
	if got := started[1].Data.(map[string]string)["jobId"]; got != "b" {
		t.Errorf("expected second start for b, got %q", got)
	}
	if len(m.Named(service.EventJobsReloaded)) != 0 {
		t.Error("expected no reload events")
	}
}

func TestLogEmitter_WritesEventName(t *testing.T) {
	var buf bytes.Buffer
	e := service.LogEmitter{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	e.Emit(context.Background(), service.EventJobCompleted, "done")

	if !strings.Contains(buf.String(), "event=job:completed") {
		t.Errorf("expected event name in log line, got %q", buf.String())
	}
}
