package fsm_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	adapter "github.com/neomorfeo/ctinamer/internal/adapter/fsm"
	"github.com/neomorfeo/ctinamer/internal/domain"
)

func TestValidator_AllTransitions(t *testing.T) {
	v := adapter.New()
	ctx := context.Background()

	for _, tr := range domain.Transitions {
		dst, err := v.Apply(ctx, tr.Src, tr.Event)
		if err != nil {
			t.Errorf("Apply(%q, %q) unexpected error: %v", tr.Src, tr.Event, err)
			continue
		}
		if dst != tr.Dst {
			t.Errorf("Apply(%q, %q) = %q, want %q", tr.Src, tr.Event, dst, tr.Dst)
		}
	}
}

func TestValidator_InvalidTransition(t *testing.T) {
	v := adapter.New()
	ctx := context.Background()

	// A store cannot finish loading before it started.
	_, err := v.Apply(ctx, domain.StatusUninitialized, domain.EventLoaded)
	var trErr *domain.TransitionError
	if !errors.As(err, &trErr) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if trErr.Event != domain.EventLoaded {
		t.Errorf("event = %q, want %q", trErr.Event, domain.EventLoaded)
	}
	if trErr.Current != domain.StatusUninitialized {
		t.Errorf("current = %q, want %q", trErr.Current, domain.StatusUninitialized)
	}
}

func TestValidator_UnknownEvent(t *testing.T) {
	v := adapter.New()

	// Mutation events are published, never applied to the lifecycle.
	_, err := v.Apply(context.Background(), domain.StatusReady, domain.EventIDIssued)
	var trErr *domain.TransitionError
	if !errors.As(err, &trErr) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
}

func TestValidator_FullLifecycle(t *testing.T) {
	v := adapter.New()
	ctx := context.Background()

	steps := []struct {
		from  domain.Status
		event domain.Event
		want  domain.Status
	}{
		{domain.StatusUninitialized, domain.EventLoad, domain.StatusLoading},
		{domain.StatusLoading, domain.EventLoaded, domain.StatusReady},
		{domain.StatusReady, domain.EventLoad, domain.StatusLoading},
		{domain.StatusLoading, domain.EventLoaded, domain.StatusReady},
	}

	for _, step := range steps {
		got, err := v.Apply(ctx, step.from, step.event)
		if err != nil {
			t.Fatalf("Apply(%q, %q) error: %v", step.from, step.event, err)
		}
		if got != step.want {
			t.Errorf("Apply(%q, %q) = %q, want %q", step.from, step.event, got, step.want)
		}
	}
}

func TestValidator_LoadWhileLoading(t *testing.T) {
	v := adapter.New()

	_, err := v.Apply(context.Background(), domain.StatusLoading, domain.EventLoad)
	var trErr *domain.TransitionError
	if !errors.As(err, &trErr) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
}

func TestValidator_WithLoggerRecordsTransition(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	v := adapter.New(adapter.WithLogger(logger))

	if _, err := v.Apply(context.Background(), domain.StatusLoading, domain.EventLoaded); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"store lifecycle", "event=loaded", "from=loading", "to=ready"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %q", out, want)
		}
	}
}
