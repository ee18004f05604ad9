package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/GriffinCanCode/retrigger/event"
)

func TestEngineWatchDetectsFileCreation(t *testing.T) {
	dir := t.TempDir()

	e, err := New(Config{FingerprintEnabled: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := e.Watch(dir, true); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop()

	path := filepath.Join(dir, "bundle.js")
	if err := os.WriteFile(path, []byte("export default 1;"), 0o644); err != nil {
		t.Fatal(err)
	}

	ev, ok := pollUntil(t, e, 2*time.Second, func(ev event.Event) bool {
		return filepath.Clean(ev.Path) == filepath.Clean(path)
	})
	if !ok {
		t.Fatal("expected to observe an event for the created file within the timeout")
	}
	if ev.Kind != event.Created && ev.Kind != event.Modified {
		t.Fatalf("expected Created or Modified, got %v", ev.Kind)
	}
}

func TestEngineWatchTwiceFails(t *testing.T) {
	dir := t.TempDir()
	e, err := New(Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Watch(dir, false); err != nil {
		t.Fatal(err)
	}
	if err := e.Watch(dir, false); err == nil {
		t.Fatal("expected the second Watch of the same root to fail")
	}
}

func TestEngineStopIsIdempotentAgainstDoubleStart(t *testing.T) {
	dir := t.TempDir()
	e, err := New(Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Watch(dir, false); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); err != ErrAlreadyStarted {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
	if err := e.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := e.Stop(); err != ErrNotStarted {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}

func pollUntil(t *testing.T, e *Engine, timeout time.Duration, pred func(event.Event) bool) (event.Event, bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if ev, ok := e.Poll(); ok {
			if pred(ev) {
				return ev, true
			}
		} else {
			time.Sleep(5 * time.Millisecond)
		}
	}
	return event.Event{}, false
}
