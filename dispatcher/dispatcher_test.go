package dispatcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/GriffinCanCode/retrigger/event"
	"github.com/GriffinCanCode/retrigger/fingerprint"
	"github.com/GriffinCanCode/retrigger/glob"
)

type fakeSource struct {
	events []event.RawEvent
	waited chan struct{}
}

func (f *fakeSource) Watch(string, bool) (uint64, error) { return 1, nil }
func (f *fakeSource) Unwatch(uint64) error                { return nil }
func (f *fakeSource) Shutdown() error                     { return nil }

func (f *fakeSource) DrainInto(out []event.RawEvent) int {
	n := copy(out, f.events)
	f.events = f.events[n:]
	return n
}

func (f *fakeSource) Wait(time.Duration) {
	if f.waited != nil {
		select {
		case f.waited <- struct{}{}:
		default:
		}
	}
}

type fakeSink struct {
	pushed []event.Event
	full   bool
}

func (s *fakeSink) Push(e event.Event) bool {
	if s.full {
		return false
	}
	s.pushed = append(s.pushed, e)
	return true
}

type staticRoots struct{ root Root }

func (r staticRoots) Lookup(uint64) (Root, bool) { return r.root, true }

func TestDispatcherEnrichesAndPublishes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.js")
	if err := os.WriteFile(path, []byte("console.log(1)"), 0o644); err != nil {
		t.Fatal(err)
	}

	src := &fakeSource{events: []event.RawEvent{
		{Path: path, Kind: event.Modified, TimestampNS: time.Now().UnixNano(), SourceHandle: 1},
	}}
	ring := &fakeSink{}
	fp := fingerprint.New(fingerprint.Config{})
	roots := staticRoots{root: Root{Path: dir}}

	d := New(src, roots, fp, ring, nil, Config{FingerprintEnabled: true})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	d.Serve(ctx)

	if len(ring.pushed) != 1 {
		t.Fatalf("expected exactly one published event, got %d", len(ring.pushed))
	}
	got := ring.pushed[0]
	if got.Kind != event.Modified {
		t.Fatalf("expected Modified, got %v", got.Kind)
	}
	if !got.HasFingerprint {
		t.Fatal("expected a fingerprint to have been attached")
	}
	if got.IsDirectory != event.No {
		t.Fatalf("expected IsDirectory=No, got %v", got.IsDirectory)
	}

	stats := d.Stats()
	if stats.Processed != 1 {
		t.Fatalf("expected Processed=1, got %d", stats.Processed)
	}
}

func TestDispatcherFiltersExcludedPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node_modules", "x.js")

	patterns, err := glob.Compile(nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	src := &fakeSource{events: []event.RawEvent{
		{Path: path, Kind: event.Created, TimestampNS: time.Now().UnixNano(), SourceHandle: 1},
	}}
	ring := &fakeSink{}
	roots := staticRoots{root: Root{Path: dir, Patterns: patterns}}
	d := New(src, roots, nil, ring, nil, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	d.Serve(ctx)

	if len(ring.pushed) != 0 {
		t.Fatalf("expected node_modules path to be filtered, got %d events", len(ring.pushed))
	}
}

func TestDispatcherRingDropIsCounted(t *testing.T) {
	src := &fakeSource{events: []event.RawEvent{
		{Path: "/tmp/does-not-exist-for-sure", Kind: event.Deleted, TimestampNS: time.Now().UnixNano(), SourceHandle: 1},
	}}
	ring := &fakeSink{full: true}
	roots := staticRoots{root: Root{Path: "/tmp"}}
	d := New(src, roots, nil, ring, nil, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	d.Serve(ctx)

	stats := d.Stats()
	if stats.RingDropped != 1 {
		t.Fatalf("expected RingDropped=1, got %d", stats.RingDropped)
	}
}
