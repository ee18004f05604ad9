package ipc

import (
	"path/filepath"
	"testing"

	"github.com/GriffinCanCode/retrigger/event"
)

func TestCreateRejectsNonPowerOfTwoCapacity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ring")
	if _, err := Create(path, 3, DefaultSlotSize); err != ErrCapacityNotPowerOfTwo {
		t.Fatalf("expected ErrCapacityNotPowerOfTwo, got %v", err)
	}
}

func TestHeaderLayoutOffsets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ring")
	r, err := Create(path, 8, DefaultSlotSize)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	cases := []struct {
		name string
		off  int
		want uint32
	}{
		{"magic", offMagic, Magic},
		{"version", offVersion, Version},
		{"capacity", offCapacity, 8},
		{"event_size", offEventSize, DefaultSlotSize},
	}
	for _, c := range cases {
		got := getUint32(r.mem, c.off)
		if got != c.want {
			t.Errorf("%s at offset %d: got %d, want %d", c.name, c.off, got, c.want)
		}
	}
}

func TestPublishAndPollRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ring")
	r, err := Create(path, 8, DefaultSlotSize)
	if err != nil {
		t.Fatal(err)
	}

	ev := event.Event{
		Path:           "/repo/src/app.js",
		Kind:           event.Modified,
		TimestampNS:    1234567890,
		Size:           4096,
		IsDirectory:    event.No,
		HasFingerprint: true,
		Fingerprint:    event.Fingerprint{Value: 0xdeadbeefcafebabe, Algorithm: event.XXH64},
	}
	if !r.Push(ev) {
		t.Fatal("expected Push to succeed on an empty ring")
	}

	reader, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()

	got, ok := reader.Poll()
	if !ok {
		t.Fatal("expected an event to be available")
	}
	if got.Path != ev.Path || got.Kind != ev.Kind || got.TimestampNS != ev.TimestampNS ||
		got.Size != ev.Size || got.IsDirectory != ev.IsDirectory ||
		got.HasFingerprint != ev.HasFingerprint || got.Fingerprint.Value != ev.Fingerprint.Value {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", got, ev)
	}

	if _, ok := reader.Poll(); ok {
		t.Fatal("expected no second event")
	}
}

func TestPublishTruncatesOversizePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ring")
	slotSize := slotOffPath + 8 // tiny path capacity to force truncation
	r, err := Create(path, 4, slotSize)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	// §6.1: path_length <= path buffer size - 1, so an 8-byte path buffer
	// truncates to 7 bytes, not 8.
	const wantLen = 7
	longPath := "/this/path/is/definitely/longer/than/eight/bytes.js"
	r.Push(event.Event{Path: longPath, Kind: event.Created})

	reader, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()

	got, ok := reader.Poll()
	if !ok {
		t.Fatal("expected an event")
	}
	if len(got.Path) != wantLen {
		t.Fatalf("expected truncated path of length %d, got %d (%q)", wantLen, len(got.Path), got.Path)
	}
	if got.Path != longPath[:wantLen] {
		t.Fatalf("truncated path mismatch: got %q, want %q", got.Path, longPath[:wantLen])
	}
}

func TestPublishNeverBlocksWhenFull(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ring")
	r, err := Create(path, 2, DefaultSlotSize)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if !r.Push(event.Event{Path: "a", Kind: event.Created}) {
		t.Fatal("expected first push to succeed")
	}
	if !r.Push(event.Event{Path: "b", Kind: event.Created}) {
		t.Fatal("expected second push to succeed")
	}
	if r.Push(event.Event{Path: "c", Kind: event.Created}) {
		t.Fatal("expected third push to be dropped, ring is full")
	}

	stats := r.Stats()
	if stats.DroppedEvents != 1 {
		t.Fatalf("expected DroppedEvents=1, got %d", stats.DroppedEvents)
	}
	if stats.TotalEvents != 2 {
		t.Fatalf("expected TotalEvents=2, got %d", stats.TotalEvents)
	}
}
