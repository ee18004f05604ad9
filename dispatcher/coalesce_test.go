package dispatcher

import (
	"testing"

	"github.com/GriffinCanCode/retrigger/event"
)

func raw(path string, kind event.Kind, ts int64) event.RawEvent {
	return event.RawEvent{Path: path, Kind: kind, TimestampNS: ts}
}

func TestCoalesceCreatedThenDeletedCancels(t *testing.T) {
	d := &Dispatcher{}
	batch := []event.RawEvent{
		raw("a.js", event.Created, 1),
		raw("a.js", event.Deleted, 2),
	}
	got := d.coalesce(batch)
	if len(got) != 0 {
		t.Fatalf("expected no surviving events, got %v", got)
	}
}

func TestCoalesceModifiedModifiedCollapsesToLatest(t *testing.T) {
	d := &Dispatcher{}
	batch := []event.RawEvent{
		raw("a.js", event.Modified, 1),
		raw("a.js", event.Modified, 2),
	}
	got := d.coalesce(batch)
	if len(got) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(got))
	}
	if got[0].Kind != event.Modified || got[0].TimestampNS != 2 {
		t.Fatalf("expected Modified@2, got %+v", got[0])
	}
}

func TestCoalesceCreatedThenModifiedCollapsesToCreated(t *testing.T) {
	d := &Dispatcher{}
	batch := []event.RawEvent{
		raw("a.js", event.Created, 1),
		raw("a.js", event.Modified, 2),
	}
	got := d.coalesce(batch)
	if len(got) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(got))
	}
	if got[0].Kind != event.Created {
		t.Fatalf("expected Created, got %v", got[0].Kind)
	}
}

func TestCoalesceModifiedThenDeletedSurfacesDeleted(t *testing.T) {
	d := &Dispatcher{}
	batch := []event.RawEvent{
		raw("a.js", event.Modified, 1),
		raw("a.js", event.Deleted, 2),
	}
	got := d.coalesce(batch)
	if len(got) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(got))
	}
	if got[0].Kind != event.Deleted {
		t.Fatalf("expected the later Deleted to win over the stale Modified, got %v", got[0].Kind)
	}
}

func TestCoalesceMovedNeverCoalesced(t *testing.T) {
	d := &Dispatcher{}
	batch := []event.RawEvent{
		raw("b.js", event.Moved, 1),
		raw("b.js", event.Moved, 2),
	}
	got := d.coalesce(batch)
	if len(got) != 2 {
		t.Fatalf("expected both Moved events to survive, got %d", len(got))
	}
}

func TestCoalescePreservesCrossPathOrder(t *testing.T) {
	d := &Dispatcher{}
	batch := []event.RawEvent{
		raw("b.js", event.Modified, 1),
		raw("a.js", event.Modified, 2),
		raw("b.js", event.Modified, 3),
	}
	got := d.coalesce(batch)
	if len(got) != 2 {
		t.Fatalf("expected two surviving events, got %d", len(got))
	}
	if got[0].Path != "b.js" || got[1].Path != "a.js" {
		t.Fatalf("expected b.js before a.js (first-seen order), got %v then %v", got[0].Path, got[1].Path)
	}
	if got[0].TimestampNS != 3 {
		t.Fatalf("expected b.js's collapsed event to carry the later timestamp, got %d", got[0].TimestampNS)
	}
}
