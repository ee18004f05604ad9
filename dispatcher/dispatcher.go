// Package dispatcher implements the Dispatcher (spec component C4): it
// drains RawEvents from the Platform Source, enriches and coalesces them
// within each batch, and publishes the result to the in-process Event
// Ring and, if configured, the IPC Ring. Publication to the two sinks is
// independent; a failure (full ring) in one never prevents or is masked
// by a failure in the other.
package dispatcher

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/retrigger/event"
	"github.com/GriffinCanCode/retrigger/fingerprint"
	"github.com/GriffinCanCode/retrigger/glob"
	"github.com/GriffinCanCode/retrigger/logger"
	"github.com/GriffinCanCode/retrigger/platform"
)

var l = logger.DefaultLogger.NewFacility("dispatcher", "Event enrichment and publication")

// DefaultBatchSize and DefaultPollInterval match §4.4's defaults: drain up
// to 64 RawEvents per iteration, and yield for 100µs when a drain came up
// short of that.
const (
	DefaultBatchSize    = 64
	DefaultPollInterval = 100 * time.Microsecond
)

// Root is the subset of WatchRoot state the dispatcher needs to enrich a
// RawEvent: where it's rooted, and which paths under it are observed.
type Root struct {
	Path     string
	Patterns *glob.Set
}

// RootLookup resolves the source-handle a RawEvent carries back to the
// WatchRoot that produced it. The engine's WatchRoot registry is the only
// real implementation; tests supply a map-backed stub.
type RootLookup interface {
	Lookup(handle uint64) (Root, bool)
}

// EventSink is anything a fully enriched Event can be pushed to. Both the
// Event Ring and the IPC Ring satisfy it; the dispatcher depends only on
// this interface so it never needs to know which sinks are wired.
type EventSink interface {
	Push(event.Event) bool
}

// Config tunes dispatcher behavior. Zero values fall back to the
// package's documented defaults.
type Config struct {
	BatchSize          int
	PollInterval       time.Duration
	FingerprintEnabled bool
}

// Stats are the lightweight counters exposed through the engine's
// engine_stats operation.
type Stats struct {
	Processed       uint64
	RingDropped     uint64
	IPCDropped      uint64
	IPCBytesWritten uint64
	AvgLatencyNS    uint64
}

// Dispatcher is the single-threaded C4 loop: one goroutine calls Serve and
// never touches the Fingerprint Engine, Event Ring, or IPC Ring from
// anywhere else, matching the concurrency model's "no shared mutable
// state spans more than two threads" rule.
type Dispatcher struct {
	source      platform.Source
	roots       RootLookup
	fingerprint *fingerprint.Engine
	eventRing   EventSink
	ipcRing     EventSink

	batchSize    int
	pollInterval time.Duration
	fpEnabled    bool

	processed       atomic.Uint64
	ringDropped     atomic.Uint64
	ipcDropped      atomic.Uint64
	ipcBytesWritten atomic.Uint64
	latencySumNS    atomic.Uint64
	latencyCount    atomic.Uint64

	buf []event.RawEvent
}

// New builds a Dispatcher. ipcRing may be nil when IPC is disabled; the
// dispatcher then only ever publishes to eventRing.
func New(source platform.Source, roots RootLookup, fp *fingerprint.Engine, eventRing, ipcRing EventSink, cfg Config) *Dispatcher {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Dispatcher{
		source:       source,
		roots:        roots,
		fingerprint:  fp,
		eventRing:    eventRing,
		ipcRing:      ipcRing,
		batchSize:    batchSize,
		pollInterval: pollInterval,
		fpEnabled:    cfg.FingerprintEnabled,
		buf:          make([]event.RawEvent, batchSize),
	}
}

// Serve drives the batching loop until ctx is cancelled, satisfying
// suture.Service so the engine can supervise it. It never blocks except
// in the platform source's own Wait, which is bounded by the poll
// interval, and the idle-yield sleep, which also returns on ctx.Done();
// ctx is checked at the top of every iteration, so shutdown completes
// within about one poll interval.
func (d *Dispatcher) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n := d.source.DrainInto(d.buf)
		if n == 0 {
			d.source.Wait(d.pollInterval)
			continue
		}

		batch := d.coalesce(d.buf[:n])
		for _, re := range batch {
			d.publish(d.enrich(re))
		}

		if n < d.batchSize {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.pollInterval):
			}
		}
	}
}

// enrich applies §4.4's enrichment order to a single RawEvent.
func (d *Dispatcher) enrich(re event.RawEvent) event.Event {
	ev := event.Event{
		Path:          re.Path,
		Kind:          re.Kind,
		TimestampNS:   re.TimestampNS,
		MovedFromPath: re.MovedFromPath,
		IsDirectory:   event.Unknown,
	}

	root, ok := d.roots.Lookup(re.SourceHandle)
	if ok && root.Patterns != nil && !root.Patterns.MatchAbs(root.Path, re.Path) {
		return event.Event{} // filtered out; Zero() lets publish skip it cheaply
	}

	if re.Kind == event.Deleted {
		return ev
	}

	info, err := statPath(re.Path)
	if err != nil {
		if re.Kind == event.Created {
			// The path may already be gone by the time we stat it (a
			// create-then-immediate-delete race); still emit the Created,
			// just without size/directory-ness.
			return ev
		}
		ev.Kind = event.MetadataChanged
		ev.Size = 0
		ev.IsDirectory = event.Unknown
		return ev
	}

	ev.Size = info.size
	if info.isDir {
		ev.IsDirectory = event.Yes
	} else {
		ev.IsDirectory = event.No
	}

	if d.fpEnabled && d.fingerprint != nil && !info.isDir && re.Kind != event.Deleted {
		if fp, ok := d.fingerprint.Fingerprint(re.Path); ok {
			ev.Fingerprint = fp
			ev.HasFingerprint = true
		}
	}
	return ev
}

// publish pushes ev to both sinks independently, per §4.4: failure of one
// never aborts the other, and neither sink is retried on fullness.
func (d *Dispatcher) publish(ev event.Event) {
	if ev.Zero() {
		return
	}

	if d.fingerprint != nil && (ev.Kind == event.Deleted || ev.Kind == event.Moved) {
		d.fingerprint.Invalidate(ev.Path)
		if ev.Kind == event.Moved && ev.MovedFromPath != "" {
			d.fingerprint.Invalidate(ev.MovedFromPath)
		}
	}

	d.processed.Add(1)
	latency := time.Now().UnixNano() - ev.TimestampNS
	if latency > 0 {
		d.latencySumNS.Add(uint64(latency))
		d.latencyCount.Add(1)
	}

	if d.eventRing != nil && !d.eventRing.Push(ev) {
		d.ringDropped.Add(1)
	}
	if d.ipcRing != nil {
		if !d.ipcRing.Push(ev) {
			d.ipcDropped.Add(1)
		} else {
			d.ipcBytesWritten.Add(uint64(len(ev.Path)) + ipcFixedSlotOverhead)
		}
	}
}

// ipcFixedSlotOverhead approximates the fixed (non-path) portion of an
// IPC slot for the byte-written counter; the ipc package's wire layout
// owns the authoritative figure.
const ipcFixedSlotOverhead = 40

// Stats returns a point-in-time snapshot of the dispatcher's counters.
func (d *Dispatcher) Stats() Stats {
	var avg uint64
	if n := d.latencyCount.Load(); n > 0 {
		avg = d.latencySumNS.Load() / n
	}
	return Stats{
		Processed:       d.processed.Load(),
		RingDropped:     d.ringDropped.Load(),
		IPCDropped:      d.ipcDropped.Load(),
		IPCBytesWritten: d.ipcBytesWritten.Load(),
		AvgLatencyNS:    avg,
	}
}

type statInfo struct {
	size  int64
	isDir bool
}

func statPath(path string) (statInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return statInfo{}, err
	}
	return statInfo{size: fi.Size(), isDir: fi.IsDir()}, nil
}
