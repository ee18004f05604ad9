// Package engine wires the five pipeline components into the single
// producer-side object an embedding process holds: engine_new through
// engine_stats in §6.2. It owns the Platform Source, Fingerprint Engine,
// Event Ring, and IPC Ring exclusively, and is the only thing in this
// module that touches all of them at once.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/thejerf/suture/v4"

	"github.com/GriffinCanCode/retrigger/dispatcher"
	"github.com/GriffinCanCode/retrigger/event"
	"github.com/GriffinCanCode/retrigger/events"
	"github.com/GriffinCanCode/retrigger/fingerprint"
	"github.com/GriffinCanCode/retrigger/glob"
	"github.com/GriffinCanCode/retrigger/ipc"
	"github.com/GriffinCanCode/retrigger/logger"
	"github.com/GriffinCanCode/retrigger/platform"
	"github.com/GriffinCanCode/retrigger/ring"
	"github.com/GriffinCanCode/retrigger/syncutil"
)

var l = logger.DefaultLogger.NewFacility("engine", "Pipeline wiring and lifecycle")

// Defaults mirror §6.2's config record.
const (
	DefaultRingCapacity           = 65536
	DefaultFingerprintBlockSize   = 4096
	DefaultFingerprintMaxFileSize = 32 << 20
	DefaultCacheMaxEntries        = 4096
	DefaultCacheTTLSeconds        = 300
	DefaultPollIntervalUS         = 100
	DefaultBatchSize              = 64
)

// Config is the engine_new config record from §6.2. Zero-valued fields
// fall back to the package defaults.
type Config struct {
	RingCapacity uint32

	IPCPath     string // empty disables IPC entirely
	IPCCapacity uint32
	IPCSlotSize int

	FingerprintEnabled     bool
	FingerprintBlockSize   int
	FingerprintMaxFileSize int64
	CacheMaxEntries        int
	CacheTTLSeconds        int

	IncludeGlobs []string
	ExcludeGlobs []string

	PollIntervalUS int
	BatchSize      int
}

func (c Config) withDefaults() Config {
	if c.RingCapacity == 0 {
		c.RingCapacity = DefaultRingCapacity
	}
	if c.IPCCapacity == 0 {
		c.IPCCapacity = DefaultRingCapacity
	}
	if c.IPCSlotSize == 0 {
		c.IPCSlotSize = ipc.DefaultSlotSize
	}
	if c.FingerprintBlockSize == 0 {
		c.FingerprintBlockSize = DefaultFingerprintBlockSize
	}
	if c.FingerprintMaxFileSize == 0 {
		c.FingerprintMaxFileSize = DefaultFingerprintMaxFileSize
	}
	if c.CacheMaxEntries == 0 {
		c.CacheMaxEntries = DefaultCacheMaxEntries
	}
	if c.CacheTTLSeconds == 0 {
		c.CacheTTLSeconds = DefaultCacheTTLSeconds
	}
	if c.PollIntervalUS == 0 {
		c.PollIntervalUS = DefaultPollIntervalUS
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	return c
}

var (
	ErrAlreadyStarted = errors.New("engine: already started")
	ErrNotStarted     = errors.New("engine: not started")
)

// Engine is the top-level object an embedding process creates once.
type Engine struct {
	cfg Config

	source      platform.Source
	fingerprint *fingerprint.Engine
	eventRing   *ring.Ring
	ipcRing     *ipc.Ring
	dispatch    *dispatcher.Dispatcher
	sup         *suture.Supervisor

	mu      syncutil.Mutex
	roots   map[uint64]*watchRoot
	byPath  map[string]uint64
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type watchRoot struct {
	path      string
	recursive bool
	patterns  *glob.Set
}

// New implements engine_new: it allocates every owned resource but does
// not yet start the Dispatcher goroutine (engine_start does that), so a
// caller can register WatchRoots before the pipeline begins running.
func New(cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()

	source, err := platform.NewSource()
	if err != nil {
		return nil, fmt.Errorf("engine: create platform source: %w", err)
	}

	var fp *fingerprint.Engine
	if cfg.FingerprintEnabled {
		fp = fingerprint.New(fingerprint.Config{
			BlockSize:   cfg.FingerprintBlockSize,
			MaxFileSize: cfg.FingerprintMaxFileSize,
			MaxEntries:  cfg.CacheMaxEntries,
			TTL:         secondsToDuration(cfg.CacheTTLSeconds),
		})
	}

	eventRing := ring.New(cfg.RingCapacity)

	var ipcRing *ipc.Ring
	if cfg.IPCPath != "" {
		ipcRing, err = ipc.Create(cfg.IPCPath, cfg.IPCCapacity, cfg.IPCSlotSize)
		if err != nil {
			source.Shutdown()
			return nil, fmt.Errorf("engine: create IPC ring: %w", err)
		}
	}

	e := &Engine{
		cfg:         cfg,
		source:      source,
		fingerprint: fp,
		eventRing:   eventRing,
		ipcRing:     ipcRing,
		mu:          syncutil.NewMutex(),
		roots:       make(map[uint64]*watchRoot),
		byPath:      make(map[string]uint64),
	}

	var ipcSink dispatcher.EventSink
	if ipcRing != nil {
		ipcSink = ipcRing
	}
	e.dispatch = dispatcher.New(source, e, fp, eventSink{eventRing}, ipcSink, dispatcher.Config{
		BatchSize:          cfg.BatchSize,
		PollInterval:       microsToDuration(cfg.PollIntervalUS),
		FingerprintEnabled: cfg.FingerprintEnabled,
	})

	e.sup = suture.New("retrigger-engine", suture.Spec{})
	e.sup.Add(e.dispatch)

	return e, nil
}

// eventSink adapts *ring.Ring's Push to dispatcher.EventSink without
// giving the dispatcher package a dependency on the concrete ring type.
type eventSink struct{ r *ring.Ring }

func (s eventSink) Push(ev event.Event) bool { return s.r.Push(ev) }

// Lookup implements dispatcher.RootLookup.
func (e *Engine) Lookup(handle uint64) (dispatcher.Root, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	wr, ok := e.roots[handle]
	if !ok {
		return dispatcher.Root{}, false
	}
	return dispatcher.Root{Path: wr.path, Patterns: wr.patterns}, true
}

// Watch implements engine_watch: it registers root with the Platform
// Source and the WatchRoot registry. A path may not be watched twice.
func (e *Engine) Watch(root string, recursive bool) error {
	root = filepath.Clean(root)

	e.mu.Lock()
	if _, exists := e.byPath[root]; exists {
		e.mu.Unlock()
		return platform.ErrAlreadyWatched
	}
	e.mu.Unlock()

	patterns, err := glob.Compile(e.cfg.IncludeGlobs, e.cfg.ExcludeGlobs)
	if err != nil {
		return fmt.Errorf("engine: compile watch patterns: %w", err)
	}

	handle, err := e.source.Watch(root, recursive)
	if err != nil {
		events.Default.Log(events.WatchFailed, map[string]interface{}{"root": root, "error": err.Error()})
		return err
	}

	e.mu.Lock()
	e.roots[handle] = &watchRoot{path: root, recursive: recursive, patterns: patterns}
	e.byPath[root] = handle
	e.mu.Unlock()
	events.Default.Log(events.WatchAdded, map[string]interface{}{"root": root, "recursive": recursive})
	return nil
}

// Unwatch implements engine_unwatch.
func (e *Engine) Unwatch(root string) error {
	root = filepath.Clean(root)

	e.mu.Lock()
	handle, ok := e.byPath[root]
	if !ok {
		e.mu.Unlock()
		return platform.ErrNotWatched
	}
	delete(e.byPath, root)
	delete(e.roots, handle)
	e.mu.Unlock()

	err := e.source.Unwatch(handle)
	events.Default.Log(events.WatchRemoved, map[string]interface{}{"root": root})
	return err
}

// Start implements engine_start: it launches the supervised Dispatcher
// service. The Platform Source itself has no dedicated goroutine of its
// own here; its Wait/DrainInto calls are driven synchronously from the
// same goroutine the Dispatcher's Serve loop runs on, matching §5's
// "exactly one thread runs the Dispatcher" (the Platform Source's own
// native backends run their OS-level delivery on their own internal
// threads, e.g. the FSEvents dispatch queue or the Windows completion
// port). The suture.Supervisor restarts the Dispatcher service should it
// ever panic, rather than leaving the pipeline silently stalled.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.started = true
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.sup.Serve(ctx)
	}()
	events.Default.Log(events.Starting, nil)
	return nil
}

// Stop implements engine_stop: cooperative shutdown, per §5. The
// Dispatcher goroutine observes ctx.Done() within at most one poll
// interval and exits; Stop then releases every owned OS resource.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return ErrNotStarted
	}
	cancel := e.cancel
	e.started = false
	e.mu.Unlock()

	events.Default.Log(events.Stopping, nil)
	cancel()
	e.wg.Wait()

	if err := e.source.Shutdown(); err != nil {
		l.Warnf("shutdown platform source: %v", err)
	}
	if e.ipcRing != nil {
		if err := e.ipcRing.Close(); err != nil {
			l.Warnf("close ipc ring: %v", err)
		}
	}
	return nil
}

// Poll implements engine_poll for an in-process consumer.
func (e *Engine) Poll() (event.Event, bool) {
	return e.eventRing.Pop()
}

// Stats implements engine_stats.
func (e *Engine) Stats() Stats {
	ds := e.dispatch.Stats()
	s := Stats{
		Processed:       ds.Processed,
		RingDropped:     ds.RingDropped,
		IPCDropped:      ds.IPCDropped,
		IPCBytesWritten: ds.IPCBytesWritten,
		AvgLatencyNS:    ds.AvgLatencyNS,
		EventRingLen:    e.eventRing.Len(),
	}
	if e.ipcRing != nil {
		ipcStats := e.ipcRing.Stats()
		s.IPCCapacity = ipcStats.Capacity
		s.IPCTotalEvents = ipcStats.TotalEvents
		s.IPCConsumerAlive = ipcStats.ConsumerAlive
	}
	return s
}
