//go:build darwin

package platform

import (
	"os"
	"path/filepath"
	"time"

	"github.com/mutagen-io/fsevents"

	"github.com/GriffinCanCode/retrigger/event"
	"github.com/GriffinCanCode/retrigger/syncutil"
)

// fsEventsLatency is the FSEvents API's own coalescing window: it trades
// a small amount of added latency for dramatically fewer wakeups when a
// tool (a bundler, a compiler) rewrites many files in one burst.
const fsEventsLatency = 1 * time.Millisecond

type darwinRoot struct {
	handle uint64
	path   string
	stream *fsevents.EventStream
}

// darwinSource implements Source on macOS with one FSEvents stream per
// watched root, configured for per-file granularity (kFSEventStreamCreate
// FlagFileEvents) and low coalescing latency, and flagged to ignore
// events the current process itself generated.
const darwinQueueCapacity = 4096

type darwinSource struct {
	mu         syncutil.Mutex
	roots      map[uint64]*darwinRoot
	nextHandle uint64
	queue      []event.RawEvent
	notify     chan struct{}
	droppedCounter
}

// NewSource constructs the macOS platform source.
func NewSource() (Source, error) {
	return &darwinSource{
		mu:     syncutil.NewMutex(),
		roots:  make(map[uint64]*darwinRoot),
		notify: make(chan struct{}, 1),
	}, nil
}

func (s *darwinSource) Watch(root string, recursive bool) (uint64, error) {
	root = filepath.Clean(root)
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	if !info.IsDir() {
		return 0, ErrNotFound
	}

	s.mu.Lock()
	for _, r := range s.roots {
		if r.path == root {
			s.mu.Unlock()
			return 0, ErrAlreadyWatched
		}
	}
	handle := s.nextHandle + 1
	s.nextHandle = handle
	s.mu.Unlock()

	stream := &fsevents.EventStream{
		Paths:   []string{root},
		Latency: fsEventsLatency,
		Flags:   fsevents.FileEvents | fsevents.WatchRoot | fsevents.IgnoreSelf,
	}
	stream.Start()

	r := &darwinRoot{handle: handle, path: root, stream: stream}
	s.mu.Lock()
	s.roots[handle] = r
	s.mu.Unlock()

	go s.pump(r)

	_ = recursive // FSEvents is always recursive beneath the watched root.
	return handle, nil
}

// pump translates raw FSEvents batches into RawEvents and feeds them into
// the bounded queue that DrainInto reads from. A full queue drops the
// event and bumps the dropped-events counter, matching the ring's
// never-block contract all the way back to the OS notification.
func (s *darwinSource) pump(r *darwinRoot) {
	for batch := range r.stream.Events {
		for _, e := range batch {
			kind, ok := translateFlags(e.Flags)
			if !ok {
				continue
			}
			re := event.RawEvent{
				Path:         e.Path,
				Kind:         kind,
				TimestampNS:  time.Now().UnixNano(),
				SourceHandle: r.handle,
			}
			s.mu.Lock()
			if len(s.queue) < darwinQueueCapacity {
				s.queue = append(s.queue, re)
			} else {
				s.incr()
			}
			s.mu.Unlock()
			select {
			case s.notify <- struct{}{}:
			default:
			}
		}
	}
}

func translateFlags(f fsevents.EventFlags) (event.Kind, bool) {
	switch {
	case f&fsevents.ItemRemoved != 0:
		return event.Deleted, true
	case f&fsevents.ItemRenamed != 0:
		return event.Moved, true
	case f&fsevents.ItemCreated != 0:
		return event.Created, true
	case f&fsevents.ItemModified != 0:
		return event.Modified, true
	case f&(fsevents.ItemInodeMetaMod|fsevents.ItemXattrMod|fsevents.ItemChangeOwner) != 0:
		return event.MetadataChanged, true
	case f&fsevents.MustScanSubDirs != 0:
		return event.MetadataChanged, true
	}
	return event.Created, false
}

func (s *darwinSource) Unwatch(handle uint64) error {
	s.mu.Lock()
	r, ok := s.roots[handle]
	if ok {
		delete(s.roots, handle)
	}
	s.mu.Unlock()
	if !ok {
		return ErrNotWatched
	}
	r.stream.Stop()
	return nil
}

func (s *darwinSource) Wait(timeout time.Duration) {
	s.mu.Lock()
	empty := len(s.queue) == 0
	s.mu.Unlock()
	if !empty {
		return
	}
	select {
	case <-s.notify:
	case <-time.After(timeout):
	}
}

func (s *darwinSource) DrainInto(out []event.RawEvent) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := copy(out, s.queue)
	s.queue = s.queue[n:]
	return n
}

func (s *darwinSource) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roots {
		r.stream.Stop()
	}
	s.roots = make(map[uint64]*darwinRoot)
	return nil
}
