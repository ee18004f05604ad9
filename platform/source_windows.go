//go:build windows

package platform

import (
	"os"
	"path/filepath"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/GriffinCanCode/retrigger/event"
	"github.com/GriffinCanCode/retrigger/syncutil"
)

// windowsBufferSize is the ReadDirectoryChangesW result buffer. Sized well
// above the single-MAX_PATH-record case so a burst of renames inside one
// watched directory doesn't force a second overlapped read before the
// first is even processed.
const windowsBufferSize = 64 * 1024

const windowsQueueCapacity = 4096

const windowsNotifyFilter = windows.FILE_NOTIFY_CHANGE_FILE_NAME |
	windows.FILE_NOTIFY_CHANGE_DIR_NAME |
	windows.FILE_NOTIFY_CHANGE_LAST_WRITE |
	windows.FILE_NOTIFY_CHANGE_SIZE |
	windows.FILE_NOTIFY_CHANGE_ATTRIBUTES |
	windows.FILE_NOTIFY_CHANGE_CREATION

// windowsRoot holds the overlapped-read state for one watched root. The
// Overlapped struct is embedded at the head so the *Overlapped that
// GetQueuedCompletionStatus returns, cast back to *windowsRoot via
// unsafe.Pointer, recovers the whole struct,
// mirroring the reference backend's ov-to-watch trick.
type windowsRoot struct {
	ov         windows.Overlapped
	handle     windows.Handle
	path       string
	recursive  bool
	rootHandle uint64
	buf        [windowsBufferSize]byte
}

// windowsSource implements Source on Windows with one completion port
// shared across every watched root and one pending overlapped
// ReadDirectoryChangesW call per root, immediately re-armed from the
// completion-port loop after each delivery.
type windowsSource struct {
	mu         syncutil.Mutex
	port       windows.Handle
	roots      map[uint64]*windowsRoot
	nextHandle uint64
	queue      []event.RawEvent
	notify     chan struct{}
	quit       chan struct{}
	done       chan struct{}
	droppedCounter
}

// NewSource constructs the Windows platform source.
func NewSource() (Source, error) {
	port, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 0)
	if err != nil {
		return nil, os.NewSyscallError("CreateIoCompletionPort", err)
	}
	s := &windowsSource{
		mu:     syncutil.NewMutex(),
		port:   port,
		roots:  make(map[uint64]*windowsRoot),
		notify: make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.loop()
	return s, nil
}

func (s *windowsSource) Watch(root string, recursive bool) (uint64, error) {
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

	h, err := windows.CreateFile(
		windows.StringToUTF16Ptr(root),
		windows.FILE_LIST_DIRECTORY,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil, windows.OPEN_EXISTING,
		windows.FILE_FLAG_BACKUP_SEMANTICS|windows.FILE_FLAG_OVERLAPPED, 0)
	if err != nil {
		return 0, os.NewSyscallError("CreateFile", err)
	}

	r := &windowsRoot{handle: h, path: root, recursive: recursive, rootHandle: handle}
	if _, err := windows.CreateIoCompletionPort(h, s.port, uintptr(unsafe.Pointer(r)), 0); err != nil {
		windows.CloseHandle(h)
		return 0, os.NewSyscallError("CreateIoCompletionPort", err)
	}

	s.mu.Lock()
	s.roots[handle] = r
	s.mu.Unlock()

	if err := s.arm(r); err != nil {
		s.mu.Lock()
		delete(s.roots, handle)
		s.mu.Unlock()
		windows.CloseHandle(h)
		return 0, err
	}
	return handle, nil
}

// arm issues (or re-issues) the single outstanding overlapped
// ReadDirectoryChangesW call for r. Per the spec's completion-port design,
// a new read is armed the moment the previous one completes, so at most
// one is ever in flight per root.
func (s *windowsSource) arm(r *windowsRoot) error {
	var bytesReturned uint32
	err := windows.ReadDirectoryChanges(r.handle, &r.buf[0], uint32(len(r.buf)),
		r.recursive, windowsNotifyFilter, &bytesReturned, &r.ov, 0)
	if err != nil {
		return os.NewSyscallError("ReadDirectoryChanges", err)
	}
	return nil
}

func (s *windowsSource) Unwatch(handle uint64) error {
	s.mu.Lock()
	r, ok := s.roots[handle]
	if ok {
		delete(s.roots, handle)
	}
	s.mu.Unlock()
	if !ok {
		return ErrNotWatched
	}
	windows.CancelIo(r.handle)
	windows.CloseHandle(r.handle)
	return nil
}

// loop is the completion-port thread: one GetQueuedCompletionStatus call
// per iteration, translating each delivered buffer into RawEvents and
// immediately re-arming the root that produced it.
func (s *windowsSource) loop() {
	defer close(s.done)
	var n uint32
	var key uintptr
	var ov *windows.Overlapped
	for {
		err := windows.GetQueuedCompletionStatus(s.port, &n, &key, &ov, 200)
		select {
		case <-s.quit:
			return
		default:
		}
		if err != nil {
			continue // timeout or transient completion-port error; re-poll
		}
		if ov == nil {
			continue
		}
		r := (*windowsRoot)(unsafe.Pointer(ov))

		s.mu.Lock()
		_, stillWatched := s.roots[r.rootHandle]
		s.mu.Unlock()
		if !stillWatched {
			continue
		}

		s.translateBuffer(r, n)

		if err := s.arm(r); err != nil {
			l.Warnf("re-arm watch on %s: %v", r.path, err)
		}
	}
}

func (s *windowsSource) translateBuffer(r *windowsRoot, n uint32) {
	if n == 0 {
		return
	}
	now := time.Now().UnixNano()
	var offset uint32
	for {
		raw := (*windows.FileNotifyInformation)(unsafe.Pointer(&r.buf[offset]))
		nameLen := raw.FileNameLength / 2
		namePtr := (*[1 << 20]uint16)(unsafe.Pointer(&raw.FileName))[:nameLen:nameLen]
		name := windows.UTF16ToString(namePtr)
		full := filepath.Join(r.path, name)

		kind, ok := translateAction(raw.Action)
		if ok {
			re := event.RawEvent{
				Path:         full,
				Kind:         kind,
				TimestampNS:  now,
				SourceHandle: r.rootHandle,
			}
			s.push(re)
		}

		if raw.NextEntryOffset == 0 {
			break
		}
		offset += raw.NextEntryOffset
		if offset >= n {
			break
		}
	}
}

func translateAction(action uint32) (event.Kind, bool) {
	switch action {
	case windows.FILE_ACTION_ADDED:
		return event.Created, true
	case windows.FILE_ACTION_REMOVED:
		return event.Deleted, true
	case windows.FILE_ACTION_MODIFIED:
		return event.Modified, true
	case windows.FILE_ACTION_RENAMED_OLD_NAME:
		return event.Deleted, true
	case windows.FILE_ACTION_RENAMED_NEW_NAME:
		return event.Created, true
	}
	return event.Created, false
}

func (s *windowsSource) push(re event.RawEvent) {
	s.mu.Lock()
	if len(s.queue) < windowsQueueCapacity {
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

func (s *windowsSource) Wait(timeout time.Duration) {
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

func (s *windowsSource) DrainInto(out []event.RawEvent) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := copy(out, s.queue)
	s.queue = s.queue[n:]
	return n
}

func (s *windowsSource) Shutdown() error {
	s.mu.Lock()
	for _, r := range s.roots {
		windows.CancelIo(r.handle)
		windows.CloseHandle(r.handle)
	}
	s.roots = make(map[uint64]*windowsRoot)
	s.mu.Unlock()

	close(s.quit)
	<-s.done
	return windows.CloseHandle(s.port)
}
