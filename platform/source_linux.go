//go:build linux

package platform

import (
	"os"
	"path/filepath"
	"strings"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/GriffinCanCode/retrigger/event"
	"github.com/GriffinCanCode/retrigger/syncutil"
)

// inotifyEventBufferSize is sized for a burst of events across many
// subdirectories (e.g. an `rm -rf` of a large tree) without forcing a
// second read syscall in the common case.
const inotifyEventBufferSize = unix.SizeofInotifyEvent * 4096

const agnosticMask = unix.IN_CREATE | unix.IN_DELETE | unix.IN_DELETE_SELF |
	unix.IN_MODIFY | unix.IN_ATTRIB | unix.IN_MOVE_SELF |
	unix.IN_MOVED_FROM | unix.IN_MOVED_TO | unix.IN_ONLYDIR | unix.IN_EXCL_UNLINK

// moveCookieWindow bounds how long a "moved-from" half of a rename is held
// while waiting for its paired "moved-to". Past this the move is reported
// as a plain Deleted, matching the spec's documented fallback for
// backends where cookie pairing didn't complete in time.
const moveCookieWindow = 50 * time.Millisecond

type rootState struct {
	handle    uint64
	path      string
	recursive bool
	wds       map[int]string // watch descriptor -> absolute directory path
}

type pendingMove struct {
	rootHandle uint64
	path       string
	at         time.Time
}

// inotifySource implements Source on Linux using a single inotify
// instance shared across every watched root. A recursive root is tracked
// by registering one watch descriptor per subdirectory; IN_CREATE for a
// directory under a recursive root triggers registering the new
// subdirectory before the Created event is handed to DrainInto's caller,
// closing the race where files written immediately after mkdir would
// otherwise be invisible.
type inotifySource struct {
	mu         syncutil.Mutex
	fd         int
	roots      map[uint64]*rootState
	wdToRoot   map[int]uint64
	nextHandle uint64
	pending    map[uint32]pendingMove
	reaped     []event.RawEvent // stale moved-from halves, surfaced as Deleted
	buf        [inotifyEventBufferSize]byte
	bo         backoff
	droppedCounter
}

// NewSource constructs the Linux platform source. It is the linux build's
// implementation of the per-OS constructor every other backend file in
// this package also provides.
func NewSource() (Source, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("inotify_init1", err)
	}
	return &inotifySource{
		mu:       syncutil.NewMutex(),
		fd:       fd,
		roots:    make(map[uint64]*rootState),
		wdToRoot: make(map[int]uint64),
		pending:  make(map[uint32]pendingMove),
	}, nil
}

func (s *inotifySource) Watch(root string, recursive bool) (uint64, error) {
	root = filepath.Clean(root)
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotFound
		}
		if os.IsPermission(err) {
			return 0, ErrPermissionDenied
		}
		return 0, err
	}
	if !info.IsDir() {
		return 0, ErrNotFound
	}

	s.mu.Lock()
	for _, rs := range s.roots {
		if rs.path == root {
			s.mu.Unlock()
			return 0, ErrAlreadyWatched
		}
	}
	handle := s.nextHandle + 1
	s.nextHandle = handle
	rs := &rootState{handle: handle, path: root, recursive: recursive, wds: make(map[int]string)}
	s.roots[handle] = rs
	s.mu.Unlock()

	dirs := []string{root}
	if recursive {
		dirs = dirs[:0]
		walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil // best effort: a vanished entry during enumeration isn't fatal
			}
			if d.IsDir() {
				dirs = append(dirs, path)
			}
			return nil
		})
		if walkErr != nil {
			s.mu.Lock()
			delete(s.roots, handle)
			s.mu.Unlock()
			return 0, walkErr
		}
	}

	for _, dir := range dirs {
		if err := s.addWatch(rs, dir); err != nil {
			s.mu.Lock()
			s.unwatchLocked(rs)
			s.mu.Unlock()
			return 0, err
		}
	}

	return handle, nil
}

// addWatch registers one directory under rs. It takes s.mu itself for
// the map mutations, so callers (Watch and drainRaw) must not hold s.mu.
func (s *inotifySource) addWatch(rs *rootState, dir string) error {
	wd, err := unix.InotifyAddWatch(s.fd, dir, agnosticMask)
	if err != nil {
		if err == unix.ENOSPC {
			return ErrResourceExhausted
		}
		if err == unix.EACCES {
			return ErrPermissionDenied
		}
		return os.NewSyscallError("inotify_add_watch", err)
	}
	s.mu.Lock()
	rs.wds[wd] = dir
	s.wdToRoot[wd] = rs.handle
	s.mu.Unlock()
	return nil
}

func (s *inotifySource) Unwatch(handle uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.roots[handle]
	if !ok {
		return ErrNotWatched
	}
	s.unwatchLocked(rs)
	delete(s.roots, handle)
	return nil
}

func (s *inotifySource) unwatchLocked(rs *rootState) {
	for wd := range rs.wds {
		unix.InotifyRmWatch(s.fd, uint32(wd))
		delete(s.wdToRoot, wd)
	}
}

func (s *inotifySource) Wait(timeout time.Duration) {
	fds := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLIN}}
	ms := int(timeout / time.Millisecond)
	if ms <= 0 && timeout > 0 {
		ms = 1
	}
	unix.Poll(fds, ms)
}

// DrainInto first hands back any stale moved-from halves reapStaleMoves
// has converted to Deleted, then reads fresh inotify events into whatever
// of out remains.
func (s *inotifySource) DrainInto(out []event.RawEvent) int {
	s.reapStaleMoves()
	s.mu.Lock()
	n := copy(out, s.reaped)
	s.reaped = s.reaped[n:]
	s.mu.Unlock()
	if n >= len(out) {
		return n
	}
	return n + s.drainRaw(out[n:])
}

func (s *inotifySource) drainRaw(out []event.RawEvent) int {
	n, err := unix.Read(s.fd, s.buf[:])
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return 0
		}
		l.Warnf("inotify read: %v", err)
		time.Sleep(s.bo.next())
		return 0
	}
	if n <= 0 {
		return 0
	}
	s.bo.reset()

	count := 0
	var offset uint32
	for offset <= uint32(n)-unix.SizeofInotifyEvent && count < len(out) {
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&s.buf[offset]))
		mask := raw.Mask
		nameLen := raw.Len
		wd := int(raw.Wd)

		s.mu.Lock()
		rootHandle, known := s.wdToRoot[wd]
		dir := ""
		if known {
			dir = s.roots[rootHandle].wds[wd]
		}
		s.mu.Unlock()

		var name string
		if nameLen > 0 {
			nameBytes := s.buf[offset+unix.SizeofInotifyEvent : offset+unix.SizeofInotifyEvent+nameLen]
			name = dir + "/" + strings.TrimRight(string(nameBytes), "\x00")
		} else {
			name = dir
		}
		offset += unix.SizeofInotifyEvent + nameLen

		if mask&unix.IN_Q_OVERFLOW != 0 {
			s.incr()
			out[count] = event.RawEvent{
				Path:        dir,
				Kind:        event.MetadataChanged,
				TimestampNS: time.Now().UnixNano(),
				SourceHandle: rootHandle,
			}
			count++
			continue
		}
		if mask&unix.IN_IGNORED != 0 || !known {
			continue
		}

		if mask&unix.IN_CREATE != 0 && mask&unix.IN_ISDIR != 0 {
			s.mu.Lock()
			rs := s.roots[rootHandle]
			s.mu.Unlock()
			if rs != nil && rs.recursive {
				// Register before handing back the event: anything written
				// into the new directory between mkdir and our next Wait
				// wakeup must still be observed.
				_ = s.addWatch(rs, name)
			}
		}

		if ev, ok := s.translate(rootHandle, name, mask, raw.Cookie); ok {
			out[count] = ev
			count++
		}
	}
	return count
}

func (s *inotifySource) translate(rootHandle uint64, name string, mask uint32, cookie uint32) (event.RawEvent, bool) {
	now := time.Now().UnixNano()
	base := event.RawEvent{Path: name, TimestampNS: now, SourceHandle: rootHandle}

	switch {
	case mask&unix.IN_MOVED_FROM != 0:
		if cookie != 0 {
			s.mu.Lock()
			s.pending[cookie] = pendingMove{rootHandle: rootHandle, path: name, at: time.Now()}
			s.mu.Unlock()
			s.reapStaleMoves()
			return event.RawEvent{}, false
		}
		base.Kind = event.Deleted
		return base, true

	case mask&unix.IN_MOVED_TO != 0:
		if cookie != 0 {
			s.mu.Lock()
			from, ok := s.pending[cookie]
			if ok {
				delete(s.pending, cookie)
			}
			s.mu.Unlock()
			if ok {
				base.Kind = event.Moved
				base.MovedFromPath = from.path
				return base, true
			}
		}
		base.Kind = event.Created
		return base, true

	case mask&(unix.IN_DELETE|unix.IN_DELETE_SELF) != 0:
		base.Kind = event.Deleted
		return base, true

	case mask&unix.IN_CREATE != 0:
		base.Kind = event.Created
		return base, true

	case mask&unix.IN_MODIFY != 0:
		base.Kind = event.Modified
		return base, true

	case mask&(unix.IN_ATTRIB|unix.IN_MOVE_SELF) != 0:
		base.Kind = event.MetadataChanged
		return base, true
	}
	return event.RawEvent{}, false
}

// reapStaleMoves converts any "moved-from" half that has waited longer
// than moveCookieWindow into a plain Deleted, per the documented fallback
// for unpaired rename cookies (a move out of the watched tree never gets
// a matching IN_MOVED_TO). The Deleted is queued in s.reaped so the next
// DrainInto returns it; it is called at the start of every DrainInto and
// after each new moved-from half in translate, rather than on a timer,
// since the design forbids a dedicated timer thread in the Platform Source.
func (s *inotifySource) reapStaleMoves() {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-moveCookieWindow)
	for cookie, pm := range s.pending {
		if pm.at.Before(cutoff) {
			delete(s.pending, cookie)
			s.reaped = append(s.reaped, event.RawEvent{
				Path:         pm.path,
				Kind:         event.Deleted,
				TimestampNS:  time.Now().UnixNano(),
				SourceHandle: pm.rootHandle,
			})
		}
	}
}

func (s *inotifySource) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rs := range s.roots {
		s.unwatchLocked(rs)
	}
	s.roots = make(map[uint64]*rootState)
	return unix.Close(s.fd)
}
