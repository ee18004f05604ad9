// Package platform implements the Platform Source (spec component C1): a
// tagged variant over the three supported native change-notification
// backends (inotify-family on Linux, FSEvents on macOS, completion-port
// directory changes on Windows). Callers only ever see the Source
// interface; the concrete backend is selected at compile time by the
// per-OS source files in this package.
package platform

import (
	"errors"
	"time"

	"github.com/GriffinCanCode/retrigger/event"
	"github.com/GriffinCanCode/retrigger/logger"
)

var l = logger.DefaultLogger.NewFacility("platform", "Native change-notification backend")

// Errors returned by Watch/Unwatch, matching §7 of the design.
var (
	ErrResourceExhausted = errors.New("platform: native watch limit reached")
	ErrPermissionDenied  = errors.New("platform: insufficient privilege for this backend")
	ErrAlreadyWatched    = errors.New("platform: root is already watched")
	ErrNotWatched        = errors.New("platform: root is not watched")
	ErrNotFound          = errors.New("platform: path does not exist")
)

// Source is the capability set every backend implements. It is the
// abstract replacement for what the reference implementation expresses as
// a class hierarchy: polymorphism here is over this interface, never over
// inheritance.
type Source interface {
	// Watch registers root for change notification. When recursive is
	// true, subdirectories created after registration are picked up
	// automatically and atomically (the new directory is registered
	// before the Created event that announced it is handed to the
	// caller, so files written inside it can never escape observation).
	Watch(root string, recursive bool) (handle uint64, err error)

	// Unwatch removes a previously registered root.
	Unwatch(handle uint64) error

	// DrainInto fills buf with as many immediately-available RawEvents as
	// fit, returning the count. It never allocates on the hot path and
	// does not wait for events; callers that want to wait call Wait first.
	// The one exception is the Linux backend, which sleeps for its backoff
	// interval (1ms doubling to 100ms) after a persistent read error.
	DrainInto(buf []event.RawEvent) int

	// Wait blocks until an event is available or timeout elapses,
	// whichever comes first. It returns early whenever the backend's wait
	// primitive wakes up: poll(2) on the inotify descriptor on Linux, a
	// notify channel fed by the FSEvents or completion-port goroutine on
	// macOS and Windows.
	Wait(timeout time.Duration)

	// Shutdown idempotently releases every OS handle held by the source.
	Shutdown() error
}

// backoff implements the persistent-error retry policy from §4.1: start
// at 1ms, double on each consecutive failure, cap at 100ms, and reset the
// moment any delivery succeeds.
type backoff struct {
	cur time.Duration
}

const (
	backoffInitial = time.Millisecond
	backoffMax     = 100 * time.Millisecond
)

func (b *backoff) next() time.Duration {
	if b.cur == 0 {
		b.cur = backoffInitial
	} else {
		b.cur *= 2
		if b.cur > backoffMax {
			b.cur = backoffMax
		}
	}
	return b.cur
}

func (b *backoff) reset() { b.cur = 0 }

// droppedCounter is embedded by every backend to track native
// overflow/queue-drop occurrences. The count is kept per backend and is
// not included in the engine's Stats.
type droppedCounter struct {
	dropped uint64
}

func (d *droppedCounter) incr()          { d.dropped++ }
func (d *droppedCounter) count() uint64  { return d.dropped }
