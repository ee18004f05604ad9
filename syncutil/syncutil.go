// Package syncutil wraps the standard mutex types with optional hold-time
// logging. Engine components that guard short, hot critical sections (the
// watch-root registry, each platform backend's event-queue lock) use these
// instead of sync.Mutex directly so that a lock held too long shows up in
// the log without changing the call site later.
package syncutil

import (
	"runtime"
	"sync"
	"time"

	"github.com/GriffinCanCode/retrigger/logger"
)

var (
	debug     = false
	threshold = 100 * time.Millisecond
	l         = logger.DefaultLogger.NewFacility("syncutil", "Lock hold-time instrumentation")
)

// SetThreshold overrides the default hold-time threshold above which a
// lock/unlock pair is logged when debugging is enabled.
func SetThreshold(d time.Duration) { threshold = d }

// SetDebug enables or disables hold-time logging process-wide for mutexes
// created by later NewMutex/NewRWMutex calls; existing mutexes keep the
// mode they were created with.
func SetDebug(enabled bool) { debug = enabled }

// Mutex is a drop-in for sync.Mutex that can report long holds.
type Mutex interface {
	Lock()
	Unlock()
}

// RWMutex is a drop-in for sync.RWMutex that can report long holds.
type RWMutex interface {
	Lock()
	Unlock()
	RLock()
	RUnlock()
}

// NewMutex returns a plain mutex, or an instrumented one when debug is
// enabled.
func NewMutex() Mutex {
	if debug {
		return &loggedMutex{}
	}
	return &sync.Mutex{}
}

// NewRWMutex returns a plain RWMutex, or an instrumented one when debug is
// enabled.
func NewRWMutex() RWMutex {
	if debug {
		return &loggedRWMutex{}
	}
	return &sync.RWMutex{}
}

type loggedMutex struct {
	sync.Mutex
	start time.Time
}

func (m *loggedMutex) Lock() {
	t0 := time.Now()
	m.Mutex.Lock()
	m.start = time.Now()
	if d := m.start.Sub(t0); d > threshold {
		l.Debugf("lock wait %v at %s", d, caller())
	}
}

func (m *loggedMutex) Unlock() {
	if d := time.Since(m.start); d > threshold {
		l.Debugf("lock held %v at %s", d, caller())
	}
	m.Mutex.Unlock()
}

type loggedRWMutex struct {
	sync.RWMutex
	start time.Time
}

func (m *loggedRWMutex) Lock() {
	t0 := time.Now()
	m.RWMutex.Lock()
	m.start = time.Now()
	if d := m.start.Sub(t0); d > threshold {
		l.Debugf("rw lock wait %v at %s", d, caller())
	}
}

func (m *loggedRWMutex) Unlock() {
	if d := time.Since(m.start); d > threshold {
		l.Debugf("rw lock held %v at %s", d, caller())
	}
	m.RWMutex.Unlock()
}

func caller() string {
	_, file, line, ok := runtime.Caller(3)
	if !ok {
		return "?"
	}
	return shortFile(file) + ":" + itoa(line)
}

func shortFile(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
