//go:build !windows

package ipc

import "golang.org/x/sys/unix"

// processAlive reports whether pid refers to a live process, using the
// POSIX convention that sending signal 0 only validates permission and
// existence without actually delivering anything.
func processAlive(pid uint32) bool {
	return unix.Kill(int(pid), 0) == nil
}
