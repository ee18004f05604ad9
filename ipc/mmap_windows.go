//go:build windows

package ipc

import (
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

// mapFile mirrors the POSIX mmap backend using CreateFileMapping plus
// MapViewOfFile, both read-write since this side is the producer.
func mapFile(f *os.File, size int) ([]byte, error) {
	h, err := windows.CreateFileMapping(windows.Handle(f.Fd()), nil,
		windows.PAGE_READWRITE, uint32(uint64(size)>>32), uint32(size), nil)
	if err != nil {
		return nil, os.NewSyscallError("CreateFileMapping", err)
	}

	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_WRITE|windows.FILE_MAP_READ, 0, 0, uintptr(size))
	if err != nil {
		windows.CloseHandle(h)
		return nil, os.NewSyscallError("MapViewOfFile", err)
	}

	windowsMapMu.Lock()
	windowsMapHandles[addr] = h
	windowsMapMu.Unlock()
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size), nil
}

var (
	windowsMapMu      sync.Mutex
	windowsMapHandles = map[uintptr]windows.Handle{}
)

func unmapFile(b []byte) error {
	addr := uintptr(unsafe.Pointer(&b[0]))
	if err := windows.UnmapViewOfFile(addr); err != nil {
		return os.NewSyscallError("UnmapViewOfFile", err)
	}
	windowsMapMu.Lock()
	h, ok := windowsMapHandles[addr]
	delete(windowsMapHandles, addr)
	windowsMapMu.Unlock()
	if ok {
		return windows.CloseHandle(h)
	}
	return nil
}
