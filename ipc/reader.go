package ipc

import (
	"os"
	"time"

	"github.com/GriffinCanCode/retrigger/event"
)

// Reader is a reference implementation of the consumer-side algorithm
// from §6.1, used by this repository's own tests to validate the wire
// layout end-to-end. A real foreign consumer reimplements this logic in
// its own language against the same byte offsets; Reader exists so this
// producer can be tested without one.
type Reader struct {
	file *os.File
	mem  []byte
	hdr  header
}

// Open maps an existing IPC ring backing file read-write (the consumer
// still needs write access to publish its own read_position and
// consumer_pid) and validates magic/version.
func Open(path string) (*Reader, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	mem, err := mapFile(f, int(info.Size()))
	if err != nil {
		f.Close()
		return nil, err
	}

	hdr := newHeader(mem)
	if hdr.magic() != Magic {
		unmapFile(mem)
		f.Close()
		return nil, ErrBadMagic
	}
	if hdr.version() != Version {
		unmapFile(mem)
		f.Close()
		return nil, ErrVersionMismatch
	}

	r := &Reader{file: f, mem: mem, hdr: hdr}
	hdr.setConsumerPID(uint32(os.Getpid()))
	return r, nil
}

// Poll implements §6.1's consumer algorithm: snapshot write_position
// (acquire); if it equals the local read_position the ring is empty;
// otherwise decode the slot and publish read_position+1 with release.
func (r *Reader) Poll() (event.Event, bool) {
	write := r.hdr.writePosition()
	read := r.hdr.readPosition()
	if write == read {
		return event.Event{}, false
	}

	slotSize := int(r.hdr.eventSize())
	capacity := r.hdr.capacity()
	idx := read & (capacity - 1)
	off := HeaderSize + int(idx)*slotSize
	ev := decodeSlot(r.mem[off : off+slotSize])

	r.hdr.setReadPosition(read + 1)
	r.hdr.setLastReadTSNS(time.Now().UnixNano())
	return ev, true
}

// Alive reports whether the producer that created this mapping is still
// running and has not signaled shutdown.
func (r *Reader) Alive() bool {
	if r.hdr.shutdown() {
		return false
	}
	pid := r.hdr.producerPID()
	return pid != 0 && processAlive(pid)
}

// Close unmaps the reader's view of the shared file without touching the
// backing file itself (the producer owns its lifecycle).
func (r *Reader) Close() error {
	if err := unmapFile(r.mem); err != nil {
		return err
	}
	return r.file.Close()
}
