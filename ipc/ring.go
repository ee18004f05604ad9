package ipc

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/GriffinCanCode/retrigger/event"
	"github.com/GriffinCanCode/retrigger/logger"
)

var l = logger.DefaultLogger.NewFacility("ipc", "Shared-memory IPC ring")

// Errors returned by Create.
var (
	ErrCapacityNotPowerOfTwo = errors.New("ipc: capacity must be a power of two")
	ErrVersionMismatch       = errors.New("ipc: backing file has an incompatible format version")
	ErrBadMagic              = errors.New("ipc: backing file is not an IPC ring (bad magic)")
)

// Ring is the producer side of the IPC Ring: a shared-memory mapping
// backed by a regular file, written by exactly this process and read by
// at most one foreign consumer process. Publish never blocks; a full
// ring is a counted drop, never an error.
type Ring struct {
	file     *os.File
	mem      []byte
	hdr      header
	slotSize int
	capacity uint32
	mask     uint32

	maxSeenUtil uint32
}

// Create truncates (or creates, mode 0600) the backing file at path,
// maps capacity*slotSize+HeaderSize bytes, writes a fresh header, and
// records this process as the producer. capacity must be a power of two.
func Create(path string, capacity uint32, slotSize int) (*Ring, error) {
	if capacity == 0 || capacity&(capacity-1) != 0 {
		return nil, ErrCapacityNotPowerOfTwo
	}
	if slotSize <= slotOffPath {
		slotSize = DefaultSlotSize
	}

	size := HeaderSize + int(capacity)*slotSize
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("ipc: open backing file: %w", err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, fmt.Errorf("ipc: truncate backing file: %w", err)
	}

	mem, err := mapFile(f, size)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ipc: map backing file: %w", err)
	}

	hdr := newHeader(mem)
	hdr.init(capacity, uint32(slotSize))
	hdr.setProducerPID(uint32(os.Getpid()))

	return &Ring{
		file:     f,
		mem:      mem,
		hdr:      hdr,
		slotSize: slotSize,
		capacity: capacity,
		mask:     capacity - 1,
	}, nil
}

// Push implements dispatcher.EventSink: it serializes ev into the next
// slot and advances write_position with release semantics. It returns
// false, without retrying, when the ring is full.
func (r *Ring) Push(ev event.Event) bool {
	write := r.hdr.writePosition()
	read := r.hdr.readPosition()
	if write-read >= r.capacity {
		r.hdr.incrDroppedEvents()
		return false
	}

	slot := r.slotAt(write & r.mask)
	encodeSlot(slot, ev)

	r.hdr.setLastWriteTSNS(time.Now().UnixNano())
	r.hdr.setWritePosition(write + 1)
	r.hdr.incrTotalEvents()
	r.trackUtilization(write+1, read)
	return true
}

func (r *Ring) trackUtilization(write, read uint32) {
	used := write - read
	pct := used * 100 / r.capacity
	if pct > r.maxSeenUtil {
		r.maxSeenUtil = pct
		r.hdr.setMaxUtilPct(pct)
	}
}

func (r *Ring) slotAt(idx uint32) []byte {
	off := HeaderSize + int(idx)*r.slotSize
	return r.mem[off : off+r.slotSize]
}

// Stats mirrors the subset of header fields useful to engine_stats.
type Stats struct {
	Capacity      uint32
	TotalEvents   uint64
	DroppedEvents uint64
	MaxUtilPct    uint32
	ProducerPID   uint32
	ConsumerPID   uint32
	ConsumerAlive bool
}

// Stats returns a point-in-time snapshot of the header counters.
func (r *Ring) Stats() Stats {
	consumerPID := r.hdr.consumerPID()
	return Stats{
		Capacity:      r.capacity,
		TotalEvents:   r.hdr.totalEvents(),
		DroppedEvents: r.hdr.droppedEvents(),
		MaxUtilPct:    r.hdr.maxUtilPct(),
		ProducerPID:   r.hdr.producerPID(),
		ConsumerPID:   consumerPID,
		ConsumerAlive: consumerPID != 0 && processAlive(consumerPID),
	}
}

// Close sets the shutdown flag, unmaps the region, and unlinks the
// backing file, per §4.5's close contract.
func (r *Ring) Close() error {
	r.hdr.setShutdown()
	if err := unmapFile(r.mem); err != nil {
		l.Warnf("unmap ipc ring: %v", err)
	}
	path := r.file.Name()
	closeErr := r.file.Close()
	if rmErr := os.Remove(path); rmErr != nil && closeErr == nil {
		closeErr = rmErr
	}
	return closeErr
}
