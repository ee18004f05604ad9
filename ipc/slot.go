package ipc

import "github.com/GriffinCanCode/retrigger/event"

// encodeSlot writes ev into slot (a slotSize-byte window of the mapping)
// at the exact offsets from §6.1. A path longer than the slot's path
// capacity is truncated and path_length reflects the truncated length;
// the caller is never blocked or failed by an oversize path.
func encodeSlot(slot []byte, ev event.Event) {
	for i := range slot {
		slot[i] = 0
	}

	putUint64(slot, slotOffTimestampNS, uint64(ev.TimestampNS))
	putUint32(slot, slotOffChangeKind, uint32(ev.Kind))
	putUint64(slot, slotOffSizeBytes, uint64(ev.Size))
	putUint32(slot, slotOffIsDirectory, isDirectoryWire(ev.IsDirectory))

	if ev.HasFingerprint {
		putUint32(slot, slotOffFingerprintPresent, 1)
		putUint64(slot, slotOffFingerprintValue, ev.Fingerprint.Value)
	}

	// §6.1: path_length must be <= path buffer size - 1.
	pathCap := len(slot) - slotOffPath - 1
	path := ev.Path
	if len(path) > pathCap {
		path = path[:pathCap]
	}
	putUint32(slot, slotOffPathLength, uint32(len(path)))
	copy(slot[slotOffPath:], path)
}

// decodeSlot is the inverse of encodeSlot, used by the reference consumer
// reader (and by tests asserting invariant 5). An Event round-trips
// exactly save for path truncation and what the slot has no field for:
// is_directory is a 0/1 flag, so Unknown reads back as No; the
// fingerprint's algorithm always reads back as XXH64 and its Incremental
// flag as false; MovedFromPath is not carried.
func decodeSlot(slot []byte) event.Event {
	pathLen := getUint32(slot, slotOffPathLength)
	pathCap := uint32(len(slot) - slotOffPath - 1)
	if pathLen > pathCap {
		pathLen = pathCap
	}
	ev := event.Event{
		TimestampNS: int64(getUint64(slot, slotOffTimestampNS)),
		Kind:        event.Kind(getUint32(slot, slotOffChangeKind)),
		Size:        int64(getUint64(slot, slotOffSizeBytes)),
		IsDirectory: isDirectoryFromWire(getUint32(slot, slotOffIsDirectory)),
		Path:        string(slot[slotOffPath : slotOffPath+pathLen]),
	}
	if getUint32(slot, slotOffFingerprintPresent) != 0 {
		ev.HasFingerprint = true
		ev.Fingerprint = event.Fingerprint{
			Value:     getUint64(slot, slotOffFingerprintValue),
			Algorithm: event.XXH64,
		}
	}
	return ev
}

func isDirectoryWire(t event.Tristate) uint32 {
	if t == event.Yes {
		return 1
	}
	return 0
}

func isDirectoryFromWire(v uint32) event.Tristate {
	if v != 0 {
		return event.Yes
	}
	return event.No
}

func putUint32(buf []byte, off int, v uint32) {
	buf[off] = byte(v)
	buf[off+1] = byte(v >> 8)
	buf[off+2] = byte(v >> 16)
	buf[off+3] = byte(v >> 24)
}

func getUint32(buf []byte, off int) uint32 {
	return uint32(buf[off]) | uint32(buf[off+1])<<8 | uint32(buf[off+2])<<16 | uint32(buf[off+3])<<24
}

func putUint64(buf []byte, off int, v uint64) {
	for i := 0; i < 8; i++ {
		buf[off+i] = byte(v >> (8 * i))
	}
}

func getUint64(buf []byte, off int) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(buf[off+i]) << (8 * i)
	}
	return v
}
