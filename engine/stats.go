package engine

import "time"

// Stats aggregates counters from the Dispatcher and, if enabled, the IPC
// Ring into the single record engine_stats returns.
type Stats struct {
	Processed       uint64
	RingDropped     uint64
	IPCDropped      uint64
	IPCBytesWritten uint64
	AvgLatencyNS    uint64
	EventRingLen    int

	IPCCapacity      uint32
	IPCTotalEvents   uint64
	IPCConsumerAlive bool
}

func secondsToDuration(s int) time.Duration { return time.Duration(s) * time.Second }
func microsToDuration(us int) time.Duration { return time.Duration(us) * time.Microsecond }
