package ipc

import "sync/atomic"

// header is a thin, allocation-free view over the first HeaderSize bytes
// of the mapping. It holds only the slice it was handed and every
// accessor resolves a field pointer into that slice on each call, so it
// is valid exactly as long as that mapping is.
type header struct {
	buf []byte
}

func newHeader(buf []byte) header { return header{buf: buf[:HeaderSize]} }

func (h header) init(capacity, eventSize uint32) {
	atomic.StoreUint32(ptr32(h.buf, offMagic), Magic)
	atomic.StoreUint32(ptr32(h.buf, offVersion), Version)
	atomic.StoreUint32(ptr32(h.buf, offWritePosition), 0)
	atomic.StoreUint32(ptr32(h.buf, offReadPosition), 0)
	atomic.StoreUint32(ptr32(h.buf, offCapacity), capacity)
	atomic.StoreUint32(ptr32(h.buf, offEventSize), eventSize)
	atomic.StoreUint64(ptr64(h.buf, offTotalEvents), 0)
	atomic.StoreUint64(ptr64(h.buf, offDroppedEvents), 0)
	atomic.StoreUint64(ptr64(h.buf, offLastWriteTSNS), 0)
	atomic.StoreUint64(ptr64(h.buf, offLastReadTSNS), 0)
	atomic.StoreUint32(ptr32(h.buf, offProducerPID), 0)
	atomic.StoreUint32(ptr32(h.buf, offConsumerPID), 0)
	atomic.StoreUint32(ptr32(h.buf, offShutdownFlag), 0)
	atomic.StoreUint32(ptr32(h.buf, offMaxUtilPct), 0)
	atomic.StoreUint64(ptr64(h.buf, offAvgLatencyNS), 0)
}

func (h header) magic() uint32      { return atomic.LoadUint32(ptr32(h.buf, offMagic)) }
func (h header) version() uint32    { return atomic.LoadUint32(ptr32(h.buf, offVersion)) }
func (h header) capacity() uint32   { return atomic.LoadUint32(ptr32(h.buf, offCapacity)) }
func (h header) eventSize() uint32  { return atomic.LoadUint32(ptr32(h.buf, offEventSize)) }

// writePosition / readPosition are published with release semantics (a
// plain atomic store on every architecture this engine targets) and
// observed with acquire semantics (a plain atomic load), matching the
// Event Ring's own convention.
func (h header) writePosition() uint32     { return atomic.LoadUint32(ptr32(h.buf, offWritePosition)) }
func (h header) setWritePosition(v uint32) { atomic.StoreUint32(ptr32(h.buf, offWritePosition), v) }
func (h header) readPosition() uint32      { return atomic.LoadUint32(ptr32(h.buf, offReadPosition)) }
func (h header) setReadPosition(v uint32)  { atomic.StoreUint32(ptr32(h.buf, offReadPosition), v) }

func (h header) totalEvents() uint64      { return atomic.LoadUint64(ptr64(h.buf, offTotalEvents)) }
func (h header) incrTotalEvents()         { atomic.AddUint64(ptr64(h.buf, offTotalEvents), 1) }
func (h header) droppedEvents() uint64    { return atomic.LoadUint64(ptr64(h.buf, offDroppedEvents)) }
func (h header) incrDroppedEvents()       { atomic.AddUint64(ptr64(h.buf, offDroppedEvents), 1) }

func (h header) setLastWriteTSNS(ts int64) { atomic.StoreUint64(ptr64(h.buf, offLastWriteTSNS), uint64(ts)) }
func (h header) lastReadTSNS() int64       { return int64(atomic.LoadUint64(ptr64(h.buf, offLastReadTSNS))) }
func (h header) setLastReadTSNS(ts int64)  { atomic.StoreUint64(ptr64(h.buf, offLastReadTSNS), uint64(ts)) }

func (h header) setProducerPID(pid uint32) { atomic.StoreUint32(ptr32(h.buf, offProducerPID), pid) }
func (h header) producerPID() uint32       { return atomic.LoadUint32(ptr32(h.buf, offProducerPID)) }
func (h header) consumerPID() uint32       { return atomic.LoadUint32(ptr32(h.buf, offConsumerPID)) }
func (h header) setConsumerPID(pid uint32) { atomic.StoreUint32(ptr32(h.buf, offConsumerPID), pid) }

func (h header) setShutdown()      { atomic.StoreUint32(ptr32(h.buf, offShutdownFlag), 1) }
func (h header) shutdown() bool    { return atomic.LoadUint32(ptr32(h.buf, offShutdownFlag)) != 0 }

func (h header) setMaxUtilPct(pct uint32) { atomic.StoreUint32(ptr32(h.buf, offMaxUtilPct), pct) }
func (h header) maxUtilPct() uint32       { return atomic.LoadUint32(ptr32(h.buf, offMaxUtilPct)) }

func (h header) setAvgLatencyNS(ns uint64) { atomic.StoreUint64(ptr64(h.buf, offAvgLatencyNS), ns) }
func (h header) avgLatencyNS() uint64      { return atomic.LoadUint64(ptr64(h.buf, offAvgLatencyNS)) }
