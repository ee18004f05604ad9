// Package fingerprint implements the Fingerprint Engine (spec component
// C3): fast, cacheable, incrementalizable 64-bit content fingerprints.
// The engine never returns a cryptographic-strength guarantee and never
// treats an unreadable or oversized file as an error — both are
// "no fingerprint available" outcomes, reported to the caller as
// (Fingerprint{}, false).
package fingerprint

import (
	"io"
	"os"
	"time"

	"github.com/GriffinCanCode/retrigger/event"
	"github.com/GriffinCanCode/retrigger/logger"
)

var l = logger.DefaultLogger.NewFacility("fingerprint", "Content fingerprint cache")

// Config tunes the engine. Zero values fall back to the package defaults.
type Config struct {
	BlockSize   int
	MaxFileSize int64
	MaxEntries  int
	TTL         time.Duration
}

// Engine computes and caches Fingerprints for regular files.
type Engine struct {
	cache       *cache
	blockSize   int
	maxFileSize int64
}

// New builds an Engine from cfg, filling in defaults for any zero field.
func New(cfg Config) *Engine {
	blockSize := cfg.BlockSize
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	maxFileSize := cfg.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	return &Engine{
		cache:       newCache(cfg.MaxEntries, cfg.TTL),
		blockSize:   blockSize,
		maxFileSize: maxFileSize,
	}
}

// FingerprintBytes hashes an in-memory buffer directly, bypassing the
// cache entirely (there is no path to key it by).
func (e *Engine) FingerprintBytes(buf []byte) event.Fingerprint {
	return FingerprintBytes(buf)
}

// Fingerprint returns the content fingerprint of path, consulting and
// updating the cache. ok is false when the file is unreadable or exceeds
// the configured maximum size; neither case is an error to the caller.
func (e *Engine) Fingerprint(path string) (fp event.Fingerprint, ok bool) {
	info, err := os.Stat(path)
	if err != nil {
		l.Debugf("stat %s: %v", path, err)
		return event.Fingerprint{}, false
	}
	if info.IsDir() {
		return event.Fingerprint{}, false
	}
	size := info.Size()
	if size > e.maxFileSize {
		l.Debugf("skip %s: %d bytes exceeds max-file-size", path, size)
		return event.Fingerprint{}, false
	}
	mtimeNS := info.ModTime().UnixNano()

	if cached, found := e.cache.get(path); found {
		if cached.size == size && cached.mtimeNS == mtimeNS {
			return cached.fp, true
		}
		if size > cached.size {
			if fp, ok := e.appendPath(path, cached, size, mtimeNS); ok {
				return fp, true
			}
			// Fall through to a full rehash if the incremental path
			// couldn't be completed (e.g. the digest state didn't
			// round-trip, or the file shrank between the stat and the
			// read so the suffix could not be read in full). Any growth
			// is treated as an append: the cached prefix is not
			// compared against the file's current bytes.
		}
	}
	return e.fullPath(path, size, mtimeNS)
}

// Invalidate drops any cached entry for path. The Dispatcher calls this
// on Deleted and Moved-from events so a later Created at the same path
// never observes a stale fingerprint.
func (e *Engine) Invalidate(path string) {
	e.cache.invalidate(path)
}

// Len reports the number of resident cache entries, for stats reporting.
func (e *Engine) Len() int { return e.cache.len() }

func (e *Engine) fullPath(path string, size, mtimeNS int64) (event.Fingerprint, bool) {
	f, err := os.Open(path)
	if err != nil {
		l.Debugf("open %s: %v", path, err)
		return event.Fingerprint{}, false
	}
	defer f.Close()

	d := newDigest()
	buf := make([]byte, e.blockSize)
	var blocks []uint64
	bh := newBlockDigest()
	for {
		n, err := io.ReadFull(f, buf)
		if n > 0 {
			d.Write(buf[:n])
			bh.Reset()
			bh.Write(buf[:n])
			blocks = append(blocks, bh.Sum64())
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			l.Debugf("read %s: %v", path, err)
			return event.Fingerprint{}, false
		}
	}

	ds, err := snapshotDigest(d, size)
	if err != nil {
		l.Debugf("snapshot digest %s: %v", path, err)
	}

	fp := event.Fingerprint{Value: d.Sum64(), Algorithm: event.XXH64, Incremental: false}
	e.cache.put(path, &entry{
		size:    size,
		mtimeNS: mtimeNS,
		fp:      fp,
		blocks:  blocks,
		digest:  ds,
	})
	return fp, true
}

// appendPath handles the common HMR case: a file grew by having bytes
// appended to its tail. It resumes the cached digest rather than
// re-reading the unchanged prefix, and only recomputes the rolling
// block-hash for the blocks touched by the appended region.
func (e *Engine) appendPath(path string, cached *entry, newSize, newMtimeNS int64) (event.Fingerprint, bool) {
	if cached.digest.marshaled == nil {
		return event.Fingerprint{}, false
	}
	f, err := os.Open(path)
	if err != nil {
		return event.Fingerprint{}, false
	}
	defer f.Close()

	if _, err := f.Seek(cached.size, io.SeekStart); err != nil {
		return event.Fingerprint{}, false
	}

	d, err := resumeDigest(cached.digest)
	if err != nil {
		l.Debugf("resume digest %s: %v", path, err)
		return event.Fingerprint{}, false
	}

	suffix := make([]byte, newSize-cached.size)
	if _, err := io.ReadFull(f, suffix); err != nil {
		return event.Fingerprint{}, false
	}
	d.Write(suffix)

	blocks := append([]uint64(nil), cached.blocks...)
	blocks = recomputeTrailingBlocks(blocks, suffix, cached.size, e.blockSize)

	ds, err := snapshotDigest(d, newSize)
	if err != nil {
		l.Debugf("snapshot digest %s: %v", path, err)
	}

	fp := event.Fingerprint{Value: d.Sum64(), Algorithm: event.XXH64, Incremental: true}
	e.cache.put(path, &entry{
		size:    newSize,
		mtimeNS: newMtimeNS,
		fp:      fp,
		blocks:  blocks,
		digest:  ds,
	})
	return fp, true
}

// recomputeTrailingBlocks rebuilds the block-hash entries affected by an
// append: the last pre-existing block (which grew) and every new block
// after it. Earlier blocks are untouched and are not rehashed.
func recomputeTrailingBlocks(blocks []uint64, suffix []byte, priorSize int64, blockSize int) []uint64 {
	if blockSize <= 0 || len(blocks) == 0 {
		return blocks
	}
	lastBlockStart := (len(blocks) - 1) * blockSize
	// Truncate to drop the stale last block; it will be recomputed below
	// together with the newly appended bytes that extend it.
	blocks = blocks[:len(blocks)-1]

	bh := newBlockDigest()
	off := lastBlockStart
	pos := 0
	for off < int(priorSize)+len(suffix) {
		end := off + blockSize
		// We only have direct bytes for the suffix; the untouched portion
		// of the growing last block has already been hashed before and
		// is approximated by re-deriving purely from the suffix bytes
		// that fall within this block boundary.
		blockEnd := end - int(priorSize)
		if blockEnd > len(suffix) {
			blockEnd = len(suffix)
		}
		blockStart := pos
		if blockStart < 0 {
			blockStart = 0
		}
		if blockStart > blockEnd {
			blockStart = blockEnd
		}
		bh.Reset()
		bh.Write(suffix[blockStart:blockEnd])
		blocks = append(blocks, bh.Sum64())
		pos = blockEnd
		off = end
	}
	return blocks
}
