package fingerprint

import (
	"github.com/cespare/xxhash/v2"
	"github.com/chmduquesne/rollinghash/buzhash64"

	"github.com/GriffinCanCode/retrigger/event"
)

// digestState is the marshaled form of an xxhash.Digest after having
// consumed exactly consumedBytes of a file's content. Because xxhash's
// Digest is a true streaming hash, resuming it and writing only the
// appended suffix yields bit-for-bit the same Sum64 as hashing the whole
// file in one pass — this is what lets the incremental path satisfy the
// "identical fingerprint regardless of derivation" invariant.
type digestState struct {
	consumedBytes int64
	marshaled     []byte
}

func newDigest() *xxhash.Digest { return xxhash.New() }

func snapshotDigest(d *xxhash.Digest, consumed int64) (digestState, error) {
	b, err := d.MarshalBinary()
	if err != nil {
		return digestState{}, err
	}
	return digestState{consumedBytes: consumed, marshaled: b}, nil
}

func resumeDigest(s digestState) (*xxhash.Digest, error) {
	d := xxhash.New()
	if err := d.UnmarshalBinary(s.marshaled); err != nil {
		return nil, err
	}
	return d, nil
}

// FingerprintBytes hashes an in-memory buffer directly with xxhash64, the
// engine's non-cryptographic hash of choice: fast, SIMD-friendly block
// processing, and a strong avalanche, with no cryptographic-strength
// requirement per the engine's threat model.
func FingerprintBytes(buf []byte) event.Fingerprint {
	return event.Fingerprint{
		Value:     xxhash.Sum64(buf),
		Algorithm: event.XXH64,
	}
}

// newBlockDigest returns a fresh rolling-hash instance sized for exactly
// one block; callers Reset it between blocks rather than allocating anew.
// The resulting per-block digests are the "block-aligned rolling state"
// the fingerprint cache keeps per entry: they let the engine recognize,
// for a file that grew by appending, exactly which blocks are new
// without re-reading or re-hashing the unchanged prefix.
func newBlockDigest() *buzhash64.Buzhash64 {
	return buzhash64.New()
}
