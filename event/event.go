// Package event defines the canonical data model shared by every stage of
// the pipeline: the raw signal a platform source produces, the enriched
// record the dispatcher publishes, and the content fingerprint attached
// to it. None of these types own a lock or a goroutine; they flow by
// value through the rings in package ring and package ipc.
package event

import "fmt"

// Kind classifies a filesystem transition. The numeric values are part of
// the IPC wire format (see package ipc) and must not be renumbered.
type Kind uint32

const (
	Created Kind = iota
	Modified
	Deleted
	Moved
	MetadataChanged
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "Created"
	case Modified:
		return "Modified"
	case Deleted:
		return "Deleted"
	case Moved:
		return "Moved"
	case MetadataChanged:
		return "MetadataChanged"
	default:
		return fmt.Sprintf("Kind(%d)", uint32(k))
	}
}

// Tristate represents a yes/no/unknown fact, used for is_directory when a
// platform source can't cheaply determine it (e.g. a Deleted event for a
// path that no longer exists to stat).
type Tristate int8

const (
	Unknown Tristate = iota
	Yes
	No
)

// HashAlgorithm tags which non-cryptographic hash produced a Fingerprint
// value, so a consumer comparing fingerprints across a restart with a
// different configured algorithm can detect the mismatch instead of
// silently treating unrelated hashes as equal.
type HashAlgorithm uint8

const (
	XXH64 HashAlgorithm = iota
	FNV1a64
)

// Fingerprint is a 64-bit content hash plus provenance.
type Fingerprint struct {
	Value       uint64
	Algorithm   HashAlgorithm
	Incremental bool
}

// RawEvent is what a Platform Source (package platform) hands to the
// Dispatcher: the minimal, allocation-free signal the OS gave us.
type RawEvent struct {
	Path          string
	Kind          Kind
	TimestampNS   int64
	SourceHandle  uint64
	MovedFromPath string // set only when Kind == Moved and the backend paired cookies
}

// Event is the canonical, enriched unit that flows through the Event Ring
// and the IPC Ring.
type Event struct {
	Path           string
	Kind           Kind
	TimestampNS    int64
	Size           int64
	IsDirectory    Tristate
	Fingerprint    Fingerprint
	HasFingerprint bool
	MovedFromPath  string // set only when Kind == Moved; not part of the IPC wire slot
}

// Zero reports whether e is the zero value, used by the dispatcher to
// recognize an event that enrichment filtered out (enrich returns the
// zero Event) without a separate "valid" flag.
func (e Event) Zero() bool {
	return e.Path == "" && e.TimestampNS == 0
}
