// Package blockstate defines the block-header-state capability contract the
// fork database operates on, plus the generic state wrapper that pairs a
// host-supplied block payload with a mutable validity flag.
package blockstate

import (
	"bytes"
	"encoding/hex"
)

// ID is a 256-bit content hash identifying a block. The zero value denotes
// the absence of a block (never a valid block id in practice).
type ID [32]byte

// ZeroID is the reserved empty identifier.
var ZeroID ID

// Less implements the deterministic lexicographic tie-break the fork-choice
// comparator needs: big-endian byte-wise comparison.
func (a ID) Less(b ID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

// IsZero reports whether id is the reserved empty identifier.
func (a ID) IsZero() bool {
	return a == ZeroID
}

func (a ID) String() string {
	return hex.EncodeToString(a[:])
}
