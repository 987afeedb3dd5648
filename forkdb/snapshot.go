package forkdb

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"sort"

	"github.com/mezonai/forkdb/blockstate"
	"github.com/mezonai/forkdb/forkdberr"
	"github.com/mezonai/forkdb/logx"
)

// Supported on-disk snapshot versions. Bumping MaxSupportedVersion is how
// a future format revision would be rolled out; MinSupportedVersion gates
// how far back this binary can still read.
const (
	MinSupportedVersion uint32 = 1
	MaxSupportedVersion uint32 = 1
)

// Codec is the host-supplied (de)serializer for the opaque block payload B.
// Concrete block/header payload formats are an external collaborator — the
// fork database only calls through this narrow interface.
type Codec[B blockstate.BlockHeaderState] interface {
	// EncodeHeader writes the root's header-only representation.
	EncodeHeader(w io.Writer, b B) error
	// DecodeHeader reads a root header back.
	DecodeHeader(r io.Reader) (B, error)
	// EncodeState writes a full block state: its payload plus validity.
	EncodeState(w io.Writer, s *blockstate.BlockState[B]) error
	// DecodeState reads a full block state back. Header extensions must be
	// reconstructed from the raw block; transaction metadata must not be —
	// that reconstruction is the codec's responsibility, not the fork
	// database's.
	DecodeState(r io.Reader) (*blockstate.BlockState[B], error)
}

// Open loads a snapshot from path if it exists. A missing file is not an
// error: it silently produces an empty instance. On a successful load the
// file is removed so it cannot be double-loaded on a later restart.
func (fdb *ForkDatabase[B]) Open(path string, codec Codec[B], validator Validator) error {
	fdb.mu.Lock()
	defer fdb.mu.Unlock()

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	if err := fdb.loadLocked(f, codec, validator); err != nil {
		return err
	}

	return os.Remove(path)
}

func (fdb *ForkDatabase[B]) loadLocked(r io.Reader, codec Codec[B], validator Validator) error {
	var totem uint32
	if err := binary.Read(r, binary.LittleEndian, &totem); err != nil {
		return forkdberr.ForkDatabaseWrap(err, "could not read fork database magic number")
	}
	if totem != fdb.magicNumber {
		return forkdberr.ForkDatabase("fork database file has unexpected magic number: %#x, expected %#x", totem, fdb.magicNumber)
	}

	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return forkdberr.ForkDatabaseWrap(err, "could not read fork database version")
	}
	if version < MinSupportedVersion || version > MaxSupportedVersion {
		return forkdberr.ForkDatabase("unsupported fork database version %d, code supports [%d, %d]", version, MinSupportedVersion, MaxSupportedVersion)
	}

	rootHeader, err := codec.DecodeHeader(r)
	if err != nil {
		return forkdberr.ForkDatabaseWrap(err, "could not read fork database root header")
	}
	fdb.resetLocked(rootHeader)

	count, err := readVaruint(r)
	if err != nil {
		return forkdberr.ForkDatabaseWrap(err, "could not read fork database block count")
	}
	for i := uint64(0); i < count; i++ {
		s, err := codec.DecodeState(r)
		if err != nil {
			return forkdberr.ForkDatabaseWrap(err, "could not read fork database block state %d", i)
		}
		if err := fdb.addDecodedLocked(s, validator); err != nil {
			return err
		}
	}

	var headID blockstate.ID
	if _, err := io.ReadFull(r, headID[:]); err != nil {
		return forkdberr.ForkDatabaseWrap(err, "could not read fork database head id")
	}
	if headID == fdb.root.ID() {
		fdb.head = fdb.root
	} else {
		head := fdb.idx.find(headID)
		if head == nil {
			return forkdberr.ForkDatabase("could not find head while reconstructing fork database; file is likely corrupted")
		}
		fdb.head = head
	}

	// Integrity check with a deliberate asymmetric tolerance: an invalid
	// best candidate is tolerated, but only if head is still root in that
	// case.
	candidate := fdb.idx.best()
	if candidate == nil || !candidate.IsValid() {
		if fdb.head.ID() != fdb.root.ID() {
			return forkdberr.ForkDatabase("head not set to root despite no better option available; file is likely corrupted")
		}
	} else if prefer(candidate, fdb.head) {
		return forkdberr.ForkDatabase("head not set to best available option; file is likely corrupted")
	}

	return nil
}

// addDecodedLocked re-inserts a state reconstructed from a snapshot. It
// preserves whatever validity the snapshot recorded (add does not), mirrors
// add's unlinkable/duplicate checks, and re-evaluates head the same way.
func (fdb *ForkDatabase[B]) addDecodedLocked(s *blockstate.BlockState[B], validator Validator) error {
	prevHeader := fdb.getBlockHeaderLocked(s.Previous())
	if prevHeader == nil {
		return forkdberr.Unlinkable("unlinkable block %s: previous %s not found", s.ID(), s.Previous())
	}
	if fa, ok := s.Block().FeatureActivation(); ok {
		if err := validator(s.Block().Timestamp(), prevHeader.ActivatedFeatures(), fa.NewFeatures); err != nil {
			return forkdberr.ForkDatabaseWrap(err, "serialized fork database is incompatible with configured protocol features")
		}
	}
	if !fdb.idx.insert(s) {
		return forkdberr.ForkDatabase("duplicate block added: %s", s.ID())
	}
	if best := fdb.idx.best(); best != nil && best.IsValid() {
		fdb.head = best
	}
	return nil
}

// Close writes a snapshot to path and clears the index. If root is unset
// while the index is non-empty, this is logged and nothing is written —
// the bad state is left for forensics rather than persisted.
func (fdb *ForkDatabase[B]) Close(path string, codec Codec[B]) error {
	fdb.mu.Lock()
	defer fdb.mu.Unlock()

	if fdb.root == nil {
		if fdb.idx.len() > 0 {
			logx.Error("FORKDB", "fork database is in a bad state when closing; not writing out ", path)
		}
		return nil
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := binary.Write(f, binary.LittleEndian, fdb.magicNumber); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, MaxSupportedVersion); err != nil {
		return err
	}
	if err := codec.EncodeHeader(f, fdb.root.Block()); err != nil {
		return err
	}
	if err := writeVaruint(f, uint64(fdb.idx.len())); err != nil {
		return err
	}

	for _, s := range fdb.orderedForClose() {
		if err := codec.EncodeState(f, s); err != nil {
			return err
		}
	}

	if fdb.head != nil {
		headID := fdb.head.ID()
		if _, err := f.Write(headID[:]); err != nil {
			return err
		}
	} else {
		logx.Error("FORKDB", "head not set in fork database; ", path, " will be corrupted")
	}

	fdb.idx = newMultiIndex[B]()
	return nil
}

// orderedForClose returns every stored state in globally ascending
// (irreversible_blocknum, block_num) order, merged across the valid and
// invalid partitions alike: a parent always has a lesser-or-equal pair than
// its children, so this order guarantees every block is written only after
// whatever it links to, which is what lets loadLocked re-insert the stream
// in a single forward pass without ever seeing an unresolved parent.
// by_fork_choice itself is kept sorted the opposite way (best-to-worst,
// valid partition before invalid partition) for fast head lookup, so this
// is a fresh sort rather than a reuse of that order.
func (fdb *ForkDatabase[B]) orderedForClose() []*blockstate.BlockState[B] {
	out := fdb.idx.all()
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.IrreversibleBlockNum() != b.IrreversibleBlockNum() {
			return a.IrreversibleBlockNum() < b.IrreversibleBlockNum()
		}
		if a.BlockNum() != b.BlockNum() {
			return a.BlockNum() < b.BlockNum()
		}
		if a.IsValid() != b.IsValid() {
			return a.IsValid()
		}
		return a.ID().Less(b.ID())
	})
	return out
}

func readVaruint(r io.Reader) (uint64, error) {
	var buf [1]byte
	var result uint64
	var shift uint
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		result |= uint64(buf[0]&0x7f) << shift
		if buf[0]&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
}

func writeVaruint(w io.Writer, v uint64) error {
	var buf []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		buf = append(buf, b)
		if v == 0 {
			break
		}
	}
	_, err := w.Write(buf)
	return err
}
