// Package facade provides the flavor-agnostic entry point a host embeds:
// it owns up to two forkdb.ForkDatabase[B] instances (one legacy, one
// next-generation) and dispatches to whichever is currently active.
package facade

import (
	"encoding/binary"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mezonai/forkdb/blockstate"
	"github.com/mezonai/forkdb/diagnostics"
	"github.com/mezonai/forkdb/forkdb"
	"github.com/mezonai/forkdb/forkdberr"
	"github.com/mezonai/forkdb/logx"
)

// Facade is the surface a host actually talks to. It is safe for concurrent
// use: its own mutex serializes flavor dispatch and the one-way legacy to
// next-generation transition, while each underlying ForkDatabase[B] still
// guards its own operations independently.
type Facade[B blockstate.BlockHeaderState] struct {
	mu sync.Mutex

	legacy  *forkdb.ForkDatabase[B]
	nextGen *forkdb.ForkDatabase[B]
	isLegacy bool

	// retired holds every legacy instance SwitchFromLegacy has ever
	// retired. They are deliberately never released: a goroutine that
	// called into the legacy instance before the switch may still be
	// blocked acquiring its mutex, and freeing the struct out from under
	// it would be a use-after-free.
	retired []*forkdb.ForkDatabase[B]

	path  string
	codec forkdb.Codec[B]
	diag  *diagnostics.Log
}

// WithDiagnostics attaches a forensics log that records every Open/Close
// outcome, surfacing close failures that would otherwise be visible only
// to the immediate caller. Passing nil disables recording.
func (f *Facade[B]) WithDiagnostics(log *diagnostics.Log) *Facade[B] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.diag = log
	return f
}

// New constructs a facade defaulting to the legacy flavor, unopened.
func New[B blockstate.BlockHeaderState](path string, codec forkdb.Codec[B]) *Facade[B] {
	return &Facade[B]{
		legacy:   forkdb.NewLegacy[B](),
		isLegacy: true,
		path:     path,
		codec:    codec,
	}
}

// Open loads path if present, auto-selecting flavor by the file's leading
// magic totem, and constructing the other flavor empty. A missing file
// leaves the facade on its default legacy, unopened instance.
func (f *Facade[B]) Open(validator forkdb.Validator) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	magic, ok, err := peekMagicNumber(f.path)
	if err != nil {
		f.recordOpen(0, err)
		return err
	}
	if !ok {
		f.recordOpen(0, nil)
		return nil
	}

	switch magic {
	case forkdb.LegacyMagicNumber:
		f.legacy = forkdb.NewLegacy[B]()
		f.nextGen = forkdb.NewNextGen[B]()
		f.isLegacy = true
		err := f.legacy.Open(f.path, f.codec, validator)
		f.recordOpen(magic, err)
		return err
	case forkdb.NextGenMagicNumber:
		f.legacy = forkdb.NewLegacy[B]()
		f.nextGen = forkdb.NewNextGen[B]()
		f.isLegacy = false
		err := f.nextGen.Open(f.path, f.codec, validator)
		f.recordOpen(magic, err)
		return err
	default:
		err := forkdberr.ForkDatabase("fork database file has unrecognized magic number: %#x", magic)
		f.recordOpen(magic, err)
		return err
	}
}

// Close writes out whichever instance is currently active. The outcome is
// recorded to the diagnostics log (if attached) whether or not it succeeds
// — this is the only place a close failure becomes visible anywhere other
// than the synchronous error return.
func (f *Facade[B]) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	active := f.active()
	err := active.Close(f.path, f.codec)
	f.recordClose(active.MagicNumber(), err)
	return err
}

func (f *Facade[B]) recordOpen(magic uint32, err error) {
	if f.diag == nil {
		return
	}
	if rerr := f.diag.RecordOpen(time.Now(), f.path, magic, err); rerr != nil {
		logx.Error("FACADE", "failed to record open diagnostics: ", rerr.Error())
	}
}

func (f *Facade[B]) recordClose(magic uint32, err error) {
	if f.diag == nil {
		return
	}
	if rerr := f.diag.RecordClose(time.Now(), f.path, magic, err); rerr != nil {
		logx.Error("FACADE", "failed to record close diagnostics: ", rerr.Error())
	}
}

// active returns the currently dispatched instance under f.mu.
func (f *Facade[B]) active() *forkdb.ForkDatabase[B] {
	if f.isLegacy {
		return f.legacy
	}
	return f.nextGen
}

// Active exposes the currently dispatched instance for callers that need
// direct access to the full ForkDatabase[B] surface (Add, MarkValid,
// AdvanceRoot, ...). Dispatch only changes across a SwitchFromLegacy call.
func (f *Facade[B]) Active() *forkdb.ForkDatabase[B] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active()
}

// IsLegacy reports which flavor is currently active.
func (f *Facade[B]) IsLegacy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.isLegacy
}

// SwitchFromLegacy performs the one-way legacy to next-generation
// transition: the legacy instance's current head is copied into a freshly
// reset next-generation instance as its new root, dispatch
// flips, and the old legacy instance is retired (never freed) rather than
// discarded, since a goroutine already blocked on its mutex must still be
// able to complete.
func (f *Facade[B]) SwitchFromLegacy() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.isLegacy {
		return forkdberr.ForkDatabase("cannot switch_from_legacy: facade is not currently legacy")
	}

	head := f.legacy.Head()
	if head == nil {
		return forkdberr.ForkDatabase("cannot switch_from_legacy: legacy instance has no head")
	}

	next := forkdb.NewNextGen[B]()
	next.Reset(head.Block())

	f.retired = append(f.retired, f.legacy)
	f.nextGen = next
	f.isLegacy = false
	logx.Info("FACADE", "switched from legacy to next-generation fork database at block ", head.BlockNum())
	return nil
}

// FetchBranchFromHead returns the raw sequence from head down to, but
// excluding, root, for replay/export, in head-to-root order.
func (f *Facade[B]) FetchBranchFromHead() []*blockstate.BlockState[B] {
	f.mu.Lock()
	active := f.active()
	f.mu.Unlock()

	head := active.Head()
	if head == nil {
		return nil
	}
	return active.FetchBranch(head.ID(), head.BlockNum())
}

// peekMagicNumber reads the first 4 bytes of path without disturbing it for
// the real Open call that follows. A missing file reports ok=false, not an
// error: a missing snapshot silently produces an empty instance.
func peekMagicNumber(path string) (uint32, bool, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	defer f.Close()

	var magic uint32
	if err := binary.Read(f, binary.LittleEndian, &magic); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return 0, false, forkdberr.ForkDatabase("fork database file %s is truncated", path)
		}
		return 0, false, err
	}
	return magic, true, nil
}
