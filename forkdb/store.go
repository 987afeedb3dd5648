// Package forkdb implements the fork database core: a multi-indexed,
// mutex-guarded tree of block-header states, fork-choice head selection,
// root-advance pruning, graph queries, and a binary snapshot codec.
package forkdb

import (
	"math"
	"sync"
	"time"

	"github.com/mezonai/forkdb/blockstate"
	"github.com/mezonai/forkdb/forkdberr"
)

// Magic numbers discriminating a snapshot file's flavor.
const (
	LegacyMagicNumber uint32 = 0x30470001
	NextGenMagicNumber uint32 = 0x30470002
)

// MaxIrreversibleBlockNum is the saturated irreversible-block-number value a
// next-generation (finality-rule) payload's IrreversibleBlockNum must
// return, degenerating fork choice to block-number ordering.
const MaxIrreversibleBlockNum uint32 = math.MaxUint32

// Validator vets a protocol-feature activation carried by a new block
// against the features already active on its parent. It is supplied by
// the host; the fork database never interprets feature digests itself.
type Validator func(ts time.Time, activated, incoming []blockstate.FeatureDigest) error

// noopValidator is used by Add's convenience path that doesn't validate
// feature activations at all.
func noopValidator(time.Time, []blockstate.FeatureDigest, []blockstate.FeatureDigest) error { return nil }

// ForkDatabase is the generic, flavor-agnostic fork database instance. B is
// the host's block/header payload type; the legacy/next-generation
// distinction lives entirely in what B.IrreversibleBlockNum returns and in
// which magic number the instance was constructed with, not in the Go type
// itself.
//
// A single coarse sync.Mutex guards every operation, mutating or not —
// deliberately not a sync.RWMutex, so reads take the same exclusive lock
// as mutations.
type ForkDatabase[B blockstate.BlockHeaderState] struct {
	mu          sync.Mutex
	magicNumber uint32
	idx         *multiIndex[B]
	root        *blockstate.BlockState[B]
	head        *blockstate.BlockState[B]
}

// NewLegacy constructs an empty legacy-flavored instance (DPoS
// irreversibility rule). Root/head are unset until Reset or Open installs
// one.
func NewLegacy[B blockstate.BlockHeaderState]() *ForkDatabase[B] {
	return newForkDatabase[B](LegacyMagicNumber)
}

// NewNextGen constructs an empty next-generation-flavored instance
// (finality rule, irreversible_blocknum saturated).
func NewNextGen[B blockstate.BlockHeaderState]() *ForkDatabase[B] {
	return newForkDatabase[B](NextGenMagicNumber)
}

func newForkDatabase[B blockstate.BlockHeaderState](magicNumber uint32) *ForkDatabase[B] {
	return &ForkDatabase[B]{
		magicNumber: magicNumber,
		idx:         newMultiIndex[B](),
	}
}

// MagicNumber reports which flavor this instance is.
func (fdb *ForkDatabase[B]) MagicNumber() uint32 {
	fdb.mu.Lock()
	defer fdb.mu.Unlock()
	return fdb.magicNumber
}

// Reset clears the index and installs bhs as a fresh, valid root with head
// pointed at it.
func (fdb *ForkDatabase[B]) Reset(bhs B) {
	fdb.mu.Lock()
	defer fdb.mu.Unlock()
	fdb.resetLocked(bhs)
}

func (fdb *ForkDatabase[B]) resetLocked(bhs B) {
	fdb.idx = newMultiIndex[B]()
	root := blockstate.NewValid(bhs)
	fdb.root = root
	fdb.head = root
}

// RollbackHeadToRoot invalidates every block in the index (root stays
// valid) and moves head back to root. The tree itself is preserved:
// nothing is removed, blocks simply need re-validation before anything but
// root can be preferred again.
func (fdb *ForkDatabase[B]) RollbackHeadToRoot() {
	fdb.mu.Lock()
	defer fdb.mu.Unlock()

	for _, s := range fdb.idx.all() {
		if s.IsValid() {
			s.SetValid(false)
			fdb.idx.reorder(s)
		}
	}
	fdb.head = fdb.root
}

// Add inserts n into the index. If validate is true and n carries a
// protocol-feature-activation extension, validator is invoked
// with n's timestamp, the parent's activated features, and n's newly
// activated features; any error it returns is wrapped as a fork-database
// exception. ignore_duplicate controls whether re-adding an already-present
// id is a silent no-op or an error.
func (fdb *ForkDatabase[B]) Add(n B, ignoreDuplicate, validate bool, validator Validator) error {
	fdb.mu.Lock()
	defer fdb.mu.Unlock()
	return fdb.addLocked(n, ignoreDuplicate, validate, validator)
}

// AddSimple adds n with no feature validation, duplicate handling only.
func (fdb *ForkDatabase[B]) AddSimple(n B, ignoreDuplicate bool) error {
	return fdb.Add(n, ignoreDuplicate, false, noopValidator)
}

func (fdb *ForkDatabase[B]) addLocked(n B, ignoreDuplicate, validate bool, validator Validator) error {
	if fdb.root == nil {
		return forkdberr.ForkDatabase("root not yet set")
	}

	prevHeader := fdb.getBlockHeaderLocked(n.Previous())
	if prevHeader == nil {
		return forkdberr.Unlinkable("unlinkable block %s: previous %s not found", n.ID(), n.Previous())
	}

	if validate {
		if fa, ok := n.FeatureActivation(); ok {
			if err := validator(n.Timestamp(), prevHeader.ActivatedFeatures(), fa.NewFeatures); err != nil {
				return forkdberr.ForkDatabaseWrap(err, "serialized fork database is incompatible with configured protocol features")
			}
		}
	}

	s := blockstate.New[B](n)
	if !fdb.idx.insert(s) {
		if ignoreDuplicate {
			return nil
		}
		return forkdberr.ForkDatabase("duplicate block added: %s", n.ID())
	}

	if best := fdb.idx.best(); best != nil && best.IsValid() {
		fdb.head = best
	}
	return nil
}

// getBlockHeaderLocked resolves id to either root or an index entry,
// returning nil if unresolvable.
func (fdb *ForkDatabase[B]) getBlockHeaderLocked(id blockstate.ID) *blockstate.BlockState[B] {
	if fdb.root != nil && fdb.root.ID() == id {
		return fdb.root
	}
	return fdb.idx.find(id)
}

// GetBlockHeader returns the state for id (root included), or nil.
func (fdb *ForkDatabase[B]) GetBlockHeader(id blockstate.ID) *blockstate.BlockState[B] {
	fdb.mu.Lock()
	defer fdb.mu.Unlock()
	return fdb.getBlockHeaderLocked(id)
}

// GetBlock returns the state for id if it is in the index (not root unless
// root also happens to be separately indexed, which it never is), or nil.
func (fdb *ForkDatabase[B]) GetBlock(id blockstate.ID) *blockstate.BlockState[B] {
	fdb.mu.Lock()
	defer fdb.mu.Unlock()
	return fdb.idx.find(id)
}

// Root returns the current root.
func (fdb *ForkDatabase[B]) Root() *blockstate.BlockState[B] {
	fdb.mu.Lock()
	defer fdb.mu.Unlock()
	return fdb.root
}

// Head returns the current preferred tip.
func (fdb *ForkDatabase[B]) Head() *blockstate.BlockState[B] {
	fdb.mu.Lock()
	defer fdb.mu.Unlock()
	return fdb.head
}

// PendingHead surfaces the best candidate tip, valid or not. Since the
// current head is always already the best valid block (an invariant
// Add/MarkValid maintain), PendingHead only needs to check whether the
// best invalid candidate would beat it.
func (fdb *ForkDatabase[B]) PendingHead() *blockstate.BlockState[B] {
	fdb.mu.Lock()
	defer fdb.mu.Unlock()

	if candidate := fdb.idx.bestInvalid(); candidate != nil && prefer(candidate, fdb.head) {
		return candidate
	}
	return fdb.head
}

// MarkValid flips h's validity to true if it isn't already, re-evaluates
// head, and returns the forkdberr.CodeForkDatabase error if h is not in the
// index.
func (fdb *ForkDatabase[B]) MarkValid(h *blockstate.BlockState[B]) error {
	fdb.mu.Lock()
	defer fdb.mu.Unlock()

	if h.IsValid() {
		return nil
	}
	s := fdb.idx.find(h.ID())
	if s == nil {
		return forkdberr.ForkDatabase("block state not in fork database; cannot mark as valid: %s", h.ID())
	}
	s.SetValid(true)
	fdb.idx.reorder(s)

	if best := fdb.idx.best(); prefer(best, fdb.head) {
		fdb.head = best
	}
	return nil
}

// AdvanceRoot promotes the block with the given id to root, discarding
// everything strictly older than it and every branch that does not pass
// through it.
func (fdb *ForkDatabase[B]) AdvanceRoot(id blockstate.ID) error {
	fdb.mu.Lock()
	defer fdb.mu.Unlock()

	if fdb.root == nil {
		return forkdberr.ForkDatabase("root not yet set")
	}
	newRoot := fdb.idx.find(id)
	if newRoot == nil {
		return forkdberr.ForkDatabase("cannot advance root to a block that does not exist in the fork database: %s", id)
	}
	if !newRoot.IsValid() {
		return forkdberr.ForkDatabase("cannot advance root to a block that has not yet been validated: %s", id)
	}

	// Walk from new-root up to the current root, collecting every ancestor
	// id along the way. Each of these ids is later passed to
	// removeLocked, which discards that ancestor's entire descendant
	// subtree except whatever branch was already carved out individually
	// below — this is how sibling branches get pruned, not just the direct
	// path to the old root.
	var toRemove []blockstate.ID
	for b := newRoot; ; {
		prevID := b.Previous()
		toRemove = append(toRemove, prevID)
		if prevID == fdb.root.ID() {
			break
		}
		next := fdb.idx.find(prevID)
		if next == nil {
			return forkdberr.ForkDatabase("invariant violation: orphaned branch was present in fork database")
		}
		b = next
	}

	// The new root is erased individually, not via removeLocked, so that
	// blocks branching off of it stay in the index.
	fdb.idx.erase(id)

	for _, bid := range toRemove {
		if err := fdb.removeLocked(bid); err != nil {
			return err
		}
	}

	// Do not mutate the block payload itself: other subsystems may read it
	// asynchronously.
	fdb.root = newRoot
	return nil
}

// Remove erases id and its full descendant subtree from the index.
// Removing the current head (directly or transitively) is forbidden and
// fails without mutating anything.
func (fdb *ForkDatabase[B]) Remove(id blockstate.ID) error {
	fdb.mu.Lock()
	defer fdb.mu.Unlock()
	return fdb.removeLocked(id)
}

func (fdb *ForkDatabase[B]) removeLocked(id blockstate.ID) error {
	headID := fdb.head.ID()
	queue := []blockstate.ID{id}
	for i := 0; i < len(queue); i++ {
		if queue[i] == headID {
			return forkdberr.ForkDatabase("removing the block and its descendants would remove the current head block")
		}
		for _, child := range fdb.idx.childrenOf(queue[i]) {
			queue = append(queue, child.ID())
		}
	}
	for _, bid := range queue {
		fdb.idx.erase(bid)
	}
	return nil
}

// FetchBranch walks from h toward root, collecting states whose block
// number is at most trimAfterBlockNum, and returns them head-to-tail.
// This stops at the index boundary: root itself is never included, since
// root is never a member of the index — the returned chain runs from h to
// (but excluding) root.
func (fdb *ForkDatabase[B]) FetchBranch(h blockstate.ID, trimAfterBlockNum uint32) []*blockstate.BlockState[B] {
	fdb.mu.Lock()
	defer fdb.mu.Unlock()

	var result []*blockstate.BlockState[B]
	for s := fdb.idx.find(h); s != nil; s = fdb.idx.find(s.Previous()) {
		if s.BlockNum() <= trimAfterBlockNum {
			result = append(result, s)
		}
	}
	return result
}

// SearchOnBranch walks from h toward root looking for the state at block
// number n, or returns nil. Index-only, like FetchBranch: root is never
// matched.
func (fdb *ForkDatabase[B]) SearchOnBranch(h blockstate.ID, n uint32) *blockstate.BlockState[B] {
	fdb.mu.Lock()
	defer fdb.mu.Unlock()

	for s := fdb.idx.find(h); s != nil; s = fdb.idx.find(s.Previous()) {
		if s.BlockNum() == n {
			return s
		}
	}
	return nil
}

// FetchBranchFrom computes the two branches from a and b down to their most
// recent common ancestor, head-to-tail, excluding the ancestor itself. The
// root id is accepted and resolves to root.
func (fdb *ForkDatabase[B]) FetchBranchFrom(a, b blockstate.ID) ([]*blockstate.BlockState[B], []*blockstate.BlockState[B], error) {
	fdb.mu.Lock()
	defer fdb.mu.Unlock()

	first := fdb.getBlockHeaderLocked(a)
	second := fdb.getBlockHeaderLocked(b)
	if first == nil {
		return nil, nil, forkdberr.NotFound("block %s does not exist", a)
	}
	if second == nil {
		return nil, nil, forkdberr.NotFound("block %s does not exist", b)
	}

	var firstBranch, secondBranch []*blockstate.BlockState[B]

	for first.BlockNum() > second.BlockNum() {
		firstBranch = append(firstBranch, first)
		prev := first.Previous()
		first = fdb.getBlockHeaderLocked(prev)
		if first == nil {
			return nil, nil, forkdberr.NotFound("block %s does not exist", prev)
		}
	}
	for second.BlockNum() > first.BlockNum() {
		secondBranch = append(secondBranch, second)
		prev := second.Previous()
		second = fdb.getBlockHeaderLocked(prev)
		if second == nil {
			return nil, nil, forkdberr.NotFound("block %s does not exist", prev)
		}
	}

	if first.ID() == second.ID() {
		return firstBranch, secondBranch, nil
	}

	for first.Previous() != second.Previous() {
		firstBranch = append(firstBranch, first)
		secondBranch = append(secondBranch, second)

		firstPrev := first.Previous()
		first = fdb.getBlockHeaderLocked(firstPrev)
		if first == nil {
			return nil, nil, forkdberr.NotFound("block %s does not exist", firstPrev)
		}
		secondPrev := second.Previous()
		second = fdb.getBlockHeaderLocked(secondPrev)
		if second == nil {
			return nil, nil, forkdberr.NotFound("block %s does not exist", secondPrev)
		}
	}

	firstBranch = append(firstBranch, first)
	secondBranch = append(secondBranch, second)
	return firstBranch, secondBranch, nil
}
