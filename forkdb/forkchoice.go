package forkdb

import "github.com/mezonai/forkdb/blockstate"

// prefer reports whether a is strictly preferred over b under the
// fork-choice rule:
//
//	prefer(a, b) ≡ (a.irreversible_blocknum, a.block_num) > (b.irreversible_blocknum, b.block_num)
//
// For next-generation payloads IrreversibleBlockNum is saturated to
// math.MaxUint32 on every block, so the pair comparison degenerates to
// plain block-number ordering, as intended.
func prefer[B blockstate.BlockHeaderState](a, b *blockstate.BlockState[B]) bool {
	if a.IrreversibleBlockNum() != b.IrreversibleBlockNum() {
		return a.IrreversibleBlockNum() > b.IrreversibleBlockNum()
	}
	return a.BlockNum() > b.BlockNum()
}

// forkChoiceLess implements the strict total order the by_fork_choice index
// is kept sorted under: descending on (is_valid, irreversible_blocknum,
// block_num), ascending on id to break ties deterministically. It reports
// whether a sorts strictly before b, i.e. whether a is preferred over (or
// ties and is id-less-than) b.
func forkChoiceLess[B blockstate.BlockHeaderState](a, b *blockstate.BlockState[B]) bool {
	if a.IsValid() != b.IsValid() {
		return a.IsValid() // valid sorts before invalid
	}
	if a.IrreversibleBlockNum() != b.IrreversibleBlockNum() {
		return a.IrreversibleBlockNum() > b.IrreversibleBlockNum()
	}
	if a.BlockNum() != b.BlockNum() {
		return a.BlockNum() > b.BlockNum()
	}
	return a.ID().Less(b.ID())
}
