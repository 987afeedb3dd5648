package blockstate

// BlockState wraps a host-supplied block payload B with the mutable
// validity flag the fork database maintains.
//
// A BlockState is jointly owned by the index it lives in and any external
// holder of the returned pointer; only the owning forkdb.ForkDatabase[B] is
// permitted to call SetValid — external code must treat a *BlockState[B] as
// a read-only snapshot of validity at lookup time.
type BlockState[B BlockHeaderState] struct {
	block B
	valid bool
}

// New wraps block as a freshly-created, not-yet-valid BlockState.
func New[B BlockHeaderState](block B) *BlockState[B] {
	return &BlockState[B]{block: block}
}

// NewValid wraps block as an already-valid BlockState (used for the root,
// which is always valid).
func NewValid[B BlockHeaderState](block B) *BlockState[B] {
	return &BlockState[B]{block: block, valid: true}
}

func (s *BlockState[B]) ID() ID                             { return s.block.ID() }
func (s *BlockState[B]) Previous() ID                       { return s.block.Previous() }
func (s *BlockState[B]) BlockNum() uint32                   { return s.block.BlockNum() }
func (s *BlockState[B]) IrreversibleBlockNum() uint32       { return s.block.IrreversibleBlockNum() }
func (s *BlockState[B]) IsValid() bool                      { return s.valid }
func (s *BlockState[B]) ActivatedFeatures() []FeatureDigest { return s.block.ActivatedFeatures() }

// Block returns the wrapped host payload.
func (s *BlockState[B]) Block() B { return s.block }

// SetValid flips the validity flag. Only forkdb.ForkDatabase[B] calls this
// in practice, from under its coarse lock, because the fork-choice index
// key depends on is_valid; external holders of a *BlockState[B] must treat
// it as a read-only snapshot.
func (s *BlockState[B]) SetValid(v bool) { s.valid = v }
