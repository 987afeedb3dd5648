package blockstate

import "time"

// FeatureActivation is the header extension carried by a block that
// activates new protocol features at that height.
type FeatureActivation struct {
	NewFeatures []FeatureDigest
}

// BlockHeaderState is the fixed capability set the fork database requires
// from a host-supplied block/header payload. Concrete block and header
// payload types are external collaborators — the fork database never
// constructs or interprets one, only calls these accessors.
//
// IrreversibleBlockNum is where the legacy/next-generation distinction
// actually lives: a legacy (DPoS) payload returns a real last-irreversible
// height, while a next-generation (finality-rule) payload always returns
// math.MaxUint32, degenerating the fork-choice comparator to plain
// block-number ordering. The store itself (forkdb.ForkDatabase[B]) is
// flavor-agnostic; only the payload type and the magic number used to
// construct the store differ.
type BlockHeaderState interface {
	ID() ID
	Previous() ID
	BlockNum() uint32
	Timestamp() time.Time
	IrreversibleBlockNum() uint32

	// ActivatedFeatures is the set of protocol features active as of this
	// block (inherited from the parent plus anything this block itself
	// activates).
	ActivatedFeatures() []FeatureDigest

	// FeatureActivation returns the header's protocol-feature-activation
	// extension, if this block carries one.
	FeatureActivation() (FeatureActivation, bool)
}
