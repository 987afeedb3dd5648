package forkdb

import (
	"time"

	"github.com/mezonai/forkdb/blockstate"
)

// testHeader is a minimal blockstate.BlockHeaderState for exercising
// ForkDatabase[B] independently of any concrete host block type.
type testHeader struct {
	id                   blockstate.ID
	previous             blockstate.ID
	blockNum             uint32
	irreversibleBlockNum uint32
	activation           *blockstate.FeatureActivation
	activatedFeatures    []blockstate.FeatureDigest
}

func tid(s string) blockstate.ID {
	var id blockstate.ID
	copy(id[:], s)
	return id
}

func legacyHeader(id, previous string, blockNum, libNum uint32) testHeader {
	return testHeader{id: tid(id), previous: tid(previous), blockNum: blockNum, irreversibleBlockNum: libNum}
}

func nextGenHeader(id, previous string, blockNum uint32) testHeader {
	return testHeader{id: tid(id), previous: tid(previous), blockNum: blockNum, irreversibleBlockNum: MaxIrreversibleBlockNum}
}

func (h testHeader) ID() blockstate.ID            { return h.id }
func (h testHeader) Previous() blockstate.ID      { return h.previous }
func (h testHeader) BlockNum() uint32             { return h.blockNum }
func (h testHeader) Timestamp() time.Time         { return time.Unix(int64(h.blockNum), 0) }
func (h testHeader) IrreversibleBlockNum() uint32 { return h.irreversibleBlockNum }

func (h testHeader) ActivatedFeatures() []blockstate.FeatureDigest { return h.activatedFeatures }

func (h testHeader) FeatureActivation() (blockstate.FeatureActivation, bool) {
	if h.activation == nil {
		return blockstate.FeatureActivation{}, false
	}
	return *h.activation, true
}
