package forkdb

import (
	"testing"

	"github.com/google/gofuzz"
	"github.com/mezonai/forkdb/blockstate"
	"github.com/stretchr/testify/assert"
)

func fuzzState(f *fuzz.Fuzzer) *blockstate.BlockState[testHeader] {
	var h testHeader
	f.Fuzz(&h.id)
	f.Fuzz(&h.previous)
	f.Fuzz(&h.blockNum)
	f.Fuzz(&h.irreversibleBlockNum)
	var valid bool
	f.Fuzz(&valid)
	if valid {
		return blockstate.NewValid(h)
	}
	return blockstate.New(h)
}

// TestForkChoiceLessIsStrictTotalOrder fuzzes forkChoiceLess against its
// defining properties: irreflexivity, asymmetry, totality over distinct ids,
// and transitivity. Every field is fuzzed independently, so states tie on
// the validity flag often and on the numeric fields only rarely.
func TestForkChoiceLessIsStrictTotalOrder(t *testing.T) {
	f := fuzz.New().NilChance(0)

	const n = 40
	states := make([]*blockstate.BlockState[testHeader], n)
	for i := range states {
		states[i] = fuzzState(f)
	}

	for i := range states {
		assert.False(t, forkChoiceLess(states[i], states[i]), "irreflexive")
	}

	for i := range states {
		for j := range states {
			if i == j {
				continue
			}
			li, lj := forkChoiceLess(states[i], states[j]), forkChoiceLess(states[j], states[i])
			assert.False(t, li && lj, "asymmetry violated between %d and %d", i, j)
			if states[i].ID() != states[j].ID() {
				assert.True(t, li || lj, "totality violated between %d and %d", i, j)
			}
		}
	}

	for i := range states {
		for j := range states {
			for k := range states {
				if forkChoiceLess(states[i], states[j]) && forkChoiceLess(states[j], states[k]) {
					assert.True(t, forkChoiceLess(states[i], states[k]), "transitivity violated among %d, %d, %d", i, j, k)
				}
			}
		}
	}
}

func TestPreferIsConsistentWithIrreversibleThenBlockNum(t *testing.T) {
	a := blockstate.NewValid(legacyHeader("A", "R", 11, 10))
	b := blockstate.NewValid(legacyHeader("B", "R", 12, 9))

	// a has a lower block_num but a higher irreversible_blocknum, which
	// must dominate the comparison.
	assert.True(t, prefer(a, b))
	assert.False(t, prefer(b, a))
}

func TestForkChoiceLessOrdersValidBeforeInvalid(t *testing.T) {
	valid := blockstate.NewValid(legacyHeader("A", "R", 11, 10))
	invalid := blockstate.New(legacyHeader("B", "R", 100, 100))

	assert.True(t, forkChoiceLess(valid, invalid))
	assert.False(t, forkChoiceLess(invalid, valid))
}
