package forkdb

import (
	"errors"
	"testing"
	"time"

	"github.com/mezonai/forkdb/blockstate"
	"github.com/mezonai/forkdb/forkdberr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*ForkDatabase[testHeader], testHeader) {
	t.Helper()
	root := legacyHeader("R", "", 10, 10)
	fdb := NewLegacy[testHeader]()
	fdb.Reset(root)
	return fdb, root
}

// Scenario 1: linear extension.
func TestLinearExtension(t *testing.T) {
	fdb, root := newTestStore(t)

	a := legacyHeader("A", "R", 11, 10)
	require.NoError(t, fdb.AddSimple(a, false))
	assert.Equal(t, root.id, fdb.Head().ID())

	require.NoError(t, fdb.MarkValid(fdb.GetBlock(a.id)))
	assert.Equal(t, a.id, fdb.Head().ID())
}

// Scenario 2: fork choice tie-break on ascending id.
func TestForkChoiceTieBreak(t *testing.T) {
	fdb, _ := newTestStore(t)

	// "B" sorts before "C" lexicographically.
	b := legacyHeader("B", "R", 11, 10)
	c := legacyHeader("C", "R", 11, 10)
	require.NoError(t, fdb.AddSimple(b, false))
	require.NoError(t, fdb.AddSimple(c, false))

	require.NoError(t, fdb.MarkValid(fdb.GetBlock(b.id)))
	require.NoError(t, fdb.MarkValid(fdb.GetBlock(c.id)))

	assert.Equal(t, b.id, fdb.Head().ID())
}

func scenario3(t *testing.T) (*ForkDatabase[testHeader], testHeader, testHeader, testHeader, testHeader) {
	t.Helper()
	fdb, root := newTestStore(t)

	b := legacyHeader("B", "R", 11, 10)
	c := legacyHeader("C", "R", 11, 10)
	require.NoError(t, fdb.AddSimple(b, false))
	require.NoError(t, fdb.AddSimple(c, false))
	require.NoError(t, fdb.MarkValid(fdb.GetBlock(b.id)))
	require.NoError(t, fdb.MarkValid(fdb.GetBlock(c.id)))

	d := legacyHeader("D", "C", 12, 10)
	require.NoError(t, fdb.AddSimple(d, false))
	require.NoError(t, fdb.MarkValid(fdb.GetBlock(d.id)))

	return fdb, root, b, c, d
}

// Scenario 3: branch switch.
func TestBranchSwitch(t *testing.T) {
	fdb, _, b, c, d := scenario3(t)

	require.Equal(t, d.id, fdb.Head().ID())

	fromB, fromD, err := fdb.FetchBranchFrom(b.id, d.id)
	require.NoError(t, err)

	require.Len(t, fromB, 1)
	assert.Equal(t, b.id, fromB[0].ID())

	require.Len(t, fromD, 2)
	assert.Equal(t, d.id, fromD[0].ID())
	assert.Equal(t, c.id, fromD[1].ID())
}

// Scenario 4: advance root prunes the sibling branch.
func TestAdvanceRoot(t *testing.T) {
	fdb, _, b, c, d := scenario3(t)

	require.NoError(t, fdb.AdvanceRoot(c.id))

	assert.Equal(t, c.id, fdb.Root().ID())
	assert.Equal(t, d.id, fdb.Head().ID())
	assert.NotNil(t, fdb.GetBlock(d.id))
	assert.Nil(t, fdb.GetBlock(b.id))
	assert.Nil(t, fdb.GetBlock(c.id)) // root itself is never in the index
}

// Scenario 5: removing the head (or an ancestor of it) is forbidden.
func TestRemoveForbidden(t *testing.T) {
	fdb, _, _, c, d := scenario3(t)
	require.NoError(t, fdb.AdvanceRoot(c.id))

	err := fdb.Remove(d.id)
	require.Error(t, err)
	assert.ErrorIs(t, err, forkdberr.ErrForkDatabase)

	// State must be unchanged.
	assert.Equal(t, d.id, fdb.Head().ID())
	assert.NotNil(t, fdb.GetBlock(d.id))
}

func TestAddUnlinkableBlock(t *testing.T) {
	fdb, _ := newTestStore(t)
	orphan := legacyHeader("X", "nonexistent", 11, 10)

	err := fdb.AddSimple(orphan, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, forkdberr.ErrUnlinkable)
}

func TestAddDuplicate(t *testing.T) {
	fdb, _ := newTestStore(t)
	a := legacyHeader("A", "R", 11, 10)
	require.NoError(t, fdb.AddSimple(a, false))

	err := fdb.AddSimple(a, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, forkdberr.ErrForkDatabase)

	// ignore_duplicate=true makes it a no-op instead.
	assert.NoError(t, fdb.AddSimple(a, true))
}

func TestAddBlockWhoseParentIsRoot(t *testing.T) {
	fdb, root := newTestStore(t)
	a := legacyHeader("A", "R", 11, 10)
	require.NoError(t, fdb.AddSimple(a, false))
	assert.Equal(t, root.id, fdb.GetBlockHeader(a.id).Previous())
}

func TestFetchBranchFromSameID(t *testing.T) {
	fdb, root := newTestStore(t)
	first, second, err := fdb.FetchBranchFrom(root.id, root.id)
	require.NoError(t, err)
	assert.Empty(t, first)
	assert.Empty(t, second)
}

func TestFetchBranchFullChain(t *testing.T) {
	fdb, root := newTestStore(t)
	a := legacyHeader("A", "R", 11, 10)
	b := legacyHeader("B", "A", 12, 10)
	require.NoError(t, fdb.AddSimple(a, false))
	require.NoError(t, fdb.AddSimple(b, false))

	branch := fdb.FetchBranch(b.id, MaxIrreversibleBlockNum)
	require.Len(t, branch, 2)
	assert.Equal(t, b.id, branch[0].ID())
	assert.Equal(t, a.id, branch[1].ID())
	for _, s := range branch {
		assert.NotEqual(t, root.id, s.ID())
	}
}

func TestPendingHeadSurfacesBestInvalidCandidate(t *testing.T) {
	fdb, _ := newTestStore(t)
	a := legacyHeader("A", "R", 11, 10)
	require.NoError(t, fdb.AddSimple(a, false))

	assert.Equal(t, a.id, fdb.PendingHead().ID())
	assert.NotEqual(t, a.id, fdb.Head().ID())
}

func TestRollbackHeadToRoot(t *testing.T) {
	fdb, root := newTestStore(t)
	a := legacyHeader("A", "R", 11, 10)
	require.NoError(t, fdb.AddSimple(a, false))
	require.NoError(t, fdb.MarkValid(fdb.GetBlock(a.id)))
	require.Equal(t, a.id, fdb.Head().ID())

	fdb.RollbackHeadToRoot()
	assert.Equal(t, root.id, fdb.Head().ID())
	assert.False(t, fdb.GetBlock(a.id).IsValid())
}

func TestAddInvokesValidatorWithParentActivatedFeatures(t *testing.T) {
	fdb := NewLegacy[testHeader]()
	parentDigest := blockstate.DigestFromBytes([]byte("existing-feature"))
	root := testHeader{
		id:                tid("R"),
		blockNum:          10,
		irreversibleBlockNum: 10,
		activatedFeatures: []blockstate.FeatureDigest{parentDigest},
	}
	fdb.Reset(root)

	newDigest := blockstate.DigestFromBytes([]byte("new-feature"))
	a := testHeader{
		id:                   tid("A"),
		previous:             tid("R"),
		blockNum:             11,
		irreversibleBlockNum: 10,
		activation:           &blockstate.FeatureActivation{NewFeatures: []blockstate.FeatureDigest{newDigest}},
	}

	var gotTS time.Time
	var gotActivated, gotIncoming []blockstate.FeatureDigest
	validator := func(ts time.Time, activated, incoming []blockstate.FeatureDigest) error {
		gotTS = ts
		gotActivated = activated
		gotIncoming = incoming
		return nil
	}

	require.NoError(t, fdb.Add(a, false, true, validator))
	assert.Equal(t, a.Timestamp(), gotTS)
	assert.Equal(t, []blockstate.FeatureDigest{parentDigest}, gotActivated)
	assert.Equal(t, []blockstate.FeatureDigest{newDigest}, gotIncoming)
}

func TestAddValidatorRejectionSurfacesAsForkDatabaseError(t *testing.T) {
	fdb, _ := newTestStore(t)
	cause := errors.New("feature not compatible with configured protocol")
	a := testHeader{
		id:                   tid("A"),
		previous:             tid("R"),
		blockNum:             11,
		irreversibleBlockNum: 10,
		activation:           &blockstate.FeatureActivation{NewFeatures: []blockstate.FeatureDigest{blockstate.DigestFromBytes([]byte("x"))}},
	}
	validator := func(time.Time, []blockstate.FeatureDigest, []blockstate.FeatureDigest) error { return cause }

	err := fdb.Add(a, false, true, validator)
	require.Error(t, err)
	assert.ErrorIs(t, err, forkdberr.ErrForkDatabase)
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, fdb.GetBlock(a.id)) // rejected block never entered the index
}

func TestNextGenForkChoiceIgnoresIrreversibility(t *testing.T) {
	root := nextGenHeader("R", "", 10)
	fdb := NewNextGen[testHeader]()
	fdb.Reset(root)

	a := nextGenHeader("A", "R", 11)
	require.NoError(t, fdb.AddSimple(a, false))
	require.NoError(t, fdb.MarkValid(fdb.GetBlock(a.id)))

	assert.Equal(t, a.id, fdb.Head().ID())
	assert.Equal(t, MaxIrreversibleBlockNum, fdb.GetBlock(a.id).IrreversibleBlockNum())
}
