package poi

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/cerc-io/eth-subgraph-indexer/pkg/store"
	"github.com/cerc-io/eth-subgraph-indexer/pkg/types"
)

const testDep = types.DeploymentID("QmPOITest")

func blockAt(n uint64) types.BlockPtr {
	return types.BlockPtr{Number: n, Hash: common.BytesToHash([]byte{0xb, byte(n)})}
}

func setMod(region, id string, supply int64) store.EntityMod {
	return store.EntityMod{
		Key:    types.EntityKey{Type: "Token", ID: id},
		Data:   types.Entity{"supply": types.IntValue(supply)},
		Region: region,
	}
}

func removeMod(region, id string) store.EntityMod {
	return store.EntityMod{Key: types.EntityKey{Type: "Token", ID: id}, Region: region}
}

func TestSeedBindsDeployment(t *testing.T) {
	a := NewAccumulator(testDep, nil)
	require.Equal(t, Seed(testDep), a.Current())
	require.Len(t, a.Current(), DigestSize)
	require.NotEqual(t, Seed(testDep), Seed("QmOther"))
}

func TestDeterminism(t *testing.T) {
	run := func() []byte {
		a := NewAccumulator(testDep, nil)
		a.Update(setMod("token", "1", 100))
		a.Update(setMod("token", "1", 150))
		a.Update(removeMod("token", "2"))
		return a.Finalize(blockAt(1))
	}
	require.Equal(t, run(), run())
}

func TestOrderWithinRegionMatters(t *testing.T) {
	a := NewAccumulator(testDep, nil)
	a.Update(setMod("token", "1", 100))
	a.Update(setMod("token", "2", 200))
	d1 := a.Finalize(blockAt(1))

	b := NewAccumulator(testDep, nil)
	b.Update(setMod("token", "2", 200))
	b.Update(setMod("token", "1", 100))
	d2 := b.Finalize(blockAt(1))

	require.NotEqual(t, d1, d2)
}

func TestRegionInterleavingDoesNotMatter(t *testing.T) {
	a := NewAccumulator(testDep, nil)
	a.Update(setMod("alpha", "1", 1))
	a.Update(setMod("alpha", "2", 2))
	a.Update(setMod("beta", "3", 3))
	d1 := a.Finalize(blockAt(1))

	// same per-region sequences, different interleaving
	b := NewAccumulator(testDep, nil)
	b.Update(setMod("beta", "3", 3))
	b.Update(setMod("alpha", "1", 1))
	b.Update(setMod("alpha", "2", 2))
	d2 := b.Finalize(blockAt(1))

	require.Equal(t, d1, d2)
}

func TestOperationsAreDistinguished(t *testing.T) {
	a := NewAccumulator(testDep, nil)
	a.Update(setMod("token", "1", 100))
	d1 := a.Finalize(blockAt(1))

	b := NewAccumulator(testDep, nil)
	b.Update(removeMod("token", "1"))
	d2 := b.Finalize(blockAt(1))

	c := NewAccumulator(testDep, nil)
	c.Update(setMod("token", "1", 101))
	d3 := c.Finalize(blockAt(1))

	require.NotEqual(t, d1, d2)
	require.NotEqual(t, d1, d3)
	require.NotEqual(t, d2, d3)
}

func TestDigestsChainAcrossBlocks(t *testing.T) {
	a := NewAccumulator(testDep, nil)
	a.Update(setMod("token", "1", 100))
	a.Finalize(blockAt(1))
	a.Update(setMod("token", "1", 150))
	d2 := a.Finalize(blockAt(2))

	// same block 2 content over a different block 1 history
	b := NewAccumulator(testDep, nil)
	b.Update(setMod("token", "1", 999))
	b.Finalize(blockAt(1))
	b.Update(setMod("token", "1", 150))
	d2Other := b.Finalize(blockAt(2))

	require.NotEqual(t, d2, d2Other)
}

func TestEmptyBlockStillAdvancesChain(t *testing.T) {
	a := NewAccumulator(testDep, nil)
	d1 := a.Finalize(blockAt(1))
	d2 := a.Finalize(blockAt(2))
	require.NotEqual(t, d1, d2)
	require.Equal(t, d2, a.Current())
}

func TestDiscardDropsRunningState(t *testing.T) {
	a := NewAccumulator(testDep, nil)
	a.Update(setMod("token", "1", 666))
	a.Discard()
	a.Update(setMod("token", "1", 100))
	d := a.Finalize(blockAt(1))

	clean := NewAccumulator(testDep, nil)
	clean.Update(setMod("token", "1", 100))
	require.Equal(t, clean.Finalize(blockAt(1)), d)
}

func TestRevertToReplaysIdentically(t *testing.T) {
	a := NewAccumulator(testDep, nil)
	a.Update(setMod("token", "1", 100))
	d1 := a.Finalize(blockAt(1))
	a.Update(setMod("token", "1", 150))
	d2 := a.Finalize(blockAt(2))

	// rewind to block 1 and replay block 2
	a.Update(setMod("token", "1", 1))
	a.RevertTo(d1)
	a.Update(setMod("token", "1", 150))
	require.Equal(t, d2, a.Finalize(blockAt(2)))

	// rewinding to nil restarts from the seed
	a.RevertTo(nil)
	require.Equal(t, Seed(testDep), a.Current())
}
