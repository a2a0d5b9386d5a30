package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cerc-io/eth-subgraph-indexer/pkg/types"
)

// allowAll accepts every write; schema behavior is covered in the manifest
// package.
type allowAll struct{}

func (allowAll) Validate(types.EntityKey, types.Entity) error { return nil }

type rejectAll struct{}

func (rejectAll) Validate(key types.EntityKey, _ types.Entity) error {
	return &types.StoreWriteError{Key: key, Detail: "rejected"}
}

func TestTransactionReadsOwnWrites(t *testing.T) {
	s := openTestStore(t)
	mustCommit(t, s, 1, []EntityMod{{Key: token1, Data: supply(100)}})

	txn := NewTransaction(s, testDep, allowAll{}, blockAt(2))
	h := txn.Handle("token")

	// committed state is visible before any staged write
	data, found, err := h.Get(token1)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, data["supply"].Equal(types.IntValue(100)))

	require.NoError(t, h.Set(token1, supply(150)))
	data, found, err = h.Get(token1)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, data["supply"].Equal(types.IntValue(150)))

	require.NoError(t, h.Remove(token1))
	_, found, err = h.Get(token1)
	require.NoError(t, err)
	require.False(t, found)

	// nothing is committed until the store applies the mods
	data, _, err = s.Get(testDep, token1, 2)
	require.NoError(t, err)
	require.True(t, data["supply"].Equal(types.IntValue(100)))
}

func TestRegionsAreIsolated(t *testing.T) {
	s := openTestStore(t)
	txn := NewTransaction(s, testDep, allowAll{}, blockAt(1))

	a := txn.Handle("a")
	b := txn.Handle("b")
	require.NoError(t, a.Set(token1, supply(1)))

	// region b does not see region a's staged write
	_, found, err := b.Get(token1)
	require.NoError(t, err)
	require.False(t, found)

	// but both streams land in the mod log, tagged with their region
	require.NoError(t, b.Set(token2, supply(2)))
	mods := txn.Mods()
	require.Len(t, mods, 2)
	require.Equal(t, "a", mods[0].Region)
	require.Equal(t, "b", mods[1].Region)
}

func TestRemoveAbsentStagesNothing(t *testing.T) {
	s := openTestStore(t)
	txn := NewTransaction(s, testDep, allowAll{}, blockAt(1))
	h := txn.Handle("token")

	require.NoError(t, h.Remove(token1))
	require.Empty(t, txn.Mods())
}

func TestCheckpointRollback(t *testing.T) {
	s := openTestStore(t)
	txn := NewTransaction(s, testDep, allowAll{}, blockAt(1))
	h := txn.Handle("token")

	require.NoError(t, h.Set(token1, supply(100)))
	cp := txn.Checkpoint()

	require.NoError(t, h.Set(token1, supply(999)))
	require.NoError(t, h.Set(token2, supply(1)))
	txn.Rollback(cp)

	require.Len(t, txn.Mods(), 1)
	data, found, err := h.Get(token1)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, data["supply"].Equal(types.IntValue(100)))
	_, found, err = h.Get(token2)
	require.NoError(t, err)
	require.False(t, found)
}

func TestSetValidatesSchema(t *testing.T) {
	s := openTestStore(t)
	txn := NewTransaction(s, testDep, rejectAll{}, blockAt(1))
	h := txn.Handle("token")

	var swe *types.StoreWriteError
	require.ErrorAs(t, h.Set(token1, supply(1)), &swe)
	require.Empty(t, txn.Mods())
}

func TestStagedWritesDoNotAlias(t *testing.T) {
	s := openTestStore(t)
	txn := NewTransaction(s, testDep, allowAll{}, blockAt(1))
	h := txn.Handle("token")

	data := supply(1)
	require.NoError(t, h.Set(token1, data))
	data["supply"] = types.IntValue(2) // caller mutates after staging

	staged, _, err := h.Get(token1)
	require.NoError(t, err)
	require.True(t, staged["supply"].Equal(types.IntValue(1)))

	// and mutating the read copy does not corrupt the staged state
	staged["supply"] = types.IntValue(3)
	again, _, err := h.Get(token1)
	require.NoError(t, err)
	require.True(t, again["supply"].Equal(types.IntValue(1)))
}
