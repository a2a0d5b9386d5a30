package store

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/cerc-io/eth-subgraph-indexer/pkg/types"
)

const testDep = types.DeploymentID("QmStoreTest")

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func blockAt(n uint64) types.BlockPtr {
	return types.BlockPtr{Number: n, Hash: common.BytesToHash([]byte{0xb, byte(n)})}
}

func supply(n int64) types.Entity {
	return types.Entity{"supply": types.IntValue(n)}
}

var (
	token1 = types.EntityKey{Type: "Token", ID: "1"}
	token2 = types.EntityKey{Type: "Token", ID: "2"}
)

func mustCommit(t *testing.T, s *Store, block uint64, mods []EntityMod) {
	t.Helper()
	require.NoError(t, s.CommitBlock(testDep, blockAt(block), mods, []byte{0xd, byte(block)}))
}

func TestPointInTimeReads(t *testing.T) {
	s := openTestStore(t)
	mustCommit(t, s, 1, []EntityMod{{Key: token1, Data: supply(100)}})
	mustCommit(t, s, 3, []EntityMod{{Key: token1, Data: supply(150)}})

	_, found, err := s.Get(testDep, token1, 0)
	require.NoError(t, err)
	require.False(t, found)

	for asOf, want := range map[uint64]int64{1: 100, 2: 100, 3: 150, 99: 150} {
		data, found, err := s.Get(testDep, token1, asOf)
		require.NoError(t, err)
		require.True(t, found, "asOf %d", asOf)
		require.True(t, data["supply"].Equal(types.IntValue(want)), "asOf %d", asOf)
	}

	ptr, has, err := s.BlockPtr(testDep)
	require.NoError(t, err)
	require.True(t, has)
	require.Equal(t, blockAt(3), ptr)
}

func TestRemoveEndsValidity(t *testing.T) {
	s := openTestStore(t)
	mustCommit(t, s, 1, []EntityMod{{Key: token1, Data: supply(100)}})
	mustCommit(t, s, 2, []EntityMod{{Key: token1}})

	_, found, err := s.Get(testDep, token1, 1)
	require.NoError(t, err)
	require.True(t, found)

	_, found, err = s.Get(testDep, token1, 2)
	require.NoError(t, err)
	require.False(t, found)
}

func TestAncestryFollowsCommitsAndReverts(t *testing.T) {
	s := openTestStore(t)
	for n := uint64(1); n <= 3; n++ {
		mustCommit(t, s, n, []EntityMod{{Key: token1, Data: supply(int64(n))}})
	}

	ptrs, err := s.RecentAncestry(testDep, 10)
	require.NoError(t, err)
	require.Equal(t, []types.BlockPtr{blockAt(1), blockAt(2), blockAt(3)}, ptrs)

	// the limit keeps the newest pointers
	ptrs, err = s.RecentAncestry(testDep, 2)
	require.NoError(t, err)
	require.Equal(t, []types.BlockPtr{blockAt(2), blockAt(3)}, ptrs)

	require.NoError(t, s.RevertTo(testDep, blockAt(1)))
	ptrs, err = s.RecentAncestry(testDep, 10)
	require.NoError(t, err)
	require.Equal(t, []types.BlockPtr{blockAt(1)}, ptrs)
}

func TestIntraBlockCollapse(t *testing.T) {
	s := openTestStore(t)
	// two writes in one block: only the final state persists
	mustCommit(t, s, 1, []EntityMod{
		{Key: token1, Data: supply(100)},
		{Key: token1, Data: supply(150)},
		{Key: token2, Data: supply(1)},
		{Key: token2}, // created then removed within the block
	})

	data, found, err := s.Get(testDep, token1, 1)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, data["supply"].Equal(types.IntValue(150)))

	_, found, err = s.Get(testDep, token2, 1)
	require.NoError(t, err)
	require.False(t, found)

	digest, found, err := s.POI(testDep, 1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte{0xd, 1}, digest)
}

func TestCommitRejectsStaleBlock(t *testing.T) {
	s := openTestStore(t)
	mustCommit(t, s, 2, []EntityMod{{Key: token1, Data: supply(1)}})

	var ce *types.CommitError
	err := s.CommitBlock(testDep, blockAt(2), nil, []byte{0xd})
	require.ErrorAs(t, err, &ce)
	err = s.CommitBlock(testDep, blockAt(1), nil, []byte{0xd})
	require.ErrorAs(t, err, &ce)
}

func TestCommitIsAtomic(t *testing.T) {
	s := openTestStore(t)
	mustCommit(t, s, 1, []EntityMod{{Key: token1, Data: supply(100)}})

	s.commitInterrupt = func() error { return errors.New("crash before pointer write") }
	err := s.CommitBlock(testDep, blockAt(2), []EntityMod{{Key: token1, Data: supply(150)}}, []byte{0xd, 2})
	require.Error(t, err)
	s.commitInterrupt = nil

	// nothing from the failed commit is visible
	data, found, err := s.Get(testDep, token1, 2)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, data["supply"].Equal(types.IntValue(100)))

	ptr, _, err := s.BlockPtr(testDep)
	require.NoError(t, err)
	require.Equal(t, uint64(1), ptr.Number)

	_, found, err = s.POI(testDep, 2)
	require.NoError(t, err)
	require.False(t, found)

	// the retried commit applies cleanly
	mustCommit(t, s, 2, []EntityMod{{Key: token1, Data: supply(150)}})
	data, _, err = s.Get(testDep, token1, 2)
	require.NoError(t, err)
	require.True(t, data["supply"].Equal(types.IntValue(150)))
}

func TestRevertTo(t *testing.T) {
	s := openTestStore(t)
	mustCommit(t, s, 1, []EntityMod{{Key: token1, Data: supply(100)}})
	mustCommit(t, s, 2, []EntityMod{
		{Key: token1, Data: supply(150)},
		{Key: token2, Data: supply(1)},
	})
	mustCommit(t, s, 3, []EntityMod{{Key: token1}})

	require.NoError(t, s.RevertTo(testDep, blockAt(1)))

	// the closed-then-removed version is open again
	for _, asOf := range []uint64{1, 2, 10} {
		data, found, err := s.Get(testDep, token1, asOf)
		require.NoError(t, err)
		require.True(t, found, "asOf %d", asOf)
		require.True(t, data["supply"].Equal(types.IntValue(100)), "asOf %d", asOf)
	}

	// the entity created after the revert point is gone entirely
	_, found, err := s.Get(testDep, token2, 10)
	require.NoError(t, err)
	require.False(t, found)

	ptr, _, err := s.BlockPtr(testDep)
	require.NoError(t, err)
	require.Equal(t, uint64(1), ptr.Number)

	_, found, err = s.POI(testDep, 2)
	require.NoError(t, err)
	require.False(t, found)
	_, found, err = s.POI(testDep, 1)
	require.NoError(t, err)
	require.True(t, found)

	// indexing resumes over the reverted range
	mustCommit(t, s, 2, []EntityMod{{Key: token1, Data: supply(120)}})
	data, _, err := s.Get(testDep, token1, 2)
	require.NoError(t, err)
	require.True(t, data["supply"].Equal(types.IntValue(120)))
}

func TestRangeVisitsInIDOrder(t *testing.T) {
	s := openTestStore(t)
	mustCommit(t, s, 1, []EntityMod{
		{Key: types.EntityKey{Type: "Token", ID: "b"}, Data: supply(2)},
		{Key: types.EntityKey{Type: "Token", ID: "a"}, Data: supply(1)},
		{Key: types.EntityKey{Type: "Pair", ID: "x"}, Data: supply(9)},
	})
	mustCommit(t, s, 2, []EntityMod{
		{Key: types.EntityKey{Type: "Token", ID: "c"}, Data: supply(3)},
		{Key: types.EntityKey{Type: "Token", ID: "a"}}, // removed
	})

	collect := func(asOf uint64) map[string]int64 {
		out := make(map[string]int64)
		var order []string
		require.NoError(t, s.Range(testDep, "Token", asOf, func(id string, data types.Entity) bool {
			order = append(order, id)
			out[id] = data["supply"].BigInt().Int64()
			return true
		}))
		for i := 1; i < len(order); i++ {
			require.Less(t, order[i-1], order[i])
		}
		return out
	}

	require.Equal(t, map[string]int64{"a": 1, "b": 2}, collect(1))
	require.Equal(t, map[string]int64{"b": 2, "c": 3}, collect(2))

	// early termination
	count := 0
	require.NoError(t, s.Range(testDep, "Token", 2, func(string, types.Entity) bool {
		count++
		return false
	}))
	require.Equal(t, 1, count)
}

func TestAuxFirstWriteWins(t *testing.T) {
	s := openTestStore(t)
	hash := []byte{0xaa, 0xbb}
	require.NoError(t, s.PutAux(hash, []byte("original")))
	require.NoError(t, s.PutAux(hash, []byte("different")))

	data, found, err := s.GetAux(hash)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("original"), data)

	_, found, err = s.GetAux([]byte{0xcc})
	require.NoError(t, err)
	require.False(t, found)
}

func TestStatusRoundtrip(t *testing.T) {
	s := openTestStore(t)

	status, err := s.Status(testDep)
	require.NoError(t, err)
	require.Equal(t, HealthHealthy, status.Health)

	require.NoError(t, s.SetStatus(testDep, StatusRecord{Health: HealthFailed, LastError: "handler trapped"}))
	status, err = s.Status(testDep)
	require.NoError(t, err)
	require.Equal(t, HealthFailed, status.Health)
	require.Equal(t, "handler trapped", status.LastError)
}

func TestLatestPOI(t *testing.T) {
	s := openTestStore(t)

	_, _, found, err := s.LatestPOI(testDep)
	require.NoError(t, err)
	require.False(t, found)

	mustCommit(t, s, 1, nil)
	mustCommit(t, s, 5, nil)

	block, digest, found, err := s.LatestPOI(testDep)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(5), block)
	require.Equal(t, []byte{0xd, 5}, digest)
}

func TestDeploymentsAreIsolated(t *testing.T) {
	s := openTestStore(t)
	other := types.DeploymentID("QmOther")

	mustCommit(t, s, 1, []EntityMod{{Key: token1, Data: supply(100)}})

	_, found, err := s.Get(other, token1, 10)
	require.NoError(t, err)
	require.False(t, found)
	_, has, err := s.BlockPtr(other)
	require.NoError(t, err)
	require.False(t, has)
}
