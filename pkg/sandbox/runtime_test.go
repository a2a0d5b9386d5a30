package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/cerc-io/eth-subgraph-indexer/pkg/chain"
	"github.com/cerc-io/eth-subgraph-indexer/pkg/triggers"
	"github.com/cerc-io/eth-subgraph-indexer/pkg/types"
)

// memEntities is an EntityStore with injectable failures.
type memEntities struct {
	data   map[types.EntityKey]types.Entity
	setErr error
}

func newMemEntities() *memEntities {
	return &memEntities{data: make(map[types.EntityKey]types.Entity)}
}

func (m *memEntities) Get(key types.EntityKey) (types.Entity, bool, error) {
	e, ok := m.data[key]
	return e, ok, nil
}

func (m *memEntities) Set(key types.EntityKey, data types.Entity) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = data
	return nil
}

func (m *memEntities) Remove(key types.EntityKey) error {
	delete(m.data, key)
	return nil
}

// memAux is an in-memory AuxCache with first-write-wins semantics.
type memAux struct {
	pins map[common.Hash][]byte
}

func newMemAux() *memAux { return &memAux{pins: make(map[common.Hash][]byte)} }

func (m *memAux) PutAux(contentHash, data []byte) error {
	h := common.BytesToHash(contentHash)
	if _, ok := m.pins[h]; !ok {
		m.pins[h] = data
	}
	return nil
}

func (m *memAux) GetAux(contentHash []byte) ([]byte, bool, error) {
	data, ok := m.pins[common.BytesToHash(contentHash)]
	return data, ok, nil
}

type fetchFunc func(ctx context.Context, hash common.Hash) ([]byte, error)

func (f fetchFunc) Fetch(ctx context.Context, hash common.Hash) ([]byte, error) {
	return f(ctx, hash)
}

func testTrigger(handler string) *triggers.Trigger {
	return &triggers.Trigger{
		Kind:    triggers.KindBlock,
		Handler: handler,
		Block:   &chain.Block{Ptr: types.BlockPtr{Number: 7}},
	}
}

func testRuntime(t *testing.T, reg *Registry, fetcher ContentFetcher, aux AuxCache, limits Limits) *Runtime {
	t.Helper()
	if fetcher == nil {
		fetcher = NullFetcher{}
	}
	if aux == nil {
		aux = newMemAux()
	}
	return NewRuntime(reg, fetcher, aux, limits, log.WithField("test", t.Name()))
}

func TestInvokeUnregisteredHandler(t *testing.T) {
	rt := testRuntime(t, NewRegistry(), nil, nil, Limits{})
	err := rt.Invoke(context.Background(), testTrigger("missing"), newMemEntities())

	var me *types.MappingError
	require.ErrorAs(t, err, &me)
	require.Equal(t, types.MappingTrap, me.Kind)
}

func TestHandlerWritesEntities(t *testing.T) {
	reg := NewRegistry()
	reg.Register("write", func(h *Host, _ *triggers.Trigger) error {
		_, found := h.GetEntity("Token", "1")
		if found {
			return errors.New("unexpected entity")
		}
		h.SetEntity("Token", "1", types.Entity{"supply": types.IntValue(100)})
		return nil
	})
	entities := newMemEntities()
	rt := testRuntime(t, reg, nil, nil, Limits{})

	require.NoError(t, rt.Invoke(context.Background(), testTrigger("write"), entities))
	got := entities.data[types.EntityKey{Type: "Token", ID: "1"}]
	require.True(t, got["supply"].Equal(types.IntValue(100)))
}

func TestHandlerErrorIsTrap(t *testing.T) {
	reg := NewRegistry()
	reg.Register("fail", func(h *Host, _ *triggers.Trigger) error {
		return errors.New("arithmetic went sideways")
	})
	rt := testRuntime(t, reg, nil, nil, Limits{})
	err := rt.Invoke(context.Background(), testTrigger("fail"), newMemEntities())

	var me *types.MappingError
	require.ErrorAs(t, err, &me)
	require.Equal(t, types.MappingTrap, me.Kind)
	require.Contains(t, me.Detail, "sideways")
}

func TestHandlerPanicIsTrap(t *testing.T) {
	reg := NewRegistry()
	reg.Register("panic", func(h *Host, _ *triggers.Trigger) error {
		panic("index out of range")
	})
	rt := testRuntime(t, reg, nil, nil, Limits{})
	err := rt.Invoke(context.Background(), testTrigger("panic"), newMemEntities())

	var me *types.MappingError
	require.ErrorAs(t, err, &me)
	require.Equal(t, types.MappingTrap, me.Kind)
	require.Contains(t, me.Detail, "index out of range")
}

func TestAbort(t *testing.T) {
	reg := NewRegistry()
	reg.Register("abort", func(h *Host, _ *triggers.Trigger) error {
		h.Abort("negative balance")
		return nil
	})
	rt := testRuntime(t, reg, nil, nil, Limits{})
	err := rt.Invoke(context.Background(), testTrigger("abort"), newMemEntities())

	var me *types.MappingError
	require.ErrorAs(t, err, &me)
	require.Equal(t, types.MappingAbort, me.Kind)
	require.Contains(t, me.Detail, "negative balance")
}

func TestStepBudget(t *testing.T) {
	reg := NewRegistry()
	reg.Register("spin", func(h *Host, _ *triggers.Trigger) error {
		for i := 0; i < 100; i++ {
			h.GetEntity("Token", "1")
		}
		return nil
	})
	rt := testRuntime(t, reg, nil, nil, Limits{MaxSteps: 10})
	err := rt.Invoke(context.Background(), testTrigger("spin"), newMemEntities())

	var me *types.MappingError
	require.ErrorAs(t, err, &me)
	require.Equal(t, types.MappingResourceLimit, me.Kind)
}

func TestTimeout(t *testing.T) {
	reg := NewRegistry()
	reg.Register("sleep", func(h *Host, _ *triggers.Trigger) error {
		time.Sleep(time.Second)
		return nil
	})
	rt := testRuntime(t, reg, nil, nil, Limits{Timeout: 20 * time.Millisecond})
	err := rt.Invoke(context.Background(), testTrigger("sleep"), newMemEntities())

	var me *types.MappingError
	require.ErrorAs(t, err, &me)
	require.Equal(t, types.MappingTimeout, me.Kind)
}

func TestTimedOutHandlerCannotWriteAfterwards(t *testing.T) {
	release := make(chan struct{})
	finished := make(chan struct{})
	reg := NewRegistry()
	reg.Register("lateWriter", func(h *Host, _ *triggers.Trigger) error {
		defer close(finished)
		<-release
		h.SetEntity("Token", "1", types.Entity{"supply": types.IntValue(999)})
		return nil
	})
	entities := newMemEntities()
	rt := testRuntime(t, reg, nil, nil, Limits{Timeout: 10 * time.Millisecond})

	err := rt.Invoke(context.Background(), testTrigger("lateWriter"), entities)
	var me *types.MappingError
	require.ErrorAs(t, err, &me)
	require.Equal(t, types.MappingTimeout, me.Kind)

	// the abandoned goroutine wakes up and tries to write; the host must
	// refuse, or the caller's rollback would be undone behind its back
	close(release)
	<-finished
	require.Empty(t, entities.data)
}

func TestFetchContentPins(t *testing.T) {
	payload := []byte("auxiliary payload")
	hash := crypto.Keccak256Hash(payload)

	fetches := 0
	fetcher := fetchFunc(func(_ context.Context, h common.Hash) ([]byte, error) {
		fetches++
		return payload, nil
	})
	aux := newMemAux()
	reg := NewRegistry()
	var got []byte
	reg.Register("fetch", func(h *Host, _ *triggers.Trigger) error {
		got = h.FetchContent(hash)
		return nil
	})

	rt := testRuntime(t, reg, fetcher, aux, Limits{})
	require.NoError(t, rt.Invoke(context.Background(), testTrigger("fetch"), newMemEntities()))
	require.Equal(t, payload, got)
	require.Equal(t, 1, fetches)

	// the pin serves replays even when the fetch service is gone
	rt = testRuntime(t, reg, NullFetcher{}, aux, Limits{})
	require.NoError(t, rt.Invoke(context.Background(), testTrigger("fetch"), newMemEntities()))
	require.Equal(t, payload, got)
	require.Equal(t, 1, fetches)
}

func TestFetchContentRejectsBadPayload(t *testing.T) {
	hash := crypto.Keccak256Hash([]byte("expected"))
	fetcher := fetchFunc(func(_ context.Context, h common.Hash) ([]byte, error) {
		return []byte("tampered"), nil
	})
	reg := NewRegistry()
	reg.Register("fetch", func(h *Host, _ *triggers.Trigger) error {
		h.FetchContent(hash)
		return nil
	})
	rt := testRuntime(t, reg, fetcher, newMemAux(), Limits{})
	err := rt.Invoke(context.Background(), testTrigger("fetch"), newMemEntities())

	var me *types.MappingError
	require.ErrorAs(t, err, &me)
	require.Equal(t, types.MappingAbort, me.Kind)
	require.Contains(t, me.Detail, "hash verification")
}

func TestFetchContentUnresolvable(t *testing.T) {
	reg := NewRegistry()
	reg.Register("fetch", func(h *Host, _ *triggers.Trigger) error {
		h.FetchContent(crypto.Keccak256Hash([]byte("nowhere")))
		return nil
	})
	rt := testRuntime(t, reg, NullFetcher{}, newMemAux(), Limits{})
	err := rt.Invoke(context.Background(), testTrigger("fetch"), newMemEntities())

	var me *types.MappingError
	require.ErrorAs(t, err, &me)
	require.Equal(t, types.MappingAbort, me.Kind)
	require.Contains(t, me.Detail, "unresolvable")
}

func TestFetchedBytesChargeMemoryBudget(t *testing.T) {
	payload := []byte("0123456789")
	hash := crypto.Keccak256Hash(payload)
	fetcher := fetchFunc(func(_ context.Context, h common.Hash) ([]byte, error) {
		return payload, nil
	})
	reg := NewRegistry()
	reg.Register("fetch", func(h *Host, _ *triggers.Trigger) error {
		h.FetchContent(hash)
		return nil
	})
	rt := testRuntime(t, reg, fetcher, newMemAux(), Limits{MaxBytes: 4})
	err := rt.Invoke(context.Background(), testTrigger("fetch"), newMemEntities())

	var me *types.MappingError
	require.ErrorAs(t, err, &me)
	require.Equal(t, types.MappingResourceLimit, me.Kind)
}

func TestStoreFaultPassesThrough(t *testing.T) {
	entities := newMemEntities()
	entities.setErr = &types.StoreWriteError{
		Key:    types.EntityKey{Type: "Token", ID: "1"},
		Detail: "undeclared attribute",
	}
	reg := NewRegistry()
	reg.Register("write", func(h *Host, _ *triggers.Trigger) error {
		h.SetEntity("Token", "1", types.Entity{"bogus": types.IntValue(1)})
		return nil
	})
	rt := testRuntime(t, reg, nil, nil, Limits{})
	err := rt.Invoke(context.Background(), testTrigger("write"), entities)

	// schema faults keep their identity so the coordinator fails the block
	var swe *types.StoreWriteError
	require.ErrorAs(t, err, &swe)
	var me *types.MappingError
	require.False(t, errors.As(err, &me))
}

func TestLogIsSideEffectOnly(t *testing.T) {
	reg := NewRegistry()
	reg.Register("log", func(h *Host, _ *triggers.Trigger) error {
		h.Log(log.InfoLevel, "processed", log.Fields{"id": "1"})
		return nil
	})
	rt := testRuntime(t, reg, nil, nil, Limits{})
	require.NoError(t, rt.Invoke(context.Background(), testTrigger("log"), newMemEntities()))
}
