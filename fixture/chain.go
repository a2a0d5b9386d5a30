package fixture

import (
	"context"
	"errors"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/cerc-io/eth-subgraph-indexer/pkg/chain"
	"github.com/cerc-io/eth-subgraph-indexer/pkg/types"
)

// BlockHash derives a stable synthetic hash for a block on a named fork,
// so that independently built test chains agree on identity.
func BlockHash(fork string, number uint64) common.Hash {
	return crypto.Keccak256Hash([]byte(fork), []byte{
		byte(number >> 56), byte(number >> 48), byte(number >> 40), byte(number >> 32),
		byte(number >> 24), byte(number >> 16), byte(number >> 8), byte(number),
	})
}

// MakeChain builds blocks [start, start+count) on the given fork, linking
// each block to its predecessor. Blocks below forkAt keep the "main" fork's
// hashes so the branch shares ancestry with the main chain.
func MakeChain(fork string, start, count, forkAt uint64) []*chain.Block {
	blocks := make([]*chain.Block, 0, count)
	for n := start; n < start+count; n++ {
		blocks = append(blocks, makeBlock(fork, n, forkAt))
	}
	return blocks
}

func makeBlock(fork string, number, forkAt uint64) *chain.Block {
	hashFork := func(n uint64) string {
		if n < forkAt {
			return "main"
		}
		return fork
	}
	b := &chain.Block{
		Ptr: types.BlockPtr{
			Number: number,
			Hash:   BlockHash(hashFork(number), number),
		},
		Timestamp: 1600000000 + number*12,
	}
	if number > 0 {
		b.Ptr.ParentHash = BlockHash(hashFork(number-1), number-1)
	}
	return b
}

// WithLog appends an event log to the block and returns it, for fluent
// fixture construction.
func WithLog(b *chain.Block, addr common.Address, topic0 common.Hash, data []byte, txIndex, logIndex uint) *chain.Block {
	b.Logs = append(b.Logs, chain.EventLog{
		Address:  addr,
		Topics:   []common.Hash{topic0},
		Data:     data,
		TxHash:   crypto.Keccak256Hash(b.Ptr.Hash[:], []byte{byte(txIndex)}),
		TxIndex:  txIndex,
		LogIndex: logIndex,
	})
	return b
}

// WithCall appends a top-level call to the block and returns it.
func WithCall(b *chain.Block, to common.Address, input []byte, txIndex uint) *chain.Block {
	b.Calls = append(b.Calls, chain.Call{
		To:      to,
		Input:   input,
		TxHash:  crypto.Keccak256Hash(b.Ptr.Hash[:], []byte{byte(txIndex)}),
		TxIndex: txIndex,
	})
	return b
}

// ChainClient is an in-memory chain.Client whose canonical chain can be
// swapped mid-test to simulate reorganizations. Blocks from abandoned
// branches remain reachable by hash, as they would be on a real node.
type ChainClient struct {
	sync.RWMutex

	canonical []*chain.Block
	byHash    map[common.Hash]*chain.Block
	failures  map[uint64]int // BlockByNumber failures to inject, per height
}

// NewChainClient serves the given blocks as the canonical chain.
func NewChainClient(blocks []*chain.Block) *ChainClient {
	c := &ChainClient{byHash: make(map[common.Hash]*chain.Block), failures: make(map[uint64]int)}
	c.SetCanonical(blocks)
	return c
}

// SetCanonical replaces the canonical chain. Previously served blocks stay
// resolvable by hash.
func (c *ChainClient) SetCanonical(blocks []*chain.Block) {
	c.Lock()
	defer c.Unlock()
	c.canonical = blocks
	for _, b := range blocks {
		c.byHash[b.Ptr.Hash] = b
	}
}

// FailNextByNumber makes the next n BlockByNumber calls for the given
// height return a transient error.
func (c *ChainClient) FailNextByNumber(number uint64, n int) {
	c.Lock()
	defer c.Unlock()
	c.failures[number] = n
}

func (c *ChainClient) HeadNumber(ctx context.Context) (uint64, error) {
	c.RLock()
	defer c.RUnlock()
	if len(c.canonical) == 0 {
		return 0, &types.ChainClientError{Op: "head number", Transient: true, Err: errors.New("no blocks served")}
	}
	return c.canonical[len(c.canonical)-1].Ptr.Number, nil
}

func (c *ChainClient) BlockByNumber(ctx context.Context, number uint64) (*chain.Block, error) {
	c.Lock()
	defer c.Unlock()
	if n := c.failures[number]; n > 0 {
		c.failures[number] = n - 1
		return nil, &types.ChainClientError{Op: "block by number", Transient: true, Err: errors.New("injected failure")}
	}
	for _, b := range c.canonical {
		if b.Ptr.Number == number {
			return b, nil
		}
	}
	return nil, &types.ChainClientError{Op: "block by number", Transient: false, Err: ethereum.NotFound}
}

func (c *ChainClient) BlockByHash(ctx context.Context, hash common.Hash) (*chain.Block, error) {
	c.RLock()
	defer c.RUnlock()
	if b, ok := c.byHash[hash]; ok {
		return b, nil
	}
	return nil, &types.ChainClientError{Op: "block by hash", Transient: false, Err: ethereum.NotFound}
}
