// Copyright © 2023 Vulcanize, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package poi maintains the proof-of-indexing digest: a per-block
// keccak-256 accumulator over every entity mutation a subgraph applies,
// chained from block to block so the sealed digest at any height is a
// function of the entire mutation history since the subgraph started.
// Two nodes that indexed the same chain with the same mappings must arrive
// at identical digests; any divergence is an indexing fault.
package poi

import (
	"encoding/binary"
	"sort"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/cerc-io/eth-subgraph-indexer/pkg/store"
	"github.com/cerc-io/eth-subgraph-indexer/pkg/types"
)

// DigestSize is the byte length of a sealed digest.
const DigestSize = 32

const (
	opSet    = 0
	opRemove = 1
)

// Seed is the chain anchor used before any block has been sealed. It binds
// the digest chain to the deployment identity.
func Seed(dep types.DeploymentID) []byte {
	return crypto.Keccak256([]byte("poi:"), []byte(dep))
}

// Accumulator folds one block's mutations into per-causality-region
// streams, then seals them into a single digest at Finalize. It is owned
// by one coordinator goroutine; not safe for concurrent use.
type Accumulator struct {
	dep  types.DeploymentID
	prev []byte

	regions map[string][]byte // region name -> running digest
	counts  map[string]uint64 // region name -> events folded this block
}

// NewAccumulator resumes the digest chain from prev, which must be the
// sealed digest of the last committed block, or nil to start from the
// deployment seed.
func NewAccumulator(dep types.DeploymentID, prev []byte) *Accumulator {
	a := &Accumulator{dep: dep, prev: prev}
	if a.prev == nil {
		a.prev = Seed(dep)
	}
	a.reset()
	return a
}

func (a *Accumulator) reset() {
	a.regions = make(map[string][]byte)
	a.counts = make(map[string]uint64)
}

// Update folds one mutation into its causality region's stream, in
// application order.
func (a *Accumulator) Update(mod store.EntityMod) {
	running, ok := a.regions[mod.Region]
	if !ok {
		running = crypto.Keccak256([]byte("region:"), []byte(mod.Region))
	}

	var buf []byte
	var tmp [binary.MaxVarintLen64]byte
	buf = append(buf, tmp[:binary.PutUvarint(tmp[:], a.counts[mod.Region])]...)
	if mod.IsRemove() {
		buf = append(buf, opRemove)
	} else {
		buf = append(buf, opSet)
	}
	buf = appendString(buf, mod.Key.Type)
	buf = appendString(buf, mod.Key.ID)
	if !mod.IsRemove() {
		buf = mod.Data.AppendCanonical(buf)
	}

	a.regions[mod.Region] = crypto.Keccak256(running, buf)
	a.counts[mod.Region]++
}

// Finalize seals the block's digest: region streams combined in
// lexicographic region order, chained onto the previous block's digest and
// the block pointer. The running state resets for the next block.
func (a *Accumulator) Finalize(block types.BlockPtr) []byte {
	names := make([]string, 0, len(a.regions))
	for name := range a.regions {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf []byte
	buf = append(buf, a.prev...)
	var tmp [binary.MaxVarintLen64]byte
	buf = append(buf, tmp[:binary.PutUvarint(tmp[:], block.Number)]...)
	buf = append(buf, block.Hash[:]...)
	for _, name := range names {
		buf = appendString(buf, name)
		buf = append(buf, a.regions[name]...)
		buf = append(buf, tmp[:binary.PutUvarint(tmp[:], a.counts[name])]...)
	}

	digest := crypto.Keccak256(buf)
	a.prev = digest
	a.reset()
	return digest
}

// Discard drops the running block state without sealing, for blocks whose
// processing failed before commit.
func (a *Accumulator) Discard() {
	a.reset()
}

// RevertTo rewinds the chain to a previously sealed digest, which the
// caller reads back from the store (or nil to rewind to the seed). Any
// running block state is dropped.
func (a *Accumulator) RevertTo(sealed []byte) {
	if sealed == nil {
		a.prev = Seed(a.dep)
	} else {
		a.prev = sealed
	}
	a.reset()
}

// Current returns the digest of the last sealed block.
func (a *Accumulator) Current() []byte {
	out := make([]byte, len(a.prev))
	copy(out, a.prev)
	return out
}

func appendString(buf []byte, s string) []byte {
	var tmp [binary.MaxVarintLen64]byte
	buf = append(buf, tmp[:binary.PutUvarint(tmp[:], uint64(len(s)))]...)
	return append(buf, s...)
}
