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

package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	log "github.com/sirupsen/logrus"

	"github.com/cerc-io/eth-subgraph-indexer/pkg/chain"
	"github.com/cerc-io/eth-subgraph-indexer/pkg/types"
)

// EntityStore is the entity surface one invocation sees: the causality
// region handle of the current block's transaction.
type EntityStore interface {
	Get(key types.EntityKey) (types.Entity, bool, error)
	Set(key types.EntityKey, data types.Entity) error
	Remove(key types.EntityKey) error
}

// ContentFetcher resolves content-addressed auxiliary payloads. Results
// are non-deterministic input and are only ever observed through the
// pinning cache.
type ContentFetcher interface {
	Fetch(ctx context.Context, hash common.Hash) ([]byte, error)
}

// AuxCache durably pins fetched content so replays observe identical
// bytes. The store implements it.
type AuxCache interface {
	PutAux(contentHash, data []byte) error
	GetAux(contentHash []byte) ([]byte, bool, error)
}

// Host is the complete API surface mapping code may touch. Everything
// else — clocks, network, ambient state — is out of reach, which is what
// makes replays bit-identical. Entity access goes to the invocation's
// causality region; content fetches are memoized; deterministic
// arbitrary-precision arithmetic is the types.BigDecimal / math/big
// surface, which is pure and needs no host mediation.
//
// Every host call charges the step budget. Exceeding it, or aborting,
// unwinds the invocation with a panic the runtime converts to a
// MappingError.
type Host struct {
	ctx      context.Context
	entities EntityStore
	fetcher  ContentFetcher
	aux      AuxCache
	logger   *log.Entry
	limits   Limits

	block *chain.Block
	trig  triggerData

	// mu serializes host calls against cancellation. Once the runtime
	// abandons the invocation it sets dead under mu, so no entity access can
	// start afterwards and any access already in flight finished before the
	// runtime returned — the caller's rollback covers it.
	mu   sync.Mutex
	dead bool

	steps uint64
	bytes uint64
}

// triggerData is the read-only chain data exposed to the handler.
type triggerData struct {
	log  *chain.EventLog
	call *chain.Call
}

type abortPanic struct{ msg string }
type limitPanic struct{ what string }
type faultPanic struct{ err error }
type cancelPanic struct{}

// enter admits one host call; leave must follow, deferred so trap panics
// release the lock. A cancelled invocation unwinds instead of executing.
func (h *Host) enter() {
	h.mu.Lock()
	if h.dead {
		h.mu.Unlock()
		panic(cancelPanic{})
	}
}

func (h *Host) leave() { h.mu.Unlock() }

// cancel bars all further host calls. Called by the runtime when it stops
// waiting for the handler; afterwards the leaked goroutine can observe or
// stage nothing.
func (h *Host) cancel() {
	h.mu.Lock()
	h.dead = true
	h.mu.Unlock()
}

func (h *Host) charge(steps uint64) {
	h.steps += steps
	if h.limits.MaxSteps > 0 && h.steps > h.limits.MaxSteps {
		panic(limitPanic{what: fmt.Sprintf("step budget of %d exhausted", h.limits.MaxSteps)})
	}
}

func (h *Host) chargeBytes(n uint64) {
	h.bytes += n
	if h.limits.MaxBytes > 0 && h.bytes > h.limits.MaxBytes {
		panic(limitPanic{what: fmt.Sprintf("memory budget of %d bytes exhausted", h.limits.MaxBytes)})
	}
}

// Block returns the triggering block, read-only.
func (h *Host) Block() *chain.Block { return h.block }

// EventLog returns the triggering log, or nil for non-event triggers.
func (h *Host) EventLog() *chain.EventLog { return h.trig.log }

// Call returns the triggering call, or nil for non-call triggers.
func (h *Host) Call() *chain.Call { return h.trig.call }

// GetEntity reads an entity as visible to this causality region.
func (h *Host) GetEntity(entityType, id string) (types.Entity, bool) {
	h.enter()
	defer h.leave()
	h.charge(1)
	data, ok, err := h.entities.Get(types.EntityKey{Type: entityType, ID: id})
	if err != nil {
		panic(faultPanic{err: err})
	}
	return data, ok
}

// SetEntity stages an entity write. Schema violations are a fault of the
// whole block, not of this invocation alone.
func (h *Host) SetEntity(entityType, id string, data types.Entity) {
	h.enter()
	defer h.leave()
	h.charge(1)
	if err := h.entities.Set(types.EntityKey{Type: entityType, ID: id}, data); err != nil {
		panic(faultPanic{err: err})
	}
}

// RemoveEntity stages an entity removal.
func (h *Host) RemoveEntity(entityType, id string) {
	h.enter()
	defer h.leave()
	h.charge(1)
	if err := h.entities.Remove(types.EntityKey{Type: entityType, ID: id}); err != nil {
		panic(faultPanic{err: err})
	}
}

// FetchContent resolves content-addressed bytes. The first resolution pins
// the payload; every replay reads the pin, so the fetch service's
// availability never shows through to mapping results. A payload that does
// not hash to its address is rejected.
func (h *Host) FetchContent(contentHash common.Hash) []byte {
	if pinned, ok := h.lookupPin(contentHash); ok {
		return pinned
	}
	// fetch outside the host lock so a hung fetch never blocks cancel
	data, err := h.fetcher.Fetch(h.ctx, contentHash)
	if err != nil {
		panic(abortPanic{msg: fmt.Sprintf("content %s unresolvable: %v", contentHash.Hex(), err)})
	}
	if !bytes.Equal(crypto.Keccak256(data), contentHash[:]) {
		panic(abortPanic{msg: fmt.Sprintf("content %s failed hash verification", contentHash.Hex())})
	}
	return h.pin(contentHash, data)
}

func (h *Host) lookupPin(contentHash common.Hash) ([]byte, bool) {
	h.enter()
	defer h.leave()
	h.charge(10)
	pinned, ok, err := h.aux.GetAux(contentHash[:])
	if err != nil {
		panic(faultPanic{err: err})
	}
	if ok {
		h.chargeBytes(uint64(len(pinned)))
	}
	return pinned, ok
}

func (h *Host) pin(contentHash common.Hash, data []byte) []byte {
	h.enter()
	defer h.leave()
	if err := h.aux.PutAux(contentHash[:], data); err != nil {
		panic(faultPanic{err: err})
	}
	h.chargeBytes(uint64(len(data)))
	return data
}

// Log emits a structured log line on the handler's behalf. A side effect
// only; never part of the determinism contract.
func (h *Host) Log(level log.Level, msg string, fields log.Fields) {
	h.enter()
	defer h.leave()
	h.charge(1)
	h.logger.WithFields(fields).Log(level, msg)
}

// Abort terminates the invocation with an explicit mapping error.
func (h *Host) Abort(msg string) {
	panic(abortPanic{msg: msg})
}
