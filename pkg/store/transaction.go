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

package store

import (
	"github.com/cerc-io/eth-subgraph-indexer/pkg/types"
)

// SchemaValidator checks a staged write against the deployment's entity
// schema. The manifest package provides the implementation.
type SchemaValidator interface {
	Validate(key types.EntityKey, data types.Entity) error
}

// stagedEntry is the in-transaction state of one entity within a region:
// either a pending value or a pending removal.
type stagedEntry struct {
	data types.Entity // nil means removed
}

// regionState holds one causality region's staged writes. Reads within the
// region see them; other regions do not until the block commits.
type regionState struct {
	staged map[types.EntityKey]stagedEntry
}

// Transaction stages all entity writes produced while processing one
// block. Nothing is visible outside the producing causality region until
// Commit on the Store; the transaction itself never touches badger.
type Transaction struct {
	store  *Store
	dep    types.DeploymentID
	schema SchemaValidator
	block  types.BlockPtr

	regions map[string]*regionState
	mods    []EntityMod
}

// NewTransaction opens a staging transaction for one block.
func NewTransaction(s *Store, dep types.DeploymentID, schema SchemaValidator, block types.BlockPtr) *Transaction {
	return &Transaction{
		store:   s,
		dep:     dep,
		schema:  schema,
		block:   block,
		regions: make(map[string]*regionState),
	}
}

func (t *Transaction) Block() types.BlockPtr { return t.block }

// Mods returns every staged mutation in application order. This order
// feeds the proof-of-indexing accumulator.
func (t *Transaction) Mods() []EntityMod { return t.mods }

func (t *Transaction) region(name string) *regionState {
	r, ok := t.regions[name]
	if !ok {
		r = &regionState{staged: make(map[types.EntityKey]stagedEntry)}
		t.regions[name] = r
	}
	return r
}

// Handle returns the view of this transaction scoped to one causality
// region; mapping invocations get exactly one of these.
func (t *Transaction) Handle(region string) *RegionHandle {
	return &RegionHandle{txn: t, region: region}
}

// Checkpoint captures the transaction state so a single invocation's
// effects can be discarded (the tolerate-failures path).
type Checkpoint struct {
	modCount int
	regions  map[string]map[types.EntityKey]stagedEntry
}

func (t *Transaction) Checkpoint() *Checkpoint {
	cp := &Checkpoint{
		modCount: len(t.mods),
		regions:  make(map[string]map[types.EntityKey]stagedEntry, len(t.regions)),
	}
	for name, r := range t.regions {
		staged := make(map[types.EntityKey]stagedEntry, len(r.staged))
		for k, v := range r.staged {
			staged[k] = v
		}
		cp.regions[name] = staged
	}
	return cp
}

// Rollback restores the state captured by Checkpoint, discarding every
// mutation staged since.
func (t *Transaction) Rollback(cp *Checkpoint) {
	t.mods = t.mods[:cp.modCount]
	t.regions = make(map[string]*regionState, len(cp.regions))
	for name, staged := range cp.regions {
		restored := make(map[types.EntityKey]stagedEntry, len(staged))
		for k, v := range staged {
			restored[k] = v
		}
		t.regions[name] = &regionState{staged: restored}
	}
}

// RegionHandle is the entity API one causality region sees. Its reads
// observe the region's own staged writes, then committed state; staged
// writes from other regions are invisible, which keeps intra-block results
// independent of data source processing order.
type RegionHandle struct {
	txn    *Transaction
	region string
}

func (h *RegionHandle) Region() string { return h.region }

// Get returns the entity as this region currently sees it.
func (h *RegionHandle) Get(key types.EntityKey) (types.Entity, bool, error) {
	if entry, ok := h.txn.region(h.region).staged[key]; ok {
		if entry.data == nil {
			return nil, false, nil
		}
		return entry.data.Copy(), true, nil
	}
	return h.txn.store.Get(h.txn.dep, key, h.txn.block.Number)
}

// Set stages a write, validated against the schema.
func (h *RegionHandle) Set(key types.EntityKey, data types.Entity) error {
	if err := h.txn.schema.Validate(key, data); err != nil {
		return err
	}
	cp := data.Copy()
	h.txn.region(h.region).staged[key] = stagedEntry{data: cp}
	h.txn.mods = append(h.txn.mods, EntityMod{Key: key, Data: cp, Region: h.region})
	return nil
}

// Remove stages a removal. Removing an absent entity is a no-op rather
// than an error, and stages nothing.
func (h *RegionHandle) Remove(key types.EntityKey) error {
	_, exists, err := h.Get(key)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	h.txn.region(h.region).staged[key] = stagedEntry{}
	h.txn.mods = append(h.txn.mods, EntityMod{Key: key, Region: h.region})
	return nil
}
