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
	"bytes"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"

	"github.com/cerc-io/eth-subgraph-indexer/pkg/types"
)

// Store is the block-versioned entity store. Each deployment owns a
// namespace of entity versions tagged with [from, to) block validity,
// plus its block pointer, per-block proof-of-indexing digests and health
// record. All writes for one block land in a single badger transaction,
// so a block commit is atomic: a crash mid-commit leaves either the whole
// block or none of it.
//
// Writes for one deployment come from a single coordinator goroutine;
// reads (the query layer) may run concurrently and only ever observe
// committed state.
type Store struct {
	db *badger.DB

	// test seam: runs inside the commit transaction after entity writes
	commitInterrupt func() error
}

// Open opens or creates a store at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening store at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying badger handle for stats collection.
func (s *Store) DB() *badger.DB { return s.db }

// EntityMod is one staged mutation: a new value for Data, or a removal when
// Data is nil. Region names the causality region that produced it.
type EntityMod struct {
	Key    types.EntityKey
	Data   types.Entity
	Region string
}

func (m *EntityMod) IsRemove() bool { return m.Data == nil }

// Get returns the version of (type, id) valid at asOf, if any. It is a pure
// function of the store's committed mutation history.
func (s *Store) Get(dep types.DeploymentID, key types.EntityKey, asOf uint64) (types.Entity, bool, error) {
	var (
		found bool
		data  types.Entity
	)
	err := s.db.View(func(txn *badger.Txn) error {
		from, rec, err := latestVersionAtMost(txn, dep, key, asOf)
		if err != nil || rec == nil {
			return err
		}
		if rec.validAt(from, asOf) {
			found = true
			data = rec.data
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return data, found, nil
}

// Range visits every entity of entityType that exists at asOf, in id order,
// until fn returns false. fn receives a private copy of the entity.
func (s *Store) Range(dep types.DeploymentID, entityType string, asOf uint64, fn func(id string, data types.Entity) bool) error {
	prefix := typePrefix(dep, entityType)
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		var (
			curID     string
			haveCur   bool
			bestFrom  uint64
			bestValue []byte
		)
		emit := func() (bool, error) {
			if bestValue == nil {
				return true, nil
			}
			rec, err := decodeVersionRecord(bestValue)
			if err != nil {
				return false, err
			}
			if !rec.validAt(bestFrom, asOf) {
				return true, nil
			}
			return fn(curID, rec.data), nil
		}

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key, from, err := parseVersionKey(item.KeyCopy(nil), dep)
			if err != nil {
				return err
			}
			if !haveCur || key.ID != curID {
				cont, err := emit()
				if err != nil {
					return err
				}
				if !cont {
					return nil
				}
				curID, haveCur = key.ID, true
				bestValue = nil
			}
			if from > asOf {
				continue
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			bestFrom, bestValue = from, val
		}
		_, err := emit()
		return err
	})
}

// latestVersionAtMost returns the version with the greatest from <= asOf,
// or nil if the entity has no version that old.
func latestVersionAtMost(txn *badger.Txn, dep types.DeploymentID, key types.EntityKey, asOf uint64) (uint64, *versionRecord, error) {
	var (
		bestFrom  uint64
		bestValue []byte
	)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = versionPrefix(dep, key)
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		_, from, err := parseVersionKey(item.KeyCopy(nil), dep)
		if err != nil {
			return 0, nil, err
		}
		if from > asOf {
			break
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return 0, nil, err
		}
		bestFrom, bestValue = from, val
	}
	if bestValue == nil {
		return 0, nil, nil
	}
	rec, err := decodeVersionRecord(bestValue)
	if err != nil {
		return 0, nil, err
	}
	return bestFrom, rec, nil
}

// latestVersion returns the version with the greatest from, or nil.
func latestVersion(txn *badger.Txn, dep types.DeploymentID, key types.EntityKey) (uint64, *versionRecord, error) {
	return latestVersionAtMost(txn, dep, key, ^uint64(0))
}

// CommitBlock atomically applies one block's worth of mutations: closes
// superseded versions at block.Number, opens new ones, records the
// changelog used by RevertTo, seals the proof-of-indexing digest and
// advances the deployment's block pointer. Intra-block intermediate values
// are collapsed away; only each entity's end-of-block state persists.
func (s *Store) CommitBlock(dep types.DeploymentID, block types.BlockPtr, mods []EntityMod, poiDigest []byte) error {
	// collapse to final state per entity, preserving first-touch order
	final := make(map[types.EntityKey]types.Entity, len(mods))
	var order []types.EntityKey
	for i := range mods {
		if _, seen := final[mods[i].Key]; !seen {
			order = append(order, mods[i].Key)
		}
		final[mods[i].Key] = mods[i].Data
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		if err := checkAdvance(txn, dep, block); err != nil {
			return err
		}
		for _, key := range order {
			if err := applyFinalMod(txn, dep, key, final[key], block.Number); err != nil {
				return err
			}
		}
		if s.commitInterrupt != nil {
			if err := s.commitInterrupt(); err != nil {
				return err
			}
		}
		if err := txn.Set(poiKey(dep, block.Number), poiDigest); err != nil {
			return err
		}
		if err := txn.Set(ancestryKey(dep, block.Number), block.Hash[:]); err != nil {
			return err
		}
		if block.Number >= ancestryKeep {
			if err := txn.Delete(ancestryKey(dep, block.Number-ancestryKeep)); err != nil {
				return err
			}
		}
		return txn.Set(pointerKey(dep), encodeBlockPtr(block))
	})
	if err != nil {
		return &types.CommitError{Block: block, Err: err}
	}
	log.WithFields(log.Fields{
		"deployment": dep,
		"block":      block.Number,
		"entities":   len(order),
	}).Debug("committed block")
	return nil
}

// ancestryKeep bounds the retained per-block hash trail. Kept well past any
// sane reorg search depth so a restarted stream can re-anchor itself.
const ancestryKeep uint64 = 1024

// checkAdvance enforces strict forward progress within the commit txn.
func checkAdvance(txn *badger.Txn, dep types.DeploymentID, block types.BlockPtr) error {
	item, err := txn.Get(pointerKey(dep))
	if err == badger.ErrKeyNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return err
	}
	cur, err := decodeBlockPtr(val)
	if err != nil {
		return err
	}
	if block.Number <= cur.Number {
		return fmt.Errorf("commit of block %d behind current pointer %d", block.Number, cur.Number)
	}
	return nil
}

func applyFinalMod(txn *badger.Txn, dep types.DeploymentID, key types.EntityKey, data types.Entity, number uint64) error {
	from, rec, err := latestVersion(txn, dep, key)
	if err != nil {
		return err
	}
	if rec != nil && rec.open {
		if from >= number {
			return fmt.Errorf("open version of %s at %d not before commit block %d", key, from, number)
		}
		closed := &versionRecord{to: number, data: rec.data}
		if err := txn.Set(versionKey(dep, key, from), closed.encode()); err != nil {
			return err
		}
	}
	if data != nil {
		opened := &versionRecord{open: true, data: data}
		if err := txn.Set(versionKey(dep, key, number), opened.encode()); err != nil {
			return err
		}
	}
	return txn.Set(changelogKey(dep, number, key), nil)
}

// RevertTo undoes every commit made after the given block: versions opened
// later are deleted, versions closed later are reopened, and the changelog,
// proof-of-indexing digests and block pointer roll back with them. The
// whole revert is one atomic transaction.
func (s *Store) RevertTo(dep types.DeploymentID, to types.BlockPtr) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		touched, logKeys, err := changelogSince(txn, dep, to.Number+1)
		if err != nil {
			return err
		}
		for _, key := range touched {
			if err := revertEntity(txn, dep, key, to.Number); err != nil {
				return err
			}
		}
		for _, lk := range logKeys {
			if err := txn.Delete(lk); err != nil {
				return err
			}
		}
		poiKeys, err := keysWithPrefixFrom(txn, poiPrefix(dep), poiKey(dep, to.Number+1))
		if err != nil {
			return err
		}
		for _, pk := range poiKeys {
			if err := txn.Delete(pk); err != nil {
				return err
			}
		}
		ancKeys, err := keysWithPrefixFrom(txn, ancestryPrefix(dep), ancestryKey(dep, to.Number+1))
		if err != nil {
			return err
		}
		for _, ak := range ancKeys {
			if err := txn.Delete(ak); err != nil {
				return err
			}
		}
		return txn.Set(pointerKey(dep), encodeBlockPtr(to))
	})
	if err != nil {
		return fmt.Errorf("reverting %s to %s: %w", dep, to, err)
	}
	log.WithFields(log.Fields{"deployment": dep, "block": to.Number}).Info("reverted store")
	return nil
}

// changelogSince lists distinct entities touched at or after fromBlock,
// plus the raw changelog keys to delete.
func changelogSince(txn *badger.Txn, dep types.DeploymentID, fromBlock uint64) ([]types.EntityKey, [][]byte, error) {
	var (
		touched []types.EntityKey
		seen    = make(map[types.EntityKey]bool)
		raw     [][]byte
	)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = changelogPrefix(dep)
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Seek(changelogBlockPrefix(dep, fromBlock)); it.Valid(); it.Next() {
		k := it.Item().KeyCopy(nil)
		_, key, err := parseChangelogKey(k, dep)
		if err != nil {
			return nil, nil, err
		}
		raw = append(raw, k)
		if !seen[key] {
			seen[key] = true
			touched = append(touched, key)
		}
	}
	return touched, raw, nil
}

func revertEntity(txn *badger.Txn, dep types.DeploymentID, key types.EntityKey, to uint64) error {
	type versionRef struct {
		key  []byte
		from uint64
		val  []byte
	}
	var (
		drop     [][]byte
		survivor *versionRef
	)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = versionPrefix(dep, key)
	it := txn.NewIterator(opts)
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		k := item.KeyCopy(nil)
		_, from, err := parseVersionKey(k, dep)
		if err != nil {
			it.Close()
			return err
		}
		if from > to {
			drop = append(drop, k)
			continue
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			it.Close()
			return err
		}
		survivor = &versionRef{key: k, from: from, val: val}
	}
	it.Close()

	for _, k := range drop {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	if survivor != nil {
		rec, err := decodeVersionRecord(survivor.val)
		if err != nil {
			return err
		}
		if !rec.open && rec.to > to {
			reopened := &versionRecord{open: true, data: rec.data}
			if err := txn.Set(survivor.key, reopened.encode()); err != nil {
				return err
			}
		}
	}
	return nil
}

func keysWithPrefixFrom(txn *badger.Txn, prefix, seek []byte) ([][]byte, error) {
	var keys [][]byte
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Seek(seek); it.Valid(); it.Next() {
		if !bytes.HasPrefix(it.Item().Key(), prefix) {
			break
		}
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys, nil
}

// BlockPtr returns the deployment's current block pointer, if one has been
// committed.
func (s *Store) BlockPtr(dep types.DeploymentID) (types.BlockPtr, bool, error) {
	var (
		ptr   types.BlockPtr
		found bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(pointerKey(dep))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		ptr, err = decodeBlockPtr(val)
		found = err == nil
		return err
	})
	return ptr, found, err
}

// RecentAncestry returns up to limit of the most recently committed block
// pointers, ascending by number. It is what lets a restarted stream find a
// common ancestor below its resume point.
func (s *Store) RecentAncestry(dep types.DeploymentID, limit int) ([]types.BlockPtr, error) {
	var ptrs []types.BlockPtr
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = ancestryPrefix(dep)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			number, err := parseAncestryKey(it.Item().KeyCopy(nil), dep)
			if err != nil {
				return err
			}
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			ptrs = append(ptrs, types.BlockPtr{Number: number, Hash: common.BytesToHash(val)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(ptrs) > limit {
		ptrs = ptrs[len(ptrs)-limit:]
	}
	return ptrs, nil
}

// POI returns the sealed proof-of-indexing digest for a block.
func (s *Store) POI(dep types.DeploymentID, block uint64) ([]byte, bool, error) {
	var digest []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(poiKey(dep, block))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		digest, err = item.ValueCopy(nil)
		return err
	})
	return digest, digest != nil, err
}

// LatestPOI returns the most recently sealed digest and its block.
func (s *Store) LatestPOI(dep types.DeploymentID) (uint64, []byte, bool, error) {
	var (
		block  uint64
		digest []byte
	)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = poiPrefix(dep)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			b, err := parsePOIKey(it.Item().KeyCopy(nil), dep)
			if err != nil {
				return err
			}
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			block, digest = b, val
		}
		return nil
	})
	return block, digest, digest != nil, err
}

// SetStatus records the deployment's health.
func (s *Store) SetStatus(dep types.DeploymentID, status StatusRecord) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(statusKey(dep), status.encode())
	})
}

// Status returns the deployment's health record; a deployment with no
// record yet is healthy.
func (s *Store) Status(dep types.DeploymentID) (StatusRecord, error) {
	status := StatusRecord{Health: HealthHealthy}
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(statusKey(dep))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		rec, err := decodeStatusRecord(val)
		if err != nil {
			return err
		}
		status = *rec
		return nil
	})
	return status, err
}

// PutAux pins content-addressed auxiliary bytes. First write wins; replays
// must observe identical bytes, so later writes for the same hash are
// ignored.
func (s *Store) PutAux(contentHash, data []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(auxKey(contentHash))
		if err == nil {
			return nil
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(auxKey(contentHash), data)
	})
}

// GetAux returns pinned auxiliary bytes by content hash.
func (s *Store) GetAux(contentHash []byte) ([]byte, bool, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(auxKey(contentHash))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	return data, data != nil, err
}
