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
	"fmt"

	"github.com/google/orderedcode"

	"github.com/cerc-io/eth-subgraph-indexer/pkg/types"
)

// Key spaces. orderedcode keeps keys with a shared prefix sorted by the
// appended components, which is what makes point-in-time scans and bounded
// revert scans plain prefix iterations.
//
//	version:   v / deployment / entityType / id / fromBlock -> version record
//	changelog: c / deployment / block / entityType / id     -> nil
//	pointer:   p / deployment                               -> block pointer
//	poi:       i / deployment / block                       -> digest
//	ancestry:  h / deployment / block                       -> block hash
//	status:    s / deployment                               -> health record
//	aux:       a / contentHash                              -> pinned bytes
const (
	prefixVersion   = "v"
	prefixChangelog = "c"
	prefixPointer   = "p"
	prefixPOI       = "i"
	prefixAncestry  = "h"
	prefixStatus    = "s"
	prefixAux       = "a"
)

func versionKey(dep types.DeploymentID, key types.EntityKey, from uint64) []byte {
	k, err := orderedcode.Append(nil, prefixVersion, string(dep), key.Type, key.ID, from)
	if err != nil {
		panic(fmt.Sprintf("encoding version key: %v", err))
	}
	return k
}

func versionPrefix(dep types.DeploymentID, key types.EntityKey) []byte {
	k, err := orderedcode.Append(nil, prefixVersion, string(dep), key.Type, key.ID)
	if err != nil {
		panic(fmt.Sprintf("encoding version prefix: %v", err))
	}
	return k
}

func typePrefix(dep types.DeploymentID, entityType string) []byte {
	k, err := orderedcode.Append(nil, prefixVersion, string(dep), entityType)
	if err != nil {
		panic(fmt.Sprintf("encoding type prefix: %v", err))
	}
	return k
}

// parseVersionKey recovers (type, id, from) from a key under typePrefix.
func parseVersionKey(k []byte, dep types.DeploymentID) (types.EntityKey, uint64, error) {
	var prefix, depStr, typ, id string
	var from uint64
	rest, err := orderedcode.Parse(string(k), &prefix, &depStr, &typ, &id, &from)
	if err != nil {
		return types.EntityKey{}, 0, fmt.Errorf("parsing version key: %w", err)
	}
	if rest != "" || prefix != prefixVersion || depStr != string(dep) {
		return types.EntityKey{}, 0, fmt.Errorf("malformed version key %x", k)
	}
	return types.EntityKey{Type: typ, ID: id}, from, nil
}

func changelogKey(dep types.DeploymentID, block uint64, key types.EntityKey) []byte {
	k, err := orderedcode.Append(nil, prefixChangelog, string(dep), block, key.Type, key.ID)
	if err != nil {
		panic(fmt.Sprintf("encoding changelog key: %v", err))
	}
	return k
}

func changelogBlockPrefix(dep types.DeploymentID, block uint64) []byte {
	k, err := orderedcode.Append(nil, prefixChangelog, string(dep), block)
	if err != nil {
		panic(fmt.Sprintf("encoding changelog prefix: %v", err))
	}
	return k
}

func changelogPrefix(dep types.DeploymentID) []byte {
	k, err := orderedcode.Append(nil, prefixChangelog, string(dep))
	if err != nil {
		panic(fmt.Sprintf("encoding changelog prefix: %v", err))
	}
	return k
}

func parseChangelogKey(k []byte, dep types.DeploymentID) (uint64, types.EntityKey, error) {
	var prefix, depStr, typ, id string
	var block uint64
	rest, err := orderedcode.Parse(string(k), &prefix, &depStr, &block, &typ, &id)
	if err != nil {
		return 0, types.EntityKey{}, fmt.Errorf("parsing changelog key: %w", err)
	}
	if rest != "" || prefix != prefixChangelog || depStr != string(dep) {
		return 0, types.EntityKey{}, fmt.Errorf("malformed changelog key %x", k)
	}
	return block, types.EntityKey{Type: typ, ID: id}, nil
}

func pointerKey(dep types.DeploymentID) []byte {
	k, err := orderedcode.Append(nil, prefixPointer, string(dep))
	if err != nil {
		panic(fmt.Sprintf("encoding pointer key: %v", err))
	}
	return k
}

func poiKey(dep types.DeploymentID, block uint64) []byte {
	k, err := orderedcode.Append(nil, prefixPOI, string(dep), block)
	if err != nil {
		panic(fmt.Sprintf("encoding poi key: %v", err))
	}
	return k
}

func poiPrefix(dep types.DeploymentID) []byte {
	k, err := orderedcode.Append(nil, prefixPOI, string(dep))
	if err != nil {
		panic(fmt.Sprintf("encoding poi prefix: %v", err))
	}
	return k
}

func parsePOIKey(k []byte, dep types.DeploymentID) (uint64, error) {
	var prefix, depStr string
	var block uint64
	rest, err := orderedcode.Parse(string(k), &prefix, &depStr, &block)
	if err != nil {
		return 0, fmt.Errorf("parsing poi key: %w", err)
	}
	if rest != "" || prefix != prefixPOI || depStr != string(dep) {
		return 0, fmt.Errorf("malformed poi key %x", k)
	}
	return block, nil
}

func ancestryKey(dep types.DeploymentID, block uint64) []byte {
	k, err := orderedcode.Append(nil, prefixAncestry, string(dep), block)
	if err != nil {
		panic(fmt.Sprintf("encoding ancestry key: %v", err))
	}
	return k
}

func ancestryPrefix(dep types.DeploymentID) []byte {
	k, err := orderedcode.Append(nil, prefixAncestry, string(dep))
	if err != nil {
		panic(fmt.Sprintf("encoding ancestry prefix: %v", err))
	}
	return k
}

func parseAncestryKey(k []byte, dep types.DeploymentID) (uint64, error) {
	var prefix, depStr string
	var block uint64
	rest, err := orderedcode.Parse(string(k), &prefix, &depStr, &block)
	if err != nil {
		return 0, fmt.Errorf("parsing ancestry key: %w", err)
	}
	if rest != "" || prefix != prefixAncestry || depStr != string(dep) {
		return 0, fmt.Errorf("malformed ancestry key %x", k)
	}
	return block, nil
}

func statusKey(dep types.DeploymentID) []byte {
	k, err := orderedcode.Append(nil, prefixStatus, string(dep))
	if err != nil {
		panic(fmt.Sprintf("encoding status key: %v", err))
	}
	return k
}

func auxKey(contentHash []byte) []byte {
	k, err := orderedcode.Append(nil, prefixAux, string(contentHash))
	if err != nil {
		panic(fmt.Sprintf("encoding aux key: %v", err))
	}
	return k
}
