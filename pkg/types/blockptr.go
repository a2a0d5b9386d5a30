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

package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// DeploymentID identifies one subgraph deployment. It namespaces the
// deployment's entity store, proof-of-indexing digests and block pointer.
type DeploymentID string

func (id DeploymentID) String() string { return string(id) }

// BlockPtr identifies a block by number and hash. ParentHash carries the
// chain linkage needed for reorg detection; it is zero for pointers that
// only mark progress (e.g. a stored subgraph head).
type BlockPtr struct {
	Number     uint64
	Hash       common.Hash
	ParentHash common.Hash
}

func (p BlockPtr) String() string {
	return fmt.Sprintf("#%d (%s)", p.Number, p.Hash.Hex())
}

// IsZero reports whether the pointer is unset (no block indexed yet).
func (p BlockPtr) IsZero() bool {
	return p.Number == 0 && p.Hash == (common.Hash{})
}

// EntityKey addresses one entity within a subgraph's store namespace.
type EntityKey struct {
	Type string
	ID   string
}

func (k EntityKey) String() string {
	return k.Type + "#" + k.ID
}
