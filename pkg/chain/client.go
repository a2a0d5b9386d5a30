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

package chain

//go:generate mockgen -destination=../../internal/mocks/chain.go -package=mocks . Client

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Client is the read-only contract the indexer requires of a chain node.
// Implementations wrap an RPC endpoint; they are shared across subgraphs
// and must be safe for concurrent use. Failures surface as
// *types.ChainClientError so callers can tell transient from fatal.
type Client interface {
	// HeadNumber returns the latest canonical block number.
	HeadNumber(ctx context.Context) (uint64, error)

	// BlockByNumber fetches the canonical block at the given height.
	BlockByNumber(ctx context.Context, number uint64) (*Block, error)

	// BlockByHash fetches a block by hash, canonical or not. Required for
	// walking an abandoned branch back to a common ancestor.
	BlockByHash(ctx context.Context, hash common.Hash) (*Block, error)
}
