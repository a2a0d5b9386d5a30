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

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/cerc-io/eth-subgraph-indexer/pkg/types"
)

// EthClient adapts a go-ethereum RPC client to the Client contract.
// Call triggers require a trace-capable endpoint, which plain RPC is not,
// so this adapter reports no calls; deployments using call handlers need
// a tracing client.
type EthClient struct {
	ec *ethclient.Client
}

func DialEth(ctx context.Context, endpoint string) (*EthClient, error) {
	ec, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, &types.ChainClientError{Op: "dial", Transient: true, Err: err}
	}
	return &EthClient{ec: ec}, nil
}

func (c *EthClient) Close() { c.ec.Close() }

func (c *EthClient) HeadNumber(ctx context.Context) (uint64, error) {
	n, err := c.ec.BlockNumber(ctx)
	if err != nil {
		return 0, classify("head number", err)
	}
	return n, nil
}

func (c *EthClient) BlockByNumber(ctx context.Context, number uint64) (*Block, error) {
	header, err := c.ec.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return nil, classify("block by number", err)
	}
	return c.assemble(ctx, header)
}

func (c *EthClient) BlockByHash(ctx context.Context, hash common.Hash) (*Block, error) {
	header, err := c.ec.HeaderByHash(ctx, hash)
	if err != nil {
		return nil, classify("block by hash", err)
	}
	return c.assemble(ctx, header)
}

func (c *EthClient) assemble(ctx context.Context, header *gethtypes.Header) (*Block, error) {
	hash := header.Hash()
	logs, err := c.ec.FilterLogs(ctx, ethereum.FilterQuery{BlockHash: &hash})
	if err != nil {
		return nil, classify("filter logs", err)
	}
	block := &Block{
		Ptr: types.BlockPtr{
			Number:     header.Number.Uint64(),
			Hash:       hash,
			ParentHash: header.ParentHash,
		},
		Timestamp: header.Time,
	}
	for i := range logs {
		l := &logs[i]
		if l.Removed {
			continue
		}
		block.Logs = append(block.Logs, EventLog{
			Address:  l.Address,
			Topics:   l.Topics,
			Data:     l.Data,
			TxHash:   l.TxHash,
			TxIndex:  l.TxIndex,
			LogIndex: l.Index,
		})
	}
	return block, nil
}

// classify wraps RPC errors: not-found is permanent (the caller asked for
// something the node does not have), everything else is assumed to be a
// transient transport failure worth retrying.
func classify(op string, err error) error {
	transient := err != ethereum.NotFound
	return &types.ChainClientError{Op: op, Transient: transient, Err: err}
}
