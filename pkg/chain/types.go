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
	"github.com/ethereum/go-ethereum/common"

	"github.com/cerc-io/eth-subgraph-indexer/pkg/types"
)

// EventLog is one log emitted by a transaction. TxIndex and LogIndex are
// block-relative and drive deterministic trigger ordering.
type EventLog struct {
	Address  common.Address
	Topics   []common.Hash
	Data     []byte
	TxHash   common.Hash
	TxIndex  uint
	LogIndex uint
}

// Topic0 returns the event signature topic, or the zero hash for
// anonymous logs.
func (l *EventLog) Topic0() common.Hash {
	if len(l.Topics) == 0 {
		return common.Hash{}
	}
	return l.Topics[0]
}

// Call is one top-level contract call within a transaction.
type Call struct {
	To      common.Address
	Input   []byte
	TxHash  common.Hash
	TxIndex uint
}

// Selector returns the 4-byte function selector, or zero bytes for calls
// with short input.
func (c *Call) Selector() [4]byte {
	var sel [4]byte
	copy(sel[:], c.Input)
	return sel
}

// Block is the slice of chain data the indexer consumes: identity, linkage
// and the activity that can match triggers. It is immutable once fetched.
type Block struct {
	Ptr       types.BlockPtr
	Timestamp uint64
	Logs      []EventLog
	Calls     []Call
}

// ParentPtr returns a pointer to the parent block. Its ParentHash is unset;
// callers needing full linkage must fetch the parent.
func (b *Block) ParentPtr() types.BlockPtr {
	if b.Ptr.Number == 0 {
		return types.BlockPtr{}
	}
	return types.BlockPtr{Number: b.Ptr.Number - 1, Hash: b.Ptr.ParentHash}
}
