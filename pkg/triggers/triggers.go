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

package triggers

import (
	"fmt"

	"github.com/cerc-io/eth-subgraph-indexer/pkg/chain"
	"github.com/cerc-io/eth-subgraph-indexer/pkg/manifest"
)

// Kind classifies a trigger by the chain activity that produced it.
type Kind uint8

const (
	KindEvent Kind = iota
	KindCall
	KindBlock
)

func (k Kind) String() string {
	switch k {
	case KindEvent:
		return "event"
	case KindCall:
		return "call"
	case KindBlock:
		return "block"
	default:
		return "unknown"
	}
}

// Trigger is one mapping invocation to perform: a matched piece of chain
// activity plus the data source and handler that claimed it. Triggers are
// derived transiently per block and never persisted.
type Trigger struct {
	Kind       Kind
	DataSource *manifest.DataSource
	Handler    string

	// Exactly one of these is set, per Kind.
	Log  *chain.EventLog
	Call *chain.Call

	// Block is always set: handlers get read-only access to the
	// triggering block.
	Block *chain.Block

	// sort components; see Match for the ordering contract
	dsIndex      int
	handlerIndex int
}

func (t *Trigger) String() string {
	switch t.Kind {
	case KindEvent:
		return fmt.Sprintf("event %s tx=%d log=%d -> %s.%s",
			t.Log.Topic0().Hex(), t.Log.TxIndex, t.Log.LogIndex, t.DataSource.Name, t.Handler)
	case KindCall:
		return fmt.Sprintf("call tx=%d -> %s.%s", t.Call.TxIndex, t.DataSource.Name, t.Handler)
	default:
		return fmt.Sprintf("block %s -> %s.%s", t.Block.Ptr, t.DataSource.Name, t.Handler)
	}
}
