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
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cerc-io/eth-subgraph-indexer/pkg/chain"
	"github.com/cerc-io/eth-subgraph-indexer/pkg/manifest"
)

// Match produces the ordered triggers a block yields for a set of data
// sources. The order is part of the indexing contract: two nodes must
// invoke mappings in the same order to reach the same proof of indexing.
//
//  1. event triggers, by (tx index, log index)
//  2. call triggers, by tx index
//  3. block triggers
//
// with ties broken by data source registration order, then by handler
// declaration order within the data source.
func Match(block *chain.Block, sources []manifest.DataSource) []*Trigger {
	var out []*Trigger

	for i := range sources {
		ds := &sources[i]
		if block.Ptr.Number < ds.StartBlock {
			continue
		}
		for li := range block.Logs {
			log := &block.Logs[li]
			if !addressMatches(ds.Address, log.Address) {
				continue
			}
			for hi, h := range ds.EventHandlers {
				if h.Topic != (common.Hash{}) && h.Topic != log.Topic0() {
					continue
				}
				out = append(out, &Trigger{
					Kind:         KindEvent,
					DataSource:   ds,
					Handler:      h.Handler,
					Log:          log,
					Block:        block,
					dsIndex:      i,
					handlerIndex: hi,
				})
			}
		}
		for ci := range block.Calls {
			call := &block.Calls[ci]
			if !addressMatches(ds.Address, call.To) {
				continue
			}
			for hi, h := range ds.CallHandlers {
				if h.Selector != call.Selector() {
					continue
				}
				out = append(out, &Trigger{
					Kind:         KindCall,
					DataSource:   ds,
					Handler:      h.Handler,
					Call:         call,
					Block:        block,
					dsIndex:      i,
					handlerIndex: hi,
				})
			}
		}
		for hi, h := range ds.BlockHandlers {
			out = append(out, &Trigger{
				Kind:         KindBlock,
				DataSource:   ds,
				Handler:      h.Handler,
				Block:        block,
				dsIndex:      i,
				handlerIndex: hi,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i], out[j])
	})
	return out
}

// addressMatches treats the zero address as a wildcard data source.
func addressMatches(declared, actual common.Address) bool {
	return declared == (common.Address{}) || declared == actual
}

func less(a, b *Trigger) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	switch a.Kind {
	case KindEvent:
		if a.Log.TxIndex != b.Log.TxIndex {
			return a.Log.TxIndex < b.Log.TxIndex
		}
		if a.Log.LogIndex != b.Log.LogIndex {
			return a.Log.LogIndex < b.Log.LogIndex
		}
	case KindCall:
		if a.Call.TxIndex != b.Call.TxIndex {
			return a.Call.TxIndex < b.Call.TxIndex
		}
	}
	if a.dsIndex != b.dsIndex {
		return a.dsIndex < b.dsIndex
	}
	return a.handlerIndex < b.handlerIndex
}
