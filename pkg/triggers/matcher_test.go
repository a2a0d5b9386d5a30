package triggers

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/cerc-io/eth-subgraph-indexer/pkg/chain"
	"github.com/cerc-io/eth-subgraph-indexer/pkg/manifest"
	"github.com/cerc-io/eth-subgraph-indexer/pkg/types"
)

var (
	addrA = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	addrB = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	topicTransfer = common.HexToHash("0x01")
	topicApproval = common.HexToHash("0x02")
)

func testBlock(number uint64) *chain.Block {
	return &chain.Block{Ptr: types.BlockPtr{Number: number, Hash: common.HexToHash("0xff")}}
}

func eventSource(name string, addr common.Address, topic common.Hash, handler string) manifest.DataSource {
	return manifest.DataSource{
		Name:            name,
		Address:         addr,
		CausalityRegion: name,
		EventHandlers:   []manifest.EventHandler{{Topic: topic, Handler: handler}},
	}
}

func TestMatchOrdering(t *testing.T) {
	// logs deliberately out of order in the block body
	block := testBlock(10)
	block.Logs = []chain.EventLog{
		{Address: addrA, Topics: []common.Hash{topicTransfer}, TxIndex: 1, LogIndex: 2},
		{Address: addrB, Topics: []common.Hash{topicTransfer}, TxIndex: 0, LogIndex: 0},
		{Address: addrA, Topics: []common.Hash{topicTransfer}, TxIndex: 0, LogIndex: 1},
	}
	block.Calls = []chain.Call{
		{To: addrA, Input: []byte{0xa9, 0x05, 0x9c, 0xbb}, TxIndex: 1},
		{To: addrA, Input: []byte{0xa9, 0x05, 0x9c, 0xbb}, TxIndex: 0},
	}
	sources := []manifest.DataSource{
		eventSource("a", addrA, topicTransfer, "onTransferA"),
		{
			Name:            "b",
			Address:         addrB,
			CausalityRegion: "b",
			EventHandlers:   []manifest.EventHandler{{Topic: topicTransfer, Handler: "onTransferB"}},
			BlockHandlers:   []manifest.BlockHandler{{Handler: "onBlockB"}},
		},
		{
			Name:            "c",
			Address:         addrA,
			CausalityRegion: "c",
			CallHandlers:    []manifest.CallHandler{{Selector: [4]byte{0xa9, 0x05, 0x9c, 0xbb}, Handler: "onCallC"}},
		},
	}

	out := Match(block, sources)
	var got []string
	for _, trig := range out {
		got = append(got, trig.Handler)
	}
	require.Equal(t, []string{
		// events by (tx, log) regardless of source order
		"onTransferB", // tx 0 log 0
		"onTransferA", // tx 0 log 1
		"onTransferA", // tx 1 log 2
		// then calls by tx
		"onCallC", // tx 0
		"onCallC", // tx 1
		// then block handlers
		"onBlockB",
	}, got)
}

func TestMatchTieBreaksBySourceOrder(t *testing.T) {
	block := testBlock(1)
	block.Logs = []chain.EventLog{
		{Address: addrA, Topics: []common.Hash{topicTransfer}, TxIndex: 0, LogIndex: 0},
	}
	// both sources match the same log; registration order decides
	sources := []manifest.DataSource{
		eventSource("second", addrA, topicTransfer, "handlerSecond"),
		eventSource("first", addrA, topicTransfer, "handlerFirst"),
	}
	out := Match(block, sources)
	require.Len(t, out, 2)
	require.Equal(t, "handlerSecond", out[0].Handler)
	require.Equal(t, "handlerFirst", out[1].Handler)
}

func TestMatchTopicFilter(t *testing.T) {
	block := testBlock(1)
	block.Logs = []chain.EventLog{
		{Address: addrA, Topics: []common.Hash{topicApproval}, TxIndex: 0, LogIndex: 0},
	}
	out := Match(block, []manifest.DataSource{
		eventSource("a", addrA, topicTransfer, "onTransfer"),
	})
	require.Empty(t, out)

	// a zero topic matches any log from the contract
	out = Match(block, []manifest.DataSource{
		eventSource("a", addrA, common.Hash{}, "onAny"),
	})
	require.Len(t, out, 1)
	require.Equal(t, KindEvent, out[0].Kind)
}

func TestMatchWildcardAddress(t *testing.T) {
	block := testBlock(1)
	block.Logs = []chain.EventLog{
		{Address: addrB, Topics: []common.Hash{topicTransfer}, TxIndex: 0, LogIndex: 0},
	}
	out := Match(block, []manifest.DataSource{
		eventSource("any", common.Address{}, topicTransfer, "onAnyAddress"),
	})
	require.Len(t, out, 1)
}

func TestMatchRespectsStartBlock(t *testing.T) {
	block := testBlock(3)
	sources := []manifest.DataSource{{
		Name:            "late",
		StartBlock:      5,
		CausalityRegion: "late",
		BlockHandlers:   []manifest.BlockHandler{{Handler: "onBlock"}},
	}}
	require.Empty(t, Match(block, sources))
	require.Len(t, Match(testBlock(5), sources), 1)
}
