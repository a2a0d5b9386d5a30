package manifest

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/cerc-io/eth-subgraph-indexer/pkg/types"
)

const testDoc = `
specVersion: "0.0.1"
deployment: QmTestDeployment
schema:
  Token:
    attributes:
      supply: BigInt
      name: String
      holders: "[String]"
  Pair:
    attributes:
      reserve: BigDecimal
dataSources:
  - name: token
    address: "0x1111111111111111111111111111111111111111"
    startBlock: 5
    tolerateFailures: true
    eventHandlers:
      - topic: "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"
        handler: handleTransfer
    callHandlers:
      - selector: "0xa9059cbb"
        handler: handleTransferCall
  - name: pair
    startBlock: 2
    causalityRegion: amm
    blockHandlers:
      - handler: handleBlock
`

func TestParse(t *testing.T) {
	m, err := Parse([]byte(testDoc))
	require.NoError(t, err)

	require.Equal(t, types.DeploymentID("QmTestDeployment"), m.Deployment)
	require.Len(t, m.DataSources, 2)

	token := m.DataSources[0]
	require.Equal(t, "token", token.Name)
	require.Equal(t, common.HexToAddress("0x1111111111111111111111111111111111111111"), token.Address)
	require.Equal(t, uint64(5), token.StartBlock)
	require.True(t, token.TolerateFailures)
	// region defaults to the data source name
	require.Equal(t, "token", token.CausalityRegion)
	require.Len(t, token.EventHandlers, 1)
	require.Equal(t, "handleTransfer", token.EventHandlers[0].Handler)
	require.Equal(t, [4]byte{0xa9, 0x05, 0x9c, 0xbb}, token.CallHandlers[0].Selector)

	pair := m.DataSources[1]
	// wildcard: no address declared
	require.Equal(t, common.Address{}, pair.Address)
	require.Equal(t, "amm", pair.CausalityRegion)
	require.False(t, pair.TolerateFailures)

	require.Equal(t, uint64(2), m.EarliestStartBlock())

	holders := m.Schema.EntityTypes["Token"].Attributes["holders"]
	require.True(t, holders.List)
	require.Equal(t, types.KindString, holders.Elem)
}

func TestParseRejects(t *testing.T) {
	for name, doc := range map[string]string{
		"missing deployment": `
dataSources:
  - name: a
    blockHandlers: [{handler: h}]
`,
		"no data sources": `
deployment: Qm1
`,
		"duplicate data source": `
deployment: Qm1
dataSources:
  - name: a
    blockHandlers: [{handler: h}]
  - name: a
    blockHandlers: [{handler: h}]
`,
		"bad address": `
deployment: Qm1
dataSources:
  - name: a
    address: "not-hex"
    blockHandlers: [{handler: h}]
`,
		"bad selector": `
deployment: Qm1
dataSources:
  - name: a
    callHandlers: [{selector: "0xabcd", handler: h}]
`,
		"unknown attribute type": `
deployment: Qm1
schema:
  Token:
    attributes:
      supply: Integer
dataSources:
  - name: a
    blockHandlers: [{handler: h}]
`,
		"unknown field": `
deployment: Qm1
bogus: true
dataSources:
  - name: a
    blockHandlers: [{handler: h}]
`,
	} {
		_, err := Parse([]byte(doc))
		require.Error(t, err, name)
	}
}

func TestParseAttrType(t *testing.T) {
	at, err := ParseAttrType("BigDecimal")
	require.NoError(t, err)
	require.Equal(t, types.KindBigDecimal, at.Kind)
	require.False(t, at.List)

	at, err = ParseAttrType("[Bytes]")
	require.NoError(t, err)
	require.True(t, at.List)
	require.Equal(t, types.KindBytes, at.Elem)

	_, err = ParseAttrType("[Nope]")
	require.Error(t, err)
}

func TestSchemaValidate(t *testing.T) {
	m, err := Parse([]byte(testDoc))
	require.NoError(t, err)
	schema := &m.Schema

	key := types.EntityKey{Type: "Token", ID: "1"}
	require.NoError(t, schema.Validate(key, types.Entity{
		"supply":  types.IntValue(100),
		"name":    types.StringValue("T"),
		"holders": types.ListValue([]types.Value{types.StringValue("a")}),
	}))

	// null is allowed for any declared attribute
	require.NoError(t, schema.Validate(key, types.Entity{"supply": types.NullValue()}))

	var swe *types.StoreWriteError
	err = schema.Validate(types.EntityKey{Type: "Nope", ID: "1"}, types.Entity{})
	require.ErrorAs(t, err, &swe)

	err = schema.Validate(key, types.Entity{"color": types.StringValue("red")})
	require.ErrorAs(t, err, &swe)

	err = schema.Validate(key, types.Entity{"supply": types.StringValue("100")})
	require.ErrorAs(t, err, &swe)

	err = schema.Validate(key, types.Entity{
		"holders": types.ListValue([]types.Value{types.IntValue(1)}),
	})
	require.ErrorAs(t, err, &swe)
}
