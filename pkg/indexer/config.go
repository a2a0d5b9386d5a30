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

package indexer

import (
	"github.com/spf13/viper"

	"github.com/cerc-io/eth-subgraph-indexer/pkg/blockstream"
	"github.com/cerc-io/eth-subgraph-indexer/pkg/sandbox"
)

// Config carries everything the index command needs to assemble a
// running service.
type Config struct {
	DBPath      string
	Manifests   []string
	RPCEndpoint string
	GatewayURL  string

	Stream blockstream.Config
	Limits sandbox.Limits
}

// Init populates the config from viper, which the command layer has bound
// to ENV vars, TOML keys and CLI flags.
func (c *Config) Init() {
	viper.BindEnv(INDEXER_DB_PATH_TOML, INDEXER_DB_PATH)
	viper.BindEnv(INDEXER_MANIFESTS_TOML, INDEXER_MANIFESTS)
	viper.BindEnv(INDEXER_MAX_REORG_DEPTH_TOML, INDEXER_MAX_REORG_DEPTH)
	viper.BindEnv(INDEXER_POLL_INTERVAL_TOML, INDEXER_POLL_INTERVAL)
	viper.BindEnv(INDEXER_MAX_RETRIES_TOML, INDEXER_MAX_RETRIES)
	viper.BindEnv(ETH_RPC_ENDPOINT_TOML, ETH_RPC_ENDPOINT)
	viper.BindEnv(CONTENT_GATEWAY_URL_TOML, CONTENT_GATEWAY_URL)
	viper.BindEnv(SANDBOX_MAX_STEPS_TOML, SANDBOX_MAX_STEPS)
	viper.BindEnv(SANDBOX_MAX_BYTES_TOML, SANDBOX_MAX_BYTES)
	viper.BindEnv(SANDBOX_TIMEOUT_TOML, SANDBOX_TIMEOUT)

	c.DBPath = viper.GetString(INDEXER_DB_PATH_TOML)
	c.Manifests = viper.GetStringSlice(INDEXER_MANIFESTS_TOML)
	c.RPCEndpoint = viper.GetString(ETH_RPC_ENDPOINT_TOML)
	c.GatewayURL = viper.GetString(CONTENT_GATEWAY_URL_TOML)

	c.Stream = blockstream.DefaultConfig
	if v := viper.GetUint64(INDEXER_MAX_REORG_DEPTH_TOML); v > 0 {
		c.Stream.MaxReorgDepth = v
	}
	if v := viper.GetDuration(INDEXER_POLL_INTERVAL_TOML); v > 0 {
		c.Stream.PollInterval = v
	}
	if v := viper.GetUint64(INDEXER_MAX_RETRIES_TOML); v > 0 {
		c.Stream.MaxRetries = v
	}

	c.Limits = sandbox.DefaultLimits
	if v := viper.GetUint64(SANDBOX_MAX_STEPS_TOML); v > 0 {
		c.Limits.MaxSteps = v
	}
	if v := viper.GetUint64(SANDBOX_MAX_BYTES_TOML); v > 0 {
		c.Limits.MaxBytes = v
	}
	if v := viper.GetDuration(SANDBOX_TIMEOUT_TOML); v > 0 {
		c.Limits.Timeout = v
	}
}
