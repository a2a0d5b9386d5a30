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

// ENV variables
const (
	INDEXER_DB_PATH         = "INDEXER_DB_PATH"
	INDEXER_MANIFESTS       = "INDEXER_MANIFESTS"
	INDEXER_MAX_REORG_DEPTH = "INDEXER_MAX_REORG_DEPTH"
	INDEXER_POLL_INTERVAL   = "INDEXER_POLL_INTERVAL"
	INDEXER_MAX_RETRIES     = "INDEXER_MAX_RETRIES"

	ETH_RPC_ENDPOINT = "ETH_RPC_ENDPOINT"

	CONTENT_GATEWAY_URL = "CONTENT_GATEWAY_URL"

	SANDBOX_MAX_STEPS = "SANDBOX_MAX_STEPS"
	SANDBOX_MAX_BYTES = "SANDBOX_MAX_BYTES"
	SANDBOX_TIMEOUT   = "SANDBOX_TIMEOUT"

	LOGRUS_LEVEL = "LOGRUS_LEVEL"
	LOGRUS_FILE  = "LOGRUS_FILE"

	PROM_METRICS   = "PROM_METRICS"
	PROM_HTTP      = "PROM_HTTP"
	PROM_HTTP_ADDR = "PROM_HTTP_ADDR"
	PROM_HTTP_PORT = "PROM_HTTP_PORT"
	PROM_DB_STATS  = "PROM_DB_STATS"
)

// TOML bindings
const (
	INDEXER_DB_PATH_TOML         = "indexer.dbPath"
	INDEXER_MANIFESTS_TOML       = "indexer.manifests"
	INDEXER_MAX_REORG_DEPTH_TOML = "indexer.maxReorgDepth"
	INDEXER_POLL_INTERVAL_TOML   = "indexer.pollInterval"
	INDEXER_MAX_RETRIES_TOML     = "indexer.maxRetries"

	ETH_RPC_ENDPOINT_TOML = "ethereum.rpcEndpoint"

	CONTENT_GATEWAY_URL_TOML = "content.gatewayUrl"

	SANDBOX_MAX_STEPS_TOML = "sandbox.maxSteps"
	SANDBOX_MAX_BYTES_TOML = "sandbox.maxBytes"
	SANDBOX_TIMEOUT_TOML   = "sandbox.timeout"

	LOGRUS_LEVEL_TOML = "log.level"
	LOGRUS_FILE_TOML  = "log.file"

	PROM_METRICS_TOML   = "prom.metrics"
	PROM_HTTP_TOML      = "prom.http"
	PROM_HTTP_ADDR_TOML = "prom.httpAddr"
	PROM_HTTP_PORT_TOML = "prom.httpPort"
	PROM_DB_STATS_TOML  = "prom.dbStats"
)

// CLI flags
const (
	INDEXER_DB_PATH_CLI         = "db-path"
	INDEXER_MANIFESTS_CLI       = "manifests"
	INDEXER_MAX_REORG_DEPTH_CLI = "max-reorg-depth"
	INDEXER_POLL_INTERVAL_CLI   = "poll-interval"
	INDEXER_MAX_RETRIES_CLI     = "max-retries"

	ETH_RPC_ENDPOINT_CLI = "eth-rpc-endpoint"

	CONTENT_GATEWAY_URL_CLI = "content-gateway-url"

	SANDBOX_MAX_STEPS_CLI = "sandbox-max-steps"
	SANDBOX_MAX_BYTES_CLI = "sandbox-max-bytes"
	SANDBOX_TIMEOUT_CLI   = "sandbox-timeout"

	LOGRUS_LEVEL_CLI = "log-level"
	LOGRUS_FILE_CLI  = "log-file"

	PROM_METRICS_CLI   = "prom-metrics"
	PROM_HTTP_CLI      = "prom-http"
	PROM_HTTP_ADDR_CLI = "prom-httpAddr"
	PROM_HTTP_PORT_CLI = "prom-httpPort"
	PROM_DB_STATS_CLI  = "prom-dbStats"
)
