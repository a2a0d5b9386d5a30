// VulcanizeDB
// Copyright © 2023 Vulcanize

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cerc-io/eth-subgraph-indexer/pkg/chain"
	"github.com/cerc-io/eth-subgraph-indexer/pkg/indexer"
	"github.com/cerc-io/eth-subgraph-indexer/pkg/manifest"
	"github.com/cerc-io/eth-subgraph-indexer/pkg/prom"
	"github.com/cerc-io/eth-subgraph-indexer/pkg/sandbox"
	"github.com/cerc-io/eth-subgraph-indexer/pkg/store"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index the registered subgraphs against the chain head",
	Long: `Runs one coordinator per subgraph manifest: consumes the chain's block
stream with reorg handling, executes the compiled-in mapping handlers for
each matched trigger, and commits entity versions, proof-of-indexing
digests and block pointers atomically per block.`,
	Run: func(cmd *cobra.Command, args []string) {
		subCommand = cmd.CalledAs()
		logWithCommand = *log.WithField("SubCommand", subCommand)
		index()
	},
}

func index() {
	cfg := &indexer.Config{}
	cfg.Init()
	if len(cfg.Manifests) == 0 {
		logWithCommand.Fatal("no subgraph manifests configured")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	indexer.CaptureSignal(cancel)

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		logWithCommand.Fatal(err)
	}
	defer st.Close()
	if viper.GetBool(indexer.PROM_DB_STATS_TOML) {
		prom.RegisterDBCollector("indexer", st.DB())
	}

	client, err := chain.DialEth(ctx, cfg.RPCEndpoint)
	if err != nil {
		logWithCommand.Fatal(err)
	}
	defer client.Close()

	var fetcher sandbox.ContentFetcher = sandbox.NullFetcher{}
	if cfg.GatewayURL != "" {
		fetcher = sandbox.NewGatewayFetcher(cfg.GatewayURL)
	}

	service := indexer.NewService(st, client, sandbox.Default, fetcher, cfg.Limits, cfg.Stream)
	for _, path := range cfg.Manifests {
		man, err := manifest.Load(path)
		if err != nil {
			logWithCommand.Fatal(err)
		}
		if err := service.Register(man); err != nil {
			logWithCommand.Fatal(err)
		}
		logWithCommand.Infof("registered deployment %s (%d data sources)", man.Deployment, len(man.DataSources))
	}

	if err := service.Run(ctx); err != nil {
		logWithCommand.Fatal(err)
	}
}

func init() {
	rootCmd.AddCommand(indexCmd)
}
