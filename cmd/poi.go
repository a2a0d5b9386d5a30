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
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cerc-io/eth-subgraph-indexer/pkg/indexer"
	"github.com/cerc-io/eth-subgraph-indexer/pkg/store"
	"github.com/cerc-io/eth-subgraph-indexer/pkg/types"
)

var (
	poiDeployment string
	poiBlock      uint64
)

var poiCmd = &cobra.Command{
	Use:   "poi",
	Short: "Print a deployment's proof-of-indexing digest",
	Long: `Reads the sealed proof-of-indexing digest for a deployment at a block
(or the latest sealed block when --block is omitted), along with the
deployment's current pointer and health. Digests from two nodes indexing
the same chain must match; a mismatch means one of them diverged.`,
	Run: func(cmd *cobra.Command, args []string) {
		subCommand = cmd.CalledAs()
		logWithCommand = *log.WithField("SubCommand", subCommand)
		showPOI()
	},
}

func showPOI() {
	cfg := &indexer.Config{}
	cfg.Init()
	if poiDeployment == "" {
		logWithCommand.Fatal("--deployment is required")
	}
	dep := types.DeploymentID(poiDeployment)

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		logWithCommand.Fatal(err)
	}
	defer st.Close()

	ptr, hasPtr, err := st.BlockPtr(dep)
	if err != nil {
		logWithCommand.Fatal(err)
	}
	if !hasPtr {
		logWithCommand.Fatalf("deployment %s has no committed blocks", dep)
	}
	status, err := st.Status(dep)
	if err != nil {
		logWithCommand.Fatal(err)
	}

	block := poiBlock
	var digest []byte
	var found bool
	if block == 0 {
		block, digest, found, err = st.LatestPOI(dep)
	} else {
		digest, found, err = st.POI(dep, block)
	}
	if err != nil {
		logWithCommand.Fatal(err)
	}
	if !found {
		logWithCommand.Fatalf("no digest sealed at block %d", poiBlock)
	}

	fmt.Printf("deployment: %s\n", dep)
	fmt.Printf("health:     %s\n", status.Health)
	if status.LastError != "" {
		fmt.Printf("last error: %s\n", status.LastError)
	}
	fmt.Printf("head:       %s\n", ptr)
	fmt.Printf("poi block:  %d\n", block)
	fmt.Printf("poi digest: 0x%x\n", digest)
}

func init() {
	poiCmd.Flags().StringVar(&poiDeployment, "deployment", "", "deployment id")
	poiCmd.Flags().Uint64Var(&poiBlock, "block", 0, "block number (default: latest sealed)")
	rootCmd.AddCommand(poiCmd)
}
