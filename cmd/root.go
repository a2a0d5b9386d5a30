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
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cerc-io/eth-subgraph-indexer/pkg/indexer"
	"github.com/cerc-io/eth-subgraph-indexer/pkg/prom"
)

var (
	cfgFile        string
	subCommand     string
	logWithCommand log.Entry
)

var rootCmd = &cobra.Command{
	Use:              "eth-subgraph-indexer",
	PersistentPreRun: initFuncs,
}

// Execute executes root Command.
func Execute() {
	log.Info("----- Starting subgraph indexer -----")
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func initFuncs(cmd *cobra.Command, args []string) {
	logfile := viper.GetString(indexer.LOGRUS_FILE_TOML)
	if logfile != "" {
		file, err := os.OpenFile(logfile,
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			log.Infof("Directing output to %s", logfile)
			log.SetOutput(file)
		} else {
			log.SetOutput(os.Stdout)
			log.Info("Failed to log to file, using default stdout")
		}
	} else {
		log.SetOutput(os.Stdout)
	}
	if err := logLevel(); err != nil {
		log.Fatal("Could not set log level: ", err)
	}

	if viper.GetBool(indexer.PROM_METRICS_TOML) {
		log.Info("initializing prometheus metrics")
		prom.Init()
	}

	if viper.GetBool(indexer.PROM_HTTP_TOML) {
		addr := fmt.Sprintf(
			"%s:%s",
			viper.GetString(indexer.PROM_HTTP_ADDR_TOML),
			viper.GetString(indexer.PROM_HTTP_PORT_TOML),
		)
		log.Info("starting prometheus server")
		prom.Serve(addr)
	}
}

func logLevel() error {
	lvl, err := log.ParseLevel(viper.GetString(indexer.LOGRUS_LEVEL_TOML))
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	if lvl > log.InfoLevel {
		log.SetReportCaller(true)
	}
	log.Info("Log level set to ", lvl.String())

	return nil
}

func init() {
	cobra.OnInitialize(initConfig)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file location")
	rootCmd.PersistentFlags().String(indexer.LOGRUS_FILE_CLI, "", "file path for logging")
	rootCmd.PersistentFlags().String(indexer.LOGRUS_LEVEL_CLI, log.InfoLevel.String(), "log level (trace, debug, info, warn, error, fatal, panic)")

	rootCmd.PersistentFlags().String(indexer.INDEXER_DB_PATH_CLI, "./indexer-db", "entity store directory")
	rootCmd.PersistentFlags().StringSlice(indexer.INDEXER_MANIFESTS_CLI, nil, "subgraph manifest files")
	rootCmd.PersistentFlags().Uint64(indexer.INDEXER_MAX_REORG_DEPTH_CLI, 0, "maximum reorg search depth")
	rootCmd.PersistentFlags().Duration(indexer.INDEXER_POLL_INTERVAL_CLI, 0, "chain head poll interval")
	rootCmd.PersistentFlags().Uint64(indexer.INDEXER_MAX_RETRIES_CLI, 0, "chain client retry budget")
	rootCmd.PersistentFlags().String(indexer.ETH_RPC_ENDPOINT_CLI, "", "ethereum RPC endpoint")
	rootCmd.PersistentFlags().String(indexer.CONTENT_GATEWAY_URL_CLI, "", "content-addressed gateway URL")
	rootCmd.PersistentFlags().Uint64(indexer.SANDBOX_MAX_STEPS_CLI, 0, "sandbox host-call budget per invocation")
	rootCmd.PersistentFlags().Uint64(indexer.SANDBOX_MAX_BYTES_CLI, 0, "sandbox memory budget per invocation")
	rootCmd.PersistentFlags().Duration(indexer.SANDBOX_TIMEOUT_CLI, 0, "sandbox wall-clock timeout per invocation")

	rootCmd.PersistentFlags().Bool(indexer.PROM_METRICS_CLI, false, "enable prometheus metrics")
	rootCmd.PersistentFlags().Bool(indexer.PROM_HTTP_CLI, false, "enable prometheus http service")
	rootCmd.PersistentFlags().String(indexer.PROM_HTTP_ADDR_CLI, "127.0.0.1", "prometheus http host")
	rootCmd.PersistentFlags().String(indexer.PROM_HTTP_PORT_CLI, "8086", "prometheus http port")
	rootCmd.PersistentFlags().Bool(indexer.PROM_DB_STATS_CLI, false, "enables prometheus db stats")

	viper.BindPFlag(indexer.LOGRUS_FILE_TOML, rootCmd.PersistentFlags().Lookup(indexer.LOGRUS_FILE_CLI))
	viper.BindPFlag(indexer.LOGRUS_LEVEL_TOML, rootCmd.PersistentFlags().Lookup(indexer.LOGRUS_LEVEL_CLI))

	viper.BindPFlag(indexer.INDEXER_DB_PATH_TOML, rootCmd.PersistentFlags().Lookup(indexer.INDEXER_DB_PATH_CLI))
	viper.BindPFlag(indexer.INDEXER_MANIFESTS_TOML, rootCmd.PersistentFlags().Lookup(indexer.INDEXER_MANIFESTS_CLI))
	viper.BindPFlag(indexer.INDEXER_MAX_REORG_DEPTH_TOML, rootCmd.PersistentFlags().Lookup(indexer.INDEXER_MAX_REORG_DEPTH_CLI))
	viper.BindPFlag(indexer.INDEXER_POLL_INTERVAL_TOML, rootCmd.PersistentFlags().Lookup(indexer.INDEXER_POLL_INTERVAL_CLI))
	viper.BindPFlag(indexer.INDEXER_MAX_RETRIES_TOML, rootCmd.PersistentFlags().Lookup(indexer.INDEXER_MAX_RETRIES_CLI))
	viper.BindPFlag(indexer.ETH_RPC_ENDPOINT_TOML, rootCmd.PersistentFlags().Lookup(indexer.ETH_RPC_ENDPOINT_CLI))
	viper.BindPFlag(indexer.CONTENT_GATEWAY_URL_TOML, rootCmd.PersistentFlags().Lookup(indexer.CONTENT_GATEWAY_URL_CLI))
	viper.BindPFlag(indexer.SANDBOX_MAX_STEPS_TOML, rootCmd.PersistentFlags().Lookup(indexer.SANDBOX_MAX_STEPS_CLI))
	viper.BindPFlag(indexer.SANDBOX_MAX_BYTES_TOML, rootCmd.PersistentFlags().Lookup(indexer.SANDBOX_MAX_BYTES_CLI))
	viper.BindPFlag(indexer.SANDBOX_TIMEOUT_TOML, rootCmd.PersistentFlags().Lookup(indexer.SANDBOX_TIMEOUT_CLI))

	viper.BindPFlag(indexer.PROM_METRICS_TOML, rootCmd.PersistentFlags().Lookup(indexer.PROM_METRICS_CLI))
	viper.BindPFlag(indexer.PROM_HTTP_TOML, rootCmd.PersistentFlags().Lookup(indexer.PROM_HTTP_CLI))
	viper.BindPFlag(indexer.PROM_HTTP_ADDR_TOML, rootCmd.PersistentFlags().Lookup(indexer.PROM_HTTP_ADDR_CLI))
	viper.BindPFlag(indexer.PROM_HTTP_PORT_TOML, rootCmd.PersistentFlags().Lookup(indexer.PROM_HTTP_PORT_CLI))
	viper.BindPFlag(indexer.PROM_DB_STATS_TOML, rootCmd.PersistentFlags().Lookup(indexer.PROM_DB_STATS_CLI))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err == nil {
			log.Printf("Using config file: %s", viper.ConfigFileUsed())
		} else {
			log.Fatal(fmt.Sprintf("Couldn't read config file: %s", err.Error()))
		}
	} else {
		log.Warn("No config file passed with --config flag")
	}
}
