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

package prom

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const (
	namespace = "eth_subgraph_indexer"

	statsSubsystem = "stats"
)

var (
	metrics bool

	blocksProcessed   prometheus.Counter
	triggersProcessed prometheus.Counter
	triggersDiscarded prometheus.Counter
	reorgsHandled     prometheus.Counter
	subgraphsFailed   prometheus.Counter

	commitDuration prometheus.Histogram
)

func Init() {
	metrics = true

	blocksProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: statsSubsystem,
		Name:      "blocks_processed",
		Help:      "Number of blocks processed and committed",
	})

	triggersProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: statsSubsystem,
		Name:      "triggers_processed",
		Help:      "Number of mapping invocations completed",
	})

	triggersDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: statsSubsystem,
		Name:      "triggers_discarded",
		Help:      "Number of failed invocations discarded under the tolerate-failures policy",
	})

	reorgsHandled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: statsSubsystem,
		Name:      "reorgs_handled",
		Help:      "Number of chain reorganizations reverted",
	})

	subgraphsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: statsSubsystem,
		Name:      "subgraphs_failed",
		Help:      "Number of subgraphs that halted with a fatal error",
	})

	commitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: statsSubsystem,
		Name:      "commit_duration_seconds",
		Help:      "Wall time from block arrival to committed transaction",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	})
}

// Enabled returns whether metrics collection is on.
func Enabled() bool {
	return metrics
}

// Serve starts the metrics HTTP endpoint.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics server error: %v", err)
		}
	}()
	return &srv
}

// IncBlocksProcessed increments the number of committed blocks
func IncBlocksProcessed() {
	if metrics {
		blocksProcessed.Inc()
	}
}

// IncTriggersProcessed increments the number of completed invocations
func IncTriggersProcessed() {
	if metrics {
		triggersProcessed.Inc()
	}
}

// IncTriggersDiscarded increments the number of discarded invocations
func IncTriggersDiscarded() {
	if metrics {
		triggersDiscarded.Inc()
	}
}

// IncReorgsHandled increments the number of reorgs reverted
func IncReorgsHandled() {
	if metrics {
		reorgsHandled.Inc()
	}
}

// IncSubgraphsFailed increments the number of halted subgraphs
func IncSubgraphsFailed() {
	if metrics {
		subgraphsFailed.Inc()
	}
}

// ObserveCommit records one block's processing time
func ObserveCommit(d time.Duration) {
	if metrics {
		commitDuration.Observe(d.Seconds())
	}
}
